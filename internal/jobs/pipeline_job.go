package jobs

import (
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/services"
)

// PipelineJob periodically runs the collect-and-detect pipeline for every
// active tenant, then analyzes and remediates any incidents still pending
// analysis.
type PipelineJob struct {
	db       *gorm.DB
	pipeline *services.Pipeline
	interval time.Duration

	// lastRun is the collection cursor per tenant. Zero value means the
	// pipeline's default lookback applies.
	lastRun map[uint]time.Time
}

// NewPipelineJob creates a new pipeline job
func NewPipelineJob(db *gorm.DB, pipeline *services.Pipeline, interval time.Duration) *PipelineJob {
	return &PipelineJob{
		db:       db,
		pipeline: pipeline,
		interval: interval,
		lastRun:  make(map[uint]time.Time),
	}
}

// Run executes one iteration for all active tenants. Returns the number of
// incidents created across tenants. A failing tenant does not block the
// others.
func (j *PipelineJob) Run() (int, error) {
	tenantIDs, err := database.ListActiveTenantIDs(j.db)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, tenantID := range tenantIDs {
		started := time.Now().UTC()

		var since *time.Time
		if last, ok := j.lastRun[tenantID]; ok {
			since = &last
		}

		result, err := j.pipeline.Run(tenantID, since)
		if err != nil {
			log.Printf("Pipeline job error for tenant %d: %v", tenantID, err)
			continue
		}
		j.lastRun[tenantID] = started
		created += result.Detection.IncidentsCreated

		if err := j.analyzePending(tenantID); err != nil {
			log.Printf("Pipeline job analysis error for tenant %d: %v", tenantID, err)
		}
	}
	return created, nil
}

// analyzePending runs RCA and remediation for incidents the detector opened
// but nothing analyzed yet.
func (j *PipelineJob) analyzePending(tenantID uint) error {
	var ids []string
	err := j.db.Model(&database.Incident{}).
		Where("tenant_id = ? AND rca_status = ?", tenantID, database.RCAStatusPending).
		Order("start_time asc").
		Pluck("id", &ids).Error
	if err != nil {
		return err
	}

	for _, id := range ids {
		result, err := j.pipeline.RunRCAAndRemediate(id)
		if err != nil {
			log.Printf("Auto-analysis failed for incident %s: %v", id, err)
			continue
		}
		if result.WorkOrderCreated {
			log.Printf("Auto-analysis created work order %s for incident %s", result.WorkOrder.Code, id)
		}
	}
	return nil
}

// Start begins the periodic pipeline runs
func (j *PipelineJob) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			created, err := j.Run()
			if err != nil {
				log.Printf("Pipeline job error: %v", err)
			} else if created > 0 {
				log.Printf("Pipeline job: created %d incidents", created)
			}

		case <-stop:
			log.Println("Pipeline job stopped")
			return
		}
	}
}
