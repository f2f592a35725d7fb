package services

import (
	"fmt"
	"log"
	"time"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/metrics"
)

// DefaultCollectionLookback bounds how far back a pipeline run collects
// source records when no explicit cursor is given.
const DefaultCollectionLookback = 24 * time.Hour

// Pipeline chains the stages: collect, detect, analyze, dispatch.
type Pipeline struct {
	Collector  *CollectorService
	Detector   *DetectorService
	RCA        *RCAService
	Dispatcher *DispatcherService
}

func NewPipeline(collector *CollectorService, detector *DetectorService, rca *RCAService, dispatcher *DispatcherService) *Pipeline {
	return &Pipeline{
		Collector:  collector,
		Detector:   detector,
		RCA:        rca,
		Dispatcher: dispatcher,
	}
}

// PipelineResult summarizes one collect+detect run for a tenant.
type PipelineResult struct {
	TenantID   uint              `json:"tenant_id"`
	Collection *CollectionResult `json:"collection"`
	Detection  *DetectionResult  `json:"detection"`
}

// Run collects new source records for a tenant and detects incidents from
// them. A nil since defaults to the standard lookback.
func (p *Pipeline) Run(tenantID uint, since *time.Time) (*PipelineResult, error) {
	if since == nil {
		cutoff := time.Now().UTC().Add(-DefaultCollectionLookback)
		since = &cutoff
	}

	collection, err := p.Collector.Collect(tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("collection for tenant %d: %w", tenantID, err)
	}
	metrics.AddEventsCollected("alert", collection.Alerts)
	metrics.AddEventsCollected("work_order", collection.WorkOrders)
	metrics.AddEventsCollected("ai_output", collection.AIOutputs)

	detection, err := p.Detector.RunDetection(tenantID)
	if err != nil {
		return nil, fmt.Errorf("detection for tenant %d: %w", tenantID, err)
	}
	metrics.AddIncidentsCreated(detection.IncidentsCreated)

	if collection.Total > 0 || detection.IncidentsCreated > 0 {
		log.Printf("pipeline run for tenant %d: %d events collected, %d incidents created",
			tenantID, collection.Total, detection.IncidentsCreated)
	}

	return &PipelineResult{TenantID: tenantID, Collection: collection, Detection: detection}, nil
}

// AnalyzeIncident runs root-cause analysis for one incident, with metrics.
func (p *Pipeline) AnalyzeIncident(incidentID string) (*RCAResult, error) {
	start := time.Now()
	result, err := p.RCA.AnalyzeIncident(incidentID)
	if err != nil {
		metrics.ObserveRCA(time.Since(start), metrics.OutcomeError)
		return nil, err
	}
	metrics.ObserveRCA(time.Since(start), metrics.OutcomeSuccess)
	return result, nil
}

// RemediationResult is the outcome of an analyze-and-dispatch run.
type RemediationResult struct {
	RCA              *RCAResult          `json:"rca"`
	WorkOrderCreated bool                `json:"work_order_created"`
	WorkOrder        *database.WorkOrder `json:"work_order,omitempty"`
}

// RunRCAAndRemediate analyzes an incident and, when it qualifies, creates
// the corrective work order.
func (p *Pipeline) RunRCAAndRemediate(incidentID string) (*RemediationResult, error) {
	rcaResult, err := p.AnalyzeIncident(incidentID)
	if err != nil {
		return nil, err
	}

	order, err := p.Dispatcher.CreateWorkOrder(incidentID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		metrics.IncWorkOrdersCreated()
	}

	return &RemediationResult{
		RCA:              rcaResult,
		WorkOrderCreated: order != nil,
		WorkOrder:        order,
	}, nil
}
