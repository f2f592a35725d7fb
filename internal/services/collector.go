package services

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/utils"
)

// AI-output thresholds. A failure-probability above FailureProbMajor emits a
// MAJOR event (above FailureProbCritical, CRITICAL); an anomaly score above
// AnomalyScoreMajor emits a MAJOR event. Bucketed synthetic ids keep repeated
// collection runs from re-emitting the same derived event.
const (
	FailureProbMajor    = 0.7
	FailureProbCritical = 0.9
	AnomalyScoreMajor   = 0.8
)

// RawAlert is an alert record as exposed by the alert source.
type RawAlert struct {
	ID             string
	AssetID        *uint
	SiteID         *uint
	AlertType      string
	Severity       string
	Message        string
	ThresholdValue *float64
	ActualValue    *float64
	Status         string
	CreatedAt      time.Time
}

// RawWorkOrder is a work order record as exposed by the work order source.
type RawWorkOrder struct {
	ID             string
	AssetID        *uint
	SiteID         *uint
	Code           string
	Title          string
	WorkType       string
	Priority       string
	Status         string
	ScheduledStart *time.Time
	ScheduledEnd   *time.Time
	CreatedAt      time.Time
}

// RawAIScore is the latest AI model output for one asset.
type RawAIScore struct {
	AssetID            uint
	SiteID             *uint
	AssetName          string
	HealthScore        *float64
	FailureProbability *float64
	AnomalyScore       *float64
}

// AlertSource lists raw platform alerts for the collector.
type AlertSource interface {
	ListAlerts(tenantID uint, since *time.Time) ([]RawAlert, error)
}

// WorkOrderSource lists raw work orders for the collector.
type WorkOrderSource interface {
	ListWorkOrders(tenantID uint, since *time.Time) ([]RawWorkOrder, error)
}

// AIScoreSource lists per-asset AI outputs for the collector.
type AIScoreSource interface {
	ListAIScores(tenantID uint) ([]RawAIScore, error)
}

// alertSeverityMap translates alert-source severities to the canonical scale.
// Unmapped values fall back to INFO.
var alertSeverityMap = map[string]database.Severity{
	"info":     database.SeverityInfo,
	"warning":  database.SeverityWarning,
	"minor":    database.SeverityMinor,
	"major":    database.SeverityMajor,
	"critical": database.SeverityCritical,
}

// prioritySeverityMap translates work order priorities to the canonical scale.
var prioritySeverityMap = map[string]database.Severity{
	"low":       database.SeverityInfo,
	"medium":    database.SeverityWarning,
	"high":      database.SeverityMajor,
	"critical":  database.SeverityCritical,
	"emergency": database.SeverityCritical,
}

func mapSeverity(m map[string]database.Severity, raw string) database.Severity {
	if sev, ok := m[raw]; ok {
		return sev
	}
	return database.SeverityInfo
}

// CollectorService normalizes records from the external sources into
// canonical events. Collection is idempotent: the dedup key is
// tenant + source system + source id.
type CollectorService struct {
	db         *gorm.DB
	alerts     AlertSource
	workOrders WorkOrderSource
	aiScores   AIScoreSource
	now        func() time.Time
}

// NewCollectorService creates a new collector service.
func NewCollectorService(db *gorm.DB, alerts AlertSource, workOrders WorkOrderSource, aiScores AIScoreSource) *CollectorService {
	return &CollectorService{
		db:         db,
		alerts:     alerts,
		workOrders: workOrders,
		aiScores:   aiScores,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CollectionResult counts the events created per source during one run.
type CollectionResult struct {
	Alerts     int `json:"alerts"`
	WorkOrders int `json:"work_orders"`
	AIOutputs  int `json:"ai_outputs"`
	Total      int `json:"total"`
}

// Collect runs one normalization cycle for a tenant. All inserts commit as a
// single unit of work; a failure rolls the whole batch back. Malformed source
// records are skipped individually and never abort the batch.
func (s *CollectorService) Collect(tenantID uint, since *time.Time) (*CollectionResult, error) {
	result := &CollectionResult{}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		n, err := s.collectAlerts(tx, tenantID, since)
		if err != nil {
			return fmt.Errorf("collect alerts: %w", err)
		}
		result.Alerts = n

		n, err = s.collectWorkOrders(tx, tenantID, since)
		if err != nil {
			return fmt.Errorf("collect work orders: %w", err)
		}
		result.WorkOrders = n

		n, err = s.collectAIOutputs(tx, tenantID)
		if err != nil {
			return fmt.Errorf("collect ai outputs: %w", err)
		}
		result.AIOutputs = n

		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Total = result.Alerts + result.WorkOrders + result.AIOutputs
	return result, nil
}

func (s *CollectorService) collectAlerts(tx *gorm.DB, tenantID uint, since *time.Time) (int, error) {
	raws, err := s.alerts.ListAlerts(tenantID, since)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, raw := range raws {
		if raw.ID == "" || raw.CreatedAt.IsZero() {
			log.Printf("Skipping malformed alert record for tenant %d (missing id or timestamp)", tenantID)
			continue
		}

		exists, err := eventExists(tx, tenantID, database.SourceSystemAlert, raw.ID)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		message := raw.Message
		if message == "" {
			message = "No message"
		}
		tags := database.StringList{}
		if raw.AlertType != "" {
			tags = append(tags, raw.AlertType)
		}
		tags = append(tags, raw.Severity)

		event := database.Event{
			ID:           uuid.New().String(),
			TenantID:     tenantID,
			AssetID:      raw.AssetID,
			SiteID:       raw.SiteID,
			SourceSystem: database.SourceSystemAlert,
			SourceType:   "ALERT",
			SourceID:     raw.ID,
			EventTime:    raw.CreatedAt,
			Severity:     mapSeverity(alertSeverityMap, raw.Severity),
			Category:     database.CategoryAlert,
			Summary:      fmt.Sprintf("%s: %s", raw.AlertType, utils.TruncateText(message, 200)),
			Payload: database.EventPayload{
				AlertType:      raw.AlertType,
				Message:        raw.Message,
				ThresholdValue: raw.ThresholdValue,
				ActualValue:    raw.ActualValue,
				Status:         raw.Status,
			},
			Tags: tags,
		}
		if err := tx.Create(&event).Error; err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *CollectorService) collectWorkOrders(tx *gorm.DB, tenantID uint, since *time.Time) (int, error) {
	raws, err := s.workOrders.ListWorkOrders(tenantID, since)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, raw := range raws {
		if raw.ID == "" || raw.CreatedAt.IsZero() {
			log.Printf("Skipping malformed work order record for tenant %d (missing id or timestamp)", tenantID)
			continue
		}

		exists, err := eventExists(tx, tenantID, database.SourceSystemWorkOrder, raw.ID)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		title := raw.Title
		if title == "" {
			title = "Untitled"
		}
		tags := database.StringList{"work_order"}
		if raw.WorkType != "" {
			tags = append(tags, raw.WorkType)
		}

		event := database.Event{
			ID:           uuid.New().String(),
			TenantID:     tenantID,
			AssetID:      raw.AssetID,
			SiteID:       raw.SiteID,
			SourceSystem: database.SourceSystemWorkOrder,
			SourceType:   "WORK_ORDER",
			SourceID:     raw.ID,
			EventTime:    raw.CreatedAt,
			Severity:     mapSeverity(prioritySeverityMap, raw.Priority),
			Category:     database.CategoryMaintenance,
			Summary:      fmt.Sprintf("Work Order: %s", utils.TruncateText(title, 200)),
			Payload: database.EventPayload{
				WorkOrderCode: raw.Code,
				WorkType:      raw.WorkType,
				Priority:      raw.Priority,
				Status:        raw.Status,
			},
			Tags: tags,
		}
		if err := tx.Create(&event).Error; err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (s *CollectorService) collectAIOutputs(tx *gorm.DB, tenantID uint) (int, error) {
	scores, err := s.aiScores.ListAIScores(tenantID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	created := 0
	for _, score := range scores {
		if score.AssetID == 0 {
			log.Printf("Skipping malformed AI score record for tenant %d (missing asset)", tenantID)
			continue
		}
		assetID := score.AssetID

		if score.FailureProbability != nil && *score.FailureProbability > FailureProbMajor {
			// Daily bucket: one derived failure-risk event per asset per day.
			sourceID := fmt.Sprintf("ai_failure_%d_%s", assetID, now.Format("20060102"))
			exists, err := eventExists(tx, tenantID, database.SourceSystemAI, sourceID)
			if err != nil {
				return created, err
			}
			if !exists {
				severity := database.SeverityMajor
				if *score.FailureProbability > FailureProbCritical {
					severity = database.SeverityCritical
				}
				event := database.Event{
					ID:           uuid.New().String(),
					TenantID:     tenantID,
					AssetID:      &assetID,
					SiteID:       score.SiteID,
					SourceSystem: database.SourceSystemAI,
					SourceType:   "AI_PREDICTION",
					SourceID:     sourceID,
					EventTime:    now,
					Severity:     severity,
					Category:     database.CategoryAIOutput,
					Summary:      fmt.Sprintf("High failure probability detected: %.1f%%", *score.FailureProbability*100),
					Payload: database.EventPayload{
						PredictionType: "failure_probability",
						Score:          score.FailureProbability,
						HealthScore:    score.HealthScore,
						AssetName:      score.AssetName,
					},
					Tags: database.StringList{"ai_prediction", "failure_risk"},
				}
				if err := tx.Create(&event).Error; err != nil {
					return created, err
				}
				created++
			}
		}

		if score.AnomalyScore != nil && *score.AnomalyScore > AnomalyScoreMajor {
			// Hourly bucket for anomalies, which move faster than failure risk.
			sourceID := fmt.Sprintf("ai_anomaly_%d_%s", assetID, now.Format("2006010215"))
			exists, err := eventExists(tx, tenantID, database.SourceSystemAI, sourceID)
			if err != nil {
				return created, err
			}
			if !exists {
				event := database.Event{
					ID:           uuid.New().String(),
					TenantID:     tenantID,
					AssetID:      &assetID,
					SiteID:       score.SiteID,
					SourceSystem: database.SourceSystemAI,
					SourceType:   "ANOMALY",
					SourceID:     sourceID,
					EventTime:    now,
					Severity:     database.SeverityMajor,
					Category:     database.CategoryAIOutput,
					Summary:      fmt.Sprintf("Anomaly detected: score %.2f", *score.AnomalyScore),
					Payload: database.EventPayload{
						PredictionType: "anomaly",
						Score:          score.AnomalyScore,
						HealthScore:    score.HealthScore,
						AssetName:      score.AssetName,
					},
					Tags: database.StringList{"ai_prediction", "anomaly"},
				}
				if err := tx.Create(&event).Error; err != nil {
					return created, err
				}
				created++
			}
		}
	}
	return created, nil
}

func eventExists(tx *gorm.DB, tenantID uint, sourceSystem, sourceID string) (bool, error) {
	var count int64
	err := tx.Model(&database.Event{}).
		Where("tenant_id = ? AND source_system = ? AND source_id = ?", tenantID, sourceSystem, sourceID).
		Count(&count).Error
	return count > 0, err
}
