// Package sources provides the database-backed implementations of the
// collector and pipeline collaborator interfaces. Each store reads the
// platform tables directly so the pipeline stays decoupled from them.
package sources

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/services"
)

// AlertStore reads platform alerts for the collector.
type AlertStore struct {
	db *gorm.DB
}

func NewAlertStore(db *gorm.DB) *AlertStore {
	return &AlertStore{db: db}
}

func (s *AlertStore) ListAlerts(tenantID uint, since *time.Time) ([]services.RawAlert, error) {
	q := s.db.Where("tenant_id = ?", tenantID)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}

	var alerts []database.Alert
	if err := q.Order("created_at asc").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}

	raw := make([]services.RawAlert, 0, len(alerts))
	for _, a := range alerts {
		raw = append(raw, services.RawAlert{
			ID:             fmt.Sprintf("%d", a.ID),
			AssetID:        a.AssetID,
			SiteID:         a.SiteID,
			AlertType:      a.AlertType,
			Severity:       a.Severity,
			Message:        a.Message,
			ThresholdValue: a.ThresholdValue,
			ActualValue:    a.ActualValue,
			Status:         a.Status,
			CreatedAt:      a.CreatedAt,
		})
	}
	return raw, nil
}

// WorkOrderStore reads platform work orders for the collector. Auto-created
// work orders are excluded so the pipeline never re-ingests its own output.
type WorkOrderStore struct {
	db *gorm.DB
}

func NewWorkOrderStore(db *gorm.DB) *WorkOrderStore {
	return &WorkOrderStore{db: db}
}

func (s *WorkOrderStore) ListWorkOrders(tenantID uint, since *time.Time) ([]services.RawWorkOrder, error) {
	q := s.db.Where("tenant_id = ? AND source <> ?", tenantID, database.WorkOrderSourceAuto)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}

	var orders []database.WorkOrder
	if err := q.Order("created_at asc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("listing work orders: %w", err)
	}

	raw := make([]services.RawWorkOrder, 0, len(orders))
	for _, wo := range orders {
		raw = append(raw, services.RawWorkOrder{
			ID:             fmt.Sprintf("%d", wo.ID),
			AssetID:        wo.AssetID,
			SiteID:         wo.SiteID,
			Code:           wo.Code,
			Title:          wo.Title,
			WorkType:       wo.WorkType,
			Priority:       wo.Priority,
			Status:         wo.Status,
			ScheduledStart: wo.ScheduledStart,
			ScheduledEnd:   wo.ScheduledEnd,
			CreatedAt:      wo.CreatedAt,
		})
	}
	return raw, nil
}

// AIScoreStore reads the latest per-asset AI model outputs for the collector.
type AIScoreStore struct {
	db *gorm.DB
}

func NewAIScoreStore(db *gorm.DB) *AIScoreStore {
	return &AIScoreStore{db: db}
}

func (s *AIScoreStore) ListAIScores(tenantID uint) ([]services.RawAIScore, error) {
	var assets []database.Asset
	err := s.db.Where("tenant_id = ? AND (failure_probability IS NOT NULL OR anomaly_score IS NOT NULL)", tenantID).
		Order("id asc").
		Find(&assets).Error
	if err != nil {
		return nil, fmt.Errorf("listing AI scores: %w", err)
	}

	raw := make([]services.RawAIScore, 0, len(assets))
	for _, a := range assets {
		raw = append(raw, services.RawAIScore{
			AssetID:            a.ID,
			SiteID:             a.SiteID,
			AssetName:          a.Name,
			HealthScore:        a.HealthScore,
			FailureProbability: a.FailureProbability,
			AnomalyScore:       a.AnomalyScore,
		})
	}
	return raw, nil
}
