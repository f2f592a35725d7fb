package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/utils"
)

// NotificationTypeWorkOrderCreated tags auto-remediation notifications.
const NotificationTypeWorkOrderCreated = "WORK_ORDER_CREATED"

// AutoWorkOrderThreshold is the minimum top root-cause score that qualifies
// a non-severe incident for auto-remediation.
const AutoWorkOrderThreshold = 0.5

var severityPriorityMap = map[database.Severity]string{
	database.SeverityCritical: database.WorkOrderPriorityEmergency,
	database.SeverityMajor:    database.WorkOrderPriorityHigh,
	database.SeverityMinor:    database.WorkOrderPriorityMedium,
}

// DispatcherService turns completed analyses into corrective work orders and
// notifies the assignee. At most one work order is ever created per incident.
type DispatcherService struct {
	db     *gorm.DB
	assets AssetDirectory
	users  UserDirectory
	notify NotificationSink
	now    func() time.Time
}

func NewDispatcherService(db *gorm.DB, assets AssetDirectory, users UserDirectory, notify NotificationSink) *DispatcherService {
	return &DispatcherService{
		db:     db,
		assets: assets,
		users:  users,
		notify: notify,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ShouldCreateWorkOrder decides whether an incident qualifies for
// auto-remediation. The returned reason explains a negative decision.
func (s *DispatcherService) ShouldCreateWorkOrder(incident *database.Incident) (bool, string) {
	if incident.AutoWorkOrderCreated {
		return false, "work order already created"
	}
	// The work order title, cause, and recommended actions all come from the
	// analysis, so dispatch waits for it to complete.
	if incident.RCAStatus != database.RCAStatusCompleted {
		return false, "analysis not completed"
	}
	if incident.Severity == database.SeverityCritical || incident.Severity == database.SeverityMajor {
		return true, ""
	}
	_, topScore := incident.TopCause()
	if topScore >= AutoWorkOrderThreshold {
		return true, ""
	}
	return false, fmt.Sprintf("severity %s with top score %.3f below threshold", incident.Severity, topScore)
}

// CreateWorkOrder creates the corrective work order for an analyzed incident
// and marks the incident so it can never be dispatched twice. The incident
// update and the work order insert commit atomically; the follow-up
// notification is best effort.
func (s *DispatcherService) CreateWorkOrder(incidentID string) (*database.WorkOrder, error) {
	var incident database.Incident
	if err := s.db.Where("id = ?", incidentID).First(&incident).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("loading incident %s: %w", incidentID, err)
	}

	ok, reason := s.ShouldCreateWorkOrder(&incident)
	if !ok {
		log.Printf("skipping work order for incident %s: %s", incident.IncidentNumber, reason)
		return nil, nil
	}

	topCause, _ := incident.TopCause()
	causeTitle := utils.HumanizeCategory(topCause)

	assetName := "unidentified asset"
	assetNameAr := ""
	if incident.RootAssetID != nil {
		if asset, err := s.assets.GetAsset(incident.TenantID, *incident.RootAssetID); err == nil && asset != nil {
			assetName = asset.Name
			assetNameAr = asset.NameAr
		}
	}

	assignee, err := s.resolveAssignee(incident.TenantID)
	if err != nil {
		return nil, fmt.Errorf("resolving assignee: %w", err)
	}

	priority, ok := severityPriorityMap[incident.Severity]
	if !ok {
		priority = database.WorkOrderPriorityLow
	}

	now := s.now()
	order := &database.WorkOrder{
		TenantID:    incident.TenantID,
		AssetID:     incident.RootAssetID,
		SiteID:      incident.SiteID,
		IncidentID:  incident.ID,
		Title:       fmt.Sprintf("%s detected on %s", causeTitle, assetName),
		TitleAr:     workOrderTitleAr(causeTitle, assetNameAr, assetName),
		Description: workOrderDescription(&incident),
		WorkType:    "corrective",
		Priority:    priority,
		Status:      "open",
		Source:      database.WorkOrderSourceAuto,
	}
	if assignee != nil {
		order.AssignedTo = &assignee.ID
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		code, err := database.NextWorkOrderCode(tx, incident.TenantID, now)
		if err != nil {
			return err
		}
		order.Code = code
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return tx.Model(&database.Incident{}).
			Where("id = ?", incident.ID).
			Updates(map[string]interface{}{
				"auto_work_order_id":      order.ID,
				"auto_work_order_created": true,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("creating work order for incident %s: %w", incidentID, err)
	}

	log.Printf("created work order %s (%s) for incident %s, assigned to user %v",
		order.Code, order.Priority, incident.IncidentNumber, order.AssignedTo)

	if assignee != nil && s.notify != nil {
		msg := NotificationMessage{
			TenantID:   incident.TenantID,
			UserID:     assignee.ID,
			Type:       NotificationTypeWorkOrderCreated,
			Title:      fmt.Sprintf("Work order %s created: %s", order.Code, order.Title),
			TitleAr:    fmt.Sprintf("تم إنشاء أمر العمل %s: %s", order.Code, order.TitleAr),
			Body:       order.Description,
			BodyAr:     incident.NarrativeAr,
			Severity:   incident.Severity,
			EntityType: "work_order",
			EntityID:   order.Code,
			ActionURL:  fmt.Sprintf("/work-orders/%d", order.ID),
		}
		if err := s.notify.Send(msg); err != nil {
			log.Printf("notification for work order %s failed: %v", order.Code, err)
		}
	}

	return order, nil
}

// resolveAssignee prefers an engineer, then a tenant admin. Returning nil
// leaves the work order unassigned.
func (s *DispatcherService) resolveAssignee(tenantID uint) (*UserRef, error) {
	engineer, err := s.users.FindEngineer(tenantID)
	if err != nil {
		return nil, err
	}
	if engineer != nil {
		return engineer, nil
	}
	admin, err := s.users.FindAdmin(tenantID)
	if err != nil {
		return nil, err
	}
	return admin, nil
}

func workOrderTitleAr(causeTitle, assetNameAr, assetName string) string {
	asset := assetNameAr
	if asset == "" {
		asset = assetName
	}
	return fmt.Sprintf("تم اكتشاف %s على %s", causeTitle, asset)
}

// workOrderDescription builds the work order body from the incident's
// narrative, recommended actions, and cost estimate.
func workOrderDescription(incident *database.Incident) string {
	var b strings.Builder
	b.WriteString(incident.Narrative)

	if len(incident.RecommendedActions) > 0 {
		b.WriteString("\n\nRecommended actions:")
		for _, a := range incident.RecommendedActions {
			fmt.Fprintf(&b, "\n  %d. %s", a.Priority, a.Action)
		}
	}

	if incident.FinancialImpact != nil {
		fmt.Fprintf(&b, "\n\nEstimated total cost: %s %s (%.1f hours downtime)",
			utils.FormatNumber(int(incident.FinancialImpact.TotalEstimatedCost)),
			incident.FinancialImpact.Currency,
			incident.FinancialImpact.EstimatedDowntimeHours)
	}

	return b.String()
}
