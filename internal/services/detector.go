package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/utils"
)

// DefaultCorrelationWindow bounds how far around a trigger event the detector
// looks for related events. The 30-minute value is carried over from
// operational defaults and has not been calibrated against real incident
// data; treat it as tunable.
const DefaultCorrelationWindow = 30 * time.Minute

// DetectorService scans unprocessed events for trigger conditions, opens
// incidents, and clusters temporally and spatially related events into them.
type DetectorService struct {
	db           *gorm.DB
	windowBefore time.Duration
	windowAfter  time.Duration
	now          func() time.Time
}

// NewDetectorService creates a detector with the default correlation window.
func NewDetectorService(db *gorm.DB) *DetectorService {
	return &DetectorService{
		db:           db,
		windowBefore: DefaultCorrelationWindow,
		windowAfter:  DefaultCorrelationWindow,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithWindow overrides the correlation window on both sides of the trigger.
func (s *DetectorService) WithWindow(before, after time.Duration) *DetectorService {
	s.windowBefore = before
	s.windowAfter = after
	return s
}

// DetectionResult summarizes one detection cycle.
type DetectionResult struct {
	TriggerEventsFound int `json:"trigger_events_found"`
	IncidentsCreated   int `json:"incidents_created"`
	EventsProcessed    int `json:"events_processed"`
}

// RunDetection runs one detection cycle for a tenant. Re-running over the
// same event set is safe: a trigger already linked to an incident is skipped,
// so concurrent or repeated invocations yield at-least-once semantics with
// dedup on write rather than exactly-once.
func (s *DetectorService) RunDetection(tenantID uint) (*DetectionResult, error) {
	result := &DetectionResult{}

	triggers, err := s.findTriggerEvents(tenantID)
	if err != nil {
		return nil, fmt.Errorf("find trigger events: %w", err)
	}
	result.TriggerEventsFound = len(triggers)

	for i := range triggers {
		trigger := &triggers[i]

		linked, err := s.eventLinked(trigger.ID)
		if err != nil {
			return nil, err
		}
		if !linked {
			if _, err := s.createIncidentFromEvent(trigger); err != nil {
				return nil, fmt.Errorf("create incident from event %s: %w", trigger.ID, err)
			}
			result.IncidentsCreated++
		}
		result.EventsProcessed++
	}

	return result, nil
}

// findTriggerEvents returns unprocessed events that warrant an incident:
// CRITICAL or MAJOR severity, or FAILURE category. Ordered oldest first so
// incidents are numbered chronologically.
func (s *DetectorService) findTriggerEvents(tenantID uint) ([]database.Event, error) {
	var events []database.Event
	err := s.db.
		Where("tenant_id = ? AND processed = ?", tenantID, false).
		Where("severity IN ? OR category = ?",
			[]database.Severity{database.SeverityCritical, database.SeverityMajor},
			database.CategoryFailure).
		Order("event_time asc").
		Find(&events).Error
	return events, err
}

func (s *DetectorService) eventLinked(eventID string) (bool, error) {
	var count int64
	err := s.db.Model(&database.IncidentEvent{}).Where("event_id = ?", eventID).Count(&count).Error
	return count > 0, err
}

// createIncidentFromEvent opens an incident for the trigger, links it as the
// CAUSE at sequence zero, and gathers related events into the window. The
// whole operation commits as one transaction.
func (s *DetectorService) createIncidentFromEvent(trigger *database.Event) (*database.Incident, error) {
	incident := &database.Incident{
		ID:             uuid.New().String(),
		TenantID:       trigger.TenantID,
		Type:           determineIncidentType(trigger),
		Status:         database.IncidentStatusOpen,
		Severity:       trigger.Severity,
		RootAssetID:    trigger.AssetID,
		SiteID:         trigger.SiteID,
		StartTime:      trigger.EventTime.Add(-s.windowBefore),
		TriggerEventID: trigger.ID,
		Title:          fmt.Sprintf("Incident: %s", utils.TruncateText(trigger.Summary, 100)),
		Description:    trigger.Summary,
	}
	if trigger.AssetID != nil {
		incident.ImpactedAssets = database.UintList{*trigger.AssetID}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		number, err := database.NextIncidentNumber(tx, trigger.TenantID, s.now())
		if err != nil {
			return err
		}
		incident.IncidentNumber = number

		if err := tx.Create(incident).Error; err != nil {
			return err
		}

		link := database.IncidentEvent{
			TenantID:      trigger.TenantID,
			IncidentID:    incident.ID,
			EventID:       trigger.ID,
			Role:          database.RoleCause,
			SequenceOrder: 0,
		}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}

		if err := tx.Model(&database.Event{}).Where("id = ?", trigger.ID).
			Update("processed", true).Error; err != nil {
			return err
		}

		return s.gatherRelatedEvents(tx, incident, trigger)
	})
	if err != nil {
		return nil, err
	}

	return incident, nil
}

// gatherRelatedEvents links events inside the correlation window that share
// an asset or site with the trigger, classifying each one's role.
func (s *DetectorService) gatherRelatedEvents(tx *gorm.DB, incident *database.Incident, trigger *database.Event) error {
	windowStart := trigger.EventTime.Add(-s.windowBefore)
	windowEnd := trigger.EventTime.Add(s.windowAfter)

	query := tx.
		Where("tenant_id = ? AND id <> ?", trigger.TenantID, trigger.ID).
		Where("event_time >= ? AND event_time <= ?", windowStart, windowEnd)

	switch {
	case trigger.AssetID != nil && trigger.SiteID != nil:
		query = query.Where("asset_id = ? OR site_id = ?", *trigger.AssetID, *trigger.SiteID)
	case trigger.AssetID != nil:
		query = query.Where("asset_id = ?", *trigger.AssetID)
	case trigger.SiteID != nil:
		query = query.Where("site_id = ?", *trigger.SiteID)
	default:
		// Trigger has no spatial reference; nothing to correlate with.
		return nil
	}

	var related []database.Event
	if err := query.Order("event_time asc").Find(&related).Error; err != nil {
		return err
	}

	sequence := 1
	for i := range related {
		event := &related[i]

		link := database.IncidentEvent{
			TenantID:      trigger.TenantID,
			IncidentID:    incident.ID,
			EventID:       event.ID,
			Role:          classifyEventRole(event, trigger),
			SequenceOrder: sequence,
		}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}

		if err := tx.Model(&database.Event{}).Where("id = ?", event.ID).
			Update("processed", true).Error; err != nil {
			return err
		}
		sequence++

		if event.AssetID != nil && !incident.ImpactedAssets.Contains(*event.AssetID) {
			incident.ImpactedAssets = append(incident.ImpactedAssets, *event.AssetID)
		}
	}

	if len(related) > 0 {
		if err := tx.Model(&database.Incident{}).Where("id = ?", incident.ID).
			Update("impacted_assets", incident.ImpactedAssets).Error; err != nil {
			return err
		}
	}

	return nil
}

// determineIncidentType derives the incident type from the trigger event.
func determineIncidentType(event *database.Event) database.IncidentType {
	if event.Category == database.CategoryFailure {
		return database.IncidentTypeFailure
	}
	if event.Severity == database.SeverityCritical {
		return database.IncidentTypeFailure
	}
	if event.Tags.Contains("anomaly") {
		return database.IncidentTypeAnomaly
	}
	if event.Severity == database.SeverityMajor {
		return database.IncidentTypeNearMiss
	}
	return database.IncidentTypeAnomaly
}

// classifyEventRole classifies an event's causal relationship to the trigger:
// severe events before the trigger are causes, severe events after are
// symptoms, everything else is context.
func classifyEventRole(event, trigger *database.Event) database.EventRole {
	severe := event.Severity == database.SeverityCritical || event.Severity == database.SeverityMajor
	if event.EventTime.Before(trigger.EventTime) {
		if severe {
			return database.RoleCause
		}
		return database.RoleContext
	}
	if severe {
		return database.RoleSymptom
	}
	return database.RoleContext
}
