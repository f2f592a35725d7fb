package services

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
)

// ErrIncidentNotFound is returned when an incident ID does not resolve.
var ErrIncidentNotFound = errors.New("incident not found")

const maintenanceLookback = 7 * 24 * time.Hour

// RCAService runs root-cause analysis over an incident's event window,
// combining historical pattern matching with causal rule evaluation, and
// persists the full analysis on the incident record.
type RCAService struct {
	db     *gorm.DB
	assets AssetDirectory
	costs  CostModelSource
	window time.Duration
}

func NewRCAService(db *gorm.DB, assets AssetDirectory, costs CostModelSource) *RCAService {
	return &RCAService{
		db:     db,
		assets: assets,
		costs:  costs,
		window: DefaultCorrelationWindow,
	}
}

// WithWindow overrides how far around the trigger unlinked sensor readings
// are pulled into the analysis window.
func (s *RCAService) WithWindow(window time.Duration) *RCAService {
	s.window = window
	return s
}

// RCAResult is the outcome of one analysis run.
type RCAResult struct {
	IncidentID         string                       `json:"incident_id"`
	RootCauseScores    database.ScoreMap            `json:"root_cause_scores"`
	TopCause           string                       `json:"top_cause"`
	TopScore           float64                      `json:"top_score"`
	HistoricalMatches  []HistoricalMatch            `json:"historical_matches"`
	CausalMatches      []CausalMatch                `json:"causal_matches"`
	Narrative          string                       `json:"narrative"`
	NarrativeAr        string                       `json:"narrative_ar"`
	RecommendedActions []database.RecommendedAction `json:"recommended_actions"`
	FinancialImpact    database.FinancialImpact     `json:"financial_impact"`
	CarbonImpact       database.CarbonImpact        `json:"carbon_impact"`
}

// AnalyzeIncident runs the full RCA chain for one incident. The analysis is
// recomputed from scratch on every call; results are only persisted when the
// whole chain succeeds.
func (s *RCAService) AnalyzeIncident(incidentID string) (*RCAResult, error) {
	var incident database.Incident
	if err := s.db.Where("id = ?", incidentID).First(&incident).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("loading incident %s: %w", incidentID, err)
	}

	window, trigger, roles, err := s.assembleWindow(&incident)
	if err != nil {
		return nil, fmt.Errorf("assembling event window for %s: %w", incidentID, err)
	}

	asset := s.resolveAsset(&incident)
	assetType := ""
	if asset != nil {
		assetType = asset.AssetType
	}

	maintenance, err := s.recentMaintenance(&incident)
	if err != nil {
		return nil, fmt.Errorf("loading maintenance history for %s: %w", incidentID, err)
	}

	categories := windowCategories(window)

	historical, err := s.loadHistoricalIncidents(&incident, assetType)
	if err != nil {
		return nil, fmt.Errorf("loading historical incidents for %s: %w", incidentID, err)
	}
	patternMatches := MatchHistoricalIncidents(categories, historical, DefaultSimilarityThreshold, DefaultMaxHistoricalMatch)

	rules, err := s.loadRules(incident.TenantID)
	if err != nil {
		return nil, fmt.Errorf("loading causal rules: %w", err)
	}
	causalMatches := EvaluateCausalRules(rules, assetType, windowText(window, maintenance))

	scores := ComputeRootCauseScores(patternMatches, causalMatches)
	topCause, topScore := scores.Top()

	actions := recommendActions(causalMatches, topCause, incident.Severity)
	downtime := ruleDowntime(causalMatches, topCause)
	rate, err := s.costs.LookupRate(incident.TenantID, incident.RootAssetID, incident.SiteID)
	if err != nil {
		return nil, fmt.Errorf("resolving cost rate: %w", err)
	}
	financial := EstimateFinancialImpact(incident.Severity, topScore, downtime, rate)
	carbon := EstimateCarbonImpact(assetType, len(window))

	facts := StoryFacts{
		DetectedAt: incident.CreatedAt,
		Severity:   incident.Severity,
		Precursors: precursorEvents(window, trigger, roles),
		TopCause:   topCause,
		TopScore:   topScore,
		Similar:    patternMatches,
	}
	if trigger != nil {
		facts.DetectedAt = trigger.EventTime
	}
	if asset != nil {
		facts.AssetName = asset.Name
		facts.AssetNameAr = asset.NameAr
	}
	narrative := BuildNarrative(facts)
	narrativeAr := BuildNarrativeAr(facts)

	now := time.Now().UTC()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Model(&database.Incident{}).
			Where("id = ?", incident.ID).
			Updates(map[string]interface{}{
				"rca_status":          database.RCAStatusCompleted,
				"root_cause_scores":   scores,
				"window_categories":   database.StringList(categories),
				"narrative":           narrative,
				"narrative_ar":        narrativeAr,
				"recommended_actions": database.ActionList(actions),
				"financial_impact":    &financial,
				"carbon_impact":       &carbon,
				"rca_completed_at":    &now,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("persisting analysis for %s: %w", incidentID, err)
	}

	log.Printf("RCA completed for incident %s: top cause %s (%.3f), %d pattern matches, %d rule matches",
		incident.IncidentNumber, topCause, topScore, len(patternMatches), len(causalMatches))

	return &RCAResult{
		IncidentID:         incident.ID,
		RootCauseScores:    scores,
		TopCause:           topCause,
		TopScore:           topScore,
		HistoricalMatches:  patternMatches,
		CausalMatches:      causalMatches,
		Narrative:          narrative,
		NarrativeAr:        narrativeAr,
		RecommendedActions: actions,
		FinancialImpact:    financial,
		CarbonImpact:       carbon,
	}, nil
}

// assembleWindow collects the incident's linked events in timeline order,
// plus any sensor readings on the root asset inside the correlation window
// that were never linked. Returns the window, the trigger event, and each
// linked event's causal role.
func (s *RCAService) assembleWindow(incident *database.Incident) ([]database.Event, *database.Event, map[string]database.EventRole, error) {
	var links []database.IncidentEvent
	if err := s.db.Where("incident_id = ?", incident.ID).
		Order("sequence_order asc").
		Find(&links).Error; err != nil {
		return nil, nil, nil, err
	}

	ids := make([]string, 0, len(links))
	roles := make(map[string]database.EventRole, len(links))
	for _, l := range links {
		ids = append(ids, l.EventID)
		roles[l.EventID] = l.Role
	}

	var events []database.Event
	if len(ids) > 0 {
		if err := s.db.Where("id IN ?", ids).Find(&events).Error; err != nil {
			return nil, nil, nil, err
		}
	}

	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		seen[ev.ID] = struct{}{}
	}

	// Copy the trigger out of the slice: appending sensor readings below can
	// reallocate the backing array, and the sort reorders it in place.
	var trigger *database.Event
	for i := range events {
		if events[i].ID == incident.TriggerEventID {
			t := events[i]
			trigger = &t
		}
	}

	// Sensor readings are high-volume and often skipped at detection time;
	// pull the ones around the trigger back in for analysis.
	if trigger != nil && incident.RootAssetID != nil {
		var sensors []database.Event
		err := s.db.Where("tenant_id = ? AND asset_id = ? AND category = ? AND event_time BETWEEN ? AND ?",
			incident.TenantID, *incident.RootAssetID, database.CategorySensor,
			trigger.EventTime.Add(-s.window), trigger.EventTime.Add(s.window)).
			Order("event_time asc").
			Find(&sensors).Error
		if err != nil {
			return nil, nil, nil, err
		}
		for _, ev := range sensors {
			if _, ok := seen[ev.ID]; !ok {
				events = append(events, ev)
				seen[ev.ID] = struct{}{}
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].EventTime.Before(events[j].EventTime)
	})
	return events, trigger, roles, nil
}

// recentMaintenance returns work orders completed on the root asset in the
// week before the incident. Recent repairs are strong causal hints.
func (s *RCAService) recentMaintenance(incident *database.Incident) ([]database.WorkOrder, error) {
	if incident.RootAssetID == nil {
		return nil, nil
	}
	var orders []database.WorkOrder
	err := s.db.Where("tenant_id = ? AND asset_id = ? AND completed_at IS NOT NULL AND completed_at BETWEEN ? AND ?",
		incident.TenantID, *incident.RootAssetID,
		incident.StartTime.Add(-maintenanceLookback), incident.StartTime).
		Order("completed_at desc").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// loadHistoricalIncidents returns prior RCA-completed incidents for assets of
// the same type, newest first, capped at the history limit.
func (s *RCAService) loadHistoricalIncidents(incident *database.Incident, assetType string) ([]database.Incident, error) {
	q := s.db.Where("tenant_id = ? AND rca_status = ? AND id <> ?",
		incident.TenantID, database.RCAStatusCompleted, incident.ID)

	if assetType != "" {
		assetIDs, err := s.assets.ListAssetIDsByType(incident.TenantID, assetType)
		if err != nil {
			return nil, err
		}
		if len(assetIDs) == 0 {
			return nil, nil
		}
		q = q.Where("root_asset_id IN ?", assetIDs)
	}

	var historical []database.Incident
	if err := q.Order("created_at desc").Limit(DefaultHistoryLimit).Find(&historical).Error; err != nil {
		return nil, err
	}
	return historical, nil
}

// loadRules returns enabled system rules plus the tenant's own rules, in
// priority order.
func (s *RCAService) loadRules(tenantID uint) ([]database.RCARule, error) {
	var rules []database.RCARule
	err := s.db.Where("enabled = ? AND (tenant_id IS NULL OR tenant_id = ?)", true, tenantID).
		Order("priority asc, id asc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *RCAService) resolveAsset(incident *database.Incident) *AssetInfo {
	if incident.RootAssetID == nil {
		return nil
	}
	asset, err := s.assets.GetAsset(incident.TenantID, *incident.RootAssetID)
	if err != nil {
		log.Printf("asset lookup failed for tenant %d asset %d: %v", incident.TenantID, *incident.RootAssetID, err)
		return nil
	}
	return asset
}

func windowCategories(events []database.Event) []string {
	seen := make(map[string]struct{})
	var categories []string
	for _, ev := range events {
		c := string(ev.Category)
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			categories = append(categories, c)
		}
	}
	sort.Strings(categories)
	return categories
}

// windowText concatenates event summaries and recent maintenance titles into
// the text the causal rules are matched against.
func windowText(events []database.Event, maintenance []database.WorkOrder) string {
	var parts []string
	for _, ev := range events {
		parts = append(parts, ev.Summary)
		if ev.Payload.Message != "" && ev.Payload.Message != ev.Summary {
			parts = append(parts, ev.Payload.Message)
		}
	}
	for _, wo := range maintenance {
		parts = append(parts, wo.Title)
	}
	return strings.Join(parts, " | ")
}

// precursorEvents returns the window events that occurred strictly before
// the trigger, oldest first. Only causal links and sensor readings qualify;
// context alerts stay out of the narrative.
func precursorEvents(events []database.Event, trigger *database.Event, roles map[string]database.EventRole) []database.Event {
	if trigger == nil {
		return nil
	}
	var precursors []database.Event
	for _, ev := range events {
		if ev.ID == trigger.ID || !ev.EventTime.Before(trigger.EventTime) {
			continue
		}
		if roles[ev.ID] == database.RoleCause || ev.Category == database.CategorySensor {
			precursors = append(precursors, ev)
		}
	}
	return precursors
}

// ruleDowntime returns the downtime estimate of the rule that produced the
// top cause, or the default when no rule matched it.
func ruleDowntime(matches []CausalMatch, topCause string) float64 {
	for _, m := range matches {
		if m.RootCause == topCause && m.EstimatedDowntimeHours > 0 {
			return m.EstimatedDowntimeHours
		}
	}
	return DefaultDowntimeHours
}

// recommendActions picks the action list from the matched rule for the top
// cause, falling back to a generic checklist, and escalates to the shift
// supervisor for severe incidents.
func recommendActions(matches []CausalMatch, topCause string, severity database.Severity) []database.RecommendedAction {
	var actions []database.RecommendedAction
	for _, m := range matches {
		if m.RootCause == topCause && len(m.RecommendedActions) > 0 {
			actions = append(actions, m.RecommendedActions...)
			break
		}
	}

	if len(actions) == 0 {
		actions = []database.RecommendedAction{
			{Priority: 1, Action: "Inspect the asset and verify the reported readings", ActionAr: "فحص الأصل والتحقق من القراءات المبلغ عنها", Category: "inspection", Source: "generic"},
			{Priority: 2, Action: "Review recent maintenance history and operating conditions", ActionAr: "مراجعة سجل الصيانة الأخير وظروف التشغيل", Category: "review", Source: "generic"},
			{Priority: 3, Action: "Schedule a diagnostic assessment if the condition persists", ActionAr: "جدولة تقييم تشخيصي إذا استمرت الحالة", Category: "diagnostics", Source: "generic"},
		}
	}

	if severity == database.SeverityCritical || severity == database.SeverityMajor {
		supervisor := database.RecommendedAction{
			Priority: 0,
			Action:   "Notify the shift supervisor immediately",
			ActionAr: "إبلاغ مشرف الوردية فوراً",
			Category: "escalation",
			Source:   "severity",
		}
		actions = append([]database.RecommendedAction{supervisor}, actions...)
	}

	return actions
}
