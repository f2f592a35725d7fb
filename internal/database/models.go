package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// scanJSON decodes a JSON column value into dest. Postgres hands us []byte,
// sqlite (used in tests) hands us string.
func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return errors.New("unsupported source type for JSON column")
	}
}

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	return scanJSON(value, j)
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// StringList is a JSON-encoded list of strings.
type StringList []string

func (l *StringList) Scan(value interface{}) error { return scanJSON(value, l) }

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Contains reports whether s is present in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// UintList is a JSON-encoded list of numeric ids.
type UintList []uint

func (l *UintList) Scan(value interface{}) error { return scanJSON(value, l) }

func (l UintList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Contains reports whether id is present in the list.
func (l UintList) Contains(id uint) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// ScoreMap maps a root-cause category to its normalized score.
type ScoreMap map[string]float64

func (m *ScoreMap) Scan(value interface{}) error { return scanJSON(value, m) }

func (m ScoreMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Top returns the highest-scoring category and its score. Ties break toward
// the lexically smaller category so the result is stable.
func (m ScoreMap) Top() (string, float64) {
	var topCause string
	var topScore float64
	for cause, score := range m {
		if topCause == "" || score > topScore || (score == topScore && cause < topCause) {
			topCause = cause
			topScore = score
		}
	}
	return topCause, topScore
}

// Severity is the canonical five-level event/incident severity scale.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

// EventCategory classifies where an event came from. The column is free-form;
// these are the categories the pipeline itself knows about.
type EventCategory string

const (
	CategorySensor      EventCategory = "SENSOR"
	CategoryAlert       EventCategory = "ALERT"
	CategoryFailure     EventCategory = "FAILURE"
	CategoryMaintenance EventCategory = "MAINTENANCE"
	CategoryAIOutput    EventCategory = "AI_OUTPUT"
	CategoryProcess     EventCategory = "PROCESS"
	CategorySystem      EventCategory = "SYSTEM"
)

// Source systems recognized by the event collector.
const (
	SourceSystemAlert     = "PLATFORM_ALERT"
	SourceSystemWorkOrder = "PLATFORM_WORKORDER"
	SourceSystemAI        = "AI_ENGINE"
)

// EventPayload carries the source-specific detail of an event. Known keys are
// typed; anything else goes into Extra.
type EventPayload struct {
	AlertType      string            `json:"alert_type,omitempty"`
	Message        string            `json:"message,omitempty"`
	Status         string            `json:"status,omitempty"`
	ThresholdValue *float64          `json:"threshold_value,omitempty"`
	ActualValue    *float64          `json:"actual_value,omitempty"`
	WorkOrderCode  string            `json:"work_order_code,omitempty"`
	WorkType       string            `json:"work_type,omitempty"`
	Priority       string            `json:"priority,omitempty"`
	PredictionType string            `json:"prediction_type,omitempty"`
	Score          *float64          `json:"score,omitempty"`
	HealthScore    *float64          `json:"health_score,omitempty"`
	AssetName      string            `json:"asset_name,omitempty"`
	Extra          map[string]string `json:"extra,omitempty"`
}

func (p *EventPayload) Scan(value interface{}) error { return scanJSON(value, p) }

func (p EventPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Event is the canonical normalized operational record. Immutable once
// written except for the Processed flag.
type Event struct {
	ID           string        `gorm:"primaryKey;size:36" json:"id"`
	TenantID     uint          `gorm:"not null;index;index:idx_events_dedup,priority:1" json:"tenant_id"`
	AssetID      *uint         `gorm:"index" json:"asset_id"`
	SiteID       *uint         `gorm:"index" json:"site_id"`
	SourceSystem string        `gorm:"size:50;not null;index:idx_events_dedup,priority:2" json:"source_system"`
	SourceType   string        `gorm:"size:50;not null" json:"source_type"`
	SourceID     string        `gorm:"size:255;index:idx_events_dedup,priority:3" json:"source_id"`
	EventTime    time.Time     `gorm:"not null;index" json:"event_time"`
	IngestTime   time.Time     `json:"ingest_time"`
	Severity     Severity      `gorm:"size:20;default:'INFO';index" json:"severity"`
	Category     EventCategory `gorm:"size:50;not null;index" json:"category"`
	Summary      string        `gorm:"size:500" json:"summary"`
	Payload      EventPayload  `gorm:"type:jsonb" json:"payload"`
	Tags         StringList    `gorm:"type:jsonb" json:"tags"`
	Processed    bool          `gorm:"default:false;index" json:"processed"`
	CreatedAt    time.Time     `json:"created_at"`
}

// BeforeCreate stamps the ingest time.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.IngestTime.IsZero() {
		e.IngestTime = time.Now().UTC()
	}
	return nil
}

func (Event) TableName() string {
	return "blackbox_events"
}

// IncidentType classifies the operational issue an incident represents.
type IncidentType string

const (
	IncidentTypeFailure     IncidentType = "FAILURE"
	IncidentTypeNearMiss    IncidentType = "NEAR_MISS"
	IncidentTypeAnomaly     IncidentType = "ANOMALY"
	IncidentTypeDegradation IncidentType = "DEGRADATION"
	IncidentTypeSafety      IncidentType = "SAFETY"
)

// IncidentStatus is the incident lifecycle state.
type IncidentStatus string

const (
	IncidentStatusOpen          IncidentStatus = "OPEN"
	IncidentStatusInvestigating IncidentStatus = "INVESTIGATING"
	IncidentStatusResolved      IncidentStatus = "RESOLVED"
	IncidentStatusClosed        IncidentStatus = "CLOSED"
)

// RCAStatus tracks whether root-cause analysis has run for an incident.
type RCAStatus string

const (
	RCAStatusPending   RCAStatus = "PENDING"
	RCAStatusCompleted RCAStatus = "COMPLETED"
)

// EventRole is an event's causal relationship to the incident trigger.
type EventRole string

const (
	RoleCause   EventRole = "CAUSE"
	RoleSymptom EventRole = "SYMPTOM"
	RoleContext EventRole = "CONTEXT"
	RoleNoise   EventRole = "NOISE"
	RoleUnknown EventRole = "UNKNOWN"
)

// RecommendedAction is one prioritized remediation step, bilingual.
type RecommendedAction struct {
	Priority int    `json:"priority"`
	Action   string `json:"action"`
	ActionAr string `json:"action_ar,omitempty"`
	Category string `json:"category,omitempty"`
	Source   string `json:"source,omitempty"`
}

// ActionList is a JSON-encoded ordered list of recommended actions.
type ActionList []RecommendedAction

func (l *ActionList) Scan(value interface{}) error { return scanJSON(value, l) }

func (l ActionList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// FinancialImpact is the downtime-cost estimate attached to an incident.
type FinancialImpact struct {
	EstimatedDowntimeHours float64 `json:"estimated_downtime_hours"`
	CostPerHour            float64 `json:"cost_per_hour"`
	Currency               string  `json:"currency"`
	RepairCost             float64 `json:"repair_cost"`
	ProductionLoss         float64 `json:"production_loss"`
	TotalEstimatedCost     float64 `json:"total_estimated_cost"`
	Confidence             float64 `json:"confidence"`
}

func (f *FinancialImpact) Scan(value interface{}) error { return scanJSON(value, f) }

func (f FinancialImpact) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// CarbonImpact is the energy/emissions proxy estimate for an incident.
type CarbonImpact struct {
	EnergyUsedKWh float64 `json:"energy_used_kwh"`
	CarbonFactor  float64 `json:"carbon_factor"`
	CarbonKg      float64 `json:"carbon_kg"`
	CarbonTons    float64 `json:"carbon_tons"`
	EnergyType    string  `json:"energy_type"`
	WindowHours   float64 `json:"window_hours"`
}

func (c *CarbonImpact) Scan(value interface{}) error { return scanJSON(value, c) }

func (c CarbonImpact) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Incident is a grouped, time-windowed cluster of events representing one
// operational issue. Created by the detector, enriched by the RCA engine and
// the dispatcher. Incidents are never deleted.
type Incident struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	TenantID       uint           `gorm:"not null;index;index:idx_incidents_tenant_status,priority:1" json:"tenant_id"`
	IncidentNumber string         `gorm:"size:50;index" json:"incident_number"`
	Type           IncidentType   `gorm:"size:30;not null;default:'FAILURE'" json:"type"`
	Status         IncidentStatus `gorm:"size:20;not null;default:'OPEN';index:idx_incidents_tenant_status,priority:2" json:"status"`
	Severity       Severity       `gorm:"size:20;not null;default:'MAJOR';index" json:"severity"`
	Title          string         `gorm:"size:255" json:"title"`
	Description    string         `gorm:"type:text" json:"description"`
	RootAssetID    *uint          `gorm:"index" json:"root_asset_id"`
	SiteID         *uint          `json:"site_id"`
	ImpactedAssets UintList       `gorm:"type:jsonb" json:"impacted_assets"`
	StartTime      time.Time      `gorm:"not null;index" json:"start_time"`
	EndTime        *time.Time     `json:"end_time"`
	TriggerEventID string         `gorm:"size:36;index" json:"trigger_event_id"`

	// RCA output, written once analysis completes.
	RCAStatus          RCAStatus        `gorm:"size:20;default:'PENDING';index" json:"rca_status"`
	RootCauseScores    ScoreMap         `gorm:"type:jsonb" json:"root_cause_scores"`
	WindowCategories   StringList       `gorm:"type:jsonb" json:"window_categories"`
	Narrative          string           `gorm:"type:text" json:"narrative"`
	NarrativeAr        string           `gorm:"type:text" json:"narrative_ar"`
	RecommendedActions ActionList       `gorm:"type:jsonb" json:"recommended_actions"`
	FinancialImpact    *FinancialImpact `gorm:"type:jsonb" json:"financial_impact"`
	CarbonImpact       *CarbonImpact    `gorm:"type:jsonb" json:"carbon_impact"`
	RCACompletedAt     *time.Time       `json:"rca_completed_at"`

	// Auto-remediation bookkeeping. Once AutoWorkOrderCreated is set the
	// reference is never reassigned.
	AutoWorkOrderID      *uint `json:"auto_work_order_id"`
	AutoWorkOrderCreated bool  `gorm:"default:false" json:"auto_work_order_created"`

	ResolvedAt *time.Time `json:"resolved_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Incident) TableName() string {
	return "blackbox_incidents"
}

// TopCause returns the highest-probability root cause and its score.
func (i *Incident) TopCause() (string, float64) {
	if len(i.RootCauseScores) == 0 {
		return "UNKNOWN", 0.3
	}
	return i.RootCauseScores.Top()
}

// IncidentEvent links an event to an incident with its causal role and
// position in the reconstructed timeline.
type IncidentEvent struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TenantID      uint      `gorm:"not null;index" json:"tenant_id"`
	IncidentID    string    `gorm:"size:36;not null;uniqueIndex:idx_incident_event,priority:1" json:"incident_id"`
	EventID       string    `gorm:"size:36;not null;uniqueIndex:idx_incident_event,priority:2" json:"event_id"`
	Role          EventRole `gorm:"size:20;default:'UNKNOWN'" json:"role"`
	SequenceOrder int       `gorm:"default:0" json:"sequence_order"`
	AddedAt       time.Time `json:"added_at"`
}

// BeforeCreate stamps the link time.
func (ie *IncidentEvent) BeforeCreate(tx *gorm.DB) error {
	if ie.AddedAt.IsZero() {
		ie.AddedAt = time.Now().UTC()
	}
	return nil
}

func (IncidentEvent) TableName() string {
	return "blackbox_incident_events"
}
