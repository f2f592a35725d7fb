package database

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

// RuleTrigger is one observable condition of a causal rule. Metric is the
// keyword looked for in event summaries; Condition qualifies how the metric
// misbehaves. Absent fields are treated as satisfied.
type RuleTrigger struct {
	Metric    string  `json:"metric"`
	Condition string  `json:"condition,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// TriggerList is a JSON-encoded ordered list of rule triggers.
type TriggerList []RuleTrigger

func (l *TriggerList) Scan(value interface{}) error { return scanJSON(value, l) }

func (l TriggerList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// RCARule is a data-defined causal pattern mapping observed triggers to a
// root-cause category. System rules (TenantID nil, IsSystem true) apply to
// every tenant; tenant rules are merged in at evaluation time.
type RCARule struct {
	ID                     uint        `gorm:"primaryKey" json:"id"`
	TenantID               *uint       `gorm:"index" json:"tenant_id"`
	Name                   string      `gorm:"size:100;not null;index" json:"name"`
	NameAr                 string      `gorm:"size:100" json:"name_ar"`
	Description            string      `gorm:"type:text" json:"description"`
	Triggers               TriggerList `gorm:"type:jsonb" json:"triggers"`
	AssetTypes             StringList  `gorm:"type:jsonb" json:"asset_types"`
	RootCauseCategory      string      `gorm:"size:100;not null" json:"root_cause_category"`
	ConfidenceBoost        float64     `gorm:"default:0.5" json:"confidence_boost"`
	RecommendedActions     ActionList  `gorm:"type:jsonb" json:"recommended_actions"`
	EstimatedDowntimeHours float64     `gorm:"default:4" json:"estimated_downtime_hours"`
	Enabled                bool        `gorm:"default:true" json:"enabled"`
	IsSystem               bool        `gorm:"default:false" json:"is_system"`
	Priority               int         `gorm:"default:100" json:"priority"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`
}

func (RCARule) TableName() string {
	return "blackbox_rca_rules"
}

// AppliesToAssetType reports whether the rule is in scope for the given
// asset type. An empty scope means the rule applies everywhere. Scoped types
// match by substring so "centrifugal pump" satisfies a "pump" scope.
func (r *RCARule) AppliesToAssetType(assetType string) bool {
	if len(r.AssetTypes) == 0 || assetType == "" {
		return true
	}
	assetType = strings.ToLower(assetType)
	for _, t := range r.AssetTypes {
		if strings.Contains(assetType, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
