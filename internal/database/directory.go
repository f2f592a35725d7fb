package database

import "time"

// Tenant is an isolated customer environment. The pipeline runs per tenant.
type Tenant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Slug      string    `gorm:"size:64;uniqueIndex" json:"slug"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// Site is a physical location grouping assets.
type Site struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;index" json:"tenant_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	NameAr    string    `gorm:"size:255" json:"name_ar"`
	Code      string    `gorm:"size:50" json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Site) TableName() string {
	return "sites"
}

// Asset is a monitored piece of industrial equipment. The AI score columns
// are written by the surrounding platform; the collector only reads them.
type Asset struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TenantID    uint      `gorm:"not null;index" json:"tenant_id"`
	SiteID      *uint     `gorm:"index" json:"site_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	NameAr      string    `gorm:"size:255" json:"name_ar"`
	AssetType   string    `gorm:"size:100;index" json:"asset_type"`
	Criticality string    `gorm:"size:20" json:"criticality"`

	HealthScore        *float64 `json:"health_score"`
	FailureProbability *float64 `json:"failure_probability"`
	AnomalyScore       *float64 `json:"anomaly_score"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Asset) TableName() string {
	return "assets"
}

// User roles consulted during assignee resolution.
const (
	RoleEngineer             = "engineer"
	RoleOptimizationEngineer = "optimization_engineer"
	RoleTenantAdmin          = "tenant_admin"
)

// User is a tenant member who can be assigned auto-created work orders.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"not null;index" json:"tenant_id"`
	Email     string    `gorm:"size:255;uniqueIndex" json:"email"`
	Name      string    `gorm:"size:255" json:"name"`
	Role      string    `gorm:"size:50;index" json:"role"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// CostModel holds downtime cost rates. Resolution precedence is
// asset-specific, then site-wide, then tenant-wide (both refs nil).
type CostModel struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	TenantID            uint      `gorm:"not null;index" json:"tenant_id"`
	AssetID             *uint     `gorm:"index" json:"asset_id"`
	SiteID              *uint     `gorm:"index" json:"site_id"`
	CostPerHourDowntime float64   `json:"cost_per_hour_downtime"`
	Currency            string    `gorm:"size:10;default:'SAR'" json:"currency"`
	IsActive            bool      `gorm:"default:true" json:"is_active"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (CostModel) TableName() string {
	return "cost_models"
}

// Alert is a raw platform alert, consumed by the collector as one of its
// external sources.
type Alert struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	TenantID       uint      `gorm:"not null;index" json:"tenant_id"`
	AssetID        *uint     `gorm:"index" json:"asset_id"`
	SiteID         *uint     `json:"site_id"`
	AlertType      string    `gorm:"size:100" json:"alert_type"`
	Severity       string    `gorm:"size:20" json:"severity"`
	Message        string    `gorm:"type:text" json:"message"`
	ThresholdValue *float64  `json:"threshold_value"`
	ActualValue    *float64  `json:"actual_value"`
	Status         string    `gorm:"size:20;default:'active'" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Alert) TableName() string {
	return "alerts"
}
