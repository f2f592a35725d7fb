package services

import "github.com/industriq/blackbox/internal/database"

// AssetInfo is the slice of asset metadata the pipeline needs.
type AssetInfo struct {
	ID          uint
	Name        string
	NameAr      string
	AssetType   string
	Criticality string
	SiteID      *uint
}

// AssetDirectory resolves asset metadata. Implementations return (nil, nil)
// for unknown assets; the pipeline degrades to generic defaults.
type AssetDirectory interface {
	GetAsset(tenantID, assetID uint) (*AssetInfo, error)
	ListAssetIDsByType(tenantID uint, assetType string) ([]uint, error)
}

// CostRate is an hourly downtime cost.
type CostRate struct {
	CostPerHour float64
	Currency    string
}

// CostModelSource resolves the downtime cost rate with asset > site > tenant
// precedence. A lookup miss is not an error: implementations return the
// documented default rate instead.
type CostModelSource interface {
	LookupRate(tenantID uint, assetID, siteID *uint) (CostRate, error)
}

// UserRef identifies a user for assignment and notification.
type UserRef struct {
	ID   uint
	Name string
}

// UserDirectory resolves work order assignees. Both methods return (nil, nil)
// when no matching active user exists.
type UserDirectory interface {
	FindEngineer(tenantID uint) (*UserRef, error)
	FindAdmin(tenantID uint) (*UserRef, error)
}

// NotificationMessage is one user-facing notification.
type NotificationMessage struct {
	TenantID   uint
	UserID     uint
	Type       string
	Title      string
	TitleAr    string
	Body       string
	BodyAr     string
	Severity   database.Severity
	EntityType string
	EntityID   string
	ActionURL  string
}

// NotificationSink delivers notifications to users.
type NotificationSink interface {
	Send(msg NotificationMessage) error
}
