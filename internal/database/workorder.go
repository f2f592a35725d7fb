package database

import "time"

// Work order priorities and the auto-creation source marker.
const (
	WorkOrderPriorityEmergency = "emergency"
	WorkOrderPriorityHigh      = "high"
	WorkOrderPriorityMedium    = "medium"
	WorkOrderPriorityLow       = "low"

	WorkOrderSourceAuto   = "BLACKBOX_AUTO"
	WorkOrderSourceManual = "MANUAL"
)

// WorkOrder is a maintenance job. Completed work orders feed back into RCA as
// maintenance history; the dispatcher creates corrective ones from incidents.
type WorkOrder struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	TenantID    uint   `gorm:"not null;index" json:"tenant_id"`
	AssetID     *uint  `gorm:"index" json:"asset_id"`
	SiteID      *uint  `json:"site_id"`
	IncidentID  string `gorm:"size:36;index" json:"incident_id"`
	Code        string `gorm:"size:50;uniqueIndex" json:"code"`
	Title       string `gorm:"size:255" json:"title"`
	TitleAr     string `gorm:"size:255" json:"title_ar"`
	Description string `gorm:"type:text" json:"description"`
	WorkType    string `gorm:"size:50;default:'corrective'" json:"work_type"`
	Priority    string `gorm:"size:20;default:'medium'" json:"priority"`
	Status      string `gorm:"size:20;default:'open'" json:"status"`
	Source      string `gorm:"size:50;default:'MANUAL'" json:"source"`
	AssignedTo  *uint  `gorm:"index" json:"assigned_to"`

	ScheduledStart *time.Time `json:"scheduled_start"`
	ScheduledEnd   *time.Time `json:"scheduled_end"`
	CompletedAt    *time.Time `gorm:"index" json:"completed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (WorkOrder) TableName() string {
	return "work_orders"
}

// Notification is an in-app message delivered to a user, typically the
// assignee of an auto-created work order.
type Notification struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TenantID   uint       `gorm:"not null;index" json:"tenant_id"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	Type       string     `gorm:"size:50" json:"type"`
	Title      string     `gorm:"size:255" json:"title"`
	TitleAr    string     `gorm:"size:255" json:"title_ar"`
	Body       string     `gorm:"type:text" json:"body"`
	BodyAr     string     `gorm:"type:text" json:"body_ar"`
	Severity   Severity   `gorm:"size:20" json:"severity"`
	EntityType string     `gorm:"size:50" json:"entity_type"`
	EntityID   string     `gorm:"size:64" json:"entity_id"`
	ActionURL  string     `gorm:"size:255" json:"action_url"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
