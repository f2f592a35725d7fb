// Package testhelpers provides reusable testing utilities: an in-memory
// database and fixture builders for tenants, assets, events, and incidents.
package testhelpers

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
)

// SetupTestDB creates a fully migrated in-memory database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A plain :memory: DSN is per-connection, and pinning the pool to one
	// connection deadlocks code that reads through a second handle while a
	// transaction holds the only connection. A uniquely named shared-cache
	// in-memory database gives every pooled connection the same schema.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// CreateTenant inserts an active tenant.
func CreateTenant(t *testing.T, db *gorm.DB, name string) *database.Tenant {
	t.Helper()
	tenant := &database.Tenant{Name: name, Slug: uuid.NewString()[:8], IsActive: true}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	return tenant
}

// CreateAsset inserts an asset of the given type.
func CreateAsset(t *testing.T, db *gorm.DB, tenantID uint, name, assetType string) *database.Asset {
	t.Helper()
	asset := &database.Asset{
		TenantID:  tenantID,
		Name:      name,
		AssetType: assetType,
	}
	if err := db.Create(asset).Error; err != nil {
		t.Fatalf("failed to create asset: %v", err)
	}
	return asset
}

// CreateUser inserts an active user with the given role.
func CreateUser(t *testing.T, db *gorm.DB, tenantID uint, name, email, role string) *database.User {
	t.Helper()
	user := &database.User{
		TenantID: tenantID,
		Name:     name,
		Email:    email,
		Role:     role,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// EventOption mutates an event fixture before insert.
type EventOption func(*database.Event)

// WithSeverity sets the event severity.
func WithSeverity(sev database.Severity) EventOption {
	return func(e *database.Event) { e.Severity = sev }
}

// WithCategory sets the event category.
func WithCategory(cat database.EventCategory) EventOption {
	return func(e *database.Event) { e.Category = cat }
}

// WithSummary sets the event summary.
func WithSummary(summary string) EventOption {
	return func(e *database.Event) { e.Summary = summary }
}

// WithEventTime sets the event time.
func WithEventTime(at time.Time) EventOption {
	return func(e *database.Event) { e.EventTime = at }
}

// WithProcessed marks the event as already handled by the detector.
func WithProcessed() EventOption {
	return func(e *database.Event) { e.Processed = true }
}

// CreateEvent inserts an event on an asset with sane defaults: a WARNING
// severity alert that happened now.
func CreateEvent(t *testing.T, db *gorm.DB, tenantID uint, assetID uint, opts ...EventOption) *database.Event {
	t.Helper()
	event := &database.Event{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		SourceSystem: database.SourceSystemAlert,
		SourceID:     uuid.NewString(),
		AssetID:      &assetID,
		EventTime:    time.Now().UTC(),
		Severity:     database.SeverityWarning,
		Category:     database.CategoryAlert,
		Summary:      "test event",
	}
	for _, opt := range opts {
		opt(event)
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("failed to create event: %v", err)
	}
	return event
}

// CreateIncident inserts a minimal open incident rooted at the given asset.
func CreateIncident(t *testing.T, db *gorm.DB, tenantID uint, assetID uint) *database.Incident {
	t.Helper()
	incident := &database.Incident{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		IncidentNumber: "INC-TEST-" + uuid.NewString()[:8],
		Type:           database.IncidentTypeFailure,
		Status:         database.IncidentStatusOpen,
		Severity:       database.SeverityMajor,
		RootAssetID:    &assetID,
		StartTime:      time.Now().UTC().Add(-30 * time.Minute),
	}
	if err := db.Create(incident).Error; err != nil {
		t.Fatalf("failed to create incident: %v", err)
	}
	return incident
}
