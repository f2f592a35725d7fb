package jobs

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/notify"
	"github.com/industriq/blackbox/internal/rules"
	"github.com/industriq/blackbox/internal/services"
	"github.com/industriq/blackbox/internal/sources"
	"github.com/industriq/blackbox/internal/testhelpers"
)

func newTestJob(t *testing.T, db *gorm.DB) *PipelineJob {
	t.Helper()
	assets := sources.NewAssetLookup(db)
	collector := services.NewCollectorService(db,
		sources.NewAlertStore(db),
		sources.NewWorkOrderStore(db),
		sources.NewAIScoreStore(db))
	detector := services.NewDetectorService(db)
	rca := services.NewRCAService(db, assets, sources.NewCostModelLookup(db))
	dispatcher := services.NewDispatcherService(db, assets,
		sources.NewUserLookup(db), notify.NewStoreSink(db))
	pipeline := services.NewPipeline(collector, detector, rca, dispatcher)
	return NewPipelineJob(db, pipeline, time.Minute)
}

func TestPipelineJob_EndToEnd(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	if err := rules.SeedBuiltinRules(db); err != nil {
		t.Fatalf("failed to seed rules: %v", err)
	}

	tenant := testhelpers.CreateTenant(t, db, "Acme")
	asset := testhelpers.CreateAsset(t, db, tenant.ID, "Pump P-101", "pump")
	testhelpers.CreateUser(t, db, tenant.ID, "Sami", "sami@acme.test", database.RoleEngineer)

	threshold, actual := 1.0, 1.8
	alert := database.Alert{
		TenantID:       tenant.ID,
		AssetID:        &asset.ID,
		AlertType:      "vibration_high",
		Severity:       "critical",
		Message:        "High vibration and noise on drive end",
		ThresholdValue: &threshold,
		ActualValue:    &actual,
		CreatedAt:      time.Now().UTC().Add(-10 * time.Minute),
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	job := newTestJob(t, db)
	created, err := job.Run()
	if err != nil {
		t.Fatalf("job run failed: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 incident created, got %d", created)
	}

	var incident database.Incident
	if err := db.Where("tenant_id = ?", tenant.ID).First(&incident).Error; err != nil {
		t.Fatalf("incident missing: %v", err)
	}
	if incident.RCAStatus != database.RCAStatusCompleted {
		t.Errorf("pending incident should be analyzed in the same run, got %s", incident.RCAStatus)
	}
	if !incident.AutoWorkOrderCreated {
		t.Errorf("critical incident should have dispatched a work order")
	}

	var order database.WorkOrder
	if err := db.Where("incident_id = ?", incident.ID).First(&order).Error; err != nil {
		t.Fatalf("work order missing: %v", err)
	}
	if order.Source != database.WorkOrderSourceAuto {
		t.Errorf("auto work order has wrong source: %s", order.Source)
	}
}

func TestPipelineJob_SecondRunIsQuiet(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	if err := rules.SeedBuiltinRules(db); err != nil {
		t.Fatalf("failed to seed rules: %v", err)
	}

	tenant := testhelpers.CreateTenant(t, db, "Acme")
	asset := testhelpers.CreateAsset(t, db, tenant.ID, "Pump P-101", "pump")
	alert := database.Alert{
		TenantID:  tenant.ID,
		AssetID:   &asset.ID,
		AlertType: "temperature_high",
		Severity:  "critical",
		CreatedAt: time.Now().UTC().Add(-10 * time.Minute),
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	job := newTestJob(t, db)
	if _, err := job.Run(); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	created, err := job.Run()
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if created != 0 {
		t.Errorf("second run should create nothing, got %d", created)
	}

	var incidents int64
	db.Model(&database.Incident{}).Count(&incidents)
	if incidents != 1 {
		t.Errorf("expected exactly 1 incident after two runs, got %d", incidents)
	}
	var events int64
	db.Model(&database.Event{}).Count(&events)
	if events != 1 {
		t.Errorf("expected exactly 1 event after two runs, got %d", events)
	}
}

func TestPipelineJob_SkipsInactiveTenants(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "Dormant")
	db.Model(&database.Tenant{}).Where("id = ?", tenant.ID).Update("is_active", false)

	asset := testhelpers.CreateAsset(t, db, tenant.ID, "Pump P-101", "pump")
	alert := database.Alert{
		TenantID:  tenant.ID,
		AssetID:   &asset.ID,
		AlertType: "vibration_high",
		Severity:  "critical",
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&alert).Error; err != nil {
		t.Fatalf("failed to create alert: %v", err)
	}

	job := newTestJob(t, db)
	created, err := job.Run()
	if err != nil {
		t.Fatalf("job run failed: %v", err)
	}
	if created != 0 {
		t.Errorf("inactive tenant should be skipped, got %d incidents", created)
	}
}
