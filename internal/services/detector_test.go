package services

import (
	"strings"
	"testing"
	"time"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/testhelpers"
)

func TestRunDetection_CreatesIncidentFromCriticalEvent(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	asset := testhelpers.CreateAsset(t, db, tenant.ID, "P-101", "centrifugal pump")

	trigger := testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithSeverity(database.SeverityCritical),
		testhelpers.WithCategory(database.CategoryFailure),
		testhelpers.WithSummary("Pump P-101 tripped on high vibration"),
	)

	result, err := NewDetectorService(db).RunDetection(tenant.ID)
	if err != nil {
		t.Fatalf("RunDetection failed: %v", err)
	}
	if result.IncidentsCreated != 1 {
		t.Fatalf("expected 1 incident, got %d", result.IncidentsCreated)
	}

	var incident database.Incident
	if err := db.First(&incident).Error; err != nil {
		t.Fatalf("failed to load incident: %v", err)
	}
	if incident.Type != database.IncidentTypeFailure {
		t.Errorf("expected FAILURE type, got %s", incident.Type)
	}
	if incident.Severity != database.SeverityCritical {
		t.Errorf("expected CRITICAL severity, got %s", incident.Severity)
	}
	if incident.TriggerEventID != trigger.ID {
		t.Errorf("trigger event not recorded")
	}
	if incident.RootAssetID == nil || *incident.RootAssetID != asset.ID {
		t.Errorf("root asset not recorded")
	}
	if !strings.HasPrefix(incident.IncidentNumber, "INC-") {
		t.Errorf("unexpected incident number %q", incident.IncidentNumber)
	}
	if !incident.ImpactedAssets.Contains(asset.ID) {
		t.Errorf("trigger asset missing from impacted assets")
	}

	var link database.IncidentEvent
	if err := db.Where("event_id = ?", trigger.ID).First(&link).Error; err != nil {
		t.Fatalf("trigger link missing: %v", err)
	}
	if link.Role != database.RoleCause || link.SequenceOrder != 0 {
		t.Errorf("trigger should be CAUSE at sequence 0, got %s/%d", link.Role, link.SequenceOrder)
	}

	var reloaded database.Event
	db.Where("id = ?", trigger.ID).First(&reloaded)
	if !reloaded.Processed {
		t.Errorf("trigger event should be marked processed")
	}
}

func TestRunDetection_IsIdempotent(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	asset := testhelpers.CreateAsset(t, db, tenant.ID, "P-101", "pump")

	testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithSeverity(database.SeverityCritical))

	detector := NewDetectorService(db)
	for i := 0; i < 2; i++ {
		if _, err := detector.RunDetection(tenant.ID); err != nil {
			t.Fatalf("RunDetection run %d failed: %v", i, err)
		}
	}

	var count int64
	db.Model(&database.Incident{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 incident after repeated runs, got %d", count)
	}
}

func TestRunDetection_IgnoresMinorEvents(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	asset := testhelpers.CreateAsset(t, db, tenant.ID, "P-101", "pump")

	testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithSeverity(database.SeverityWarning))
	testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithSeverity(database.SeverityMinor))

	result, err := NewDetectorService(db).RunDetection(tenant.ID)
	if err != nil {
		t.Fatalf("RunDetection failed: %v", err)
	}
	if result.TriggerEventsFound != 0 || result.IncidentsCreated != 0 {
		t.Errorf("low-severity events should not trigger incidents: %+v", result)
	}
}

func TestRunDetection_FailureCategoryTriggersRegardlessOfSeverity(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	asset := testhelpers.CreateAsset(t, db, tenant.ID, "V-201", "valve")

	testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithSeverity(database.SeverityWarning),
		testhelpers.WithCategory(database.CategoryFailure))

	result, err := NewDetectorService(db).RunDetection(tenant.ID)
	if err != nil {
		t.Fatalf("RunDetection failed: %v", err)
	}
	if result.IncidentsCreated != 1 {
		t.Errorf("FAILURE category should trigger, got %+v", result)
	}
}

func TestRunDetection_GathersWindowEvents(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	asset := testhelpers.CreateAsset(t, db, tenant.ID, "P-101", "pump")
	other := testhelpers.CreateAsset(t, db, tenant.ID, "P-999", "pump")

	now := time.Now().UTC()

	precursor := testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithSeverity(database.SeverityMajor),
		testhelpers.WithEventTime(now.Add(-10*time.Minute)),
		testhelpers.WithSummary("Vibration exceeded 1.5 mm/s"),
		testhelpers.WithProcessed())
	context := testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithSeverity(database.SeverityInfo),
		testhelpers.WithEventTime(now.Add(-5*time.Minute)),
		testhelpers.WithProcessed())
	// Outside the window
	testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithEventTime(now.Add(-2*time.Hour)),
		testhelpers.WithProcessed())
	// Different asset, no shared site
	testhelpers.CreateEvent(t, db, tenant.ID, other.ID,
		testhelpers.WithEventTime(now.Add(-5*time.Minute)),
		testhelpers.WithProcessed())

	trigger := testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithSeverity(database.SeverityCritical),
		testhelpers.WithCategory(database.CategoryFailure),
		testhelpers.WithEventTime(now))
	symptom := testhelpers.CreateEvent(t, db, tenant.ID, asset.ID,
		testhelpers.WithSeverity(database.SeverityMajor),
		testhelpers.WithEventTime(now.Add(5*time.Minute)),
		testhelpers.WithProcessed())

	if _, err := NewDetectorService(db).RunDetection(tenant.ID); err != nil {
		t.Fatalf("RunDetection failed: %v", err)
	}

	var links []database.IncidentEvent
	db.Order("sequence_order asc").Find(&links)
	if len(links) != 4 {
		t.Fatalf("expected trigger plus 3 window events linked, got %d", len(links))
	}

	roleByEvent := map[string]database.EventRole{}
	for _, l := range links {
		roleByEvent[l.EventID] = l.Role
	}
	if roleByEvent[trigger.ID] != database.RoleCause {
		t.Errorf("trigger should be CAUSE")
	}
	if roleByEvent[precursor.ID] != database.RoleCause {
		t.Errorf("severe precursor should be CAUSE, got %s", roleByEvent[precursor.ID])
	}
	if roleByEvent[context.ID] != database.RoleContext {
		t.Errorf("mild precursor should be CONTEXT, got %s", roleByEvent[context.ID])
	}
	if roleByEvent[symptom.ID] != database.RoleSymptom {
		t.Errorf("severe follow-up should be SYMPTOM, got %s", roleByEvent[symptom.ID])
	}
}

func TestDetermineIncidentType(t *testing.T) {
	cases := []struct {
		name  string
		event database.Event
		want  database.IncidentType
	}{
		{"failure category", database.Event{Category: database.CategoryFailure, Severity: database.SeverityWarning}, database.IncidentTypeFailure},
		{"critical severity", database.Event{Category: database.CategoryAlert, Severity: database.SeverityCritical}, database.IncidentTypeFailure},
		{"anomaly tag", database.Event{Category: database.CategoryAIOutput, Severity: database.SeverityWarning, Tags: database.StringList{"anomaly"}}, database.IncidentTypeAnomaly},
		{"major severity", database.Event{Category: database.CategoryAlert, Severity: database.SeverityMajor}, database.IncidentTypeNearMiss},
	}
	for _, tc := range cases {
		if got := determineIncidentType(&tc.event); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
