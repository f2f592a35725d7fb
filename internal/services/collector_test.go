package services

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/testhelpers"
)

type fakeAlertSource struct {
	alerts []RawAlert
}

func (f *fakeAlertSource) ListAlerts(tenantID uint, since *time.Time) ([]RawAlert, error) {
	return f.alerts, nil
}

type fakeWorkOrderSource struct {
	orders []RawWorkOrder
}

func (f *fakeWorkOrderSource) ListWorkOrders(tenantID uint, since *time.Time) ([]RawWorkOrder, error) {
	return f.orders, nil
}

type fakeAIScoreSource struct {
	scores []RawAIScore
}

func (f *fakeAIScoreSource) ListAIScores(tenantID uint) ([]RawAIScore, error) {
	return f.scores, nil
}

func floatPtr(v float64) *float64 { return &v }

func newTestCollector(t *testing.T, alerts []RawAlert, orders []RawWorkOrder, scores []RawAIScore) (*CollectorService, *gorm.DB, uint) {
	t.Helper()
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	svc := NewCollectorService(db,
		&fakeAlertSource{alerts: alerts},
		&fakeWorkOrderSource{orders: orders},
		&fakeAIScoreSource{scores: scores},
	)
	return svc, db, tenant.ID
}

func TestCollect_NormalizesAlert(t *testing.T) {
	assetID := uint(7)
	alert := RawAlert{
		ID:          "42",
		AssetID:     &assetID,
		AlertType:   "vibration_high",
		Severity:    "critical",
		Message:     "Vibration exceeded 1.5 mm/s",
		ActualValue: floatPtr(1.8),
		Status:      "active",
		CreatedAt:   time.Now().UTC(),
	}
	svc, db, tenantID := newTestCollector(t, []RawAlert{alert}, nil, nil)

	result, err := svc.Collect(tenantID, nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Alerts != 1 || result.Total != 1 {
		t.Fatalf("expected 1 alert event, got %+v", result)
	}

	var event database.Event
	if err := db.First(&event).Error; err != nil {
		t.Fatalf("failed to load event: %v", err)
	}
	if event.Severity != database.SeverityCritical {
		t.Errorf("expected CRITICAL severity, got %s", event.Severity)
	}
	if event.Category != database.CategoryAlert {
		t.Errorf("expected ALERT category, got %s", event.Category)
	}
	if event.Summary != "vibration_high: Vibration exceeded 1.5 mm/s" {
		t.Errorf("unexpected summary: %q", event.Summary)
	}
	if event.Payload.ActualValue == nil || *event.Payload.ActualValue != 1.8 {
		t.Errorf("payload actual value not preserved: %+v", event.Payload)
	}
	if event.AssetID == nil || *event.AssetID != assetID {
		t.Errorf("asset id not preserved")
	}
}

func TestCollect_IsIdempotent(t *testing.T) {
	alert := RawAlert{ID: "42", AlertType: "temp_high", Severity: "major", Message: "hot", CreatedAt: time.Now().UTC()}
	order := RawWorkOrder{ID: "9", Code: "WO-1", Title: "Replace seal", Priority: "high", CreatedAt: time.Now().UTC()}
	svc, db, tenantID := newTestCollector(t, []RawAlert{alert}, []RawWorkOrder{order}, nil)

	first, err := svc.Collect(tenantID, nil)
	if err != nil {
		t.Fatalf("first Collect failed: %v", err)
	}
	if first.Total != 2 {
		t.Fatalf("expected 2 events on first run, got %d", first.Total)
	}

	second, err := svc.Collect(tenantID, nil)
	if err != nil {
		t.Fatalf("second Collect failed: %v", err)
	}
	if second.Total != 0 {
		t.Errorf("expected 0 new events on second run, got %d", second.Total)
	}

	var count int64
	db.Model(&database.Event{}).Count(&count)
	if count != 2 {
		t.Errorf("expected 2 stored events, got %d", count)
	}
}

func TestCollect_SkipsMalformedRecords(t *testing.T) {
	alerts := []RawAlert{
		{ID: "", Severity: "major", CreatedAt: time.Now().UTC()},
		{ID: "1", Severity: "major", Message: "ok", CreatedAt: time.Time{}},
		{ID: "2", Severity: "major", Message: "ok", CreatedAt: time.Now().UTC()},
	}
	svc, _, tenantID := newTestCollector(t, alerts, nil, nil)

	result, err := svc.Collect(tenantID, nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.Alerts != 1 {
		t.Errorf("expected only the well-formed alert, got %d", result.Alerts)
	}
}

func TestCollect_UnknownSeverityFallsBackToInfo(t *testing.T) {
	alert := RawAlert{ID: "1", AlertType: "odd", Severity: "catastrophic", Message: "x", CreatedAt: time.Now().UTC()}
	svc, db, tenantID := newTestCollector(t, []RawAlert{alert}, nil, nil)

	if _, err := svc.Collect(tenantID, nil); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var event database.Event
	db.First(&event)
	if event.Severity != database.SeverityInfo {
		t.Errorf("expected INFO fallback, got %s", event.Severity)
	}
}

func TestCollect_WorkOrderPriorityMapping(t *testing.T) {
	cases := []struct {
		priority string
		want     database.Severity
	}{
		{"low", database.SeverityInfo},
		{"medium", database.SeverityWarning},
		{"high", database.SeverityMajor},
		{"emergency", database.SeverityCritical},
	}
	for _, tc := range cases {
		order := RawWorkOrder{ID: "wo-" + tc.priority, Title: "t", Priority: tc.priority, CreatedAt: time.Now().UTC()}
		svc, db, tenantID := newTestCollector(t, nil, []RawWorkOrder{order}, nil)

		if _, err := svc.Collect(tenantID, nil); err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		var event database.Event
		db.First(&event)
		if event.Severity != tc.want {
			t.Errorf("priority %s: expected %s, got %s", tc.priority, tc.want, event.Severity)
		}
		if event.Category != database.CategoryMaintenance {
			t.Errorf("priority %s: expected MAINTENANCE category, got %s", tc.priority, event.Category)
		}
	}
}

func TestCollect_AIFailureProbability(t *testing.T) {
	scores := []RawAIScore{
		{AssetID: 1, AssetName: "P-101", FailureProbability: floatPtr(0.95)},
		{AssetID: 2, AssetName: "P-102", FailureProbability: floatPtr(0.75)},
		{AssetID: 3, AssetName: "P-103", FailureProbability: floatPtr(0.5)},
	}
	svc, db, tenantID := newTestCollector(t, nil, nil, scores)

	result, err := svc.Collect(tenantID, nil)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if result.AIOutputs != 2 {
		t.Fatalf("expected 2 AI events (0.5 below threshold), got %d", result.AIOutputs)
	}

	var critical, major database.Event
	db.Where("asset_id = ?", 1).First(&critical)
	db.Where("asset_id = ?", 2).First(&major)
	if critical.Severity != database.SeverityCritical {
		t.Errorf("0.95 probability should be CRITICAL, got %s", critical.Severity)
	}
	if major.Severity != database.SeverityMajor {
		t.Errorf("0.75 probability should be MAJOR, got %s", major.Severity)
	}
}

func TestCollect_AIScoresBucketOncePerDay(t *testing.T) {
	scores := []RawAIScore{{AssetID: 1, FailureProbability: floatPtr(0.8)}}
	svc, db, tenantID := newTestCollector(t, nil, nil, scores)

	// Pin the clock so both runs land in the same bucket.
	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	for i := 0; i < 2; i++ {
		if _, err := svc.Collect(tenantID, nil); err != nil {
			t.Fatalf("Collect run %d failed: %v", i, err)
		}
	}

	var count int64
	db.Model(&database.Event{}).Count(&count)
	if count != 1 {
		t.Errorf("expected one bucketed event for the day, got %d", count)
	}

	var event database.Event
	db.First(&event)
	if event.SourceID != "ai_failure_1_20260314" {
		t.Errorf("unexpected bucket id: %s", event.SourceID)
	}
}

func TestCollect_AnomalyScore(t *testing.T) {
	scores := []RawAIScore{{AssetID: 5, AnomalyScore: floatPtr(0.9)}}
	svc, db, tenantID := newTestCollector(t, nil, nil, scores)

	fixed := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if _, err := svc.Collect(tenantID, nil); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	var event database.Event
	db.First(&event)
	if event.Severity != database.SeverityMajor {
		t.Errorf("anomaly should be MAJOR, got %s", event.Severity)
	}
	if event.SourceID != "ai_anomaly_5_2026031409" {
		t.Errorf("unexpected hourly bucket id: %s", event.SourceID)
	}
	if event.Summary != "Anomaly detected: score 0.90" {
		t.Errorf("unexpected summary: %q", event.Summary)
	}
}
