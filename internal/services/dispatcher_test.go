package services

import (
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/testhelpers"
)

type fakeUserDir struct {
	engineer *UserRef
	admin    *UserRef
}

func (f *fakeUserDir) FindEngineer(tenantID uint) (*UserRef, error) { return f.engineer, nil }
func (f *fakeUserDir) FindAdmin(tenantID uint) (*UserRef, error)    { return f.admin, nil }

type recordingSink struct {
	messages []NotificationMessage
}

func (r *recordingSink) Send(msg NotificationMessage) error {
	r.messages = append(r.messages, msg)
	return nil
}

func analyzedIncident(t *testing.T, db *gorm.DB, severity database.Severity, scores database.ScoreMap) *database.Incident {
	t.Helper()
	tenant := testhelpers.CreateTenant(t, db, "acme")
	asset := testhelpers.CreateAsset(t, db, tenant.ID, "Pump P-101", "pump")
	incident := testhelpers.CreateIncident(t, db, tenant.ID, asset.ID)

	updates := map[string]interface{}{
		"severity":          severity,
		"rca_status":        database.RCAStatusCompleted,
		"root_cause_scores": scores,
		"narrative":         "At 2026-06-01 14:30:00, the system detected an incident.",
		"recommended_actions": database.ActionList{
			{Priority: 1, Action: "Schedule bearing replacement within 12 hours"},
		},
		"financial_impact": &database.FinancialImpact{
			EstimatedDowntimeHours: 6,
			TotalEstimatedCost:     66000,
			Currency:               "SAR",
		},
	}
	if err := db.Model(incident).Updates(updates).Error; err != nil {
		t.Fatalf("failed to prepare incident: %v", err)
	}
	if err := db.Where("id = ?", incident.ID).First(incident).Error; err != nil {
		t.Fatalf("failed to reload incident: %v", err)
	}
	return incident
}

func newTestDispatcher(db *gorm.DB, users *fakeUserDir, sink *recordingSink) *DispatcherService {
	assets := &fakeAssetDir{assets: map[uint]*AssetInfo{}}
	return NewDispatcherService(db, assets, users, sink)
}

func TestCreateWorkOrder_CriticalIncident(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	incident := analyzedIncident(t, db, database.SeverityCritical,
		database.ScoreMap{"BEARING_FAULT": 0.7, "UNKNOWN": 0.3})

	engineer := &UserRef{ID: 11, Name: "Sara"}
	sink := &recordingSink{}
	dispatcher := newTestDispatcher(db, &fakeUserDir{engineer: engineer}, sink)

	order, err := dispatcher.CreateWorkOrder(incident.ID)
	if err != nil {
		t.Fatalf("CreateWorkOrder failed: %v", err)
	}
	if order == nil {
		t.Fatal("expected a work order for a CRITICAL incident")
	}

	if order.Priority != database.WorkOrderPriorityEmergency {
		t.Errorf("CRITICAL should map to emergency priority, got %s", order.Priority)
	}
	if !strings.HasPrefix(order.Code, "WO-BB-") {
		t.Errorf("unexpected work order code %q", order.Code)
	}
	if order.Source != database.WorkOrderSourceAuto {
		t.Errorf("expected auto source, got %s", order.Source)
	}
	if order.AssignedTo == nil || *order.AssignedTo != engineer.ID {
		t.Errorf("engineer should be assigned")
	}
	if !strings.Contains(order.Title, "Bearing Fault") {
		t.Errorf("title should name the cause: %q", order.Title)
	}
	if !strings.Contains(order.Description, "66,000 SAR") {
		t.Errorf("description should include the cost estimate:\n%s", order.Description)
	}

	var reloaded database.Incident
	db.Where("id = ?", incident.ID).First(&reloaded)
	if !reloaded.AutoWorkOrderCreated {
		t.Errorf("incident should be marked dispatched")
	}
	if reloaded.AutoWorkOrderID == nil || *reloaded.AutoWorkOrderID != order.ID {
		t.Errorf("work order reference not recorded")
	}

	if len(sink.messages) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sink.messages))
	}
	msg := sink.messages[0]
	if msg.UserID != engineer.ID || msg.Type != NotificationTypeWorkOrderCreated {
		t.Errorf("unexpected notification: %+v", msg)
	}
}

func TestCreateWorkOrder_NeverDispatchesTwice(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	incident := analyzedIncident(t, db, database.SeverityCritical,
		database.ScoreMap{"BEARING_FAULT": 1.0})

	dispatcher := newTestDispatcher(db, &fakeUserDir{engineer: &UserRef{ID: 1}}, &recordingSink{})

	first, err := dispatcher.CreateWorkOrder(incident.ID)
	if err != nil || first == nil {
		t.Fatalf("first dispatch failed: %v", err)
	}
	second, err := dispatcher.CreateWorkOrder(incident.ID)
	if err != nil {
		t.Fatalf("second dispatch errored: %v", err)
	}
	if second != nil {
		t.Errorf("second dispatch should be refused")
	}

	var count int64
	db.Model(&database.WorkOrder{}).Count(&count)
	if count != 1 {
		t.Errorf("expected exactly 1 work order, got %d", count)
	}
}

func TestCreateWorkOrder_SkipsLowConfidenceMinor(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	incident := analyzedIncident(t, db, database.SeverityMinor,
		database.ScoreMap{"VALVE_LEAKAGE": 0.4})

	dispatcher := newTestDispatcher(db, &fakeUserDir{engineer: &UserRef{ID: 1}}, &recordingSink{})

	order, err := dispatcher.CreateWorkOrder(incident.ID)
	if err != nil {
		t.Fatalf("CreateWorkOrder failed: %v", err)
	}
	if order != nil {
		t.Errorf("low-confidence MINOR incident should not dispatch")
	}
}

func TestCreateWorkOrder_HighConfidenceMinorDispatches(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	incident := analyzedIncident(t, db, database.SeverityMinor,
		database.ScoreMap{"VALVE_LEAKAGE": 0.6})

	dispatcher := newTestDispatcher(db, &fakeUserDir{engineer: &UserRef{ID: 1}}, &recordingSink{})

	order, err := dispatcher.CreateWorkOrder(incident.ID)
	if err != nil {
		t.Fatalf("CreateWorkOrder failed: %v", err)
	}
	if order == nil {
		t.Fatal("score above threshold should dispatch")
	}
	if order.Priority != database.WorkOrderPriorityMedium {
		t.Errorf("MINOR should map to medium priority, got %s", order.Priority)
	}
}

func TestCreateWorkOrder_FallsBackToAdmin(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	incident := analyzedIncident(t, db, database.SeverityMajor,
		database.ScoreMap{"BEARING_FAULT": 1.0})

	admin := &UserRef{ID: 99, Name: "Omar"}
	dispatcher := newTestDispatcher(db, &fakeUserDir{admin: admin}, &recordingSink{})

	order, err := dispatcher.CreateWorkOrder(incident.ID)
	if err != nil || order == nil {
		t.Fatalf("CreateWorkOrder failed: %v", err)
	}
	if order.AssignedTo == nil || *order.AssignedTo != admin.ID {
		t.Errorf("admin should be assigned when no engineer exists")
	}
	if order.Priority != database.WorkOrderPriorityHigh {
		t.Errorf("MAJOR should map to high priority, got %s", order.Priority)
	}
}

func TestCreateWorkOrder_UnassignedWhenNoUsers(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	incident := analyzedIncident(t, db, database.SeverityCritical,
		database.ScoreMap{"BEARING_FAULT": 1.0})

	sink := &recordingSink{}
	dispatcher := newTestDispatcher(db, &fakeUserDir{}, sink)

	order, err := dispatcher.CreateWorkOrder(incident.ID)
	if err != nil || order == nil {
		t.Fatalf("CreateWorkOrder failed: %v", err)
	}
	if order.AssignedTo != nil {
		t.Errorf("work order should stay unassigned")
	}
	if len(sink.messages) != 0 {
		t.Errorf("no notification without an assignee")
	}
}

func TestShouldCreateWorkOrder_RequiresCompletedAnalysis(t *testing.T) {
	db := testhelpers.SetupTestDB(t)
	tenant := testhelpers.CreateTenant(t, db, "acme")
	asset := testhelpers.CreateAsset(t, db, tenant.ID, "P-1", "pump")
	incident := testhelpers.CreateIncident(t, db, tenant.ID, asset.ID)

	dispatcher := newTestDispatcher(db, &fakeUserDir{}, &recordingSink{})
	ok, reason := dispatcher.ShouldCreateWorkOrder(incident)
	if ok {
		t.Errorf("pending analysis should not dispatch")
	}
	if reason == "" {
		t.Errorf("expected a reason")
	}
}
