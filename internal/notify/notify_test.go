package notify

import (
	"errors"
	"testing"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/services"
	"github.com/industriq/blackbox/internal/testhelpers"
)

func sampleMessage() services.NotificationMessage {
	return services.NotificationMessage{
		TenantID:   1,
		UserID:     7,
		Type:       services.NotificationTypeWorkOrderCreated,
		Title:      "Work order created",
		TitleAr:    "تم إنشاء أمر عمل",
		Body:       "Bearing Fault detected on Pump P-101",
		Severity:   database.SeverityCritical,
		EntityType: "work_order",
		EntityID:   "42",
	}
}

func TestStoreSink_PersistsNotification(t *testing.T) {
	db := testhelpers.SetupTestDB(t)

	if err := NewStoreSink(db).Send(sampleMessage()); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var row database.Notification
	if err := db.First(&row).Error; err != nil {
		t.Fatalf("notification not stored: %v", err)
	}
	if row.UserID != 7 || row.Type != services.NotificationTypeWorkOrderCreated {
		t.Errorf("stored notification wrong: %+v", row)
	}
	if row.TitleAr == "" {
		t.Errorf("arabic title should be stored")
	}
}

type flakySink struct {
	err   error
	calls int
}

func (s *flakySink) Send(services.NotificationMessage) error {
	s.calls++
	return s.err
}

func TestFanout_DeliversToAllSinksDespiteFailures(t *testing.T) {
	failing := &flakySink{err: errors.New("slack down")}
	healthy := &flakySink{}

	err := NewFanout(failing, healthy).Send(sampleMessage())
	if err == nil {
		t.Errorf("fanout should surface the first sink error")
	}
	if failing.calls != 1 || healthy.calls != 1 {
		t.Errorf("every sink should be attempted: %d/%d", failing.calls, healthy.calls)
	}
}

func TestFanout_NoSinks(t *testing.T) {
	if err := NewFanout().Send(sampleMessage()); err != nil {
		t.Errorf("empty fanout should be a no-op, got %v", err)
	}
}
