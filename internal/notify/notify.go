// Package notify delivers pipeline notifications to users and channels.
package notify

import (
	"log"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/services"
)

// StoreSink persists notifications to the notifications table, where the
// platform UI picks them up.
type StoreSink struct {
	db *gorm.DB
}

func NewStoreSink(db *gorm.DB) *StoreSink {
	return &StoreSink{db: db}
}

func (s *StoreSink) Send(msg services.NotificationMessage) error {
	row := database.Notification{
		TenantID:   msg.TenantID,
		UserID:     msg.UserID,
		Type:       msg.Type,
		Title:      msg.Title,
		TitleAr:    msg.TitleAr,
		Body:       msg.Body,
		BodyAr:     msg.BodyAr,
		Severity:   msg.Severity,
		EntityType: msg.EntityType,
		EntityID:   msg.EntityID,
		ActionURL:  msg.ActionURL,
	}
	return s.db.Create(&row).Error
}

// Fanout delivers each notification to every sink. Delivery is best effort
// per sink: one failing sink does not block the others, and the first error
// is returned for the caller to log.
type Fanout struct {
	sinks []services.NotificationSink
}

func NewFanout(sinks ...services.NotificationSink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Send(msg services.NotificationMessage) error {
	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.Send(msg); err != nil {
			log.Printf("notification delivery failed: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
