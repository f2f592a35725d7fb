package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate runs migrations against the given database. Accepts a db parameter
// so tests can migrate an in-memory sqlite instance.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Tenant{},
		&Site{},
		&Asset{},
		&User{},
		&CostModel{},
		&Alert{},
		&WorkOrder{},
		&Notification{},
		// Black box pipeline models
		&Event{},
		&Incident{},
		&IncidentEvent{},
		&RCARule{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NextIncidentNumber generates the sequential per-tenant incident number,
// e.g. INC-2026-00001. Must run inside the transaction that creates the
// incident so the count stays consistent with the insert.
func NextIncidentNumber(tx *gorm.DB, tenantID uint, now time.Time) (string, error) {
	var count int64
	if err := tx.Model(&Incident{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("INC-%d-%05d", now.Year(), count+1), nil
}

// NextWorkOrderCode generates the sequential per-tenant work order code for
// auto-created work orders, e.g. WO-BB-2026-00001.
func NextWorkOrderCode(tx *gorm.DB, tenantID uint, now time.Time) (string, error) {
	var count int64
	if err := tx.Model(&WorkOrder{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("WO-BB-%d-%05d", now.Year(), count+1), nil
}

// ListActiveTenantIDs returns the ids of tenants the scheduled pipeline
// should run for.
func ListActiveTenantIDs(db *gorm.DB) ([]uint, error) {
	var ids []uint
	err := db.Model(&Tenant{}).Where("is_active = ?", true).Order("id asc").Pluck("id", &ids).Error
	return ids, err
}
