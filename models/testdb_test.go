package models_test

import (
	"testing"

	"voxpop/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the full schema and
// the seeded system tags.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// A second pooled connection would see an empty in-memory database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.SetupJoinTable(&models.Contact{}, "Tags", &models.ContactTag{}); err != nil {
		t.Fatalf("failed to set up join table: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Tag{},
		&models.Contact{},
		&models.Segment{},
		&models.Campaign{},
		&models.ImportJob{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := models.CreateSystemTags(db); err != nil {
		t.Fatalf("failed to seed system tags: %v", err)
	}
	return db
}

func createContact(t *testing.T, db *gorm.DB, contact models.Contact) models.Contact {
	t.Helper()
	if contact.Phone == "" {
		t.Fatalf("test contact needs a phone")
	}
	if err := db.Create(&contact).Error; err != nil {
		t.Fatalf("failed to create contact %s: %v", contact.Name, err)
	}
	return contact
}

func mustStatus(t *testing.T, db *gorm.DB, contact *models.Contact) models.ContactStatus {
	t.Helper()
	status, err := contact.Status(db)
	if err != nil {
		t.Fatalf("failed to derive status: %v", err)
	}
	return status
}
