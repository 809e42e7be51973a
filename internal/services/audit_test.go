package services

import (
	"testing"
	"time"

	"github.com/coursebook/backend/internal/models"
	"github.com/coursebook/backend/pkg/logger"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger.Init()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite: %v", err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &models.AuditLog{}); err != nil {
		t.Fatalf("failed automigrating: %v", err)
	}

	return db
}

func TestNewAuditService(t *testing.T) {
	db := setupAuditTestDB(t)
	service := NewAuditService(db)
	if service == nil {
		t.Fatal("expected non-nil service")
	}
	if service.DB != db {
		t.Fatal("expected DB to be set")
	}
}

func TestAuditService_LogAsync(t *testing.T) {
	db := setupAuditTestDB(t)
	service := NewAuditService(db)

	userID := uuid.New()
	user := &models.User{
		BaseModel:    models.BaseModel{ID: userID},
		Email:        "audit@test.com",
		Username:     "audit",
		PasswordHash: "hash",
		Role:         models.UserRoleUser,
	}
	db.Create(user)

	service.LogAsync(AuditEntry{
		UserID:       &userID,
		Action:       "course.create",
		ResourceType: "course",
		Details:      map[string]interface{}{"name": "Test Course"},
		IPAddress:    "127.0.0.1",
		RequestID:    "req-123",
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		db.Model(&models.AuditLog{}).Where("action = ?", "course.create").Count(&count)
		if count == 1 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected audit log row to be written asynchronously")
}
