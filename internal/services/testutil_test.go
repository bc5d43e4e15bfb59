package services

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/mailbridge/core/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates a throwaway sqlite database with the full schema
func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "mailbridge_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{}, &models.UserSettings{}, &models.SystemSetting{},
		&models.EmailAccount{}, &models.Folder{}, &models.Email{}, &models.Log{},
	); err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.RemoveAll(tempDir)
	}
	return db, cleanup
}

// newTestAccountService builds an account service with a deterministic key
func newTestAccountService(t *testing.T, db *gorm.DB) *AccountService {
	t.Helper()

	key := sha256.Sum256([]byte("test-encryption-key"))
	svc, err := NewAccountService(db, key[:], NewLogService(db))
	if err != nil {
		t.Fatalf("Failed to create account service: %v", err)
	}
	return svc
}

// createTestAccount inserts a password IMAP account and returns it
func createTestAccount(t *testing.T, svc *AccountService, email string) *models.EmailAccount {
	t.Helper()

	account, err := svc.CreateAccount(1, CreateAccountInput{
		EmailAddress: email,
		Provider:     models.ProviderIMAP,
		AuthType:     models.AuthTypePassword,
		IMAPHost:     "mail.example.com",
		IMAPPort:     993,
		IMAPUseSSL:   true,
		Password:     "secret123",
	})
	if err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return account
}
