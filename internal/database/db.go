package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mailbridge/core/internal/database/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize creates and returns a database connection
func Initialize(dbPath string) (*gorm.DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, err
	}

	// WAL mode improves concurrency between the sync engine and the API
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA synchronous=NORMAL")

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	if err := seedAdminUser(db); err != nil {
		return nil, err
	}

	return db, nil
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.UserSettings{},
		&models.SystemSetting{},
		&models.EmailAccount{},
		&models.Folder{},
		&models.Email{},
		&models.Log{},
	); err != nil {
		return err
	}

	// Databases created before the proxy feature lack the column; AutoMigrate
	// covers it, but older SQLite files have been seen to miss it after a
	// partial migration, so add it defensively.
	if db.Migrator().HasTable(&models.EmailAccount{}) {
		var colInfo []struct {
			Name string `gorm:"column:name"`
		}
		db.Raw("PRAGMA table_info(email_accounts)").Scan(&colInfo)

		hasProxy := false
		for _, col := range colInfo {
			if col.Name == "proxy_url" {
				hasProxy = true
				break
			}
		}
		if !hasProxy {
			sql := fmt.Sprintf("ALTER TABLE email_accounts ADD COLUMN %s %s", "proxy_url", "VARCHAR(255)")
			if err := db.Exec(sql).Error; err != nil {
				if !strings.Contains(err.Error(), "duplicate column") {
					log.Printf("[Migration] Warning: Failed to add column proxy_url: %v", err)
				}
			} else {
				log.Printf("[Migration] Added column proxy_url to email_accounts")
			}
		}
	}

	return nil
}

// seedAdminUser creates the initial admin account on first boot
func seedAdminUser(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", "admin").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	admin := &models.User{
		Username:           "admin",
		PasswordHash:       string(hash),
		Nickname:           "Administrator",
		IsSuperuser:        true,
		MustChangePassword: true, // force a change on first login
	}
	if err := db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("[Database] Seeded admin user (must change password on first login)")
	return nil
}
