package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/mailbridge/core/internal/database/models"
	"gorm.io/gorm"
)

// LogService handles logging to the database
type LogService struct {
	db *gorm.DB
}

// NewLogService creates a new log service
func NewLogService(db *gorm.DB) *LogService {
	return &LogService{db: db}
}

// Log writes a log entry to the database
func (s *LogService) Log(userID uint, level models.LogLevel, module models.LogModule, action, message string, details map[string]interface{}) {
	detailsJSON := ""
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			detailsJSON = string(data)
		}
	}

	entry := &models.Log{
		UserID:    userID,
		Level:     string(level),
		Module:    string(module),
		Action:    action,
		Message:   message,
		Details:   detailsJSON,
		CreatedAt: time.Now(),
	}

	if err := s.db.Create(entry).Error; err != nil {
		// Never let logging failures surface to the caller
		log.Printf("[LogService] Failed to write log entry: %v", err)
	}
}

// Info logs an info message
func (s *LogService) Info(userID uint, module models.LogModule, action, message string, details map[string]interface{}) {
	s.Log(userID, models.LogLevelInfo, module, action, message, details)
}

// Warn logs a warning message
func (s *LogService) Warn(userID uint, module models.LogModule, action, message string, details map[string]interface{}) {
	s.Log(userID, models.LogLevelWarn, module, action, message, details)
}

// Error logs an error message
func (s *LogService) Error(userID uint, module models.LogModule, action, message string, details map[string]interface{}) {
	s.Log(userID, models.LogLevelError, module, action, message, details)
}

// ListLogs returns log entries with optional filters, newest first
func (s *LogService) ListLogs(level, module string, limit, offset int) ([]models.Log, int64, error) {
	query := s.db.Model(&models.Log{})
	if level != "" {
		query = query.Where("level = ?", level)
	}
	if module != "" {
		query = query.Where("module = ?", module)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []models.Log
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error
	return logs, total, err
}

// CleanupOldLogs deletes log entries older than the retention window
func (s *LogService) CleanupOldLogs(retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	return s.db.Where("created_at < ?", cutoff).Delete(&models.Log{}).Error
}
