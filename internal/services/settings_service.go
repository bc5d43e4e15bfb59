package services

import (
	"errors"

	"github.com/mailbridge/core/internal/database/models"
	"gorm.io/gorm"
)

// SettingsService manages user settings and system-wide key-value settings
type SettingsService struct {
	db *gorm.DB
}

// NewSettingsService creates a new settings service
func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// GetUserSettings returns the settings row for a user, creating defaults on
// first access
func (s *SettingsService) GetUserSettings(userID uint) (*models.UserSettings, error) {
	var settings models.UserSettings
	err := s.db.Where("user_id = ?", userID).First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.UserSettings{UserID: userID, Theme: "dark", Font: "system"}
		if err := s.db.Create(&settings).Error; err != nil {
			return nil, err
		}
		return &settings, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateUserSettings applies the given updates to a user's settings row
func (s *SettingsService) UpdateUserSettings(userID uint, updates map[string]interface{}) (*models.UserSettings, error) {
	settings, err := s.GetUserSettings(userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(settings).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetUserSettings(userID)
}

// GetSystemSetting returns the value for a system setting key, or "" when unset
func (s *SettingsService) GetSystemSetting(key string) (string, error) {
	var setting models.SystemSetting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// SetSystemSetting upserts a system setting
func (s *SettingsService) SetSystemSetting(key, value string) error {
	var setting models.SystemSetting
	err := s.db.Where("key = ?", key).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&models.SystemSetting{Key: key, Value: value}).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&setting).Update("value", value).Error
}

// GetGlobalProxy returns the fleet-wide proxy URL, or "" when none is set
func (s *SettingsService) GetGlobalProxy() (string, error) {
	return s.GetSystemSetting(models.SettingGlobalProxy)
}
