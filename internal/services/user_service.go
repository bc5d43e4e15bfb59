package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/mailbridge/core/internal/database/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService manages users and password authentication
type UserService struct {
	db         *gorm.DB
	logService *LogService
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, logService *LogService) *UserService {
	return &UserService{db: db, logService: logService}
}

// ErrInvalidCredentials is returned when the username or password is wrong
var ErrInvalidCredentials = errors.New("invalid username or password")

// Authenticate verifies a username/password pair and stamps the login time
func (s *UserService) Authenticate(username, password string) (*models.User, error) {
	var user models.User
	err := s.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.logService.Warn(user.ID, models.LogModuleAuth, "login_failed",
			fmt.Sprintf("Failed login for %s", username), nil)
		return nil, ErrInvalidCredentials
	}

	s.db.Model(&user).Update("last_login_at", time.Now())
	s.logService.Info(user.ID, models.LogModuleAuth, "login",
		fmt.Sprintf("User %s logged in", username), nil)
	return &user, nil
}

// CreateUser creates a new user with a bcrypt-hashed password
func (s *UserService) CreateUser(username, password, nickname string, isSuperuser bool) (*models.User, error) {
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("user %s already exists", username)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Nickname:     nickname,
		IsSuperuser:  isSuperuser,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns a user by ID
func (s *UserService) GetUser(userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername returns a user by username
func (s *UserService) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all users
func (s *UserService) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.Order("id ASC").Find(&users).Error
	return users, err
}

// ChangePassword verifies the old password and sets a new one
func (s *UserService) ChangePassword(userID uint, oldPassword, newPassword string) error {
	user, err := s.GetUser(userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}
	return s.setPassword(user, newPassword)
}

// ResetPassword sets a new password without checking the old one.
// Reserved for superusers and the CLI.
func (s *UserService) ResetPassword(username, newPassword string) error {
	user, err := s.GetUserByUsername(username)
	if err != nil {
		return err
	}
	if err := s.setPassword(user, newPassword); err != nil {
		return err
	}
	return s.db.Model(user).Update("must_change_password", true).Error
}

func (s *UserService) setPassword(user *models.User, newPassword string) error {
	if len(newPassword) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.db.Model(user).Updates(map[string]interface{}{
		"password_hash":        string(hash),
		"must_change_password": false,
	}).Error
}

// UpdateProfile updates mutable profile fields
func (s *UserService) UpdateProfile(userID uint, nickname string) (*models.User, error) {
	user, err := s.GetUser(userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(user).Update("nickname", nickname).Error; err != nil {
		return nil, err
	}
	return s.GetUser(userID)
}

// DeleteUser removes a user and everything they own
func (s *UserService) DeleteUser(userID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var accounts []models.EmailAccount
		if err := tx.Where("user_id = ?", userID).Find(&accounts).Error; err != nil {
			return err
		}
		for _, account := range accounts {
			if err := tx.Where("account_id = ?", account.ID).Delete(&models.Email{}).Error; err != nil {
				return err
			}
			if err := tx.Where("account_id = ?", account.ID).Delete(&models.Folder{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.EmailAccount{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.UserSettings{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, userID).Error
	})
}
