package models

import (
	"time"
)

// User represents a user in the system
type User struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Username           string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	PasswordHash       string    `gorm:"size:255;not null" json:"-"`
	Nickname           string    `gorm:"size:100" json:"nickname"`
	IsSuperuser        bool      `gorm:"default:false" json:"is_superuser"`
	MustChangePassword bool      `gorm:"default:false" json:"must_change_password"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	LastLoginAt        time.Time `json:"last_login_at"`

	// Relations
	EmailAccounts []EmailAccount `gorm:"foreignKey:UserID" json:"email_accounts,omitempty"`
	Settings      *UserSettings  `gorm:"foreignKey:UserID" json:"settings,omitempty"`
}

// UserSettings stores user-specific settings
type UserSettings struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"uniqueIndex;not null" json:"user_id"`

	// OAuth client configuration for the interactive connect flow
	GoogleClientID        string `gorm:"size:500" json:"google_client_id"`
	GoogleClientSecret    string `gorm:"size:500" json:"google_client_secret"`
	GoogleRedirectURL     string `gorm:"size:500" json:"google_redirect_url"`
	MicrosoftClientID     string `gorm:"size:500" json:"microsoft_client_id"`
	MicrosoftClientSecret string `gorm:"size:500" json:"microsoft_client_secret"`
	MicrosoftRedirectURL  string `gorm:"size:500" json:"microsoft_redirect_url"`

	Theme string `gorm:"size:50;default:'dark'" json:"theme"`
	Font  string `gorm:"size:50;default:'system'" json:"font"`
}
