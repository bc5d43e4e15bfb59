package models

import (
	"time"
)

// ProviderType identifies the mail provider backing an account
type ProviderType string

const (
	ProviderMicrosoft ProviderType = "microsoft" // Microsoft 365 / Outlook
	ProviderGoogle    ProviderType = "google"    // Gmail
	ProviderIMAP      ProviderType = "imap"      // Generic IMAP
)

// IsValid checks if the provider type is valid
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderMicrosoft, ProviderGoogle, ProviderIMAP:
		return true
	}
	return false
}

// AuthType identifies how an account authenticates against its server
type AuthType string

const (
	AuthTypePassword AuthType = "password" // Plain password / app password
	AuthTypeOAuth2   AuthType = "oauth2"   // OAuth2 refresh/access token pair
)

// IsValid checks if the auth type is valid
func (a AuthType) IsValid() bool {
	return a == AuthTypePassword || a == AuthTypeOAuth2
}

// AccountStatus reflects the health of an account as seen by the sync engine
type AccountStatus string

const (
	AccountStatusActive       AccountStatus = "active"
	AccountStatusError        AccountStatus = "error"
	AccountStatusSyncing      AccountStatus = "syncing"
	AccountStatusDisabled     AccountStatus = "disabled"
	AccountStatusAuthRequired AccountStatus = "auth_required"
)

// IsValid checks if the account status is valid
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusActive, AccountStatusError, AccountStatusSyncing,
		AccountStatusDisabled, AccountStatusAuthRequired:
		return true
	}
	return false
}

// EmailAccount represents a mailbox configured by a user.
// For password accounts PasswordEncrypted is meaningful and the OAuth token
// fields are empty; for oauth2 accounts it is the other way around.
type EmailAccount struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	UserID       uint         `gorm:"index;not null" json:"user_id"`
	EmailAddress string       `gorm:"size:255;not null;index" json:"email_address"`
	DisplayName  string       `gorm:"size:100" json:"display_name"`
	Provider     ProviderType `gorm:"size:20;not null" json:"provider"`
	AuthType     AuthType     `gorm:"size:20;default:'password'" json:"auth_type"`

	Status        AccountStatus `gorm:"size:20;default:'active'" json:"status"`
	StatusMessage string        `gorm:"type:text" json:"status_message"`

	// IMAP endpoint
	IMAPHost     string `gorm:"size:255" json:"imap_host"`
	IMAPPort     int    `gorm:"default:993" json:"imap_port"`
	IMAPUseSSL   bool   `gorm:"default:true" json:"imap_use_ssl"`
	IMAPUsername string `gorm:"size:255" json:"imap_username"`

	// Password auth (AES-256-GCM, empty for oauth2 accounts)
	PasswordEncrypted string `gorm:"type:text" json:"-"`

	// OAuth2 credentials (tokens encrypted at rest)
	ClientID       string    `gorm:"size:255" json:"client_id,omitempty"`
	ClientSecret   string    `gorm:"size:255" json:"-"`
	AccessToken    string    `gorm:"type:text" json:"-"`
	RefreshToken   string    `gorm:"type:text" json:"-"`
	TokenExpiresAt time.Time `json:"token_expires_at"`

	// Per-account proxy, overrides the global_proxy system setting
	ProxyURL string `gorm:"size:255" json:"proxy_url"`

	SyncEnabled bool      `gorm:"default:true" json:"sync_enabled"`
	LastSyncAt  time.Time `json:"last_sync_at"`

	// Aggregate counters, recomputed after each successful sync cycle
	TotalEmails int64 `gorm:"default:0" json:"total_emails"`
	UnreadCount int64 `gorm:"default:0" json:"unread_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Folders []Folder `gorm:"foreignKey:AccountID" json:"folders,omitempty"`
	Emails  []Email  `gorm:"foreignKey:AccountID" json:"emails,omitempty"`
}

// Username returns the login name used against the mail server, falling back
// to the account's address when no explicit IMAP username is set.
func (a *EmailAccount) Username() string {
	if a.IMAPUsername != "" {
		return a.IMAPUsername
	}
	return a.EmailAddress
}
