package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mailbridge/core/internal/database/models"
	"gorm.io/gorm"
)

// AccountService manages email accounts and their encrypted credentials
type AccountService struct {
	db            *gorm.DB
	encryptionKey []byte // 32 bytes for AES-256
	logService    *LogService
}

// NewAccountService creates a new account service
func NewAccountService(db *gorm.DB, encryptionKey []byte, logService *LogService) (*AccountService, error) {
	if len(encryptionKey) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(encryptionKey))
	}
	return &AccountService{
		db:            db,
		encryptionKey: encryptionKey,
		logService:    logService,
	}, nil
}

// Encrypt encrypts plaintext with AES-256-GCM and returns base64
func (s *AccountService) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts a base64 AES-256-GCM ciphertext
func (s *AccountService) Decrypt(encoded string) (string, error) {
	if encoded == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// CreateAccountInput carries the plaintext credentials for a new account
type CreateAccountInput struct {
	EmailAddress string
	DisplayName  string
	Provider     models.ProviderType
	AuthType     models.AuthType

	IMAPHost     string
	IMAPPort     int
	IMAPUseSSL   bool
	IMAPUsername string
	Password     string

	ClientID       string
	ClientSecret   string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time

	ProxyURL string
}

// CreateAccount creates a new email account with encrypted credentials
func (s *AccountService) CreateAccount(userID uint, input CreateAccountInput) (*models.EmailAccount, error) {
	if !input.Provider.IsValid() {
		return nil, fmt.Errorf("invalid provider: %s", input.Provider)
	}
	if input.AuthType == "" {
		input.AuthType = models.AuthTypePassword
	}
	if !input.AuthType.IsValid() {
		return nil, fmt.Errorf("invalid auth type: %s", input.AuthType)
	}
	if input.EmailAddress == "" {
		return nil, errors.New("email address is required")
	}

	account := &models.EmailAccount{
		UserID:         userID,
		EmailAddress:   input.EmailAddress,
		DisplayName:    input.DisplayName,
		Provider:       input.Provider,
		AuthType:       input.AuthType,
		Status:         models.AccountStatusActive,
		IMAPHost:       input.IMAPHost,
		IMAPPort:       input.IMAPPort,
		IMAPUseSSL:     input.IMAPUseSSL,
		IMAPUsername:   input.IMAPUsername,
		ClientID:       input.ClientID,
		TokenExpiresAt: input.TokenExpiresAt,
		ProxyURL:       input.ProxyURL,
		SyncEnabled:    true,
	}
	if account.IMAPPort == 0 {
		account.IMAPPort = 993
		account.IMAPUseSSL = true
	}

	var err error
	if input.Password != "" {
		if account.PasswordEncrypted, err = s.Encrypt(input.Password); err != nil {
			return nil, err
		}
	}
	if input.ClientSecret != "" {
		if account.ClientSecret, err = s.Encrypt(input.ClientSecret); err != nil {
			return nil, err
		}
	}
	if input.AccessToken != "" {
		if account.AccessToken, err = s.Encrypt(input.AccessToken); err != nil {
			return nil, err
		}
	}
	if input.RefreshToken != "" {
		if account.RefreshToken, err = s.Encrypt(input.RefreshToken); err != nil {
			return nil, err
		}
	}

	if err := s.db.Create(account).Error; err != nil {
		return nil, err
	}

	s.logService.Info(userID, models.LogModuleAccount, "create",
		fmt.Sprintf("Created account %s", account.EmailAddress),
		map[string]interface{}{"account_id": account.ID, "provider": account.Provider})

	return account, nil
}

// GetAccount returns one account owned by the given user
func (s *AccountService) GetAccount(userID, accountID uint) (*models.EmailAccount, error) {
	var account models.EmailAccount
	err := s.db.Where("id = ? AND user_id = ?", accountID, userID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByID returns one account regardless of owner. Used by the sync
// engine, which runs outside any user session.
func (s *AccountService) GetAccountByID(accountID uint) (*models.EmailAccount, error) {
	var account models.EmailAccount
	if err := s.db.First(&account, accountID).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// ListAccounts returns all accounts owned by the given user
func (s *AccountService) ListAccounts(userID uint) ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

// ListSyncableAccounts returns every account eligible for scheduled sync
func (s *AccountService) ListSyncableAccounts() ([]models.EmailAccount, error) {
	var accounts []models.EmailAccount
	err := s.db.Where("sync_enabled = ? AND status != ?", true, models.AccountStatusDisabled).
		Order("id ASC").Find(&accounts).Error
	return accounts, err
}

// UpdateAccount applies field updates, re-encrypting any credential fields
func (s *AccountService) UpdateAccount(userID, accountID uint, updates map[string]interface{}) (*models.EmailAccount, error) {
	account, err := s.GetAccount(userID, accountID)
	if err != nil {
		return nil, err
	}

	for _, field := range []string{"password", "client_secret", "access_token", "refresh_token"} {
		if raw, ok := updates[field]; ok {
			plain, _ := raw.(string)
			delete(updates, field)
			if plain == "" {
				continue
			}
			enc, err := s.Encrypt(plain)
			if err != nil {
				return nil, err
			}
			switch field {
			case "password":
				updates["password_encrypted"] = enc
			default:
				updates[field] = enc
			}
		}
	}

	if err := s.db.Model(account).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetAccount(userID, accountID)
}

// DeleteAccount removes an account and its folders and emails
func (s *AccountService) DeleteAccount(userID, accountID uint) error {
	account, err := s.GetAccount(userID, accountID)
	if err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&models.Email{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&models.Folder{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(account).Error; err != nil {
			return err
		}
		s.logService.Info(userID, models.LogModuleAccount, "delete",
			fmt.Sprintf("Deleted account %s", account.EmailAddress),
			map[string]interface{}{"account_id": accountID})
		return nil
	})
}

// SetSyncEnabled toggles scheduled sync for an account
func (s *AccountService) SetSyncEnabled(userID, accountID uint, enabled bool) error {
	account, err := s.GetAccount(userID, accountID)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{"sync_enabled": enabled}
	if !enabled {
		updates["status"] = models.AccountStatusDisabled
	} else if account.Status == models.AccountStatusDisabled {
		updates["status"] = models.AccountStatusActive
	}
	return s.db.Model(account).Updates(updates).Error
}

// UpdateAccountStatus sets the status and status message of an account
func (s *AccountService) UpdateAccountStatus(accountID uint, status models.AccountStatus, message string) error {
	return s.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"status":         status,
			"status_message": message,
		}).Error
}

// UpdateLastSyncAt stamps a completed sync cycle
func (s *AccountService) UpdateLastSyncAt(accountID uint, t time.Time) error {
	return s.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).
		Update("last_sync_at", t).Error
}

// UpdateOAuthTokens persists a refreshed token pair. The refresh token is
// only replaced when the provider rotated it.
func (s *AccountService) UpdateOAuthTokens(accountID uint, accessToken, refreshToken string, expiresAt time.Time) error {
	encAccess, err := s.Encrypt(accessToken)
	if err != nil {
		return err
	}
	updates := map[string]interface{}{
		"access_token":     encAccess,
		"token_expires_at": expiresAt,
	}
	if refreshToken != "" {
		encRefresh, err := s.Encrypt(refreshToken)
		if err != nil {
			return err
		}
		updates["refresh_token"] = encRefresh
	}
	return s.db.Model(&models.EmailAccount{}).Where("id = ?", accountID).Updates(updates).Error
}

// GetDecryptedPassword returns an account's plaintext password
func (s *AccountService) GetDecryptedPassword(account *models.EmailAccount) (string, error) {
	return s.Decrypt(account.PasswordEncrypted)
}

// OAuthCredentials is a decrypted OAuth2 credential set
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// GetDecryptedOAuthTokens returns an account's plaintext OAuth credentials
func (s *AccountService) GetDecryptedOAuthTokens(account *models.EmailAccount) (*OAuthCredentials, error) {
	secret, err := s.Decrypt(account.ClientSecret)
	if err != nil {
		return nil, err
	}
	access, err := s.Decrypt(account.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Decrypt(account.RefreshToken)
	if err != nil {
		return nil, err
	}
	return &OAuthCredentials{
		ClientID:     account.ClientID,
		ClientSecret: secret,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    account.TokenExpiresAt,
	}, nil
}
