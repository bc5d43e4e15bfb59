package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mailbridge/core/internal/database/models"
	"github.com/mailbridge/core/internal/services"
	"gorm.io/gorm"
)

// AccountHandler handles email account related requests
type AccountHandler struct {
	accountService *services.AccountService
	syncService    *services.SyncService
	logService     *services.LogService
}

// NewAccountHandler creates a new AccountHandler instance
func NewAccountHandler(accountService *services.AccountService, syncService *services.SyncService, logService *services.LogService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		syncService:    syncService,
		logService:     logService,
	}
}

// CreateAccountRequest represents the request to create an email account
type CreateAccountRequest struct {
	EmailAddress string `json:"email_address" binding:"required,email"`
	DisplayName  string `json:"display_name"`
	Provider     string `json:"provider" binding:"required"`
	AuthType     string `json:"auth_type"`

	IMAPHost     string `json:"imap_host"`
	IMAPPort     int    `json:"imap_port"`
	IMAPUseSSL   *bool  `json:"imap_use_ssl"`
	IMAPUsername string `json:"imap_username"`
	Password     string `json:"password"`

	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`

	ProxyURL string `json:"proxy_url"`
}

// CreateAccount creates a new email account
// POST /api/accounts
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	useSSL := true
	if req.IMAPUseSSL != nil {
		useSSL = *req.IMAPUseSSL
	}

	input := services.CreateAccountInput{
		EmailAddress: req.EmailAddress,
		DisplayName:  req.DisplayName,
		Provider:     models.ProviderType(req.Provider),
		AuthType:     models.AuthType(req.AuthType),
		IMAPHost:     req.IMAPHost,
		IMAPPort:     req.IMAPPort,
		IMAPUseSSL:   useSSL,
		IMAPUsername: req.IMAPUsername,
		Password:     req.Password,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ProxyURL:     req.ProxyURL,
	}

	account, err := h.accountService.CreateAccount(userID, input)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	respondOK(c, account)
}

// ListAccounts returns all email accounts for the current user
// GET /api/accounts
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	accounts, err := h.accountService.ListAccounts(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve accounts")
		return
	}
	respondOK(c, accounts)
}

// GetAccount returns one email account
// GET /api/accounts/:id
func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID, accountID, ok := h.accountFromPath(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccount(userID, accountID)
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Account not found")
		return
	}
	respondOK(c, account)
}

// UpdateAccount applies partial updates to an account
// PUT /api/accounts/:id
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	userID, accountID, ok := h.accountFromPath(c)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		respondValidationError(c, err)
		return
	}

	// Only the mutable fields pass through; credential fields are
	// re-encrypted inside the service
	allowed := map[string]bool{
		"display_name": true, "imap_host": true, "imap_port": true,
		"imap_use_ssl": true, "imap_username": true, "proxy_url": true,
		"password": true, "client_id": true, "client_secret": true,
		"access_token": true, "refresh_token": true,
	}
	for key := range updates {
		if !allowed[key] {
			delete(updates, key)
		}
	}

	account, err := h.accountService.UpdateAccount(userID, accountID, updates)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Account not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update account")
		return
	}
	respondOK(c, account)
}

// DeleteAccount removes an account and its synced data
// DELETE /api/accounts/:id
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	userID, accountID, ok := h.accountFromPath(c)
	if !ok {
		return
	}

	if err := h.accountService.DeleteAccount(userID, accountID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Account not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete account")
		return
	}
	respondOK(c, gin.H{"message": "Account deleted"})
}

// EnableAccount turns scheduled sync on
// PUT /api/accounts/:id/enable
func (h *AccountHandler) EnableAccount(c *gin.Context) {
	h.setSyncEnabled(c, true)
}

// DisableAccount turns scheduled sync off
// PUT /api/accounts/:id/disable
func (h *AccountHandler) DisableAccount(c *gin.Context) {
	h.setSyncEnabled(c, false)
}

func (h *AccountHandler) setSyncEnabled(c *gin.Context, enabled bool) {
	userID, accountID, ok := h.accountFromPath(c)
	if !ok {
		return
	}

	if err := h.accountService.SetSyncEnabled(userID, accountID, enabled); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Account not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update account")
		return
	}
	respondOK(c, gin.H{"sync_enabled": enabled})
}

// SyncAccount triggers an immediate sync cycle for one account
// POST /api/accounts/:id/sync
func (h *AccountHandler) SyncAccount(c *gin.Context) {
	userID, accountID, ok := h.accountFromPath(c)
	if !ok {
		return
	}

	result, err := h.syncService.TriggerSync(userID, accountID)
	if err != nil {
		if errors.Is(err, services.ErrSyncInProgress) {
			respondError(c, http.StatusConflict, "SYNC_IN_PROGRESS", "Account is already syncing")
			return
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "Account not found")
			return
		}
		respondError(c, http.StatusBadGateway, "SYNC_FAILED", err.Error())
		return
	}
	respondOK(c, result)
}

// TestConnectionRequest carries connection parameters to probe
type TestConnectionRequest struct {
	IMAPHost   string `json:"imap_host" binding:"required"`
	IMAPPort   int    `json:"imap_port" binding:"required"`
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	IMAPUseSSL *bool  `json:"imap_use_ssl"`
	ProxyURL   string `json:"proxy_url"`
}

// TestConnectionDirect probes an IMAP server without saving anything
// POST /api/accounts/test
func (h *AccountHandler) TestConnectionDirect(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	var req TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	useSSL := true
	if req.IMAPUseSSL != nil {
		useSSL = *req.IMAPUseSSL
	}

	result := services.TestIMAPConnection(req.IMAPHost, req.IMAPPort, req.Username, req.Password, useSSL, req.ProxyURL)
	respondOK(c, result)
}

// TestConnection probes a saved account's IMAP endpoint
// POST /api/accounts/:id/test
func (h *AccountHandler) TestConnection(c *gin.Context) {
	userID, accountID, ok := h.accountFromPath(c)
	if !ok {
		return
	}

	account, err := h.accountService.GetAccount(userID, accountID)
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Account not found")
		return
	}
	if account.AuthType != models.AuthTypePassword {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Connection test only supports password accounts")
		return
	}

	password, err := h.accountService.GetDecryptedPassword(account)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to decrypt credentials")
		return
	}

	start := time.Now()
	result := services.TestIMAPConnection(account.IMAPHost, account.IMAPPort, account.Username(), password, account.IMAPUseSSL, account.ProxyURL)
	h.logService.Info(userID, models.LogModuleAccount, "test_connection",
		result.Message, map[string]interface{}{
			"account_id": accountID,
			"success":    result.Success,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	respondOK(c, result)
}

func (h *AccountHandler) accountFromPath(c *gin.Context) (uint, uint, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid account ID")
		return 0, 0, false
	}
	return userID, uint(id), true
}
