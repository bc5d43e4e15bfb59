package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mailbridge/core/internal/database/models"
	"github.com/mailbridge/core/internal/services"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// OAuthHandler drives the interactive account-connect flow: build the
// consent URL, receive the callback, exchange the code and save the
// account with its token pair.
type OAuthHandler struct {
	accountService  *services.AccountService
	settingsService *services.SettingsService
	stateStore      *stateStore
}

// stateStore keeps pending OAuth state tokens in memory
type stateStore struct {
	mu     sync.RWMutex
	states map[string]*oauthState
}

type oauthState struct {
	UserID      uint
	Provider    models.ProviderType
	DisplayName string
	CreatedAt   time.Time
}

const stateTTL = 10 * time.Minute

// NewOAuthHandler creates a new OAuthHandler
func NewOAuthHandler(accountService *services.AccountService, settingsService *services.SettingsService) *OAuthHandler {
	return &OAuthHandler{
		accountService:  accountService,
		settingsService: settingsService,
		stateStore:      &stateStore{states: make(map[string]*oauthState)},
	}
}

// oauthConfigFor builds the oauth2.Config for a provider from the user's
// settings, falling back to environment variables
func (h *OAuthHandler) oauthConfigFor(userID uint, provider models.ProviderType) (*oauth2.Config, error) {
	settings, err := h.settingsService.GetUserSettings(userID)
	if err != nil {
		return nil, err
	}

	switch provider {
	case models.ProviderGoogle:
		clientID := fallback(settings.GoogleClientID, os.Getenv("GOOGLE_CLIENT_ID"))
		clientSecret := fallback(settings.GoogleClientSecret, os.Getenv("GOOGLE_CLIENT_SECRET"))
		redirectURL := fallback(settings.GoogleRedirectURL, os.Getenv("GOOGLE_REDIRECT_URL"))
		if redirectURL == "" {
			redirectURL = "http://localhost:8080/api/oauth/google/callback"
		}
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://mail.google.com/",
				"https://www.googleapis.com/auth/userinfo.email",
			},
			Endpoint: google.Endpoint,
		}, nil
	case models.ProviderMicrosoft:
		clientID := fallback(settings.MicrosoftClientID, os.Getenv("MICROSOFT_CLIENT_ID"))
		clientSecret := fallback(settings.MicrosoftClientSecret, os.Getenv("MICROSOFT_CLIENT_SECRET"))
		redirectURL := fallback(settings.MicrosoftRedirectURL, os.Getenv("MICROSOFT_REDIRECT_URL"))
		if redirectURL == "" {
			redirectURL = "http://localhost:8080/api/oauth/microsoft/callback"
		}
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://graph.microsoft.com/Mail.Read",
				"https://graph.microsoft.com/User.Read",
				"offline_access",
			},
			Endpoint: microsoft.AzureADEndpoint("common"),
		}, nil
	default:
		return nil, fmt.Errorf("provider %s does not support OAuth", provider)
	}
}

func fallback(primary, secondary string) string {
	if primary != "" {
		return primary
	}
	return secondary
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// GetOAuthConfig reports which providers are configured
// GET /api/oauth/config
func (h *OAuthHandler) GetOAuthConfig(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	googleEnabled := false
	if cfg, err := h.oauthConfigFor(userID, models.ProviderGoogle); err == nil {
		googleEnabled = cfg.ClientID != "" && cfg.ClientSecret != ""
	}
	microsoftEnabled := false
	if cfg, err := h.oauthConfigFor(userID, models.ProviderMicrosoft); err == nil {
		// Public clients can omit the secret
		microsoftEnabled = cfg.ClientID != ""
	}

	respondOK(c, gin.H{
		"google_enabled":    googleEnabled,
		"microsoft_enabled": microsoftEnabled,
	})
}

// GetGoogleAuthURL returns the Google consent URL
// GET /api/oauth/google/auth
func (h *OAuthHandler) GetGoogleAuthURL(c *gin.Context) {
	h.getAuthURL(c, models.ProviderGoogle)
}

// GetMicrosoftAuthURL returns the Microsoft consent URL
// GET /api/oauth/microsoft/auth
func (h *OAuthHandler) GetMicrosoftAuthURL(c *gin.Context) {
	h.getAuthURL(c, models.ProviderMicrosoft)
}

func (h *OAuthHandler) getAuthURL(c *gin.Context, provider models.ProviderType) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	config, err := h.oauthConfigFor(userID, provider)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "CONFIG_ERROR", "Failed to get OAuth config")
		return
	}
	if config.ClientID == "" {
		respondError(c, http.StatusInternalServerError, "OAUTH_NOT_CONFIGURED",
			fmt.Sprintf("%s OAuth is not configured. Set the client ID in settings.", provider))
		return
	}

	state, err := generateState()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate state token")
		return
	}

	h.stateStore.mu.Lock()
	h.stateStore.states[state] = &oauthState{
		UserID:      userID,
		Provider:    provider,
		DisplayName: c.Query("display_name"),
		CreatedAt:   time.Now(),
	}
	h.stateStore.mu.Unlock()

	go h.cleanupOldStates()

	url := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	respondOK(c, gin.H{"auth_url": url})
}

// GoogleCallback handles the Google OAuth callback
// GET /api/oauth/google/callback
func (h *OAuthHandler) GoogleCallback(c *gin.Context) {
	h.handleCallback(c, models.ProviderGoogle)
}

// MicrosoftCallback handles the Microsoft OAuth callback
// GET /api/oauth/microsoft/callback
func (h *OAuthHandler) MicrosoftCallback(c *gin.Context) {
	h.handleCallback(c, models.ProviderMicrosoft)
}

func (h *OAuthHandler) handleCallback(c *gin.Context, provider models.ProviderType) {
	if errParam := c.Query("error"); errParam != "" {
		c.Redirect(http.StatusFound, "/?oauth_error="+errParam)
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.Redirect(http.StatusFound, "/?oauth_error=missing_params")
		return
	}

	h.stateStore.mu.Lock()
	pending, exists := h.stateStore.states[state]
	delete(h.stateStore.states, state)
	h.stateStore.mu.Unlock()

	if !exists || pending.Provider != provider {
		c.Redirect(http.StatusFound, "/?oauth_error=invalid_state")
		return
	}
	if time.Since(pending.CreatedAt) > stateTTL {
		c.Redirect(http.StatusFound, "/?oauth_error=state_expired")
		return
	}

	config, err := h.oauthConfigFor(pending.UserID, provider)
	if err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=config_error")
		return
	}

	token, err := config.Exchange(context.Background(), code)
	if err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=token_exchange_failed")
		return
	}

	email, err := fetchAccountEmail(provider, token.AccessToken)
	if err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=get_email_failed")
		return
	}

	displayName := pending.DisplayName
	if displayName == "" {
		displayName = email
	}

	input := services.CreateAccountInput{
		EmailAddress:   email,
		DisplayName:    displayName,
		Provider:       provider,
		AuthType:       models.AuthTypeOAuth2,
		ClientID:       config.ClientID,
		ClientSecret:   config.ClientSecret,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: token.Expiry,
	}
	if provider == models.ProviderGoogle {
		// Gmail OAuth accounts sync over IMAP with XOAUTH2
		input.IMAPHost = "imap.gmail.com"
		input.IMAPPort = 993
		input.IMAPUseSSL = true
		input.IMAPUsername = email
	}

	if _, err := h.accountService.CreateAccount(pending.UserID, input); err != nil {
		c.Redirect(http.StatusFound, "/?oauth_error=save_account_failed")
		return
	}

	c.Redirect(http.StatusFound, "/?oauth_success="+string(provider)+"&email="+email)
}

// fetchAccountEmail resolves the mailbox address behind a fresh token
func fetchAccountEmail(provider models.ProviderType, accessToken string) (string, error) {
	var endpoint string
	switch provider {
	case models.ProviderGoogle:
		endpoint = "https://www.googleapis.com/oauth2/v2/userinfo"
	case models.ProviderMicrosoft:
		endpoint = "https://graph.microsoft.com/v1.0/me"
	default:
		return "", fmt.Errorf("unsupported provider %s", provider)
	}

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get user info: status %d", resp.StatusCode)
	}

	var userInfo struct {
		Email             string `json:"email"`             // Google
		Mail              string `json:"mail"`              // Microsoft
		UserPrincipalName string `json:"userPrincipalName"` // Microsoft fallback
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", err
	}

	switch {
	case userInfo.Email != "":
		return userInfo.Email, nil
	case userInfo.Mail != "":
		return userInfo.Mail, nil
	case userInfo.UserPrincipalName != "":
		return userInfo.UserPrincipalName, nil
	}
	return "", fmt.Errorf("no email address in user info")
}

// cleanupOldStates removes expired state tokens
func (h *OAuthHandler) cleanupOldStates() {
	h.stateStore.mu.Lock()
	defer h.stateStore.mu.Unlock()

	for state, pending := range h.stateStore.states {
		if time.Since(pending.CreatedAt) > stateTTL {
			delete(h.stateStore.states, state)
		}
	}
}
