package services

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/mailbridge/core/internal/database/models"
)

// Token endpoint defaults. Overridable for tests.
const (
	microsoftTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
)

// TokenManager refreshes OAuth2 access tokens for synced accounts
type TokenManager struct {
	accountService *AccountService
	logService     *LogService

	// Endpoint overrides, empty means the provider default
	MicrosoftTokenURL string
	GoogleTokenURL    string

	// HTTPTimeout bounds each token request
	HTTPTimeout time.Duration
}

// NewTokenManager creates a new token manager
func NewTokenManager(accountService *AccountService, logService *LogService) *TokenManager {
	return &TokenManager{
		accountService: accountService,
		logService:     logService,
		HTTPTimeout:    10 * time.Second,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// EnsureAccessToken returns a valid access token for the account, refreshing
// it when missing or within a minute of expiry. The refreshed pair is
// persisted before the token is returned; a rotated refresh token replaces
// the stored one.
func (m *TokenManager) EnsureAccessToken(account *models.EmailAccount, proxyURL string) (string, error) {
	creds, err := m.accountService.GetDecryptedOAuthTokens(account)
	if err != nil {
		return "", fmt.Errorf("%w: cannot decrypt tokens: %v", ErrAuth, err)
	}

	if creds.AccessToken != "" && time.Until(creds.ExpiresAt) > time.Minute {
		return creds.AccessToken, nil
	}

	return m.RefreshAccessToken(account, creds, proxyURL)
}

// RefreshAccessToken performs the refresh_token grant against the provider's
// token endpoint and persists the result
func (m *TokenManager) RefreshAccessToken(account *models.EmailAccount, creds *OAuthCredentials, proxyURL string) (string, error) {
	if creds.RefreshToken == "" {
		return "", fmt.Errorf("%w: account has no refresh token", ErrAuth)
	}

	endpoint, form := m.buildRefreshRequest(account.Provider, creds)

	client, err := NewProxyHTTPClient(proxyURL, m.HTTPTimeout)
	if err != nil {
		return "", err
	}

	resp, err := client.PostForm(endpoint, form)
	if err != nil {
		return "", fmt.Errorf("%w: token endpoint unreachable: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading token response: %v", ErrConnection, err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp tokenErrorResponse
		_ = json.Unmarshal(body, &errResp)
		m.logService.Error(account.UserID, models.LogModuleSync, "token_refresh",
			fmt.Sprintf("Token refresh failed for %s", account.EmailAddress),
			map[string]interface{}{"status": resp.StatusCode, "error": errResp.Error})
		return "", fmt.Errorf("%w: token refresh rejected (%d %s)", ErrAuth, resp.StatusCode, errResp.Error)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("%w: malformed token response: %v", ErrAuth, err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("%w: token response missing access_token", ErrAuth)
	}

	expiresAt := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	if err := m.accountService.UpdateOAuthTokens(account.ID, token.AccessToken, token.RefreshToken, expiresAt); err != nil {
		return "", err
	}

	log.Printf("[TokenManager] Refreshed access token for account %d (expires %s)",
		account.ID, expiresAt.Format(time.RFC3339))
	return token.AccessToken, nil
}

func (m *TokenManager) buildRefreshRequest(provider models.ProviderType, creds *OAuthCredentials) (string, url.Values) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)
	form.Set("client_id", creds.ClientID)
	if creds.ClientSecret != "" {
		form.Set("client_secret", creds.ClientSecret)
	}

	switch provider {
	case models.ProviderMicrosoft:
		form.Set("scope", "https://graph.microsoft.com/.default offline_access")
		return m.endpointOr(m.MicrosoftTokenURL, microsoftTokenURL), form
	case models.ProviderGoogle:
		return m.endpointOr(m.GoogleTokenURL, googleTokenURL), form
	default:
		// Generic IMAP with XOAUTH2 is Gmail in practice, so reuse the
		// Google endpoint shape.
		return m.endpointOr(m.GoogleTokenURL, googleTokenURL), form
	}
}

func (m *TokenManager) endpointOr(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
