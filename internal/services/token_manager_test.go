package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mailbridge/core/internal/database/models"
)

func createOAuthAccount(t *testing.T, svc *AccountService, provider models.ProviderType) *models.EmailAccount {
	t.Helper()

	account, err := svc.CreateAccount(1, CreateAccountInput{
		EmailAddress: "oauth@example.com",
		Provider:     provider,
		AuthType:     models.AuthTypeOAuth2,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		AccessToken:  "old-access",
		RefreshToken: "refresh-1",
		// Already expired so every test refreshes
		TokenExpiresAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return account
}

func TestTokenManager_RefreshSuccess(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)
	account := createOAuthAccount(t, accountSvc, models.ProviderMicrosoft)

	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotForm = map[string]string{
			"grant_type":    r.PostFormValue("grant_type"),
			"refresh_token": r.PostFormValue("refresh_token"),
			"client_id":     r.PostFormValue("client_id"),
			"client_secret": r.PostFormValue("client_secret"),
			"scope":         r.PostFormValue("scope"),
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "new-access",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
	defer server.Close()

	tm := NewTokenManager(accountSvc, NewLogService(db))
	tm.MicrosoftTokenURL = server.URL

	token, err := tm.EnsureAccessToken(account, "")
	if err != nil {
		t.Fatalf("EnsureAccessToken() error: %v", err)
	}
	if token != "new-access" {
		t.Errorf("token = %q, want new-access", token)
	}

	if gotForm["grant_type"] != "refresh_token" {
		t.Errorf("grant_type = %q", gotForm["grant_type"])
	}
	if gotForm["refresh_token"] != "refresh-1" {
		t.Errorf("refresh_token = %q", gotForm["refresh_token"])
	}
	if gotForm["client_id"] != "client-1" || gotForm["client_secret"] != "secret-1" {
		t.Errorf("client credentials = %q / %q", gotForm["client_id"], gotForm["client_secret"])
	}
	if gotForm["scope"] == "" {
		t.Error("Microsoft refresh must carry a scope")
	}

	// Persisted access token must decrypt to the new value
	reloaded, err := accountSvc.GetAccountByID(account.ID)
	if err != nil {
		t.Fatalf("GetAccountByID error: %v", err)
	}
	creds, err := accountSvc.GetDecryptedOAuthTokens(reloaded)
	if err != nil {
		t.Fatalf("GetDecryptedOAuthTokens error: %v", err)
	}
	if creds.AccessToken != "new-access" {
		t.Errorf("stored access token = %q, want new-access", creds.AccessToken)
	}
	if creds.RefreshToken != "refresh-1" {
		t.Errorf("stored refresh token = %q, want the original refresh-1", creds.RefreshToken)
	}
}

func TestTokenManager_RotatedRefreshTokenPersisted(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)
	account := createOAuthAccount(t, accountSvc, models.ProviderGoogle)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "new-access",
			"refresh_token": "rotated-refresh",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	tm := NewTokenManager(accountSvc, NewLogService(db))
	tm.GoogleTokenURL = server.URL

	if _, err := tm.EnsureAccessToken(account, ""); err != nil {
		t.Fatalf("EnsureAccessToken() error: %v", err)
	}

	reloaded, _ := accountSvc.GetAccountByID(account.ID)
	creds, err := accountSvc.GetDecryptedOAuthTokens(reloaded)
	if err != nil {
		t.Fatalf("GetDecryptedOAuthTokens error: %v", err)
	}
	if creds.RefreshToken != "rotated-refresh" {
		t.Errorf("stored refresh token = %q, want rotated-refresh", creds.RefreshToken)
	}
}

func TestTokenManager_RejectionIsAuthError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)
	account := createOAuthAccount(t, accountSvc, models.ProviderMicrosoft)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "refresh token revoked",
		})
	}))
	defer server.Close()

	tm := NewTokenManager(accountSvc, NewLogService(db))
	tm.MicrosoftTokenURL = server.URL

	_, err := tm.EnsureAccessToken(account, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}

func TestTokenManager_FreshTokenSkipsRefresh(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)

	account, err := accountSvc.CreateAccount(1, CreateAccountInput{
		EmailAddress:   "fresh@example.com",
		Provider:       models.ProviderMicrosoft,
		AuthType:       models.AuthTypeOAuth2,
		ClientID:       "client-1",
		AccessToken:    "still-good",
		RefreshToken:   "refresh-1",
		TokenExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateAccount error: %v", err)
	}

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	tm := NewTokenManager(accountSvc, NewLogService(db))
	tm.MicrosoftTokenURL = server.URL

	token, err := tm.EnsureAccessToken(account, "")
	if err != nil {
		t.Fatalf("EnsureAccessToken() error: %v", err)
	}
	if token != "still-good" {
		t.Errorf("token = %q, want still-good", token)
	}
	if called {
		t.Error("token endpoint was called for a fresh token")
	}
}

func TestTokenManager_MissingRefreshToken(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)

	account, err := accountSvc.CreateAccount(1, CreateAccountInput{
		EmailAddress:   "norefresh@example.com",
		Provider:       models.ProviderMicrosoft,
		AuthType:       models.AuthTypeOAuth2,
		ClientID:       "client-1",
		TokenExpiresAt: time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateAccount error: %v", err)
	}

	tm := NewTokenManager(accountSvc, NewLogService(db))
	_, err = tm.EnsureAccessToken(account, "")
	if !errors.Is(err, ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}
