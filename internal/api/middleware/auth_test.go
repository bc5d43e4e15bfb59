package middleware

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, expiresAt, err := m.GenerateToken(42, "alice")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	if expiresAt <= time.Now().Unix() {
		t.Errorf("expiresAt = %d, should be in the future", expiresAt)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken error: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Hour)

	token, _, err := m.GenerateToken(1, "bob")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = m.ValidateToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Errorf("error = %v, want ErrTokenExpired", err)
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	issuer := NewJWTManager("secret-a", time.Hour)
	verifier := NewJWTManager("secret-b", time.Hour)

	token, _, err := issuer.GenerateToken(1, "carol")
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	if _, err := verifier.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("error = %v, want ErrInvalidToken", err)
	}
}

func TestAPIKeyManager_PersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	m1, err := NewAPIKeyManager(dir)
	if err != nil {
		t.Fatalf("NewAPIKeyManager error: %v", err)
	}
	key := m1.GetCurrentKey()
	if len(key) != APIKeyLength*2 {
		t.Errorf("key length = %d, want %d hex chars", len(key), APIKeyLength*2)
	}

	// A second manager over the same data dir loads the same key
	m2, err := NewAPIKeyManager(dir)
	if err != nil {
		t.Fatalf("NewAPIKeyManager error: %v", err)
	}
	if m2.GetCurrentKey() != key {
		t.Error("key not persisted across restarts")
	}
}

func TestAPIKeyManager_Validate(t *testing.T) {
	m, err := NewAPIKeyManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewAPIKeyManager error: %v", err)
	}

	if !m.ValidateKey(m.GetCurrentKey()) {
		t.Error("current key should validate")
	}
	if m.ValidateKey("wrong") {
		t.Error("wrong key should not validate")
	}
	if m.ValidateKey("") {
		t.Error("empty key should not validate")
	}
}

func TestAPIKeyManager_ResetInvalidatesOldKey(t *testing.T) {
	m, err := NewAPIKeyManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewAPIKeyManager error: %v", err)
	}

	oldKey := m.GetCurrentKey()
	newKey, err := m.ResetKey()
	if err != nil {
		t.Fatalf("ResetKey error: %v", err)
	}
	if newKey == oldKey {
		t.Error("reset produced the same key")
	}
	if m.ValidateKey(oldKey) {
		t.Error("old key still validates after reset")
	}
	if !m.ValidateKey(newKey) {
		t.Error("new key does not validate")
	}
}
