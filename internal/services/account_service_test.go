package services

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/mailbridge/core/internal/database/models"
)

// Credentials must survive an encrypt/decrypt round-trip for any input
func TestProperty_EncryptDecryptRoundtrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	svc := newTestAccountService(t, db)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("decrypt_inverts_encrypt", prop.ForAll(
		func(plaintext string) bool {
			encrypted, err := svc.Encrypt(plaintext)
			if err != nil {
				return false
			}
			decrypted, err := svc.Decrypt(encrypted)
			if err != nil {
				return false
			}
			return decrypted == plaintext
		},
		gen.AnyString(),
	))

	properties.Property("ciphertext_differs_from_plaintext", prop.ForAll(
		func(plaintext string) bool {
			if plaintext == "" {
				return true
			}
			encrypted, err := svc.Encrypt(plaintext)
			return err == nil && encrypted != plaintext
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	svc := newTestAccountService(t, db)

	a, err := svc.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	b, err := svc.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if a == b {
		t.Error("two encryptions of the same plaintext must differ (random nonce)")
	}
}

func TestAccountService_PasswordStoredEncrypted(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	svc := newTestAccountService(t, db)

	account := createTestAccount(t, svc, "enc@example.com")
	if account.PasswordEncrypted == "secret123" || account.PasswordEncrypted == "" {
		t.Errorf("password not encrypted at rest: %q", account.PasswordEncrypted)
	}

	password, err := svc.GetDecryptedPassword(account)
	if err != nil {
		t.Fatalf("GetDecryptedPassword error: %v", err)
	}
	if password != "secret123" {
		t.Errorf("decrypted password = %q", password)
	}
}

func TestAccountService_InvalidInputs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	svc := newTestAccountService(t, db)

	tests := []struct {
		name  string
		input CreateAccountInput
	}{
		{"bad provider", CreateAccountInput{EmailAddress: "a@b.c", Provider: "yahoo"}},
		{"bad auth type", CreateAccountInput{EmailAddress: "a@b.c", Provider: models.ProviderIMAP, AuthType: "kerberos"}},
		{"missing email", CreateAccountInput{Provider: models.ProviderIMAP}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateAccount(1, tt.input); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAccountService_OwnershipEnforced(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	svc := newTestAccountService(t, db)

	account := createTestAccount(t, svc, "mine@example.com")

	if _, err := svc.GetAccount(2, account.ID); err == nil {
		t.Error("foreign user could read the account")
	}
	if err := svc.DeleteAccount(2, account.ID); err == nil {
		t.Error("foreign user could delete the account")
	}
	if _, err := svc.GetAccount(1, account.ID); err != nil {
		t.Errorf("owner read error: %v", err)
	}
}

func TestAccountService_DeleteCascades(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	svc := newTestAccountService(t, db)

	account := createTestAccount(t, svc, "cascade@example.com")
	db.Create(&models.Folder{AccountID: account.ID, Path: "INBOX", Name: "Inbox"})
	db.Create(&models.Email{AccountID: account.ID, FolderID: 1, UID: "1", MessageID: "x@y"})

	if err := svc.DeleteAccount(1, account.ID); err != nil {
		t.Fatalf("DeleteAccount error: %v", err)
	}

	var folders, emails int64
	db.Model(&models.Folder{}).Where("account_id = ?", account.ID).Count(&folders)
	db.Model(&models.Email{}).Where("account_id = ?", account.ID).Count(&emails)
	if folders != 0 || emails != 0 {
		t.Errorf("leftovers after delete: %d folders, %d emails", folders, emails)
	}
}

func TestAccountService_UpdateReencryptsPassword(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	svc := newTestAccountService(t, db)

	account := createTestAccount(t, svc, "upd@example.com")

	updated, err := svc.UpdateAccount(1, account.ID, map[string]interface{}{
		"password":     "newsecret",
		"display_name": "Renamed",
	})
	if err != nil {
		t.Fatalf("UpdateAccount error: %v", err)
	}
	if updated.DisplayName != "Renamed" {
		t.Errorf("DisplayName = %q", updated.DisplayName)
	}

	password, err := svc.GetDecryptedPassword(updated)
	if err != nil {
		t.Fatalf("GetDecryptedPassword error: %v", err)
	}
	if password != "newsecret" {
		t.Errorf("decrypted password = %q, want newsecret", password)
	}
}

func TestAccountService_StatusUpdates(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	svc := newTestAccountService(t, db)

	account := createTestAccount(t, svc, "status@example.com")

	if err := svc.UpdateAccountStatus(account.ID, models.AccountStatusAuthRequired, "token revoked"); err != nil {
		t.Fatalf("UpdateAccountStatus error: %v", err)
	}

	reloaded, _ := svc.GetAccountByID(account.ID)
	if reloaded.Status != models.AccountStatusAuthRequired {
		t.Errorf("status = %q", reloaded.Status)
	}
	if reloaded.StatusMessage != "token revoked" {
		t.Errorf("status message = %q", reloaded.StatusMessage)
	}
}
