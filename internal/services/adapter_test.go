package services

import (
	"testing"

	"github.com/mailbridge/core/internal/database/models"
)

func TestUsesGraphAPI(t *testing.T) {
	tests := []struct {
		name     string
		provider models.ProviderType
		authType models.AuthType
		want     bool
	}{
		{"microsoft oauth2 uses graph", models.ProviderMicrosoft, models.AuthTypeOAuth2, true},
		{"microsoft password stays on imap", models.ProviderMicrosoft, models.AuthTypePassword, false},
		{"google oauth2 stays on imap", models.ProviderGoogle, models.AuthTypeOAuth2, false},
		{"generic imap password", models.ProviderIMAP, models.AuthTypePassword, false},
		{"generic imap oauth2", models.ProviderIMAP, models.AuthTypeOAuth2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UsesGraphAPI(tt.provider, tt.authType); got != tt.want {
				t.Errorf("UsesGraphAPI(%s, %s) = %v, want %v", tt.provider, tt.authType, got, tt.want)
			}
		})
	}
}

func TestIMAPSyncFolders(t *testing.T) {
	t.Run("gmail host gets the localized spam path", func(t *testing.T) {
		folders := imapSyncFolders("imap.gmail.com")
		if len(folders) != 2 {
			t.Fatalf("got %d folders, want 2", len(folders))
		}
		if folders[0].Path != "INBOX" || folders[0].Type != models.FolderTypeInbox {
			t.Errorf("folders[0] = %+v", folders[0])
		}
		if folders[1].Path != gmailSpamPath || folders[1].Type != models.FolderTypeSpam {
			t.Errorf("folders[1] = %+v", folders[1])
		}
	})

	t.Run("gmail detection is case insensitive", func(t *testing.T) {
		folders := imapSyncFolders("IMAP.GMAIL.COM")
		if folders[1].Path != gmailSpamPath {
			t.Errorf("folders[1].Path = %q, want gmail spam path", folders[1].Path)
		}
	})

	t.Run("other hosts get Junk", func(t *testing.T) {
		folders := imapSyncFolders("mail.example.com")
		if len(folders) != 2 {
			t.Fatalf("got %d folders, want 2", len(folders))
		}
		if folders[1].Path != "Junk" || folders[1].Type != models.FolderTypeSpam {
			t.Errorf("folders[1] = %+v", folders[1])
		}
	})
}

func TestGraphSyncFolders(t *testing.T) {
	folders := graphSyncFolders()
	if len(folders) != 2 {
		t.Fatalf("got %d folders, want 2", len(folders))
	}
	if folders[0].Path != "Inbox" || folders[1].Path != "JunkEmail" {
		t.Errorf("folders = %+v", folders)
	}
}

func TestXOAuth2InitialResponse(t *testing.T) {
	c := NewXOAuth2Client("alice@example.com", "tok123")
	mech, ir, err := c.Start()
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if mech != "XOAUTH2" {
		t.Errorf("mech = %q", mech)
	}
	want := "user=alice@example.com\x01auth=Bearer tok123\x01\x01"
	if string(ir) != want {
		t.Errorf("initial response = %q, want %q", ir, want)
	}
}
