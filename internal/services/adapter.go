package services

import (
	"strings"

	"github.com/mailbridge/core/internal/database/models"
)

// SyncFolder is one provider folder with its fetched messages
type SyncFolder struct {
	Path     string
	Name     string
	Type     models.FolderType
	Messages []FetchedMessage
}

// ProtocolAdapter fetches the most recent messages of an account's synced
// folders. Implementations must classify failures with the error sentinels
// in errors.go.
type ProtocolAdapter interface {
	// Fetch returns the synced folders with at most limit messages each,
	// newest first. A broken folder is skipped, not fatal; a broken
	// message is skipped within its folder.
	Fetch(account *models.EmailAccount, proxyURL string, limit int) ([]SyncFolder, error)
}

// folderSpec names one provider folder to sync
type folderSpec struct {
	Path string
	Name string
	Type models.FolderType
}

// Gmail's spam folder path is its UTF-7 encoded localized name
const gmailSpamPath = "[Gmail]/&V4NXPpCuTvY-"

// imapSyncFolders returns the folders to sync for an IMAP host. Gmail hides
// spam behind a localized [Gmail] namespace; everything else uses Junk.
func imapSyncFolders(host string) []folderSpec {
	if strings.Contains(strings.ToLower(host), "gmail") {
		return []folderSpec{
			{Path: "INBOX", Name: "Inbox", Type: models.FolderTypeInbox},
			{Path: gmailSpamPath, Name: "Spam", Type: models.FolderTypeSpam},
		}
	}
	return []folderSpec{
		{Path: "INBOX", Name: "Inbox", Type: models.FolderTypeInbox},
		{Path: "Junk", Name: "Junk", Type: models.FolderTypeSpam},
	}
}

// graphSyncFolders returns the well-known Microsoft Graph folder names
func graphSyncFolders() []folderSpec {
	return []folderSpec{
		{Path: "Inbox", Name: "Inbox", Type: models.FolderTypeInbox},
		{Path: "JunkEmail", Name: "Junk", Type: models.FolderTypeSpam},
	}
}

// UsesGraphAPI decides which protocol serves an account: Microsoft accounts
// with OAuth2 go through the Graph REST API, everything else speaks IMAP.
func UsesGraphAPI(provider models.ProviderType, authType models.AuthType) bool {
	return provider == models.ProviderMicrosoft && authType == models.AuthTypeOAuth2
}
