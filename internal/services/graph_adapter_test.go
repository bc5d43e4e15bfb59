package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mailbridge/core/internal/database/models"
)

// graphTestEnv wires a Graph adapter against an httptest server, with the
// token endpoint stubbed so every test starts from a valid access token
func graphTestEnv(t *testing.T, handler http.HandlerFunc) (*GraphAdapter, *models.EmailAccount, func()) {
	t.Helper()

	db, dbCleanup := setupTestDB(t)
	accountSvc := newTestAccountService(t, db)
	account := createOAuthAccount(t, accountSvc, models.ProviderMicrosoft)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "graph-access",
			"expires_in":   3600,
		})
	}))

	graphServer := httptest.NewServer(handler)

	logSvc := NewLogService(db)
	tm := NewTokenManager(accountSvc, logSvc)
	tm.MicrosoftTokenURL = tokenServer.URL

	adapter := NewGraphAdapter(tm, logSvc)
	adapter.BaseURL = graphServer.URL

	cleanup := func() {
		graphServer.Close()
		tokenServer.Close()
		dbCleanup()
	}
	return adapter, account, cleanup
}

func graphMessageJSON(id, messageID, subject, contentType, content string, isRead bool) map[string]interface{} {
	return map[string]interface{}{
		"id":                id,
		"internetMessageId": messageID,
		"subject":           subject,
		"from": map[string]interface{}{
			"emailAddress": map[string]string{"name": "Sender", "address": "sender@example.com"},
		},
		"toRecipients": []map[string]interface{}{
			{"emailAddress": map[string]string{"address": "me@example.com"}},
		},
		"receivedDateTime": time.Now().UTC().Format(time.RFC3339),
		"isRead":           isRead,
		"body":             map[string]string{"contentType": contentType, "content": content},
	}
}

func TestGraphAdapter_FetchBothFolders(t *testing.T) {
	adapter, account, cleanup := graphTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer graph-access" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("$top") != "25" {
			t.Errorf("$top = %q, want 25", r.URL.Query().Get("$top"))
		}
		if !strings.Contains(r.URL.Query().Get("$orderby"), "receivedDateTime desc") {
			t.Errorf("$orderby = %q", r.URL.Query().Get("$orderby"))
		}

		var msgs []map[string]interface{}
		if strings.Contains(r.URL.Path, "JunkEmail") {
			msgs = append(msgs, graphMessageJSON("j1", "<junk@x>", "Spam offer", "text", "junk body", false))
		} else {
			msgs = append(msgs, graphMessageJSON("m1", "<hello@x>", "Hello", "html", "<p>hi</p>", true))
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"value": msgs})
	})
	defer cleanup()

	folders, err := adapter.Fetch(account, "", 25)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(folders) != 2 {
		t.Fatalf("got %d folders, want 2", len(folders))
	}

	inbox := folders[0]
	if inbox.Path != "Inbox" || len(inbox.Messages) != 1 {
		t.Fatalf("inbox = %+v", inbox)
	}
	msg := inbox.Messages[0]
	if msg.MessageID != "hello@x" {
		t.Errorf("MessageID = %q, want hello@x (angle brackets stripped)", msg.MessageID)
	}
	if msg.BodyHTML != "<p>hi</p>" || msg.BodyText != "" {
		t.Errorf("html body tagged wrong: html=%q text=%q", msg.BodyHTML, msg.BodyText)
	}
	if !msg.IsRead {
		t.Error("IsRead should carry over")
	}

	junk := folders[1]
	if junk.Type != models.FolderTypeSpam {
		t.Errorf("junk type = %q", junk.Type)
	}
	jm := junk.Messages[0]
	if jm.BodyText != "junk body" || jm.BodyHTML != "" {
		t.Errorf("text body tagged wrong: html=%q text=%q", jm.BodyHTML, jm.BodyText)
	}
}

func TestGraphAdapter_BrokenFolderSkipped(t *testing.T) {
	adapter, account, cleanup := graphTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "JunkEmail") {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":"ErrorFolderNotFound"}}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				graphMessageJSON("m1", "<a@x>", "Subject", "text", "body", false),
			},
		})
	})
	defer cleanup()

	folders, err := adapter.Fetch(account, "", 10)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(folders) != 1 {
		t.Fatalf("got %d folders, want 1 (junk skipped)", len(folders))
	}
	if folders[0].Path != "Inbox" {
		t.Errorf("surviving folder = %q", folders[0].Path)
	}
}

func TestGraphAdapter_TokenRefreshFailureIsAuthError(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	accountSvc := newTestAccountService(t, db)
	account := createOAuthAccount(t, accountSvc, models.ProviderMicrosoft)

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	defer tokenServer.Close()

	logSvc := NewLogService(db)
	tm := NewTokenManager(accountSvc, logSvc)
	tm.MicrosoftTokenURL = tokenServer.URL

	adapter := NewGraphAdapter(tm, logSvc)

	_, err := adapter.Fetch(account, "", 10)
	if !errors.Is(err, ErrAuth) {
		t.Errorf("error = %v, want ErrAuth", err)
	}
}

func TestGraphAdapter_LongFieldsTruncated(t *testing.T) {
	longSubject := strings.Repeat("s", 1000)
	adapter, account, cleanup := graphTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"value": []map[string]interface{}{
				graphMessageJSON("m1", "<a@x>", longSubject, "html", strings.Repeat("h", 20000), false),
			},
		})
	})
	defer cleanup()

	folders, err := adapter.Fetch(account, "", 10)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	msg := folders[0].Messages[0]
	if len(msg.Subject) != maxSubjectLen {
		t.Errorf("len(Subject) = %d, want %d", len(msg.Subject), maxSubjectLen)
	}
	if len(msg.BodyHTML) != maxBodyHTMLLen {
		t.Errorf("len(BodyHTML) = %d, want %d", len(msg.BodyHTML), maxBodyHTMLLen)
	}
}
