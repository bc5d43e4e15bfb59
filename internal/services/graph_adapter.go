package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mailbridge/core/internal/database/models"
)

const graphDefaultBaseURL = "https://graph.microsoft.com/v1.0"

// GraphAdapter syncs Microsoft 365 accounts through the Graph REST API
// instead of IMAP. Only OAuth2 Microsoft accounts use it.
type GraphAdapter struct {
	tokenManager *TokenManager
	logService   *LogService

	// BaseURL overrides the Graph endpoint, empty means production
	BaseURL string

	// HTTPTimeout bounds each folder request
	HTTPTimeout time.Duration
}

// NewGraphAdapter creates a new Graph adapter
func NewGraphAdapter(tokenManager *TokenManager, logService *LogService) *GraphAdapter {
	return &GraphAdapter{
		tokenManager: tokenManager,
		logService:   logService,
		HTTPTimeout:  30 * time.Second,
	}
}

// graphMessage mirrors the fields selected from the Graph messages endpoint
type graphMessage struct {
	ID                string `json:"id"`
	InternetMessageID string `json:"internetMessageId"`
	Subject           string `json:"subject"`
	From              struct {
		EmailAddress struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ToRecipients []struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"toRecipients"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
	IsRead           bool      `json:"isRead"`
	Body             struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
}

type graphMessageList struct {
	Value []graphMessage `json:"value"`
}

// Fetch implements ProtocolAdapter. The access token is refreshed up front;
// a refresh failure is an auth error for the whole account.
func (a *GraphAdapter) Fetch(account *models.EmailAccount, proxyURL string, limit int) ([]SyncFolder, error) {
	accessToken, err := a.tokenManager.EnsureAccessToken(account, proxyURL)
	if err != nil {
		return nil, err
	}

	client, err := NewProxyHTTPClient(proxyURL, a.HTTPTimeout)
	if err != nil {
		return nil, err
	}

	var folders []SyncFolder
	for _, spec := range graphSyncFolders() {
		messages, err := a.fetchFolder(client, accessToken, spec.Path, limit)
		if err != nil {
			a.logService.Warn(account.UserID, models.LogModuleSync, "fetch_folder",
				fmt.Sprintf("Skipping Graph folder %s on %s", spec.Path, account.EmailAddress),
				map[string]interface{}{"account_id": account.ID, "error": err.Error()})
			continue
		}
		folders = append(folders, SyncFolder{
			Path:     spec.Path,
			Name:     spec.Name,
			Type:     spec.Type,
			Messages: messages,
		})
	}
	return folders, nil
}

func (a *GraphAdapter) fetchFolder(client *http.Client, accessToken, folder string, limit int) ([]FetchedMessage, error) {
	base := a.BaseURL
	if base == "" {
		base = graphDefaultBaseURL
	}

	query := url.Values{}
	query.Set("$top", fmt.Sprintf("%d", limit))
	query.Set("$orderby", "receivedDateTime desc")
	query.Set("$select", "id,internetMessageId,subject,from,toRecipients,receivedDateTime,isRead,body")

	endpoint := fmt.Sprintf("%s/me/mailFolders/%s/messages?%s", base, url.PathEscape(folder), query.Encode())
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: Graph rejected access token", ErrAuth)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: Graph returned %s for folder %s", ErrProtocol, resp.Status, folder)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	var list graphMessageList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: malformed Graph response: %v", ErrProtocol, err)
	}

	messages := make([]FetchedMessage, 0, len(list.Value))
	for _, gm := range list.Value {
		messages = append(messages, a.normalize(gm))
	}
	return messages, nil
}

// normalize converts one Graph message into the provider-agnostic form.
// Graph delivers a single body tagged html or text, never both.
func (a *GraphAdapter) normalize(gm graphMessage) FetchedMessage {
	msg := FetchedMessage{
		UID:         gm.ID,
		MessageID:   strings.Trim(gm.InternetMessageID, "<> "),
		Subject:     gm.Subject,
		FromName:    gm.From.EmailAddress.Name,
		FromAddress: gm.From.EmailAddress.Address,
		IsRead:      gm.IsRead,
		ReceivedAt:  gm.ReceivedDateTime.UTC(),
	}

	to := make([]string, 0, len(gm.ToRecipients))
	for _, r := range gm.ToRecipients {
		if r.EmailAddress.Address != "" {
			to = append(to, r.EmailAddress.Address)
		}
	}
	msg.ToAddresses = strings.Join(to, ", ")

	if strings.EqualFold(gm.Body.ContentType, "html") {
		msg.BodyHTML = gm.Body.Content
	} else {
		msg.BodyText = gm.Body.Content
	}

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	msg.Truncate()
	return msg
}
