package services

import (
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	id "github.com/emersion/go-imap-id"
	"github.com/mailbridge/core/internal/database/models"
)

// IMAPAdapter syncs accounts over IMAP with TLS, optional proxy routing and
// LOGIN or XOAUTH2 authentication
type IMAPAdapter struct {
	accountService *AccountService
	tokenManager   *TokenManager
	logService     *LogService

	// DialTimeout bounds the TCP/TLS connect, CommandTimeout each IMAP command
	DialTimeout    time.Duration
	CommandTimeout time.Duration
}

// NewIMAPAdapter creates a new IMAP adapter
func NewIMAPAdapter(accountService *AccountService, tokenManager *TokenManager, logService *LogService) *IMAPAdapter {
	return &IMAPAdapter{
		accountService: accountService,
		tokenManager:   tokenManager,
		logService:     logService,
		DialTimeout:    10 * time.Second,
		CommandTimeout: 2 * time.Minute,
	}
}

// Fetch implements ProtocolAdapter
func (a *IMAPAdapter) Fetch(account *models.EmailAccount, proxyURL string, limit int) ([]SyncFolder, error) {
	c, err := a.connect(account, proxyURL)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	var folders []SyncFolder
	for _, spec := range imapSyncFolders(account.IMAPHost) {
		messages, err := a.fetchFolder(c, spec.Path, limit)
		if err != nil {
			// One bad folder (missing Junk, localized spam path) must not
			// sink the whole account
			a.logService.Warn(account.UserID, models.LogModuleSync, "fetch_folder",
				fmt.Sprintf("Skipping folder %s on %s", spec.Path, account.EmailAddress),
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

// connect dials the server, identifies the client and authenticates
func (a *IMAPAdapter) connect(account *models.EmailAccount, proxyURL string) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)

	conn, err := DialThroughProxy(proxyURL, "tcp", addr, a.DialTimeout)
	if err != nil {
		return nil, err
	}

	if account.IMAPUseSSL {
		// When routed through a proxy the TLS handshake happens after the
		// tunnel is up, so wrap the raw connection here
		tlsConn := tls.Client(conn, &tls.Config{ServerName: account.IMAPHost})
		tlsConn.SetDeadline(time.Now().Add(a.DialTimeout))
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: TLS handshake failed: %v", ErrConnection, err)
		}
		tlsConn.SetDeadline(time.Time{})
		conn = net.Conn(tlsConn)
	}

	c, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	c.Timeout = a.CommandTimeout

	// Some servers (188.com, 163.com) reject logins from unidentified
	// clients, so send ID before authenticating
	if ok, _ := c.Support("ID"); ok {
		idClient := id.NewClient(c)
		// A failed ID is not fatal, the server just may refuse the login later
		_, _ = idClient.ID(id.ID{
			id.FieldName:    "MailBridge",
			id.FieldVersion: "1.0.0",
			id.FieldVendor:  "MailBridge",
		})
	}

	if account.AuthType == models.AuthTypeOAuth2 {
		accessToken, err := a.tokenManager.EnsureAccessToken(account, proxyURL)
		if err != nil {
			c.Logout()
			return nil, err
		}
		saslClient := NewXOAuth2Client(account.Username(), accessToken)
		if err := c.Authenticate(saslClient); err != nil {
			c.Logout()
			return nil, fmt.Errorf("%w: XOAUTH2 authentication failed: %v", ErrAuth, err)
		}
	} else {
		password, err := a.accountService.GetDecryptedPassword(account)
		if err != nil {
			c.Logout()
			return nil, fmt.Errorf("%w: %v", ErrAuth, err)
		}
		if err := c.Login(account.Username(), password); err != nil {
			c.Logout()
			return nil, fmt.Errorf("%w: login failed: %v", ErrAuth, err)
		}
	}

	return c, nil
}

// fetchFolder selects one folder and returns its most recent messages
func (a *IMAPAdapter) fetchFolder(c *client.Client, path string, limit int) ([]FetchedMessage, error) {
	mbox, err := c.Select(path, true)
	if err != nil {
		return nil, fmt.Errorf("%w: select %s: %v", ErrProtocol, path, err)
	}
	if mbox.Messages == 0 {
		return nil, nil
	}

	criteria := imap.NewSearchCriteria()
	seqNums, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", ErrProtocol, path, err)
	}
	if len(seqNums) == 0 {
		return nil, nil
	}

	// Most recent messages have the highest sequence numbers
	if limit > 0 && len(seqNums) > limit {
		seqNums = seqNums[len(seqNums)-limit:]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seqNums...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, section.FetchItem()}

	messages := make(chan *imap.Message, len(seqNums))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqSet, items, messages)
	}()

	var fetched []FetchedMessage
	for msg := range messages {
		parsed, err := a.parseMessage(msg, section)
		if err != nil {
			// Skip the message, keep the folder
			log.Printf("[IMAPAdapter] Skipping undecodable message uid=%d in %s: %v", msg.Uid, path, err)
			continue
		}
		fetched = append(fetched, *parsed)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrProtocol, path, err)
	}
	return fetched, nil
}

// parseMessage normalizes one IMAP message
func (a *IMAPAdapter) parseMessage(msg *imap.Message, section *imap.BodySectionName) (*FetchedMessage, error) {
	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("%w: message has no body section", ErrParse)
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	parsed, err := ParseRawMessage(raw, fmt.Sprintf("%d", msg.Uid))
	if err != nil {
		return nil, err
	}

	for _, flag := range msg.Flags {
		if flag == imap.SeenFlag {
			parsed.IsRead = true
			break
		}
	}
	return parsed, nil
}

// XOAuth2Client implements the SASL XOAUTH2 mechanism
type XOAuth2Client struct {
	Username    string
	AccessToken string
}

// NewXOAuth2Client creates a new XOAUTH2 SASL client
func NewXOAuth2Client(username, accessToken string) *XOAuth2Client {
	return &XOAuth2Client{
		Username:    username,
		AccessToken: accessToken,
	}
}

// Start begins the XOAUTH2 authentication
func (c *XOAuth2Client) Start() (mech string, ir []byte, err error) {
	// XOAUTH2 initial response format: "user=" + user + "\x01auth=Bearer " + token + "\x01\x01"
	ir = []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", c.Username, c.AccessToken))
	return "XOAUTH2", ir, nil
}

// Next handles server challenges (XOAUTH2 doesn't have additional challenges)
func (c *XOAuth2Client) Next(challenge []byte) (response []byte, err error) {
	return nil, nil
}
