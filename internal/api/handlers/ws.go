package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mailbridge/core/internal/api/middleware"
	"github.com/mailbridge/core/internal/services"
)

// WSHandler streams account sync status to connected clients so the UI can
// show live sync progress without polling the REST API
type WSHandler struct {
	accountService *services.AccountService
	jwtManager     *middleware.JWTManager
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler instance
func NewWSHandler(accountService *services.AccountService, jwtManager *middleware.JWTManager) *WSHandler {
	return &WSHandler{
		accountService: accountService,
		jwtManager:     jwtManager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API key middleware already gates the HTTP upgrade
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

const (
	statusPushInterval = 5 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

// statusEvent is one push frame on the status stream
type statusEvent struct {
	Type     string      `json:"type"`
	Accounts interface{} `json:"accounts,omitempty"`
}

// StatusStream upgrades the connection and pushes account status snapshots.
// Browsers cannot set headers on websocket upgrades, so the JWT arrives as
// a query parameter.
// GET /api/ws/status?token=...
func (h *WSHandler) StatusStream(c *gin.Context) {
	token := c.Query("token")
	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "AUTH_FAILED", "Invalid token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the error response
		return
	}
	defer conn.Close()

	// Drain client frames so pings and close frames are processed
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(statusPushInterval)
	defer ticker.Stop()

	if err := h.pushSnapshot(conn, claims.UserID); err != nil {
		return
	}
	for range ticker.C {
		if err := h.pushSnapshot(conn, claims.UserID); err != nil {
			return
		}
	}
}

func (h *WSHandler) pushSnapshot(conn *websocket.Conn, userID uint) error {
	accounts, err := h.accountService.ListAccounts(userID)
	if err != nil {
		log.Printf("[WSHandler] Failed to load accounts for user %d: %v", userID, err)
		return err
	}

	type accountStatus struct {
		ID          uint   `json:"id"`
		Status      string `json:"status"`
		LastSyncAt  int64  `json:"last_sync_at"`
		TotalEmails int64  `json:"total_emails"`
		UnreadCount int64  `json:"unread_count"`
	}
	statuses := make([]accountStatus, 0, len(accounts))
	for _, a := range accounts {
		statuses = append(statuses, accountStatus{
			ID:          a.ID,
			Status:      string(a.Status),
			LastSyncAt:  a.LastSyncAt.Unix(),
			TotalEmails: a.TotalEmails,
			UnreadCount: a.UnreadCount,
		})
	}

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(statusEvent{Type: "account_status", Accounts: statuses})
}
