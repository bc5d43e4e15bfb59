package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mailbridge/core/internal/database/models"
	"github.com/mailbridge/core/internal/services"
)

// SettingsHandler handles user and system settings requests
type SettingsHandler struct {
	settingsService *services.SettingsService
	userService     *services.UserService
	logService      *services.LogService
}

// NewSettingsHandler creates a new SettingsHandler instance
func NewSettingsHandler(settingsService *services.SettingsService, userService *services.UserService, logService *services.LogService) *SettingsHandler {
	return &SettingsHandler{
		settingsService: settingsService,
		userService:     userService,
		logService:      logService,
	}
}

// GetSettings returns the current user's settings
// GET /api/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	settings, err := h.settingsService.GetUserSettings(userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve settings")
		return
	}
	respondOK(c, settings)
}

// UpdateSettings applies user settings updates
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		respondValidationError(c, err)
		return
	}

	allowed := map[string]bool{
		"google_client_id": true, "google_client_secret": true, "google_redirect_url": true,
		"microsoft_client_id": true, "microsoft_client_secret": true, "microsoft_redirect_url": true,
		"theme": true, "font": true,
	}
	for key := range updates {
		if !allowed[key] {
			delete(updates, key)
		}
	}

	settings, err := h.settingsService.UpdateUserSettings(userID, updates)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update settings")
		return
	}

	h.logService.Info(userID, models.LogModuleSettings, "update", "Settings updated", nil)
	respondOK(c, settings)
}

// GetGlobalProxy returns the fleet-wide proxy URL
// GET /api/settings/proxy
func (h *SettingsHandler) GetGlobalProxy(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	proxy, err := h.settingsService.GetGlobalProxy()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve proxy setting")
		return
	}
	respondOK(c, gin.H{"proxy_url": proxy})
}

// SetGlobalProxyRequest carries the proxy URL to store, empty clears it
type SetGlobalProxyRequest struct {
	ProxyURL string `json:"proxy_url"`
}

// SetGlobalProxy updates the fleet-wide proxy. Superusers only.
// PUT /api/settings/proxy
func (h *SettingsHandler) SetGlobalProxy(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(userID)
	if err != nil || !user.IsSuperuser {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "Superuser required")
		return
	}

	var req SetGlobalProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	if req.ProxyURL != "" {
		if _, err := url.Parse(req.ProxyURL); err != nil {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid proxy URL")
			return
		}
	}

	if err := h.settingsService.SetSystemSetting(models.SettingGlobalProxy, req.ProxyURL); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update proxy setting")
		return
	}

	h.logService.Info(userID, models.LogModuleSettings, "set_global_proxy", "Global proxy updated", nil)
	respondOK(c, gin.H{"proxy_url": req.ProxyURL})
}

// ListLogs returns system log entries
// GET /api/settings/logs?level=&module=&limit=&offset=
func (h *SettingsHandler) ListLogs(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(userID)
	if err != nil || !user.IsSuperuser {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "Superuser required")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	logs, total, err := h.logService.ListLogs(c.Query("level"), c.Query("module"), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve logs")
		return
	}

	respondOK(c, gin.H{
		"logs":  logs,
		"total": total,
	})
}
