package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mailbridge/core/internal/services"
)

// EmailHandler handles stored email requests
type EmailHandler struct {
	emailService *services.EmailService
	logService   *services.LogService
}

// NewEmailHandler creates a new EmailHandler instance
func NewEmailHandler(emailService *services.EmailService, logService *services.LogService) *EmailHandler {
	return &EmailHandler{
		emailService: emailService,
		logService:   logService,
	}
}

// ListEmails returns a page of the user's emails
// GET /api/emails?account_id=&folder_id=&unread=&q=&limit=&offset=
func (h *EmailHandler) ListEmails(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	opts := services.ListEmailsOptions{
		AccountID:  queryUint(c, "account_id"),
		FolderID:   queryUint(c, "folder_id"),
		UnreadOnly: c.Query("unread") == "true",
		Search:     c.Query("q"),
		Limit:      int(queryUint(c, "limit")),
		Offset:     int(queryUint(c, "offset")),
	}

	emails, total, err := h.emailService.ListEmails(userID, opts)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to retrieve emails")
		return
	}

	respondOK(c, gin.H{
		"emails": emails,
		"total":  total,
	})
}

// GetEmail returns one email with its bodies
// GET /api/emails/:id
func (h *EmailHandler) GetEmail(c *gin.Context) {
	userID, emailID, ok := h.emailFromPath(c)
	if !ok {
		return
	}

	email, err := h.emailService.GetEmail(userID, emailID)
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Email not found")
		return
	}
	respondOK(c, email)
}

// MarkReadRequest toggles the read flag
type MarkReadRequest struct {
	Read *bool `json:"read" binding:"required"`
}

// MarkAsRead sets or clears the read flag on an email
// PUT /api/emails/:id/read
func (h *EmailHandler) MarkAsRead(c *gin.Context) {
	userID, emailID, ok := h.emailFromPath(c)
	if !ok {
		return
	}

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	if err := h.emailService.MarkRead(userID, emailID, *req.Read); err != nil {
		h.respondEmailError(c, err)
		return
	}
	respondOK(c, gin.H{"read": *req.Read})
}

// MarkFlaggedRequest toggles the flagged marker
type MarkFlaggedRequest struct {
	Flagged *bool `json:"flagged" binding:"required"`
}

// MarkFlagged sets or clears the flagged marker on an email
// PUT /api/emails/:id/flag
func (h *EmailHandler) MarkFlagged(c *gin.Context) {
	userID, emailID, ok := h.emailFromPath(c)
	if !ok {
		return
	}

	var req MarkFlaggedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	if err := h.emailService.MarkFlagged(userID, emailID, *req.Flagged); err != nil {
		h.respondEmailError(c, err)
		return
	}
	respondOK(c, gin.H{"flagged": *req.Flagged})
}

// DeleteEmail soft-deletes a stored email
// DELETE /api/emails/:id
func (h *EmailHandler) DeleteEmail(c *gin.Context) {
	userID, emailID, ok := h.emailFromPath(c)
	if !ok {
		return
	}

	if err := h.emailService.DeleteEmail(userID, emailID); err != nil {
		h.respondEmailError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Email deleted"})
}

// ListFolders returns the folders of one account
// GET /api/accounts/:id/folders
func (h *EmailHandler) ListFolders(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	accountID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid account ID")
		return
	}

	folders, err := h.emailService.ListFolders(userID, uint(accountID))
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Account not found")
		return
	}
	respondOK(c, folders)
}

func (h *EmailHandler) respondEmailError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrEmailNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "Email not found")
		return
	}
	respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Operation failed")
}

func (h *EmailHandler) emailFromPath(c *gin.Context) (uint, uint, bool) {
	userID, ok := requireUserID(c)
	if !ok {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid email ID")
		return 0, 0, false
	}
	return userID, uint(id), true
}

func queryUint(c *gin.Context, key string) uint {
	val, err := strconv.ParseUint(c.Query(key), 10, 32)
	if err != nil {
		return 0
	}
	return uint(val)
}
