package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mailbridge/core/internal/api/middleware"
	"github.com/mailbridge/core/internal/database/models"
	"github.com/mailbridge/core/internal/services"
)

// AuthHandler handles login and session requests
type AuthHandler struct {
	userService *services.UserService
	jwtManager  *middleware.JWTManager
	logService  *services.LogService
}

// NewAuthHandler creates a new AuthHandler instance
func NewAuthHandler(userService *services.UserService, jwtManager *middleware.JWTManager, logService *services.LogService) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		jwtManager:  jwtManager,
		logService:  logService,
	}
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the successful login payload
type LoginResponse struct {
	Token              string `json:"token"`
	ExpiresAt          int64  `json:"expires_at"`
	UserID             uint   `json:"user_id"`
	Username           string `json:"username"`
	Nickname           string `json:"nickname"`
	IsSuperuser        bool   `json:"is_superuser"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Login authenticates a user and issues a JWT
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}

	user, err := h.userService.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			respondError(c, http.StatusUnauthorized, "AUTH_FAILED", "Invalid username or password")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed")
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(user.ID, user.Username)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate token")
		return
	}

	respondOK(c, LoginResponse{
		Token:              token,
		ExpiresAt:          expiresAt,
		UserID:             user.ID,
		Username:           user.Username,
		Nickname:           user.Nickname,
		IsSuperuser:        user.IsSuperuser,
		MustChangePassword: user.MustChangePassword,
	})
}

// RefreshToken issues a fresh JWT for an authenticated user
// POST /api/auth/refresh
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	username, _ := middleware.GetUsernameFromContext(c)

	token, expiresAt, err := h.jwtManager.GenerateToken(userID, username)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate token")
		return
	}

	respondOK(c, gin.H{
		"token":      token,
		"expires_at": expiresAt,
	})
}

// Logout ends the session. JWTs are stateless, so this is a log entry and a
// client-side token drop.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	h.logService.Info(userID, models.LogModuleAuth, "logout", "User logged out", nil)
	respondOK(c, gin.H{"message": "Logged out"})
}

// GetCurrentUser returns the authenticated user's profile
// GET /api/auth/me
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUser(userID)
	if err != nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	respondOK(c, user)
}
