package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mailbridge/core/internal/api/handlers"
	"github.com/mailbridge/core/internal/api/middleware"
	"github.com/mailbridge/core/internal/config"
	"github.com/mailbridge/core/internal/services"
	"gorm.io/gorm"
)

// SetupRouter wires services, handlers and routes. The returned scheduler is
// started; the caller stops it on shutdown.
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *middleware.AuthManager, *services.SyncScheduler, error) {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.CORSOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	authManager, err := middleware.NewAuthManager(cfg.DataDir, cfg.JWTSecret, middleware.DefaultTokenExpiry)
	if err != nil {
		return nil, nil, nil, err
	}

	// Services
	logService := services.NewLogService(db)
	accountService, err := services.NewAccountService(db, cfg.GetEncryptionKey(), logService)
	if err != nil {
		return nil, nil, nil, err
	}
	userService := services.NewUserService(db, logService)
	settingsService := services.NewSettingsService(db)
	emailService := services.NewEmailService(db, accountService, logService)
	tokenManager := services.NewTokenManager(accountService, logService)
	syncService := services.NewSyncService(db, accountService, settingsService, tokenManager, logService, cfg.SyncFetchLimit)

	syncScheduler := services.NewSyncScheduler(syncService, accountService, cfg.SyncInterval())
	syncScheduler.Start()

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, authManager.JWTManager, logService)
	userHandler := handlers.NewUserHandler(userService, logService)
	accountHandler := handlers.NewAccountHandler(accountService, syncService, logService)
	emailHandler := handlers.NewEmailHandler(emailService, logService)
	settingsHandler := handlers.NewSettingsHandler(settingsService, userService, logService)
	oauthHandler := handlers.NewOAuthHandler(accountService, settingsService)
	wsHandler := handlers.NewWSHandler(accountService, authManager.JWTManager)

	// Health check endpoint (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.Use(middleware.APIKeyMiddleware(authManager.APIKeyManager))

		// Login needs the API key but no JWT yet
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}

		// OAuth callbacks arrive from the provider without a JWT
		oauth := api.Group("/oauth")
		{
			oauth.GET("/google/callback", oauthHandler.GoogleCallback)
			oauth.GET("/microsoft/callback", oauthHandler.MicrosoftCallback)
		}

		// Websocket upgrade carries the JWT as a query parameter
		api.GET("/ws/status", wsHandler.StatusStream)

		protected := api.Group("")
		protected.Use(middleware.JWTMiddleware(authManager.JWTManager))
		{
			protected.POST("/auth/refresh", authHandler.RefreshToken)
			protected.POST("/auth/logout", authHandler.Logout)
			protected.GET("/auth/me", authHandler.GetCurrentUser)

			userGroup := protected.Group("/user")
			{
				userGroup.GET("/profile", userHandler.GetProfile)
				userGroup.PUT("/profile", userHandler.UpdateProfile)
				userGroup.PUT("/password", userHandler.ChangePassword)
			}

			accounts := protected.Group("/accounts")
			{
				accounts.GET("", accountHandler.ListAccounts)
				accounts.POST("", accountHandler.CreateAccount)
				accounts.POST("/test", accountHandler.TestConnectionDirect) // must be before /:id routes
				accounts.GET("/:id", accountHandler.GetAccount)
				accounts.PUT("/:id", accountHandler.UpdateAccount)
				accounts.DELETE("/:id", accountHandler.DeleteAccount)
				accounts.POST("/:id/test", accountHandler.TestConnection)
				accounts.POST("/:id/sync", accountHandler.SyncAccount)
				accounts.PUT("/:id/enable", accountHandler.EnableAccount)
				accounts.PUT("/:id/disable", accountHandler.DisableAccount)
				accounts.GET("/:id/folders", emailHandler.ListFolders)
			}

			emails := protected.Group("/emails")
			{
				emails.GET("", emailHandler.ListEmails)
				emails.GET("/:id", emailHandler.GetEmail)
				emails.DELETE("/:id", emailHandler.DeleteEmail)
				emails.PUT("/:id/read", emailHandler.MarkAsRead)
				emails.PUT("/:id/flag", emailHandler.MarkFlagged)
			}

			settings := protected.Group("/settings")
			{
				settings.GET("", settingsHandler.GetSettings)
				settings.PUT("", settingsHandler.UpdateSettings)
				settings.GET("/proxy", settingsHandler.GetGlobalProxy)
				settings.PUT("/proxy", settingsHandler.SetGlobalProxy)
				settings.GET("/logs", settingsHandler.ListLogs)
			}

			oauthProtected := protected.Group("/oauth")
			{
				oauthProtected.GET("/config", oauthHandler.GetOAuthConfig)
				oauthProtected.GET("/google/auth", oauthHandler.GetGoogleAuthURL)
				oauthProtected.GET("/microsoft/auth", oauthHandler.GetMicrosoftAuthURL)
			}
		}
	}

	return router, authManager, syncScheduler, nil
}
