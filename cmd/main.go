package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailbridge/core/internal/api"
	"github.com/mailbridge/core/internal/cli"
	"github.com/mailbridge/core/internal/config"
	"github.com/mailbridge/core/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] Failed to load config: %v", err)
	}

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("[Main] Failed to initialize database: %v", err)
	}

	// Subcommands run the CLI instead of the server
	if len(os.Args) > 1 {
		cli.Execute(db, cfg)
		return
	}

	router, authManager, scheduler, err := api.SetupRouter(db, cfg)
	if err != nil {
		log.Fatalf("[Main] Failed to set up router: %v", err)
	}

	log.Printf("[Main] API key: %s", authManager.APIKeyManager.GetCurrentKey())
	log.Printf("[Main] Listening on :%s", cfg.APIPort)

	srv := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Main] Server error: %v", err)
		}
	}()

	// Graceful shutdown: stop taking requests, then wait for the scheduler
	// to finish its in-flight sync tick
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("[Main] Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[Main] Server shutdown error: %v", err)
	}

	scheduler.Stop()
	log.Printf("[Main] Stopped")
}
