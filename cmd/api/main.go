package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalogsync/internal/api"
	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize logger
	logger := logger.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	publisher := events.NewPublisher(cfg.Brokers(), cfg.KafkaTopic)
	if publisher == nil {
		logger.Warn("KAFKA_BROKERS not set, sync requests will be refused")
	} else {
		defer publisher.Close()
	}

	// Initialize API server
	server := api.New(cfg, logger, db, publisher)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server: %v", err)
		}
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
}
