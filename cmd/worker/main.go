package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"catalogsync/internal/app"
	"catalogsync/internal/config"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/worker"
	"catalogsync/internal/worker/processors"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if len(cfg.Brokers()) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the worker")
	}

	// Initialize logger
	logger := logger.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher := events.NewKafkaPublisher(cfg.Brokers(), cfg.KafkaTopic)
	defer publisher.Close()

	engine, err := app.NewEngine(ctx, cfg, logger, publisher)
	if err != nil {
		logger.Fatal("Failed to build sync engine: %v", err)
	}
	defer engine.Close()

	// Initialize worker
	w := worker.New(worker.NewReader(cfg), processors.NewEventProcessor(engine, logger), logger)

	logger.Info("Starting worker...")
	if err := w.Start(ctx); err != nil {
		logger.Error("Worker stopped: %v", err)
	}

	logger.Info("Shutting down worker...")
	w.Stop()
}
