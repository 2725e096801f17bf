package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalogsync/internal/app"
	"catalogsync/internal/config"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/pipeline"
)

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	full := flag.Bool("full", false, "resend every product regardless of tracking state")
	batch := flag.Int("batch", 0, "items per remote batch (default BATCH_SIZE)")
	skipCleanup := flag.Bool("skip-cleanup", false, "do not delete remote items for removed products or moved between channels")
	debug := flag.Bool("debug", false, "debug logging")
	timeout := flag.Duration("timeout", 0, "run timeout (default RUN_TIMEOUT)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Println("Failed to load configuration:", err)
		return exitFatal
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *timeout > 0 {
		cfg.RunTimeout = *timeout
	}

	logger := logger.NewWithWriter(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher := events.NewPublisher(cfg.Brokers(), cfg.KafkaTopic)
	if publisher != nil {
		defer publisher.Close()
	}

	engine, err := app.NewEngine(ctx, cfg, logger, publisher)
	if err != nil {
		logger.Error("Failed to start sync: %v", err)
		return exitFatal
	}
	defer engine.Close()

	started := time.Now()
	stats, err := engine.Run(ctx, pipeline.Options{
		Full:         *full,
		SkipDeletion: *skipCleanup,
		BatchSize:    *batch,
	})
	if err != nil {
		logger.Error("Sync failed after %s: %v", time.Since(started).Round(time.Millisecond), err)
		return exitFatal
	}

	fmt.Print(stats.Report())
	for _, f := range stats.Failures {
		logger.Debug("%s %s/%d on %s: %s", f.Kind, f.SKU, f.ProductID, f.Channel, f.Message)
	}
	if stats.Partial() {
		return exitPartial
	}
	return exitOK
}
