// Package app wires the sync pipeline from configuration. Both the one-shot
// command and the worker run the same engine.
package app

import (
	"context"
	"errors"
	"fmt"

	"catalogsync/internal/config"
	"catalogsync/internal/connectors/woocommerce"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/inventory"
	"catalogsync/internal/logger"
	"catalogsync/internal/merchant"
	"catalogsync/internal/pipeline"
	"catalogsync/internal/retry"
	"catalogsync/internal/tracking"
	"catalogsync/internal/worker/processors/cleanup"
	"catalogsync/internal/worker/processors/export"
	"catalogsync/internal/worker/processors/validation"

	"golang.org/x/time/rate"
)

type Engine struct {
	*pipeline.Orchestrator

	db     *database.Database
	source *woocommerce.WooCommerceConnector
}

// NewEngine connects the tracking database, the store database and the
// Content API. publisher may be nil.
func NewEngine(ctx context.Context, cfg *config.Config, log *logger.Logger, publisher events.Publisher) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	store := tracking.NewGormStore(db.DB)

	source, err := woocommerce.Open(cfg.SourceDatabaseURL, woocommerce.Options{
		TablePrefix: cfg.SourceTablePrefix,
		PageSize:    cfg.SourcePageSize,
	}, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := source.Ping(ctx); err != nil {
		source.Close()
		db.Close()
		return nil, fmt.Errorf("store database unreachable: %w", err)
	}

	client, err := merchant.New(ctx, cfg.MerchantID, cfg.ServiceAccountFile, log)
	if err != nil {
		source.Close()
		db.Close()
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		MaxElapsed:  cfg.ItemMaxElapsed,
		Jitter:      retry.DefaultPolicy().Jitter,
	}
	machine := retry.NewMachine(policy, retry.NewRefresher(client.Authenticate))
	limiter := NewLimiter(cfg.RequestsPerSecond, cfg.MaxInFlight)

	exporter := export.New(client, store, machine, limiter, export.Options{
		BatchSize:      cfg.BatchSize,
		MaxInFlight:    cfg.MaxInFlight,
		RequestTimeout: cfg.RequestTimeout,
	}, log)
	reconciler := cleanup.New(client, store, machine, limiter, cfg.MaxInFlight, cfg.RequestTimeout, log)

	orch := pipeline.New(pipeline.Deps{
		Source: source,
		Store:  store,
		Runs:   store,
		Issues: store,
		LoadStock: func() (*inventory.Index, error) {
			return inventory.LoadFeed(cfg.LocalStockFile)
		},
		Builder:    validation.New(validation.SettingsFromConfig(cfg)),
		Exporter:   exporter,
		Reconciler: reconciler,
		Publisher:  publisher,
		Logger:     log,
	}, cfg.StoreCode, cfg.RunTimeout)

	return &Engine{Orchestrator: orch, db: db, source: source}, nil
}

// NewLimiter returns the shared request limiter, or nil when rps is not
// positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

func (e *Engine) Close() error {
	return errors.Join(e.source.Close(), e.db.Close())
}
