package processors

import (
	"context"
	"errors"
	"fmt"

	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/pipeline"
)

// ErrRunInProgress is returned when a sync is requested while another one
// is still running in this process.
var ErrRunInProgress = errors.New("sync run already in progress")

// Syncer runs one sync pass.
type Syncer interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.Stats, error)
}

type EventProcessor struct {
	syncer Syncer
	logger *logger.Logger
	// running holds one token while a run is active.
	running chan struct{}
}

func NewEventProcessor(syncer Syncer, logger *logger.Logger) *EventProcessor {
	return &EventProcessor{
		syncer:  syncer,
		logger:  logger,
		running: make(chan struct{}, 1),
	}
}

// Process handles one event. Only sync.requested triggers work; the events
// the pipeline itself publishes are ignored.
func (ep *EventProcessor) Process(ctx context.Context, event events.Event) error {
	switch event.Type {
	case events.TypeSyncRequested:
		return ep.sync(ctx, event)
	case events.TypeSyncCompleted, events.TypeSyncFailed:
		ep.logger.Debug("Ignoring %s for run %s", event.Type, event.RunID)
		return nil
	default:
		ep.logger.Warn("Unknown event type %q", event.Type)
		return nil
	}
}

func (ep *EventProcessor) sync(ctx context.Context, event events.Event) error {
	req, err := event.Request()
	if err != nil {
		return err
	}

	select {
	case ep.running <- struct{}{}:
		defer func() { <-ep.running }()
	default:
		return ErrRunInProgress
	}

	ep.logger.Info("Sync requested (full=%t, skip_deletion=%t)", req.Full, req.SkipDeletion)
	stats, err := ep.syncer.Run(ctx, pipeline.Options{
		Full:         req.Full,
		SkipDeletion: req.SkipDeletion,
		BatchSize:    req.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("sync run failed: %w", err)
	}
	ep.logger.Info("Sync run %s finished: %s", stats.RunID, stats.Status())
	return nil
}
