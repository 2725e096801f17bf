// Package cleanup removes remote items whose source products are gone.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"catalogsync/internal/catalog"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/retry"
	"catalogsync/internal/tracking"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Reconciler struct {
	api            catalog.API
	store          tracking.Store
	machine        *retry.Machine
	limiter        *rate.Limiter
	logger         *logger.Logger
	maxInFlight    int
	requestTimeout time.Duration
}

func New(api catalog.API, store tracking.Store, machine *retry.Machine, limiter *rate.Limiter, maxInFlight int, requestTimeout time.Duration, logger *logger.Logger) *Reconciler {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if requestTimeout <= 0 {
		requestTimeout = time.Minute
	}
	return &Reconciler{
		api:            api,
		store:          store,
		machine:        machine,
		limiter:        limiter,
		logger:         logger,
		maxInFlight:    maxInFlight,
		requestTimeout: requestTimeout,
	}
}

// ErrInterrupted reports a deletion cut short by cancellation. The entry is
// left as it was.
var ErrInterrupted = errors.New("delete interrupted")

type Result struct {
	Deleted int
	// NeverSent counts entries retired without a remote call.
	NeverSent int
	Errored   int
	Skipped   int
}

// Reconcile deletes every entry remotely and marks it deleted. It only writes
// deletion or error state and never queues an entry for upload.
func (rc *Reconciler) Reconcile(ctx context.Context, entries []models.TrackingEntry) Result {
	var (
		mu  sync.Mutex
		res Result
	)
	g := new(errgroup.Group)
	g.SetLimit(rc.maxInFlight)

	for _, entry := range entries {
		if ctx.Err() != nil {
			mu.Lock()
			res.Skipped++
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			err := rc.remove(ctx, entry.Channel, entry, true)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrInterrupted):
				res.Skipped++
			case err != nil:
				res.Errored++
			case entry.ExternalID == nil || *entry.ExternalID == "":
				res.NeverSent++
			default:
				res.Deleted++
			}
			return nil
		})
	}
	g.Wait()

	rc.logger.Info("Deletion reconcile finished: %d deleted, %d never sent, %d errors, %d skipped",
		res.Deleted, res.NeverSent, res.Errored, res.Skipped)
	return res
}

// Retire removes the remote item an entry holds on its current channel
// before the product moves to another channel. The tracking row is left for
// the caller to re-point.
func (rc *Reconciler) Retire(ctx context.Context, entry models.TrackingEntry) error {
	return rc.remove(ctx, entry.Channel, entry, false)
}

func (rc *Reconciler) remove(ctx context.Context, channel models.Channel, entry models.TrackingEntry, mark bool) error {
	writeCtx := context.WithoutCancel(ctx)

	if entry.ExternalID != nil && *entry.ExternalID != "" {
		externalID := *entry.ExternalID
		gen := uint64(0)
		if r := rc.machine.Refresher(); r != nil {
			gen = r.Generation()
		}
		first, err := rc.call(ctx, channel, externalID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, err)
		}
		var waitErr error
		out := rc.machine.Run(ctx, first, gen, func(ctx context.Context) catalog.Result {
			var res catalog.Result
			if res, waitErr = rc.call(ctx, channel, externalID); waitErr != nil {
				return catalog.Result{Class: catalog.NonRetryable, Message: waitErr.Error()}
			}
			return res
		})
		if out.Interrupted {
			return fmt.Errorf("%w: %v", ErrInterrupted, out.Err)
		}
		if waitErr != nil {
			return fmt.Errorf("%w: %v", ErrInterrupted, waitErr)
		}
		if out.State != retry.Synced {
			msg := "delete failed: " + out.Last.Error()
			if err := rc.store.MarkError(writeCtx, entry.ProductID, entry.SKU, msg); err != nil {
				rc.logger.Error("Failed to record delete error of %s: %v", entry.SKU, err)
			}
			return fmt.Errorf("delete %s: %s", externalID, out.Last.Error())
		}
	}

	if !mark {
		return nil
	}
	if err := rc.store.MarkDeleted(writeCtx, entry.ProductID, entry.SKU); err != nil {
		rc.logger.Error("Failed to mark %s deleted: %v", entry.SKU, err)
		return err
	}
	return nil
}

// call issues one delete. The error is set only when the call was never
// made because ctx ended first.
func (rc *Reconciler) call(ctx context.Context, channel models.Channel, externalID string) (catalog.Result, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Result{}, err
	}
	if rc.limiter != nil {
		if err := rc.limiter.Wait(ctx); err != nil {
			return catalog.Result{}, err
		}
	}
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.requestTimeout)
	defer cancel()
	return rc.api.DeleteItem(callCtx, channel, externalID), nil
}
