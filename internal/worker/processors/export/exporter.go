// Package export uploads built payloads to the remote catalog in batches and
// records each item's outcome.
package export

import (
	"context"
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

type Options struct {
	BatchSize      int
	MaxInFlight    int
	RequestTimeout time.Duration
}

// Exporter is the batch uploader for one remote catalog.
type Exporter struct {
	api     catalog.API
	store   tracking.Store
	machine *retry.Machine
	limiter *rate.Limiter
	logger  *logger.Logger
	opts    Options
	now     func() time.Time
}

// New builds an exporter. limiter may be nil for unthrottled calls.
func New(api catalog.API, store tracking.Store, machine *retry.Machine, limiter *rate.Limiter, opts Options, logger *logger.Logger) *Exporter {
	opts.BatchSize = ClampBatchSize(opts.BatchSize)
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = time.Minute
	}
	return &Exporter{
		api:     api,
		store:   store,
		machine: machine,
		limiter: limiter,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

// ClampBatchSize bounds n to [1, catalog.MaxBatchSize].
func ClampBatchSize(n int) int {
	if n < 1 {
		return 1
	}
	if n > catalog.MaxBatchSize {
		return catalog.MaxBatchSize
	}
	return n
}

func (e *Exporter) BatchSize() int {
	return e.opts.BatchSize
}

// WithBatchSize returns a copy of e using batch size n, clamped.
func (e *Exporter) WithBatchSize(n int) *Exporter {
	c := *e
	c.opts.BatchSize = ClampBatchSize(n)
	return &c
}

type ItemFailure struct {
	ProductID int64
	SKU       string
	Class     catalog.Class
	Message   string
}

// ChannelResult tallies one channel's upload.
type ChannelResult struct {
	Channel         models.Channel
	Batches         int
	Sent            int
	Errored         int
	Skipped         int
	Retried         int
	Reauthenticated int
	Failures        []ItemFailure
}

type tally struct {
	mu  sync.Mutex
	res ChannelResult
}

func (t *tally) add(fn func(r *ChannelResult)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.res)
}

// Upload sends payloads for one channel. Item failures never stop the upload.
// Once ctx is done, batches that were not submitted yet are skipped and
// their items stay pending, as do items whose retry was waiting.
func (e *Exporter) Upload(ctx context.Context, channel models.Channel, payloads []catalog.Payload) ChannelResult {
	t := &tally{res: ChannelResult{Channel: channel}}
	size := e.opts.BatchSize

	for start := 0; start < len(payloads); start += size {
		end := start + size
		if end > len(payloads) {
			end = len(payloads)
		}

		if err := e.wait(ctx); err != nil {
			skipped := len(payloads) - start
			e.logger.Warn("Skipping %d unsubmitted %s items: %v", skipped, channel, err)
			t.add(func(r *ChannelResult) { r.Skipped += skipped })
			break
		}
		e.submit(ctx, channel, payloads[start:end], t)
	}

	e.logger.Info("Upload %s finished: %d sent, %d errors, %d skipped in %d batches",
		channel, t.res.Sent, t.res.Errored, t.res.Skipped, t.res.Batches)
	return t.res
}

func (e *Exporter) submit(ctx context.Context, channel models.Channel, batch []catalog.Payload, t *tally) {
	gen := e.generation()
	results := e.call(ctx, channel, batch)
	t.add(func(r *ChannelResult) { r.Batches++ })
	e.logger.Debug("Submitted %s batch of %d items", channel, len(batch))

	g := new(errgroup.Group)
	g.SetLimit(e.opts.MaxInFlight)
	for i := range batch {
		payload, first := batch[i], results[i]
		g.Go(func() error {
			e.settle(ctx, channel, payload, first, gen, t)
			return nil
		})
	}
	g.Wait()
}

// call submits one batch on a context detached from run cancellation and
// always returns one result per payload.
func (e *Exporter) call(ctx context.Context, channel models.Channel, batch []catalog.Payload) []catalog.Result {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.RequestTimeout)
	defer cancel()

	results, err := e.api.SubmitBatch(callCtx, channel, batch)
	if err != nil {
		failed := catalog.ResultFromError(err)
		results = make([]catalog.Result, len(batch))
		for i := range results {
			results[i] = failed
		}
		return results
	}
	if len(results) != len(batch) {
		e.logger.Warn("Remote catalog returned %d results for %d %s items", len(results), len(batch), channel)
		full := make([]catalog.Result, len(batch))
		for i := range full {
			if i < len(results) {
				full[i] = results[i]
			} else {
				full[i] = catalog.Result{Class: catalog.Retryable, Message: "no result returned for item"}
			}
		}
		results = full
	}
	return results
}

func (e *Exporter) settle(ctx context.Context, channel models.Channel, p catalog.Payload, first catalog.Result, gen uint64, t *tally) {
	var waitErr error
	out := e.machine.Run(ctx, first, gen, func(ctx context.Context) catalog.Result {
		if waitErr = e.wait(ctx); waitErr != nil {
			return catalog.Result{Class: catalog.NonRetryable, Message: "retry interrupted: " + waitErr.Error()}
		}
		return e.call(ctx, channel, []catalog.Payload{p})[0]
	})

	// A retry cut short by cancellation is not the item's fault: it stays
	// pending for the next run.
	if out.Interrupted || waitErr != nil {
		e.logger.Debug("Retry of %s on %s interrupted, left pending", p.SKU, channel)
		t.add(func(r *ChannelResult) { r.Skipped++ })
		return
	}

	writeCtx := context.WithoutCancel(ctx)
	switch out.State {
	case retry.Synced:
		externalID := out.Last.ExternalID
		if externalID == "" {
			externalID = p.ID
		}
		if err := e.store.MarkSynced(writeCtx, p.ProductID, p.SKU, externalID, e.now()); err != nil {
			e.logger.Error("Failed to record sync of %s: %v", p.SKU, err)
			t.add(func(r *ChannelResult) {
				r.Errored++
				r.Failures = append(r.Failures, ItemFailure{ProductID: p.ProductID, SKU: p.SKU, Class: catalog.Success, Message: err.Error()})
			})
			return
		}
		t.add(func(r *ChannelResult) {
			r.Sent++
			if out.Attempts > 1 {
				r.Retried++
			}
			if out.Reauthenticated {
				r.Reauthenticated++
			}
		})

	default:
		msg := out.Last.Error()
		if out.Exhausted {
			msg = fmt.Sprintf("retries exhausted after %d attempts: %s", out.Attempts, msg)
		}
		e.logger.Debug("Item %s on %s failed: %s", p.SKU, channel, msg)
		if err := e.store.MarkError(writeCtx, p.ProductID, p.SKU, msg); err != nil {
			e.logger.Error("Failed to record error of %s: %v", p.SKU, err)
		}
		t.add(func(r *ChannelResult) {
			r.Errored++
			if out.Attempts > 1 {
				r.Retried++
			}
			r.Failures = append(r.Failures, ItemFailure{ProductID: p.ProductID, SKU: p.SKU, Class: out.Last.Class, Message: msg})
		})
	}
}

func (e *Exporter) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

func (e *Exporter) generation() uint64 {
	if r := e.machine.Refresher(); r != nil {
		return r.Generation()
	}
	return 0
}
