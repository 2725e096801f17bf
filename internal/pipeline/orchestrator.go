package pipeline

import (
	"context"
	"errors"
	"time"

	"catalogsync/internal/catalog"
	"catalogsync/internal/events"
	"catalogsync/internal/inventory"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/tracking"
	"catalogsync/internal/worker/processors/cleanup"
	"catalogsync/internal/worker/processors/export"
	"catalogsync/internal/worker/processors/validation"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RunStore persists run records. The latest non-failed run start is the run
// marker.
type RunStore interface {
	SaveRun(ctx context.Context, run *models.SyncRun) error
	LastSuccessfulRun(ctx context.Context) (*time.Time, error)
}

type IssueRecorder interface {
	RecordIssue(ctx context.Context, issue *models.Issue) error
}

// StockLoader loads the local stock feed for one run.
type StockLoader func() (*inventory.Index, error)

type Options struct {
	Full         bool
	SkipDeletion bool
	// BatchSize overrides the exporter batch size when positive.
	BatchSize int
}

type Deps struct {
	Source     ProductSource
	Store      tracking.Store
	Runs       RunStore
	Issues     IssueRecorder
	LoadStock  StockLoader
	Builder    *validation.Validator
	Exporter   *export.Exporter
	Reconciler *cleanup.Reconciler
	// Publisher is optional.
	Publisher events.Publisher
	Logger    *logger.Logger
}

type Orchestrator struct {
	deps       Deps
	storeCode  string
	runTimeout time.Duration
	now        func() time.Time
}

func New(deps Deps, storeCode string, runTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		deps:       deps,
		storeCode:  storeCode,
		runTimeout: runTimeout,
		now:        time.Now,
	}
}

// Run performs one sync pass. The returned error is always a Fatal *Error;
// item failures are reported in Stats only.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Stats, error) {
	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}
	log := o.deps.Logger
	started := o.now()
	run := &models.SyncRun{ID: uuid.New().String(), Status: models.SyncRunStatusRunning, Full: opts.Full, StartedAt: started}
	stats := newStats(run.ID, opts.Full, started)

	// Everything that can fail the run happens before the first remote call.
	if err := o.deps.Runs.SaveRun(ctx, run); err != nil {
		return nil, o.fail(ctx, run, fatal("open run", err))
	}

	marker, err := o.deps.Runs.LastSuccessfulRun(ctx)
	if err != nil {
		return nil, o.fail(ctx, run, fatal("read run marker", err))
	}
	stats.PreviousRun = marker
	if marker != nil {
		log.Info("Starting %s sync, previous successful run at %s", mode(opts.Full), marker.Format(time.RFC3339))
	} else {
		log.Info("Starting %s sync, no previous successful run", mode(opts.Full))
	}

	var snapshot []models.TrackingEntry
	for _, ch := range models.Channels {
		entries, err := o.deps.Store.ListTracked(ctx, ch)
		if err != nil {
			return nil, o.fail(ctx, run, fatal("load tracking snapshot", err))
		}
		snapshot = append(snapshot, entries...)
	}

	stock, err := o.deps.LoadStock()
	if err != nil {
		return nil, o.fail(ctx, run, fatal("load stock feed", err))
	}
	log.Debug("Loaded %d stock rows", stock.Len())
	if !stock.HasStore(o.storeCode) {
		log.Warn("Stock feed has no rows for store %s, local products will be sent with zero stock", o.storeCode)
	}

	changes, err := Detect(ctx, o.deps.Source, snapshot, opts.Full)
	if err != nil {
		return nil, o.fail(ctx, run, fatal("detect changes", err))
	}
	stats.Total = changes.Seen
	stats.Duplicates = changes.Duplicates
	stats.Unchanged = changes.Unchanged
	stats.ToSync = len(changes.ToSync)
	stats.ToDelete = len(changes.ToDelete)
	log.Info("Change set: %d to sync, %d unchanged, %d to delete", len(changes.ToSync), changes.Unchanged, len(changes.ToDelete))

	batches := o.prepare(ctx, opts, run.ID, changes.ToSync, inventory.NewEnricher(stock, o.storeCode), stats)
	o.upload(ctx, opts, batches, stats)

	if opts.SkipDeletion {
		log.Info("Skipping deletion of %d entries", len(changes.ToDelete))
	} else if len(changes.ToDelete) > 0 {
		res := o.deps.Reconciler.Reconcile(ctx, changes.ToDelete)
		stats.Deleted = res.Deleted + res.NeverSent
		stats.DeleteErrors = res.Errored
		stats.DeleteSkipped = res.Skipped
	}

	o.finish(ctx, run, stats)
	return stats, nil
}

// prepare builds payloads and records every valid item as pending before any
// upload starts. A channel change needs the old remote item deleted first, so
// with deletion disabled it waits for a later run and the entry is untouched.
func (o *Orchestrator) prepare(ctx context.Context, opts Options, runID string, candidates []Candidate, enricher *inventory.Enricher, stats *Stats) map[models.Channel][]catalog.Payload {
	log := o.deps.Logger
	writeCtx := context.WithoutCancel(ctx)
	out := make(map[models.Channel][]catalog.Payload)

	for _, c := range candidates {
		var level *inventory.Level
		if c.Channel == models.ChannelLocal {
			lvl := enricher.Enrich(c.Product.SKU)
			level = &lvl
		}

		res := o.deps.Builder.Build(c.Product, c.Channel, level)
		if !res.Valid() {
			stats.Invalid++
			stats.InvalidByReason[res.Invalid.Reason]++
			o.issue(writeCtx, runID, c, res.Invalid.Reason, res.Invalid.Field, models.IssueSeverityHigh, res.Invalid.Message)
			if c.Entry != nil {
				if err := o.deps.Store.MarkError(writeCtx, c.Product.ID, c.Product.SKU, "invalid: "+res.Invalid.Error()); err != nil {
					log.Error("Failed to record invalid product %s: %v", c.Product.SKU, err)
				}
				stats.Failures = append(stats.Failures, Failure{ProductID: c.Product.ID, SKU: c.Product.SKU, Channel: c.Channel, Kind: ItemInvalid, Message: res.Invalid.Error()})
			}
			continue
		}
		stats.Valid++
		if res.HasWarning(validation.WarningMissingImage) {
			stats.MissingImages++
			o.issue(writeCtx, runID, c, validation.WarningMissingImage, "images", models.IssueSeverityLow, "no image, placeholder sent")
		}
		if res.HasWarning(validation.WarningMissingStock) {
			stats.MissingStock++
		}

		if c.Reason == ReasonMigrated {
			if opts.SkipDeletion {
				stats.MigrationsDeferred++
				log.Info("Deferring move of %s from %s to %s, deletion is disabled", c.Product.SKU, c.Entry.Channel, c.Channel)
				continue
			}
			stats.Migrated++
			log.Info("Product %s moves from %s to %s", c.Product.SKU, c.Entry.Channel, c.Channel)
			if err := o.deps.Reconciler.Retire(ctx, *c.Entry); err != nil {
				if errors.Is(err, cleanup.ErrInterrupted) {
					stats.Skipped++
					continue
				}
				stats.Errored++
				stats.Failures = append(stats.Failures, Failure{ProductID: c.Product.ID, SKU: c.Product.SKU, Channel: c.Entry.Channel, Kind: ItemError, Message: err.Error()})
				continue
			}
		}

		if err := o.deps.Store.Upsert(writeCtx, pendingEntry(c)); err != nil {
			log.Error("Failed to track %s: %v", c.Product.SKU, err)
			stats.Errored++
			stats.Failures = append(stats.Failures, Failure{ProductID: c.Product.ID, SKU: c.Product.SKU, Channel: c.Channel, Kind: ItemError, Message: err.Error()})
			continue
		}
		out[c.Channel] = append(out[c.Channel], *res.Payload)
	}
	return out
}

// pendingEntry is the tracking row written before upload. History survives
// except across a channel change, which starts the row over.
func pendingEntry(c Candidate) *models.TrackingEntry {
	entry := &models.TrackingEntry{
		ProductID:      c.Product.ID,
		SKU:            c.Product.SKU,
		Channel:        c.Channel,
		LastModifiedAt: c.Product.ModifiedAt,
		Status:         models.SyncStatusPending,
	}
	if c.Entry != nil && c.Reason != ReasonMigrated {
		entry.ExternalID = c.Entry.ExternalID
		entry.LastSentAt = c.Entry.LastSentAt
		entry.ErrorCount = c.Entry.ErrorCount
		entry.LastError = c.Entry.LastError
	}
	return entry
}

func (o *Orchestrator) upload(ctx context.Context, opts Options, batches map[models.Channel][]catalog.Payload, stats *Stats) {
	exporter := o.deps.Exporter
	if opts.BatchSize > 0 {
		exporter = exporter.WithBatchSize(opts.BatchSize)
	}

	results := make([]export.ChannelResult, len(models.Channels))
	g := new(errgroup.Group)
	for i, ch := range models.Channels {
		payloads := batches[ch]
		if len(payloads) == 0 {
			continue
		}
		g.Go(func() error {
			results[i] = exporter.Upload(ctx, ch, payloads)
			return nil
		})
	}
	g.Wait()

	for i, ch := range models.Channels {
		r := results[i]
		switch ch {
		case models.ChannelOnline:
			stats.SentOnline = r.Sent
		case models.ChannelLocal:
			stats.SentLocal = r.Sent
		}
		stats.Errored += r.Errored
		stats.Skipped += r.Skipped
		stats.Retried += r.Retried
		stats.Reauthenticated += r.Reauthenticated
		for _, f := range r.Failures {
			stats.Failures = append(stats.Failures, Failure{ProductID: f.ProductID, SKU: f.SKU, Channel: ch, Kind: KindOf(f.Class), Message: f.Message})
		}
	}
}

func (o *Orchestrator) issue(ctx context.Context, runID string, c Candidate, code, field string, severity models.IssueSeverity, msg string) {
	if o.deps.Issues == nil {
		return
	}
	err := o.deps.Issues.RecordIssue(ctx, &models.Issue{
		RunID:       runID,
		ProductID:   c.Product.ID,
		SKU:         c.Product.SKU,
		Channel:     c.Channel,
		Code:        code,
		Field:       field,
		Severity:    severity,
		Explanation: msg,
	})
	if err != nil {
		o.deps.Logger.Error("Failed to record issue for %s: %v", c.Product.SKU, err)
	}
}

func (o *Orchestrator) finish(ctx context.Context, run *models.SyncRun, stats *Stats) {
	writeCtx := context.WithoutCancel(ctx)
	stats.FinishedAt = o.now()
	stats.record(run)
	if err := o.deps.Runs.SaveRun(writeCtx, run); err != nil {
		o.deps.Logger.Error("Failed to save run %s: %v", run.ID, err)
	}
	if ctx.Err() != nil {
		o.deps.Logger.Warn("Run %s stopped early: %v", run.ID, ctx.Err())
	}

	o.publish(writeCtx, events.Event{
		Type:  events.TypeSyncCompleted,
		RunID: run.ID,
		Data: map[string]interface{}{
			"status":      string(run.Status),
			"sent_online": stats.SentOnline,
			"sent_local":  stats.SentLocal,
			"invalid":     stats.Invalid,
			"errors":      stats.Errored,
			"deleted":     stats.Deleted,
		},
	})
}

func (o *Orchestrator) fail(ctx context.Context, run *models.SyncRun, err *Error) error {
	writeCtx := context.WithoutCancel(ctx)
	o.deps.Logger.Error("Sync run %s failed: %v", run.ID, err)

	finished := o.now()
	msg := err.Error()
	run.Status = models.SyncRunStatusFailed
	run.FinishedAt = &finished
	run.ErrorMessage = &msg
	if saveErr := o.deps.Runs.SaveRun(writeCtx, run); saveErr != nil {
		o.deps.Logger.Debug("Could not record failed run: %v", saveErr)
	}

	o.publish(writeCtx, events.Event{
		Type:  events.TypeSyncFailed,
		RunID: run.ID,
		Data:  map[string]interface{}{"error": msg},
	})
	return err
}

func (o *Orchestrator) publish(ctx context.Context, ev events.Event) {
	if o.deps.Publisher == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = o.now().UTC()
	}
	if err := o.deps.Publisher.Publish(ctx, ev); err != nil {
		o.deps.Logger.Warn("Failed to publish %s: %v", ev.Type, err)
	}
}

func mode(full bool) string {
	if full {
		return "full"
	}
	return "incremental"
}
