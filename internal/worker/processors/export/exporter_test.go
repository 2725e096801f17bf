package export

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"catalogsync/internal/catalog"
	"catalogsync/internal/catalog/catalogtest"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/retry"
	"catalogsync/internal/tracking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var (
	transient = catalog.Result{Class: catalog.Retryable, Code: 503, Message: "backend unavailable"}
	rejected  = catalog.Result{Class: catalog.NonRetryable, Code: 400, Message: "invalid gtin"}
	expired   = catalog.Result{Class: catalog.AuthExpired, Code: 401, Message: "token expired"}
)

type fixture struct {
	api      *catalogtest.Fake
	store    *tracking.MemoryStore
	exporter *Exporter
}

func newFixture(t *testing.T, batchSize, attempts int) *fixture {
	t.Helper()
	policy := retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxElapsed: time.Second}
	return newFixtureWith(t, policy, nil, Options{BatchSize: batchSize, MaxInFlight: 3}, nil)
}

// newFixtureWith lets wrap stand in front of the scripted API.
func newFixtureWith(t *testing.T, policy retry.Policy, limiter *rate.Limiter, opts Options, wrap func(*catalogtest.Fake) catalog.API) *fixture {
	t.Helper()
	fake := catalogtest.New()
	var api catalog.API = fake
	if wrap != nil {
		api = wrap(fake)
	}
	store := tracking.NewMemoryStore()
	machine := retry.NewMachine(policy, retry.NewRefresher(fake.Authenticate))
	return &fixture{
		api:      fake,
		store:    store,
		exporter: New(api, store, machine, limiter, opts, logger.Nop()),
	}
}

func (f *fixture) payloads(t *testing.T, channel models.Channel, skus ...string) []catalog.Payload {
	t.Helper()
	var out []catalog.Payload
	for i, sku := range skus {
		id := int64(i + 1)
		require.NoError(t, f.store.Upsert(context.Background(), &models.TrackingEntry{
			ProductID: id, SKU: sku, Channel: channel, LastModifiedAt: time.Now(),
		}))
		out = append(out, catalog.Payload{ProductID: id, SKU: sku, ID: fmt.Sprintf("%s:es:MX:%s", channel, sku), Channel: channel})
	}
	return out
}

func (f *fixture) entry(t *testing.T, id int64, sku string) *models.TrackingEntry {
	t.Helper()
	e, err := f.store.Get(context.Background(), id, sku)
	require.NoError(t, err)
	require.NotNil(t, e)
	return e
}

func TestClampBatchSize(t *testing.T) {
	assert.Equal(t, 1, ClampBatchSize(0))
	assert.Equal(t, 100, ClampBatchSize(100))
	assert.Equal(t, catalog.MaxBatchSize, ClampBatchSize(5000))

	f := newFixture(t, 5000, 1)
	assert.Equal(t, catalog.MaxBatchSize, f.exporter.BatchSize())
}

func TestUploadAllSucceed(t *testing.T) {
	f := newFixture(t, 2, 3)
	payloads := f.payloads(t, models.ChannelOnline, "A", "B", "C", "D", "E")

	res := f.exporter.Upload(context.Background(), models.ChannelOnline, payloads)
	assert.Equal(t, 5, res.Sent)
	assert.Equal(t, 0, res.Errored)
	assert.Equal(t, 3, res.Batches)
	assert.Equal(t, 3, f.api.BatchCalls)

	e := f.entry(t, 1, "A")
	assert.Equal(t, models.SyncStatusSynced, e.Status)
	require.NotNil(t, e.ExternalID)
	assert.Equal(t, "online:es:MX:A", *e.ExternalID)
	assert.NotNil(t, e.LastSentAt)
}

func TestUploadNonRetryableMarksErrorOnce(t *testing.T) {
	f := newFixture(t, 10, 5)
	payloads := f.payloads(t, models.ChannelOnline, "A", "B")
	f.api.FailItem("B", rejected)

	res := f.exporter.Upload(context.Background(), models.ChannelOnline, payloads)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Errored)
	assert.Equal(t, 1, f.api.BatchCalls)

	e := f.entry(t, 2, "B")
	assert.Equal(t, models.SyncStatusError, e.Status)
	assert.Equal(t, 1, e.ErrorCount)
	require.NotNil(t, e.LastError)
	assert.Contains(t, *e.LastError, "invalid gtin")
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, 10, 5)
	payloads := f.payloads(t, models.ChannelLocal, "A")
	f.api.FailItem("A", transient, transient)

	res := f.exporter.Upload(context.Background(), models.ChannelLocal, payloads)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, 3, f.api.BatchCalls)
	assert.Equal(t, models.SyncStatusSynced, f.entry(t, 1, "A").Status)
}

func TestUploadExhaustionIncrementsOnce(t *testing.T) {
	f := newFixture(t, 10, 3)
	payloads := f.payloads(t, models.ChannelOnline, "A")
	f.api.FailItem("A", transient, transient, transient, transient)

	res := f.exporter.Upload(context.Background(), models.ChannelOnline, payloads)
	assert.Equal(t, 0, res.Sent)
	assert.Equal(t, 1, res.Errored)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Message, "retries exhausted after 3 attempts")

	e := f.entry(t, 1, "A")
	assert.Equal(t, models.SyncStatusError, e.Status)
	assert.Equal(t, 1, e.ErrorCount)
}

func TestUploadWholeBatchFailureRetriesItems(t *testing.T) {
	f := newFixture(t, 10, 3)
	payloads := f.payloads(t, models.ChannelOnline, "A", "B")
	f.api.FailBatch(&catalog.RemoteError{StatusCode: 502, Message: "bad gateway"})

	res := f.exporter.Upload(context.Background(), models.ChannelOnline, payloads)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 2, res.Retried)
	assert.Equal(t, 3, f.api.BatchCalls)
}

func TestUploadReauthenticatesOnce(t *testing.T) {
	f := newFixture(t, 10, 1)
	payloads := f.payloads(t, models.ChannelOnline, "A", "B", "C")
	for _, sku := range []string{"A", "B", "C"} {
		f.api.FailItem(sku, expired)
	}

	res := f.exporter.Upload(context.Background(), models.ChannelOnline, payloads)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 3, res.Reauthenticated)
	assert.Equal(t, 1, f.api.AuthCalls)
}

func TestUploadCancelledSkipsBatches(t *testing.T) {
	f := newFixture(t, 1, 3)
	payloads := f.payloads(t, models.ChannelOnline, "A", "B")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.exporter.Upload(ctx, models.ChannelOnline, payloads)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, f.api.BatchCalls)
	assert.Equal(t, models.SyncStatusPending, f.entry(t, 1, "A").Status)
}

// countingAPI records how many single-item submissions run at once.
type countingAPI struct {
	*catalogtest.Fake
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *countingAPI) SubmitBatch(ctx context.Context, channel models.Channel, payloads []catalog.Payload) ([]catalog.Result, error) {
	if len(payloads) == 1 {
		n := c.inFlight.Add(1)
		defer c.inFlight.Add(-1)
		for {
			p := c.peak.Load()
			if n <= p || c.peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return c.Fake.SubmitBatch(ctx, channel, payloads)
}

func TestUploadBoundsInFlightRetries(t *testing.T) {
	var counter *countingAPI
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxElapsed: time.Second}
	f := newFixtureWith(t, policy, nil, Options{BatchSize: 40, MaxInFlight: 3}, func(fake *catalogtest.Fake) catalog.API {
		counter = &countingAPI{Fake: fake}
		return counter
	})

	skus := make([]string, 40)
	for i := range skus {
		skus[i] = fmt.Sprintf("S%02d", i)
		f.api.FailItem(skus[i], transient)
	}
	payloads := f.payloads(t, models.ChannelOnline, skus...)

	res := f.exporter.Upload(context.Background(), models.ChannelOnline, payloads)
	assert.Equal(t, 40, res.Sent)
	assert.Equal(t, 40, res.Retried)
	assert.Equal(t, 41, f.api.BatchCalls)
	assert.LessOrEqual(t, counter.peak.Load(), int32(3))
	assert.GreaterOrEqual(t, counter.peak.Load(), int32(2))
}

func TestUploadCancelledWhileRateLimited(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	f := newFixtureWith(t, retry.DefaultPolicy(), limiter, Options{BatchSize: 1, MaxInFlight: 1}, nil)
	payloads := f.payloads(t, models.ChannelOnline, "A", "B", "C")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	res := f.exporter.Upload(ctx, models.ChannelOnline, payloads)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, 1, f.api.BatchCalls)
	assert.Equal(t, models.SyncStatusSynced, f.entry(t, 1, "A").Status)
	assert.Equal(t, models.SyncStatusPending, f.entry(t, 2, "B").Status)
	assert.Equal(t, models.SyncStatusPending, f.entry(t, 3, "C").Status)
}

func TestUploadCancelledDuringBackoffLeavesItemPending(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second, MaxElapsed: time.Minute}
	f := newFixtureWith(t, policy, nil, Options{BatchSize: 10, MaxInFlight: 2}, nil)
	payloads := f.payloads(t, models.ChannelOnline, "A", "B")
	f.api.FailItem("A", transient)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res := f.exporter.Upload(ctx, models.ChannelOnline, payloads)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 0, res.Errored)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, res.Failures)

	e := f.entry(t, 1, "A")
	assert.Equal(t, models.SyncStatusPending, e.Status)
	assert.Equal(t, 0, e.ErrorCount)
	assert.Nil(t, e.LastError)
}

func TestUploadCancelledWhileRetryRateLimited(t *testing.T) {
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	f := newFixtureWith(t, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxElapsed: time.Minute},
		limiter, Options{BatchSize: 10, MaxInFlight: 1}, nil)
	payloads := f.payloads(t, models.ChannelLocal, "A")
	f.api.FailItem("A", transient)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res := f.exporter.Upload(ctx, models.ChannelLocal, payloads)
	assert.Equal(t, 0, res.Errored)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, f.api.BatchCalls)

	e := f.entry(t, 1, "A")
	assert.Equal(t, models.SyncStatusPending, e.Status)
	assert.Equal(t, 0, e.ErrorCount)
}
