package cleanup

import (
	"context"
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
)

func newReconciler(t *testing.T, attempts int) (*Reconciler, *catalogtest.Fake, *tracking.MemoryStore) {
	t.Helper()
	api := catalogtest.New()
	store := tracking.NewMemoryStore()
	policy := retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, MaxElapsed: time.Second}
	machine := retry.NewMachine(policy, retry.NewRefresher(api.Authenticate))
	return New(api, store, machine, nil, 2, time.Second, logger.Nop()), api, store
}

func track(t *testing.T, store *tracking.MemoryStore, id int64, sku string, externalID string) models.TrackingEntry {
	t.Helper()
	e := &models.TrackingEntry{ProductID: id, SKU: sku, Channel: models.ChannelLocal, Status: models.SyncStatusSynced}
	if externalID != "" {
		e.ExternalID = &externalID
	}
	require.NoError(t, store.Upsert(context.Background(), e))
	return *e
}

func status(t *testing.T, store *tracking.MemoryStore, id int64, sku string) *models.TrackingEntry {
	t.Helper()
	e, err := store.Get(context.Background(), id, sku)
	require.NoError(t, err)
	return e
}

func TestReconcileDeletesAndMarks(t *testing.T) {
	rc, api, store := newReconciler(t, 3)
	b := track(t, store, 2, "B", "local:es:MX:B")
	never := track(t, store, 3, "C", "")

	res := rc.Reconcile(context.Background(), []models.TrackingEntry{b, never})
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 1, res.NeverSent)
	assert.Equal(t, 0, res.Errored)
	assert.Equal(t, []string{"local:es:MX:B"}, api.Deleted)

	assert.Equal(t, models.SyncStatusDeleted, status(t, store, 2, "B").Status)
	assert.Equal(t, models.SyncStatusDeleted, status(t, store, 3, "C").Status)
}

func TestReconcileRetriesThenSucceeds(t *testing.T) {
	rc, api, store := newReconciler(t, 3)
	b := track(t, store, 2, "B", "local:es:MX:B")
	api.FailDelete("local:es:MX:B", catalog.Result{Class: catalog.Retryable, Code: 500, Message: "oops"})

	res := rc.Reconcile(context.Background(), []models.TrackingEntry{b})
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, models.SyncStatusDeleted, status(t, store, 2, "B").Status)
}

func TestReconcileFailureMarksError(t *testing.T) {
	rc, api, store := newReconciler(t, 3)
	b := track(t, store, 2, "B", "local:es:MX:B")
	api.FailDelete("local:es:MX:B", catalog.Result{Class: catalog.NonRetryable, Code: 403, Message: "forbidden"})

	res := rc.Reconcile(context.Background(), []models.TrackingEntry{b})
	assert.Equal(t, 1, res.Errored)

	e := status(t, store, 2, "B")
	assert.Equal(t, models.SyncStatusError, e.Status)
	assert.Equal(t, 1, e.ErrorCount)
	require.NotNil(t, e.LastError)
	assert.Contains(t, *e.LastError, "delete failed")
}

func TestRetireKeepsEntry(t *testing.T) {
	rc, api, store := newReconciler(t, 1)
	b := track(t, store, 2, "B", "online:es:MX:B")

	require.NoError(t, rc.Retire(context.Background(), b))
	assert.Equal(t, []string{"online:es:MX:B"}, api.Deleted)
	assert.Equal(t, models.SyncStatusSynced, status(t, store, 2, "B").Status)
}

func TestReconcileCancelled(t *testing.T) {
	rc, api, store := newReconciler(t, 1)
	b := track(t, store, 2, "B", "local:es:MX:B")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := rc.Reconcile(ctx, []models.TrackingEntry{b})
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, api.Deleted)
	assert.Equal(t, models.SyncStatusSynced, status(t, store, 2, "B").Status)
}

func TestReconcileCancelledDuringBackoff(t *testing.T) {
	api := catalogtest.New()
	store := tracking.NewMemoryStore()
	policy := retry.Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second, MaxElapsed: time.Minute}
	rc := New(api, store, retry.NewMachine(policy, nil), nil, 1, time.Second, logger.Nop())

	b := track(t, store, 2, "B", "local:es:MX:B")
	api.FailDelete("local:es:MX:B", catalog.Result{Class: catalog.Retryable, Code: 503, Message: "unavailable"})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	res := rc.Reconcile(ctx, []models.TrackingEntry{b})
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Errored)

	e := status(t, store, 2, "B")
	assert.Equal(t, models.SyncStatusSynced, e.Status)
	assert.Equal(t, 0, e.ErrorCount)
}

func TestRetireInterrupted(t *testing.T) {
	rc, api, store := newReconciler(t, 1)
	b := track(t, store, 2, "B", "online:es:MX:B")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rc.Retire(ctx, b)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Empty(t, api.Deleted)
	assert.Equal(t, 0, status(t, store, 2, "B").ErrorCount)
}
