package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"catalogsync/internal/config"
	"catalogsync/internal/database"
	"catalogsync/internal/events"
	"catalogsync/internal/logger"
	"catalogsync/internal/models"
	"catalogsync/internal/tracking"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	handler   http.Handler
	store     *tracking.GormStore
	publisher *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{Env: "test", CORSOrigins: "https://admin.example.com"}
	publisher := &events.Recorder{}
	srv := New(cfg, logger.Nop(), db, publisher)
	return &fixture{handler: srv.Handler(), store: tracking.NewGormStore(db.DB), publisher: publisher}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	modified := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, e := range []models.TrackingEntry{
		{ProductID: 1, SKU: "A", Channel: models.ChannelOnline, LastModifiedAt: modified},
		{ProductID: 2, SKU: "B", Channel: models.ChannelLocal, LastModifiedAt: modified},
		{ProductID: 3, SKU: "C", Channel: models.ChannelOnline, LastModifiedAt: modified},
	} {
		entry := e
		require.NoError(t, f.store.Upsert(ctx, &entry))
	}
	require.NoError(t, f.store.MarkSynced(ctx, 1, "A", "online:es:MX:A", modified))
	require.NoError(t, f.store.MarkError(ctx, 3, "C", "rejected"))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec, body := f.do(t, http.MethodGet, "/api/v1/products?channel=online", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 2)
	assert.EqualValues(t, 2, body["pagination"].(map[string]interface{})["total"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/products?status=error", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].([]interface{})
	require.Len(t, data, 1)
	assert.Equal(t, "C", data[0].(map[string]interface{})["sku"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/products?channel=store", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetProduct(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec, body := f.do(t, http.MethodGet, "/api/v1/products/1/A", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "online:es:MX:A", data["external_id"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/products/9/Z", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/products/abc/A", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChannelSummary(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	rec, body := f.do(t, http.MethodGet, "/api/v1/channels/online", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.EqualValues(t, 2, data["total"])
	assert.EqualValues(t, 1, data["errors"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 2)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/channels/store", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssues(t *testing.T) {
	f := newFixture(t)
	issue := &models.Issue{ProductID: 3, SKU: "C", Channel: models.ChannelOnline, Code: "non_positive", Field: "price", Severity: models.IssueSeverityHigh, Explanation: "price must be greater than 0"}
	require.NoError(t, f.store.RecordIssue(context.Background(), issue))

	rec, body := f.do(t, http.MethodGet, "/api/v1/issues?resolved=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 1)

	rec, body = f.do(t, http.MethodPost, "/api/v1/issues/"+issue.ID+"/resolve", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["data"].(map[string]interface{})["is_resolved"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/issues?resolved=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, body["data"])

	rec, _ = f.do(t, http.MethodGet, "/api/v1/issues/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/v1/issues?resolved=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuns(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/api/v1/runs/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	started := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	older := &models.SyncRun{ID: "run-1", Status: models.SyncRunStatusCompleted, StartedAt: started}
	newer := &models.SyncRun{ID: "run-2", Status: models.SyncRunStatusPartial, StartedAt: started.Add(time.Hour)}
	require.NoError(t, f.store.SaveRun(context.Background(), older))
	require.NoError(t, f.store.SaveRun(context.Background(), newer))

	rec, body := f.do(t, http.MethodGet, "/api/v1/runs/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-2", body["data"].(map[string]interface{})["id"])

	rec, body = f.do(t, http.MethodGet, "/api/v1/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["data"], 2)

	rec, body = f.do(t, http.MethodGet, "/api/v1/runs/run-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["data"].(map[string]interface{})["status"])
}

func TestRequestSync(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/v1/sync", []byte(`{"full": true, "batch_size": 250}`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	evs := f.publisher.Events()
	require.Len(t, evs, 2)
	req, err := evs[0].Request()
	require.NoError(t, err)
	assert.Equal(t, events.SyncRequest{Full: true, BatchSize: 250}, req)
	req, err = evs[1].Request()
	require.NoError(t, err)
	assert.Equal(t, events.SyncRequest{}, req)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/sync", []byte(`{"batch_size": 5000}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodPost, "/api/v1/sync", []byte(`{"batch_size": -1}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, f.publisher.Events(), 2)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://admin.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
