package tracking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"catalogsync/internal/models"

	"github.com/google/uuid"
)

// MemoryStore is a map backed Store for tests and dry runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[models.Key]models.TrackingEntry
	runs    []models.SyncRun
	issues  []models.Issue
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[models.Key]models.TrackingEntry)}
}

func (m *MemoryStore) Get(_ context.Context, productID int64, sku string) (*models.TrackingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[models.Key{ProductID: productID, SKU: sku}]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *MemoryStore) Upsert(_ context.Context, entry *models.TrackingEntry) error {
	if !entry.Channel.Valid() {
		return fmt.Errorf("invalid channel %q for %d/%s", entry.Channel, entry.ProductID, entry.SKU)
	}
	if entry.Status == "" {
		entry.Status = models.SyncStatusPending
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stored := *entry
	if prev, ok := m.entries[entry.Key()]; ok {
		stored.ID = prev.ID
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.ID = uuid.New().String()
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.entries[entry.Key()] = stored
	*entry = stored
	return nil
}

func (m *MemoryStore) MarkSynced(_ context.Context, productID int64, sku, externalID string, sentAt time.Time) error {
	return m.mutate(productID, sku, func(e *models.TrackingEntry) {
		e.Status = models.SyncStatusSynced
		e.ExternalID = &externalID
		e.LastSentAt = &sentAt
		e.ErrorCount = 0
		e.LastError = nil
	})
}

func (m *MemoryStore) MarkError(_ context.Context, productID int64, sku, message string) error {
	return m.mutate(productID, sku, func(e *models.TrackingEntry) {
		msg := appendError(e.LastError, message)
		e.Status = models.SyncStatusError
		e.ErrorCount++
		e.LastError = &msg
	})
}

func (m *MemoryStore) MarkDeleted(_ context.Context, productID int64, sku string) error {
	return m.mutate(productID, sku, func(e *models.TrackingEntry) {
		e.Status = models.SyncStatusDeleted
	})
}

func (m *MemoryStore) ListTracked(_ context.Context, channel models.Channel) ([]models.TrackingEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.TrackingEntry
	for _, e := range m.entries {
		if e.Channel == channel {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].SKU < out[j].SKU
	})
	return out, nil
}

func (m *MemoryStore) SaveRun(_ context.Context, run *models.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = *run
			return nil
		}
	}
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MemoryStore) LastSuccessfulRun(_ context.Context) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var last *time.Time
	for _, r := range m.runs {
		if r.Status != models.SyncRunStatusCompleted && r.Status != models.SyncRunStatusPartial {
			continue
		}
		if last == nil || r.StartedAt.After(*last) {
			t := r.StartedAt
			last = &t
		}
	}
	return last, nil
}

func (m *MemoryStore) RecordIssue(_ context.Context, issue *models.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if issue.ID == "" {
		issue.ID = uuid.New().String()
	}
	m.issues = append(m.issues, *issue)
	return nil
}

// Entries returns a copy of every entry.
func (m *MemoryStore) Entries() []models.TrackingEntry {
	var out []models.TrackingEntry
	for _, ch := range models.Channels {
		entries, _ := m.ListTracked(context.Background(), ch)
		out = append(out, entries...)
	}
	return out
}

func (m *MemoryStore) Runs() []models.SyncRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.SyncRun(nil), m.runs...)
}

func (m *MemoryStore) Issues() []models.Issue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Issue(nil), m.issues...)
}

func (m *MemoryStore) mutate(productID int64, sku string, fn func(*models.TrackingEntry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := models.Key{ProductID: productID, SKU: sku}
	e, ok := m.entries[key]
	if !ok {
		return fmt.Errorf("update %d/%s: %w", productID, sku, ErrNotTracked)
	}
	fn(&e)
	e.UpdatedAt = time.Now()
	m.entries[key] = e
	return nil
}
