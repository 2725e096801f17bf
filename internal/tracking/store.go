package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/database"
	"catalogsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotTracked is returned by the Mark* operations for an unknown key.
var ErrNotTracked = errors.New("tracking entry not found")

// maxLastError bounds the accumulated error text kept per entry.
const maxLastError = 4000

// Store persists per-product sync state. Every write is atomic per entry.
type Store interface {
	Get(ctx context.Context, productID int64, sku string) (*models.TrackingEntry, error)
	Upsert(ctx context.Context, entry *models.TrackingEntry) error
	MarkSynced(ctx context.Context, productID int64, sku, externalID string, sentAt time.Time) error
	MarkError(ctx context.Context, productID int64, sku, message string) error
	MarkDeleted(ctx context.Context, productID int64, sku string) error
	ListTracked(ctx context.Context, channel models.Channel) ([]models.TrackingEntry, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Get returns nil, nil when the key has never been tracked.
func (s *GormStore) Get(ctx context.Context, productID int64, sku string) (*models.TrackingEntry, error) {
	var entry models.TrackingEntry
	err := s.db.WithContext(ctx).
		Where("product_id = ? AND sku = ?", productID, sku).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking entry %d/%s: %w", productID, sku, err)
	}
	return &entry, nil
}

// Upsert inserts the entry or overwrites the mutable columns of the existing
// row for (product_id, sku). The row id and created_at are kept.
func (s *GormStore) Upsert(ctx context.Context, entry *models.TrackingEntry) error {
	if !entry.Channel.Valid() {
		return fmt.Errorf("invalid channel %q for %d/%s", entry.Channel, entry.ProductID, entry.SKU)
	}
	if entry.Status == "" {
		entry.Status = models.SyncStatusPending
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "product_id"}, {Name: "sku"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"channel", "last_sent_at", "last_modified_at", "sync_status",
				"external_id", "error_count", "last_error", "updated_at",
			}),
		}).Create(entry).Error
		if err != nil {
			return err
		}
		var stored models.TrackingEntry
		if err := tx.Where("product_id = ? AND sku = ?", entry.ProductID, entry.SKU).First(&stored).Error; err != nil {
			return err
		}
		*entry = stored
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert tracking entry %d/%s: %w", entry.ProductID, entry.SKU, err)
	}
	return nil
}

// MarkSynced records a successful send and clears the error state.
func (s *GormStore) MarkSynced(ctx context.Context, productID int64, sku, externalID string, sentAt time.Time) error {
	return s.update(ctx, productID, sku, map[string]interface{}{
		"sync_status":  models.SyncStatusSynced,
		"external_id":  externalID,
		"last_sent_at": sentAt,
		"error_count":  0,
		"last_error":   nil,
		"updated_at":   time.Now(),
	})
}

// MarkError increments error_count by one and appends message to last_error.
func (s *GormStore) MarkError(ctx context.Context, productID int64, sku, message string) error {
	err := database.WithTxRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		var entry models.TrackingEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ? AND sku = ?", productID, sku).
			First(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotTracked
		}
		if err != nil {
			return err
		}

		return tx.Model(&models.TrackingEntry{}).
			Where("id = ?", entry.ID).
			Updates(map[string]interface{}{
				"sync_status": models.SyncStatusError,
				"error_count": entry.ErrorCount + 1,
				"last_error":  appendError(entry.LastError, message),
				"updated_at":  time.Now(),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to mark %d/%s as error: %w", productID, sku, err)
	}
	return nil
}

// MarkDeleted retires the entry. Rows are never removed.
func (s *GormStore) MarkDeleted(ctx context.Context, productID int64, sku string) error {
	return s.update(ctx, productID, sku, map[string]interface{}{
		"sync_status": models.SyncStatusDeleted,
		"updated_at":  time.Now(),
	})
}

func (s *GormStore) ListTracked(ctx context.Context, channel models.Channel) ([]models.TrackingEntry, error) {
	var entries []models.TrackingEntry
	err := s.db.WithContext(ctx).
		Where("channel = ?", channel).
		Order("product_id, sku").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s tracking entries: %w", channel, err)
	}
	return entries, nil
}

func (s *GormStore) update(ctx context.Context, productID int64, sku string, values map[string]interface{}) error {
	res := s.db.WithContext(ctx).
		Model(&models.TrackingEntry{}).
		Where("product_id = ? AND sku = ?", productID, sku).
		Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update tracking entry %d/%s: %w", productID, sku, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %d/%s: %w", productID, sku, ErrNotTracked)
	}
	return nil
}

func appendError(prev *string, message string) string {
	out := message
	if prev != nil && *prev != "" {
		out = *prev + "\n" + message
	}
	if len(out) > maxLastError {
		out = out[len(out)-maxLastError:]
	}
	return out
}
