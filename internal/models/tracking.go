package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackingEntry records the sync state of one (product, sku) pair.
type TrackingEntry struct {
	ID             string     `json:"id" gorm:"primaryKey;size:36"`
	ProductID      int64      `json:"product_id" gorm:"not null;uniqueIndex:idx_tracking_product_sku"`
	SKU            string     `json:"sku" gorm:"not null;size:191;uniqueIndex:idx_tracking_product_sku"`
	Channel        Channel    `json:"channel" gorm:"not null;size:16;index"`
	LastSentAt     *time.Time `json:"last_sent_at"`
	LastModifiedAt time.Time  `json:"last_modified_at"`
	Status         SyncStatus `json:"sync_status" gorm:"column:sync_status;not null;size:16;default:pending;index"`
	ExternalID     *string    `json:"external_id" gorm:"size:255"`
	ErrorCount     int        `json:"error_count" gorm:"not null;default:0"`
	LastError      *string    `json:"last_error" gorm:"type:text"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (TrackingEntry) TableName() string {
	return "product_sync_tracking"
}

func (t TrackingEntry) Key() Key {
	return Key{ProductID: t.ProductID, SKU: t.SKU}
}

type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusError   SyncStatus = "error"
	SyncStatusDeleted SyncStatus = "deleted"
)

func (t *TrackingEntry) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	return nil
}
