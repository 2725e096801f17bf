package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Issue is a problem found while building a product payload during a run.
type Issue struct {
	ID          string        `json:"id" gorm:"primaryKey;size:36"`
	RunID       string        `json:"run_id" gorm:"size:36;index"`
	ProductID   int64         `json:"product_id" gorm:"not null;index"`
	SKU         string        `json:"sku" gorm:"size:191"`
	Channel     Channel       `json:"channel" gorm:"not null;size:16"`
	Code        string        `json:"code" gorm:"not null;size:64"`
	Field       string        `json:"field" gorm:"size:64"`
	Severity    IssueSeverity `json:"severity" gorm:"not null;size:16"`
	Explanation string        `json:"explanation" gorm:"not null;type:text"`
	IsResolved  bool          `json:"is_resolved" gorm:"default:false"`
	ResolvedAt  *time.Time    `json:"resolved_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type IssueSeverity string

const (
	IssueSeverityLow      IssueSeverity = "LOW"
	IssueSeverityMedium   IssueSeverity = "MEDIUM"
	IssueSeverityHigh     IssueSeverity = "HIGH"
	IssueSeverityCritical IssueSeverity = "CRITICAL"
)

func (i *Issue) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	return nil
}
