package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncRun is the persisted record of one pipeline run. The StartedAt of the
// latest non-failed run is the run marker.
type SyncRun struct {
	ID           string        `json:"id" gorm:"primaryKey;size:36"`
	Status       SyncRunStatus `json:"status" gorm:"not null;size:16;index"`
	Full         bool          `json:"full"`
	StartedAt    time.Time     `json:"started_at" gorm:"index"`
	FinishedAt   *time.Time    `json:"finished_at"`
	Total        int           `json:"total"`
	Valid        int           `json:"valid"`
	Invalid      int           `json:"invalid"`
	Errored      int           `json:"errored"`
	Skipped      int           `json:"skipped"`
	SentOnline   int           `json:"sent_online"`
	SentLocal    int           `json:"sent_local"`
	Deleted      int           `json:"deleted"`
	ErrorMessage *string       `json:"error_message" gorm:"type:text"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type SyncRunStatus string

const (
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusCompleted SyncRunStatus = "completed"
	SyncRunStatusPartial   SyncRunStatus = "partial"
	SyncRunStatusFailed    SyncRunStatus = "failed"
)

func (r *SyncRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
