package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/models"

	"gorm.io/gorm"
)

type Filter struct {
	Channel models.Channel
	Status  models.SyncStatus
	SKU     string
	Page    int
	Limit   int
}

func (f Filter) offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// List returns one page of entries matching f and the total match count.
func (s *GormStore) List(ctx context.Context, f Filter) ([]models.TrackingEntry, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.TrackingEntry{})
	if f.Channel != "" {
		query = query.Where("channel = ?", f.Channel)
	}
	if f.Status != "" {
		query = query.Where("sync_status = ?", f.Status)
	}
	if f.SKU != "" {
		query = query.Where("sku = ?", f.SKU)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count tracking entries: %w", err)
	}

	if f.Limit < 1 {
		f.Limit = 20
	}
	var entries []models.TrackingEntry
	if err := query.Order("updated_at DESC").Offset(f.offset()).Limit(f.Limit).Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list tracking entries: %w", err)
	}
	return entries, total, nil
}

// StatusCount is one row of the status report.
type StatusCount struct {
	Channel models.Channel    `json:"channel"`
	Status  models.SyncStatus `json:"sync_status" gorm:"column:sync_status"`
	Count   int64             `json:"count"`
	// Errors sums error_count over the group.
	Errors int64 `json:"errors"`
}

func (s *GormStore) Summary(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := s.db.WithContext(ctx).
		Model(&models.TrackingEntry{}).
		Select("channel, sync_status, COUNT(*) AS count, COALESCE(SUM(error_count), 0) AS errors").
		Group("channel, sync_status").
		Order("channel, sync_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize tracking entries: %w", err)
	}
	return rows, nil
}

// SaveRun inserts or updates a run record.
func (s *GormStore) SaveRun(ctx context.Context, run *models.SyncRun) error {
	if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to save sync run: %w", err)
	}
	return nil
}

// LastSuccessfulRun returns the start of the latest run that did not fail,
// or nil when there is none.
func (s *GormStore) LastSuccessfulRun(ctx context.Context) (*time.Time, error) {
	var run models.SyncRun
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.SyncRunStatus{models.SyncRunStatusCompleted, models.SyncRunStatusPartial}).
		Order("started_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run marker: %w", err)
	}
	return &run.StartedAt, nil
}

func (s *GormStore) ListRuns(ctx context.Context, page, limit int) ([]models.SyncRun, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.SyncRun{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}
	f := Filter{Page: page, Limit: limit}
	if f.Limit < 1 {
		f.Limit = 20
	}
	var runs []models.SyncRun
	err := s.db.WithContext(ctx).Order("started_at DESC").Offset(f.offset()).Limit(f.Limit).Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, total, nil
}

func (s *GormStore) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}
