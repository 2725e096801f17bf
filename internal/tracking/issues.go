package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalogsync/internal/models"

	"gorm.io/gorm"
)

type IssueFilter struct {
	Channel  models.Channel
	Severity models.IssueSeverity
	Code     string
	// Resolved filters on resolution when non-nil.
	Resolved *bool
	Page     int
	Limit    int
}

func (s *GormStore) RecordIssue(ctx context.Context, issue *models.Issue) error {
	if err := s.db.WithContext(ctx).Create(issue).Error; err != nil {
		return fmt.Errorf("failed to record issue for %d/%s: %w", issue.ProductID, issue.SKU, err)
	}
	return nil
}

func (s *GormStore) ListIssues(ctx context.Context, f IssueFilter) ([]models.Issue, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Issue{})
	if f.Channel != "" {
		query = query.Where("channel = ?", f.Channel)
	}
	if f.Severity != "" {
		query = query.Where("severity = ?", f.Severity)
	}
	if f.Code != "" {
		query = query.Where("code = ?", f.Code)
	}
	if f.Resolved != nil {
		query = query.Where("is_resolved = ?", *f.Resolved)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count issues: %w", err)
	}

	page := Filter{Page: f.Page, Limit: f.Limit}
	if page.Limit < 1 {
		page.Limit = 20
	}
	var issues []models.Issue
	if err := query.Order("created_at DESC").Offset(page.offset()).Limit(page.Limit).Find(&issues).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, total, nil
}

// GetIssue returns nil, nil for an unknown id.
func (s *GormStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	var issue models.Issue
	err := s.db.WithContext(ctx).First(&issue, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", id, err)
	}
	return &issue, nil
}

func (s *GormStore) ResolveIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := s.GetIssue(ctx, id)
	if err != nil || issue == nil {
		return issue, err
	}
	if issue.IsResolved {
		return issue, nil
	}

	now := time.Now()
	issue.IsResolved = true
	issue.ResolvedAt = &now
	if err := s.db.WithContext(ctx).Save(issue).Error; err != nil {
		return nil, fmt.Errorf("failed to resolve issue %s: %w", id, err)
	}
	return issue, nil
}
