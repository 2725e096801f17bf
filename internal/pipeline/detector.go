package pipeline

import (
	"context"
	"fmt"
	"sort"

	"catalogsync/internal/models"
)

// ProductSource streams source products.
type ProductSource interface {
	Products(ctx context.Context, yield func(models.Product) error) error
}

type ChangeReason string

const (
	ReasonNew        ChangeReason = "new"
	ReasonModified   ChangeReason = "modified"
	ReasonRetryError ChangeReason = "retry_error"
	ReasonPending    ChangeReason = "pending"
	ReasonReappeared ChangeReason = "reappeared"
	ReasonMigrated   ChangeReason = "migrated"
	ReasonFull       ChangeReason = "full"
)

// Candidate is a product selected for upload.
type Candidate struct {
	Product models.Product
	Channel models.Channel
	// Entry is the tracking row before this run, nil for new products.
	Entry  *models.TrackingEntry
	Reason ChangeReason
}

// ChangeSet is the run-scoped result of change detection.
type ChangeSet struct {
	ToSync     []Candidate
	ToDelete   []models.TrackingEntry
	Seen       int
	Unchanged  int
	Duplicates int
}

// Classify routes products hidden from the public catalog to the local
// channel and everything else online.
func Classify(p models.Product) models.Channel {
	if p.LocalOnly {
		return models.ChannelLocal
	}
	return models.ChannelOnline
}

// Detect compares one pass over the source with the tracking snapshot.
func Detect(ctx context.Context, source ProductSource, snapshot []models.TrackingEntry, full bool) (*ChangeSet, error) {
	tracked := make(map[models.Key]*models.TrackingEntry, len(snapshot))
	for i := range snapshot {
		tracked[snapshot[i].Key()] = &snapshot[i]
	}

	cs := &ChangeSet{}
	seen := make(map[models.Key]struct{})

	err := source.Products(ctx, func(p models.Product) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := p.Key()
		if _, dup := seen[key]; dup {
			cs.Duplicates++
			return nil
		}
		seen[key] = struct{}{}
		cs.Seen++

		channel := Classify(p)
		entry := tracked[key]
		reason, ok := reasonFor(p, channel, entry, full)
		if !ok {
			cs.Unchanged++
			return nil
		}
		cs.ToSync = append(cs.ToSync, Candidate{Product: p, Channel: channel, Entry: entry, Reason: reason})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan source products: %w", err)
	}

	for key, entry := range tracked {
		if _, ok := seen[key]; ok || entry.Status == models.SyncStatusDeleted {
			continue
		}
		cs.ToDelete = append(cs.ToDelete, *entry)
	}
	sort.Slice(cs.ToDelete, func(i, j int) bool {
		a, b := cs.ToDelete[i], cs.ToDelete[j]
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		return a.SKU < b.SKU
	})
	return cs, nil
}

// reasonFor reports why p must be sent, or false when it is up to date.
// Error status and timestamps are independent triggers.
func reasonFor(p models.Product, channel models.Channel, entry *models.TrackingEntry, full bool) (ChangeReason, bool) {
	switch {
	case entry == nil:
		return ReasonNew, true
	case entry.Status == models.SyncStatusDeleted:
		return ReasonReappeared, true
	case entry.Channel != channel:
		return ReasonMigrated, true
	case full:
		return ReasonFull, true
	case entry.Status == models.SyncStatusError:
		return ReasonRetryError, true
	case entry.Status == models.SyncStatusPending:
		return ReasonPending, true
	case entry.LastModifiedAt.Before(p.ModifiedAt):
		return ReasonModified, true
	default:
		return "", false
	}
}
