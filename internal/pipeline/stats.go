package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"catalogsync/internal/models"
)

// Failure is one item that ended the run in error.
type Failure struct {
	ProductID int64
	SKU       string
	Channel   models.Channel
	Kind      Kind
	Message   string
}

// Stats is the explicit result of one run.
type Stats struct {
	RunID       string
	Full        bool
	StartedAt   time.Time
	FinishedAt  time.Time
	PreviousRun *time.Time

	Total      int
	Duplicates int
	Unchanged  int
	ToSync     int
	Valid      int
	Invalid    int
	Errored    int
	Skipped    int

	MissingImages int
	MissingStock  int
	Migrated      int
	// MigrationsDeferred counts channel changes held back because remote
	// deletion was disabled for the run.
	MigrationsDeferred int

	SentOnline      int
	SentLocal       int
	Retried         int
	Reauthenticated int

	ToDelete      int
	Deleted       int
	DeleteErrors  int
	DeleteSkipped int

	InvalidByReason map[string]int
	Failures        []Failure
}

func newStats(runID string, full bool, started time.Time) *Stats {
	return &Stats{
		RunID:           runID,
		Full:            full,
		StartedAt:       started,
		InvalidByReason: make(map[string]int),
	}
}

func (s *Stats) Sent() int {
	return s.SentOnline + s.SentLocal
}

// Partial reports a run that completed with items left in error or unsent.
func (s *Stats) Partial() bool {
	return s.Errored > 0 || s.Skipped > 0 || s.DeleteErrors > 0 || s.DeleteSkipped > 0
}

func (s *Stats) Status() models.SyncRunStatus {
	if s.Partial() {
		return models.SyncRunStatusPartial
	}
	return models.SyncRunStatusCompleted
}

// Report renders the human readable run summary.
func (s *Stats) Report() string {
	var b strings.Builder
	mode := "incremental"
	if s.Full {
		mode = "full"
	}
	fmt.Fprintf(&b, "Sync run %s (%s) %s\n", s.RunID, mode, s.Status())
	fmt.Fprintf(&b, "  duration:          %s\n", s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "  products scanned:  %d (unchanged %d)\n", s.Total, s.Unchanged)
	fmt.Fprintf(&b, "  to sync:           %d (valid %d, invalid %d)\n", s.ToSync, s.Valid, s.Invalid)
	fmt.Fprintf(&b, "  sent online:       %d\n", s.SentOnline)
	fmt.Fprintf(&b, "  sent local:        %d\n", s.SentLocal)
	fmt.Fprintf(&b, "  errors:            %d (retried %d, skipped %d)\n", s.Errored, s.Retried, s.Skipped)
	fmt.Fprintf(&b, "  missing images:    %d\n", s.MissingImages)
	fmt.Fprintf(&b, "  missing stock:     %d\n", s.MissingStock)
	if s.Migrated > 0 || s.MigrationsDeferred > 0 {
		fmt.Fprintf(&b, "  channel changes:   %d (deferred %d)\n", s.Migrated, s.MigrationsDeferred)
	}
	fmt.Fprintf(&b, "  deletions:         %d of %d (errors %d, skipped %d)\n", s.Deleted, s.ToDelete, s.DeleteErrors, s.DeleteSkipped)

	if len(s.InvalidByReason) > 0 {
		reasons := make([]string, 0, len(s.InvalidByReason))
		for r := range s.InvalidByReason {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(&b, "  invalid %-10s %d\n", r+":", s.InvalidByReason[r])
		}
	}
	return b.String()
}

func (s *Stats) record(run *models.SyncRun) {
	finished := s.FinishedAt
	run.Status = s.Status()
	run.FinishedAt = &finished
	run.Total = s.Total
	run.Valid = s.Valid
	run.Invalid = s.Invalid
	run.Errored = s.Errored
	run.Skipped = s.Skipped
	run.SentOnline = s.SentOnline
	run.SentLocal = s.SentLocal
	run.Deleted = s.Deleted
}
