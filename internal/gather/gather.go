// Package gather defines the contract shared by archive gatherers and the
// types they exchange with the rest of klinevault.
package gather

import (
	"context"
	"errors"
	"time"

	"klinevault/internal/domain"
)

var (
	// ErrNotFound is returned when the archive source answers with a non-2xx
	// status. The day is skipped, never retried.
	ErrNotFound = errors.New("archive not found")

	// ErrEmptyFile is returned when an extracted entry is missing or has zero
	// length after the bounded retry.
	ErrEmptyFile = errors.New("extracted file missing or empty")
)

// Gatherer is the interface for archive gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Gather fetches every request and returns the parsed tables grouped by
	// stream kind. Per-archive failures degrade to missing tables; only
	// setup failures and cancellation are returned as errors.
	Gather(ctx context.Context, reqs []domain.ArchiveRequest) (Results, error)
}

// Results holds parsed tables per stream kind, in completion order.
type Results map[domain.StreamKind][]*domain.Table

// Rows returns the total row count of kind.
func (r Results) Rows(kind domain.StreamKind) int {
	n := 0
	for _, t := range r[kind] {
		n += t.Len()
	}
	return n
}

// DateRange is an inclusive range of UTC calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days in the range, or 0 if End is
// before Start.
func (d DateRange) Days() int {
	start := truncateDay(d.Start)
	end := truncateDay(d.End)
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start).Hours()/24) + 1
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
