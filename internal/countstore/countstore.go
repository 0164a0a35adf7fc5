// Package countstore tracks rule trigger counts over rolling periods.
// Live evaluation uses the hour bucket to enforce per-rule trigger caps.
package countstore

import (
	"context"
	"fmt"
	"time"
)

// Counting periods.
const (
	PeriodTotal = "total"
	PeriodDay   = "day"
	PeriodHour  = "hour"
)

// CountStore records and reads trigger counters.
type CountStore interface {
	// GetCount returns the counter for name/val in the current period bucket.
	GetCount(ctx context.Context, name, val, period string) (int, error)
	// Increment bumps the counter for name/val across all periods.
	Increment(ctx context.Context, name, val string) error
}

// periodBucket derives the storage key for a counter in a period.
func periodBucket(name, val, period string, now time.Time) string {
	switch period {
	case PeriodDay:
		return fmt.Sprintf("%s/%s/%s", name, val, now.UTC().Format(time.DateOnly))
	case PeriodHour:
		return fmt.Sprintf("%s/%s/%s", name, val, now.UTC().Format("2006-01-02T15"))
	default:
		return fmt.Sprintf("%s/%s", name, val)
	}
}
