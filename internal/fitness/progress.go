package fitness

import (
	"fmt"
	"slices"
	"time"
)

// DateLayout is the calendar date format used by forms and chart data.
const DateLayout = "2006-01-02"

const (
	minLoggedWeightKg = 30.0
	maxLoggedWeightKg = 200.0
)

// ProgressEntry is a single dated weight measurement.
type ProgressEntry struct {
	Date     time.Time `json:"date"`
	WeightKg float64   `json:"weight_kg"`
}

// ProgressLog is an append-only list of weight measurements. It is not safe
// for concurrent use; the owning session serializes access.
type ProgressLog struct {
	entries []ProgressEntry
}

// ParseLogDate parses a YYYY-MM-DD date; an empty value means today in now's
// location.
func ParseLogDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", value, err)
	}
	return t, nil
}

// Append adds an entry. Entries are kept in submission order; ordering by date
// happens on read.
func (l *ProgressLog) Append(e ProgressEntry) error {
	if e.Date.IsZero() {
		return fmt.Errorf("progress entry needs a date")
	}
	if e.WeightKg < minLoggedWeightKg || e.WeightKg > maxLoggedWeightKg {
		return fmt.Errorf("weight must be between %.0f and %.0f kg, got %.1f", minLoggedWeightKg, maxLoggedWeightKg, e.WeightKg)
	}
	l.entries = append(l.entries, e)
	return nil
}

// Entries returns a copy ordered by date ascending. Entries sharing a date
// keep their submission order.
func (l *ProgressLog) Entries() []ProgressEntry {
	out := slices.Clone(l.entries)
	slices.SortStableFunc(out, func(a, b ProgressEntry) int {
		return a.Date.Compare(b.Date)
	})
	if out == nil {
		out = []ProgressEntry{}
	}
	return out
}

func (l *ProgressLog) Len() int {
	return len(l.entries)
}
