package domain

import (
	"context"
	"fmt"
	"time"
)

// RecordRepository is the port for the per-user glycemic record store. The
// stored order is insertion order; chronological order is derived by readers.
type RecordRepository interface {
	// Load returns the user's entries, or an empty slice when none exist.
	Load(ctx context.Context, userKey string) ([]Entry, error)
	// Append adds entry at the end and persists the full sequence atomically.
	Append(ctx context.Context, userKey string, entry Entry) ([]Entry, error)
	// ReplaceAll overwrites the user's store with entries.
	ReplaceAll(ctx context.Context, userKey string, entries []Entry) error
}

// Selector identifies the entries removed by a delete.
type Selector struct {
	timestamps []time.Time
	rows       []Entry
	pred       func(Entry) bool
}

// ByTimestamp selects the entries recorded at the given timestamps. Applying
// it fails with ErrAmbiguousSelection if a timestamp is shared by several
// entries.
func ByTimestamp(ts ...time.Time) Selector {
	canon := make([]time.Time, len(ts))
	for i, t := range ts {
		canon[i] = CanonicalTime(t)
	}
	return Selector{timestamps: canon}
}

// ByRow selects entries by full-row equality. Each given row removes one
// stored occurrence, so selecting one of two identical rows keeps the other.
func ByRow(rows ...Entry) Selector {
	canon := make([]Entry, len(rows))
	for i, r := range rows {
		canon[i] = r.Canonical()
	}
	return Selector{rows: canon}
}

// Where selects every entry matching pred.
func Where(pred func(Entry) bool) Selector {
	return Selector{pred: pred}
}

// Apply splits entries into the kept sequence and the number removed. Kept
// entries retain their stored order.
func (s Selector) Apply(entries []Entry) ([]Entry, int, error) {
	drop := make([]bool, len(entries))

	for _, ts := range s.timestamps {
		hit := -1
		for i, e := range entries {
			if !e.Timestamp.Equal(ts) {
				continue
			}
			if hit >= 0 {
				return nil, 0, fmt.Errorf("%w: %s", ErrAmbiguousSelection, ts.Format(TimestampLayout))
			}
			hit = i
		}
		if hit >= 0 {
			drop[hit] = true
		}
	}

	for _, row := range s.rows {
		for i, e := range entries {
			if !drop[i] && e.Equal(row) {
				drop[i] = true
				break
			}
		}
	}

	if s.pred != nil {
		for i, e := range entries {
			if s.pred(e) {
				drop[i] = true
			}
		}
	}

	kept := make([]Entry, 0, len(entries))
	removed := 0
	for i, e := range entries {
		if drop[i] {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	return kept, removed, nil
}

// Contains reports whether entries holds a row equal to e.
func Contains(entries []Entry, e Entry) bool {
	for _, x := range entries {
		if x.Equal(e) {
			return true
		}
	}
	return false
}
