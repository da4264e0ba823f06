package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Carb ratio bounds accepted for an entry, in grams per unit.
const (
	MinCarbRatio = 1
	MaxCarbRatio = 20
)

// MaxDose bounds the whole units an entry may record.
const MaxDose = math.MaxInt32

// Entry is a single historical dosing record. Entries are never mutated in
// place; an edit is a delete followed by an append.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Glucose   float64   `json:"glucose"`
	Carbs     float64   `json:"carbs"`
	CarbRatio int       `json:"carbRatio"`
	Dose      int       `json:"dose"`
}

// Validate checks the entry invariants.
func (e Entry) Validate() error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	if err := checkReading("glucose", e.Glucose); err != nil {
		return err
	}
	if err := checkReading("carbs", e.Carbs); err != nil {
		return err
	}
	if e.Dose < 0 || e.Dose > MaxDose {
		return fmt.Errorf("%w: dose must be within [0, %d]", ErrInvalidInput, MaxDose)
	}
	return checkRatio(e.CarbRatio)
}

// CanonicalTime is the form every stored timestamp takes: whole minutes in
// the local zone, which is exactly what the record file can represent.
func CanonicalTime(t time.Time) time.Time {
	return t.Truncate(time.Minute).In(time.Local)
}

// Canonical returns e with its timestamp in canonical form.
func (e Entry) Canonical() Entry {
	e.Timestamp = CanonicalTime(e.Timestamp)
	return e
}

// Equal reports full-row equality: same timestamp and identical values.
func (e Entry) Equal(o Entry) bool {
	return e.Timestamp.Equal(o.Timestamp) &&
		e.Glucose == o.Glucose &&
		e.Carbs == o.Carbs &&
		e.CarbRatio == o.CarbRatio &&
		e.Dose == o.Dose
}

// SortChronological returns a copy of entries ordered by timestamp. Entries
// sharing a timestamp keep their stored order.
func SortChronological(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func checkReading(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidInput, name)
	}
	return nil
}

func checkRatio(ratio int) error {
	if ratio <= 0 {
		return ErrInvalidRatio
	}
	if ratio > MaxCarbRatio {
		return fmt.Errorf("%w: carb ratio must be within [%d, %d]", ErrInvalidInput, MinCarbRatio, MaxCarbRatio)
	}
	return nil
}
