package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Persisted record columns, in file order.
const (
	ColumnTimestamp = "Data"
	ColumnGlucose   = "Glicemia"
	ColumnCarbs     = "Carbos"
	ColumnCarbRatio = "ICR"
	ColumnDose      = "Dose"

	// legacyColumnDose is the dose header written by older exports.
	legacyColumnDose = "Dose_Total"
)

// TimestampLayout is the day-first layout used in persisted records.
const TimestampLayout = "02/01/2006 15:04"

// Columns is the header row of a persisted record file.
var Columns = []string{ColumnTimestamp, ColumnGlucose, ColumnCarbs, ColumnCarbRatio, ColumnDose}

var timestampLayouts = []string{
	TimestampLayout,
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// RawRow is one unparsed data row from a record file or backup. Fields are
// keyed by column name.
type RawRow struct {
	Line   int
	Fields map[string]string
}

// SkippedRow reports a backup row that was not restored.
type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// HeaderIndex maps a header row to column positions, accepting the legacy
// dose column name. It fails when a required column is missing.
func HeaderIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == legacyColumnDose {
			name = ColumnDose
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}
	var missing []string
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrMalformedBackup, strings.Join(missing, ", "))
	}
	return idx, nil
}

// ParseRow converts a raw row into a validated entry. A blank carbs field is
// read as zero; every other field is required.
func ParseRow(row RawRow) (Entry, error) {
	var e Entry
	var err error

	if e.Timestamp, err = ParseTimestamp(row.Fields[ColumnTimestamp]); err != nil {
		return Entry{}, rowError(row, err)
	}
	if e.Glucose, err = parseNumber(ColumnGlucose, row.Fields[ColumnGlucose], false); err != nil {
		return Entry{}, rowError(row, err)
	}
	if e.Carbs, err = parseNumber(ColumnCarbs, row.Fields[ColumnCarbs], true); err != nil {
		return Entry{}, rowError(row, err)
	}
	if e.CarbRatio, err = parseWhole(ColumnCarbRatio, row.Fields[ColumnCarbRatio]); err != nil {
		return Entry{}, rowError(row, err)
	}
	if e.Dose, err = parseWhole(ColumnDose, row.Fields[ColumnDose]); err != nil {
		return Entry{}, rowError(row, err)
	}
	if err := e.Validate(); err != nil {
		return Entry{}, rowError(row, err)
	}
	return e, nil
}

// FormatRow renders an entry in persisted column order.
func FormatRow(e Entry) []string {
	return []string{
		e.Timestamp.Format(TimestampLayout),
		strconv.FormatFloat(e.Glucose, 'f', -1, 64),
		strconv.FormatFloat(e.Carbs, 'f', -1, 64),
		strconv.Itoa(e.CarbRatio),
		strconv.Itoa(e.Dose),
	}
}

// ParseTimestamp parses a persisted or user-typed timestamp. Values without
// a zone are read in the local zone. The result is in canonical form, so
// seconds are dropped.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", ErrInvalidInput, ColumnTimestamp)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return CanonicalTime(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognised timestamp %q", ErrInvalidInput, s)
}

// ParseReading parses a numeric user input. Blank input is zero only when
// optional is set.
func ParseReading(name, s string, optional bool) (float64, error) {
	return parseNumber(name, s, optional)
}

func parseNumber(name, s string, optional bool) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		if optional {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidInput, name)
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not a number: %q", ErrInvalidInput, name, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: %s must be non-negative", ErrInvalidInput, name)
	}
	return v, nil
}

// parseWhole accepts integral values written as "10" or "10.0".
func parseWhole(name, s string) (int, error) {
	v, err := parseNumber(name, s, false)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %s must be a whole number: %q", ErrInvalidInput, name, s)
	}
	if v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s is out of range: %q", ErrInvalidInput, name, s)
	}
	return int(v), nil
}

func rowError(row RawRow, err error) error {
	return fmt.Errorf("%w: line %d: %w", ErrMalformedBackupRow, row.Line, err)
}
