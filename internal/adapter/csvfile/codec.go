package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"bolus/internal/domain"
)

// ReadRows reads a record file or backup into raw rows keyed by column name.
// Only the header is checked here; each row is validated by domain.ParseRow.
// An empty input yields no rows.
func ReadRows(r io.Reader) ([]domain.RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []domain.RawRow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", domain.ErrMalformedBackup, err)
	}
	idx, err := domain.HeaderIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []domain.RawRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				// Keep the line so it is reported as skipped.
				rows = append(rows, domain.RawRow{Line: pe.StartLine, Fields: map[string]string{}})
				continue
			}
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if isBlank(rec) {
			continue
		}
		fields := make(map[string]string, len(domain.Columns))
		for _, c := range domain.Columns {
			if i := idx[c]; i < len(rec) {
				fields[c] = rec[i]
			}
		}
		rows = append(rows, domain.RawRow{Line: line, Fields: fields})
	}
	return rows, nil
}

// ReadEntries reads a record file, failing on the first malformed row.
func ReadEntries(r io.Reader) ([]domain.Entry, error) {
	rows, err := ReadRows(r)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := domain.ParseRow(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteEntries writes the header row followed by one row per entry.
func WriteEntries(w io.Writer, entries []domain.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.Columns); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write(domain.FormatRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if f != "" {
			return false
		}
	}
	return true
}
