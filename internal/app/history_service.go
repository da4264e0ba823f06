package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"bolus/internal/domain"
	"bolus/internal/metrics"
)

// HistoryService encapsulates the record store use cases: recording,
// listing, deleting and restoring a user's entries. The repository is the
// only copy of the data; nothing is cached here.
type HistoryService struct {
	repo domain.RecordRepository
	log  logrus.FieldLogger
}

// NewHistoryService creates a HistoryService backed by the given repository.
func NewHistoryService(repo domain.RecordRepository, log logrus.FieldLogger) *HistoryService {
	return &HistoryService{repo: repo, log: log}
}

// RestoreReport describes the outcome of a backup restore or import.
type RestoreReport struct {
	Restored int                 `json:"restored"`
	Skipped  []domain.SkippedRow `json:"skipped"`
	Total    int                 `json:"total"`
}

// Record validates entry and appends it to the user's history. The
// timestamp is stored in canonical form, whatever the driver.
func (s *HistoryService) Record(ctx context.Context, userKey string, entry domain.Entry) ([]domain.Entry, error) {
	entry = entry.Canonical()
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	entries, err := s.repo.Append(ctx, userKey, entry)
	metrics.RecordStoreWrite("append", err)
	if err != nil {
		s.log.WithError(err).WithField("user", userKey).Error("append failed")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user": userKey, "count": len(entries)}).Debug("entry appended")
	return entries, nil
}

// RecordOnce appends entry unless the last stored entry already equals it.
// Use it when retrying an append whose outcome is unknown.
func (s *HistoryService) RecordOnce(ctx context.Context, userKey string, entry domain.Entry) ([]domain.Entry, bool, error) {
	entry = entry.Canonical()
	if err := entry.Validate(); err != nil {
		return nil, false, err
	}
	entries, err := s.repo.Load(ctx, userKey)
	if err != nil {
		return nil, false, err
	}
	if n := len(entries); n > 0 && entries[n-1].Equal(entry) {
		return entries, false, nil
	}
	entries, err = s.Record(ctx, userKey, entry)
	return entries, err == nil, err
}

// List returns the user's entries in chronological order.
func (s *HistoryService) List(ctx context.Context, userKey string) ([]domain.Entry, error) {
	entries, err := s.repo.Load(ctx, userKey)
	if err != nil {
		return nil, err
	}
	return domain.SortChronological(entries), nil
}

// Export returns the user's entries in stored order for a backup. Callers
// encode them with csvfile.WriteEntries.
func (s *HistoryService) Export(ctx context.Context, userKey string) ([]domain.Entry, error) {
	return s.repo.Load(ctx, userKey)
}

// Delete removes the entries sel matches and returns how many were removed.
// The store is only rewritten when something matched.
func (s *HistoryService) Delete(ctx context.Context, userKey string, sel domain.Selector) (int, error) {
	entries, err := s.repo.Load(ctx, userKey)
	if err != nil {
		return 0, err
	}
	kept, removed, err := sel.Apply(entries)
	if err != nil {
		return 0, err
	}
	if removed == 0 {
		return 0, nil
	}
	err = s.repo.ReplaceAll(ctx, userKey, kept)
	metrics.RecordStoreWrite("delete", err)
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{"user": userKey, "removed": removed}).Info("entries deleted")
	return removed, nil
}

// MergeBackup restores a backup by overwriting the user's history with the
// valid rows. It is a restore, not an additive import: entries missing from
// the backup are gone afterwards. Malformed rows are skipped and reported.
// When every row is malformed the store is left untouched and
// ErrMalformedBackup is returned; a backup with no rows at all clears it.
func (s *HistoryService) MergeBackup(ctx context.Context, userKey string, rows []domain.RawRow) (RestoreReport, error) {
	valid, report := parseBackup(rows)
	metrics.RecordSkippedRows(len(report.Skipped))
	if len(rows) > 0 && len(valid) == 0 {
		return report, fmt.Errorf("%w: no valid rows", domain.ErrMalformedBackup)
	}
	err := s.repo.ReplaceAll(ctx, userKey, valid)
	metrics.RecordStoreWrite("restore", err)
	if err != nil {
		return report, err
	}
	report.Restored = len(valid)
	s.log.WithFields(logrus.Fields{
		"user":     userKey,
		"restored": report.Restored,
		"skipped":  len(report.Skipped),
	}).Info("backup restored")
	return report, nil
}

// ImportBackup adds the valid backup rows that are not already stored,
// keeping every existing entry. Duplicates within the backup collapse to one.
func (s *HistoryService) ImportBackup(ctx context.Context, userKey string, rows []domain.RawRow) (RestoreReport, error) {
	valid, report := parseBackup(rows)
	metrics.RecordSkippedRows(len(report.Skipped))

	entries, err := s.repo.Load(ctx, userKey)
	if err != nil {
		return report, err
	}
	merged := entries
	for _, e := range valid {
		if domain.Contains(merged, e) {
			continue
		}
		merged = append(merged, e)
		report.Restored++
	}
	if report.Restored == 0 {
		return report, nil
	}
	err = s.repo.ReplaceAll(ctx, userKey, merged)
	metrics.RecordStoreWrite("import", err)
	if err != nil {
		report.Restored = 0
		return report, err
	}
	s.log.WithFields(logrus.Fields{"user": userKey, "imported": report.Restored}).Info("backup imported")
	return report, nil
}

func parseBackup(rows []domain.RawRow) ([]domain.Entry, RestoreReport) {
	report := RestoreReport{Total: len(rows), Skipped: []domain.SkippedRow{}}
	valid := make([]domain.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := domain.ParseRow(row)
		if err != nil {
			report.Skipped = append(report.Skipped, domain.SkippedRow{Line: row.Line, Reason: reason(err)})
			continue
		}
		valid = append(valid, e)
	}
	return valid, report
}

// reason drops the sentinel prefix so the report reads "line 4: ...".
func reason(err error) string {
	msg := err.Error()
	prefix := domain.ErrMalformedBackupRow.Error() + ": "
	if errors.Is(err, domain.ErrMalformedBackupRow) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
