package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bolus/internal/domain"
)

var _ domain.RecordRepository = (*DB)(nil)

// Load returns the user's entries in stored order.
func (d *DB) Load(ctx context.Context, userKey string) ([]domain.Entry, error) {
	entries, err := loadEntries(ctx, d.sql, userKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreIO, err)
	}
	return entries, nil
}

// Append inserts entry after the user's last position and returns the full
// sequence as committed.
func (d *DB) Append(ctx context.Context, userKey string, entry domain.Entry) ([]domain.Entry, error) {
	var out []domain.Entry
	err := d.inUserTx(ctx, userKey, func(tx *sql.Tx) error {
		var next int
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(position), -1) + 1 FROM glycemic_entries WHERE user_key=$1;", userKey,
		).Scan(&next); err != nil {
			return err
		}
		if err := insertEntry(ctx, tx, userKey, next, entry); err != nil {
			return err
		}
		var err error
		out, err = loadEntries(ctx, tx, userKey)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReplaceAll deletes the user's rows and inserts entries in one transaction.
func (d *DB) ReplaceAll(ctx context.Context, userKey string, entries []domain.Entry) error {
	return d.inUserTx(ctx, userKey, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM glycemic_entries WHERE user_key=$1;", userKey); err != nil {
			return err
		}
		for i, e := range entries {
			if err := insertEntry(ctx, tx, userKey, i, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// inUserTx runs fn in a transaction holding a per-user advisory lock.
func (d *DB) inUserTx(ctx context.Context, userKey string, fn func(tx *sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreIO, err)
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1));", userKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %w", domain.ErrStoreIO, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %w", domain.ErrStoreIO, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreIO, err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadEntries(ctx context.Context, q querier, userKey string) ([]domain.Entry, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT taken_at, glucose, carbs, carb_ratio, dose FROM glycemic_entries WHERE user_key=$1 ORDER BY position;", userKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	out := []domain.Entry{}
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.Timestamp, &e.Glucose, &e.Carbs, &e.CarbRatio, &e.Dose); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.In(time.Local)
		out = append(out, e)
	}
	return out, rows.Err()
}

func insertEntry(ctx context.Context, tx *sql.Tx, userKey string, position int, e domain.Entry) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO glycemic_entries(user_key, position, taken_at, glucose, carbs, carb_ratio, dose) VALUES($1, $2, $3, $4, $5, $6, $7);",
		userKey, position, e.Timestamp.UTC(), e.Glucose, e.Carbs, e.CarbRatio, e.Dose,
	)
	return err
}
