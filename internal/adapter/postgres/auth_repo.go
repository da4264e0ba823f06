// Package postgres implements the record, user and session repositories
// using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bolus/internal/domain"
)

const selectUser = "SELECT id, username, password_hash, created_at FROM users"

// rowScanner is satisfied by *sql.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser reads one account row. A missing row yields nil, nil so callers
// can tell "no such account" from a failed query.
func scanUser(row rowScanner) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: users: %w", domain.ErrStoreIO, err)
	}
	return &u, nil
}

// GetByUsername looks an account up by login name. Names compare
// case-insensitively, matching how record partitions are keyed.
func (d *DB) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return scanUser(d.sql.QueryRowContext(ctx, selectUser+" WHERE lower(username) = lower($1)", username))
}

func (d *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(d.sql.QueryRowContext(ctx, selectUser+" WHERE id = $1", id))
}

// Create registers an account. passwordHash is empty for accounts that only
// sign in through SSO or forward auth.
func (d *DB) Create(ctx context.Context, username, passwordHash string) (*domain.User, error) {
	u, err := scanUser(d.sql.QueryRowContext(ctx,
		"INSERT INTO users (username, password_hash, created_at) VALUES ($1, $2, $3) RETURNING id, username, password_hash, created_at",
		username, passwordHash, time.Now(),
	))
	if err == nil && u == nil {
		err = fmt.Errorf("%w: insert returned no row", domain.ErrStoreIO)
	}
	return u, err
}

// Count is used by first-run setup to decide whether an account may be created.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.sql.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: users: %w", domain.ErrStoreIO, err)
	}
	return n, nil
}

// SessionRepo stores login sessions in the sessions table of the same
// database as the records.
type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create stores a session bound to the browser that opened it.
func (r *SessionRepo) Create(ctx context.Context, userID int64, token, userAgent, ip string, expiresAt time.Time) error {
	_, err := r.db.sql.ExecContext(ctx,
		"INSERT INTO sessions (user_id, token, user_agent, ip, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		userID, token, userAgent, ip, expiresAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("%w: sessions: %w", domain.ErrStoreIO, err)
	}
	return nil
}

// GetByToken returns nil, nil for an unknown token. Expiry is checked by the
// auth service, not here.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.sql.QueryRowContext(ctx,
		"SELECT token, user_id, user_agent, ip, expires_at, created_at FROM sessions WHERE token = $1",
		token,
	).Scan(&s.Token, &s.UserID, &s.UserAgent, &s.IP, &s.ExpiresAt, &s.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: sessions: %w", domain.ErrStoreIO, err)
	}
	return &s, nil
}

// Delete ends a session. Deleting an unknown token is not an error.
func (r *SessionRepo) Delete(ctx context.Context, token string) error {
	if _, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE token = $1", token); err != nil {
		return fmt.Errorf("%w: sessions: %w", domain.ErrStoreIO, err)
	}
	return nil
}

// DeleteExpired is run periodically by the server.
func (r *SessionRepo) DeleteExpired(ctx context.Context) error {
	if _, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at < $1", time.Now()); err != nil {
		return fmt.Errorf("%w: sessions: %w", domain.ErrStoreIO, err)
	}
	return nil
}
