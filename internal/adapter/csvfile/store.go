// Package csvfile implements the record store as one CSV file per user.
package csvfile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"bolus/internal/domain"
)

// Store keeps each user's entries in <root>/<user>.csv. Every mutation
// rewrites the whole file through a temp file and a rename, so readers see
// either the old or the new file and never a partial one.
type Store struct {
	root string
	mu   sync.Mutex
}

var _ domain.RecordRepository = (*Store)(nil)

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreIO, err)
	}
	return &Store{root: dir}, nil
}

// Path returns the file backing userKey.
func (s *Store) Path(userKey string) (string, error) {
	if strings.TrimSpace(userKey) == "" {
		return "", fmt.Errorf("%w: empty user key", domain.ErrInvalidInput)
	}
	return filepath.Join(s.root, url.PathEscape(userKey)+".csv"), nil
}

// Load reads the user's entries in stored order.
func (s *Store) Load(ctx context.Context, userKey string) ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(userKey)
}

// Append adds entry at the end of the user's file.
func (s *Store) Append(ctx context.Context, userKey string, entry domain.Entry) ([]domain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(userKey)
	if err != nil {
		return nil, err
	}
	entries = append(entries, entry)
	if err := s.write(userKey, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReplaceAll overwrites the user's file with entries.
func (s *Store) ReplaceAll(ctx context.Context, userKey string, entries []domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(userKey, entries)
}

func (s *Store) load(userKey string) ([]domain.Entry, error) {
	path, err := s.Path(userKey)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreIO, err)
	}
	defer f.Close() //nolint:errcheck

	entries, err := ReadEntries(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrStoreIO, filepath.Base(path), err)
	}
	return entries, nil
}

func (s *Store) write(userKey string, entries []domain.Entry) error {
	path, err := s.Path(userKey)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := WriteEntries(&buf, entries); err != nil {
		return fmt.Errorf("%w: encode: %w", domain.ErrStoreIO, err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreIO, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the target directory, syncs
// it, and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
