package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opencontainers/go-digest"
)

// SQLiteStore is a Store backed by the cache_entries table.
// The schema is created by db.RunMigrations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Lookup returns the entry for fp, or nil when none is stored.
func (s *SQLiteStore) Lookup(ctx context.Context, fp digest.Digest) (*Entry, error) {
	var (
		e        Entry
		fpStr    string
		lastSeen int64
		isError  int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, path, size, md5, sha1, sha256,
		       scan_count, last_seen, is_error, error_message
		FROM cache_entries
		WHERE fingerprint = ?`, fp.String(),
	).Scan(&fpStr, &e.Path, &e.Size, &e.MD5, &e.SHA1, &e.SHA256,
		&e.ScanCount, &lastSeen, &isError, &e.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", fp, err)
	}
	e.Fingerprint = digest.Digest(fpStr)
	e.LastSeen = time.Unix(lastSeen, 0)
	e.IsError = isError != 0
	return &e, nil
}

// Upsert inserts e or replaces the existing row with the same fingerprint.
func (s *SQLiteStore) Upsert(ctx context.Context, e Entry) error {
	isError := 0
	if e.IsError {
		isError = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries
			(fingerprint, path, size, md5, sha1, sha256,
			 scan_count, last_seen, is_error, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			path          = excluded.path,
			size          = excluded.size,
			md5           = excluded.md5,
			sha1          = excluded.sha1,
			sha256        = excluded.sha256,
			scan_count    = excluded.scan_count,
			last_seen     = excluded.last_seen,
			is_error      = excluded.is_error,
			error_message = excluded.error_message`,
		e.Fingerprint.String(), e.Path, e.Size, e.MD5, e.SHA1, e.SHA256,
		e.ScanCount, e.LastSeen.Unix(), isError, e.ErrorMessage)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", e.Fingerprint, err)
	}
	return nil
}

// Remove deletes the entry for fp. Removing a missing entry is not an error.
func (s *SQLiteStore) Remove(ctx context.Context, fp digest.Digest) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE fingerprint = ?`, fp.String()); err != nil {
		return fmt.Errorf("remove %s: %w", fp, err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}
