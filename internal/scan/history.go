package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Scan statuses stored in scan_history.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// HistoryEntry is one row of scan_history.
type HistoryEntry struct {
	ID          string     `json:"id"`
	Root        string     `json:"root"`
	TriggeredBy string     `json:"triggered_by"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	DurationMs  *int64     `json:"duration_ms"`
	Workers     int        `json:"workers"`
	TotalFiles  int64      `json:"total_files"`
	TotalErrors int64      `json:"total_errors"`
	CacheHits   int64      `json:"cache_hits"`
	BytesHashed int64      `json:"bytes_hashed"`
}

// Execute runs a scan of root and records it in scan_history. The row is
// created before the scan starts and finalised with its status and totals
// afterwards, even when the scan is cancelled.
func (s *Scanner) Execute(ctx context.Context, db *sql.DB, root, triggeredBy string, report *Report) (string, error) {
	if err := ValidateRoot(root); err != nil {
		return "", err
	}
	startedAt := time.Now()
	id, err := insertScanRecord(db, root, triggeredBy, startedAt)
	if err != nil {
		return "", fmt.Errorf("create scan record: %w", err)
	}
	return id, s.execute(ctx, db, id, root, report)
}

// execute runs the scan for an already-created history row.
func (s *Scanner) execute(ctx context.Context, db *sql.DB, id, root string, report *Report) error {
	s.log.Info("scan started", "id", id, "root", root, "workers", s.workers)

	runErr := s.Scan(ctx, root, report)

	status := StatusCompleted
	if ctx.Err() != nil {
		status = StatusCancelled
	} else if runErr != nil {
		status = StatusFailed
	}

	if err := finaliseScanRecord(db, id, status, report); err != nil {
		s.log.Error("finalise scan record", "id", id, "error", err)
	}

	s.log.Info("scan finished", "id", id, "status", status,
		"total_files", report.TotalFiles.Load(),
		"total_errors", report.TotalErrors.Load(),
		"cache_hits", report.CacheHits.Load())

	return runErr
}

func insertScanRecord(db *sql.DB, root, triggeredBy string, startedAt time.Time) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO scan_history (id, root, triggered_by, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, root, triggeredBy, StatusRunning, startedAt.Unix())
	if err != nil {
		return "", err
	}
	return id, nil
}

func finaliseScanRecord(db *sql.DB, id, status string, r *Report) error {
	finishedAt := r.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}
	// Background so the row is closed out even when the scan was cancelled.
	_, err := db.ExecContext(context.Background(), `
		UPDATE scan_history
		SET status       = ?,
		    finished_at  = ?,
		    duration_ms  = ?,
		    workers      = ?,
		    total_files  = ?,
		    total_errors = ?,
		    cache_hits   = ?,
		    bytes_hashed = ?
		WHERE id = ?`,
		status, finishedAt.Unix(), r.Elapsed().Milliseconds(), r.Workers,
		r.TotalFiles.Load(), r.TotalErrors.Load(),
		r.CacheHits.Load(), r.BytesHashed.Load(),
		id)
	return err
}

// ListHistory returns scan_history rows newest first.
func ListHistory(ctx context.Context, db *sql.DB, limit, offset int) ([]HistoryEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, root, triggered_by, status, started_at, finished_at,
		       duration_ms, workers, total_files, total_errors,
		       cache_hits, bytes_hashed
		FROM scan_history
		ORDER BY started_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer rows.Close()

	var items []HistoryEntry
	for rows.Next() {
		it, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// LastCompleted returns the most recent completed scan, or nil if none.
func LastCompleted(ctx context.Context, db *sql.DB) (*HistoryEntry, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, root, triggered_by, status, started_at, finished_at,
		       duration_ms, workers, total_files, total_errors,
		       cache_hits, bytes_hashed
		FROM scan_history
		WHERE status = ?
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1`, StatusCompleted)
	it, err := scanHistoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryRow(row rowScanner) (HistoryEntry, error) {
	var (
		it         HistoryEntry
		startedAt  int64
		finishedAt sql.NullInt64
		durationMs sql.NullInt64
	)
	if err := row.Scan(&it.ID, &it.Root, &it.TriggeredBy, &it.Status,
		&startedAt, &finishedAt, &durationMs, &it.Workers,
		&it.TotalFiles, &it.TotalErrors, &it.CacheHits, &it.BytesHashed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return it, err
		}
		return it, fmt.Errorf("scan history row: %w", err)
	}
	it.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		it.FinishedAt = &t
	}
	if durationMs.Valid {
		d := durationMs.Int64
		it.DurationMs = &d
	}
	return it, nil
}

// MarkStaleScansFailed marks any scan_history rows still in 'running' state
// as 'failed'. Call once at startup in case a previous process crashed
// mid-scan.
func MarkStaleScansFailed(db *sql.DB) error {
	res, err := db.Exec(`
		UPDATE scan_history
		SET status = ?, finished_at = ?
		WHERE status = ?`,
		StatusFailed, time.Now().Unix(), StatusRunning)
	if err != nil {
		return fmt.Errorf("mark stale scans failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale scans as failed", "count", n)
	}
	return nil
}
