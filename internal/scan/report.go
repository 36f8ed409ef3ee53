package scan

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/eargollo/hashscan/internal/hasher"
	"github.com/eargollo/hashscan/internal/media"
)

// FileRecord is the outcome for one file that was not a cache hit.
// Digests are set only when hashing succeeded; IsError excludes them.
type FileRecord struct {
	Path        string         `json:"path"`
	Size        int64          `json:"size"`
	Kind        media.FileType `json:"kind"`
	Fingerprint digest.Digest  `json:"fingerprint,omitempty"`
	hasher.Digests
	IsError      bool   `json:"is_error"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Report is the shared result of one scan. Counters are atomic so the
// producer and every consumer can update them, and the HTTP status handler
// can read them, without locks. TotalFiles is only final once the scan
// has returned.
type Report struct {
	TotalFiles   atomic.Int64
	TotalErrors  atomic.Int64
	CacheHits    atomic.Int64
	StaleEntries atomic.Int64
	CacheErrors  atomic.Int64
	DirErrors    atomic.Int64
	BytesHashed  atomic.Int64

	Workers    int
	StartedAt  time.Time
	FinishedAt time.Time

	mu      sync.Mutex
	records []FileRecord
}

// NewReport returns an empty report.
func NewReport() *Report {
	return &Report{}
}

// Append adds rec to the record collection. Safe for concurrent use.
func (r *Report) Append(rec FileRecord) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// Records returns a copy of the records appended so far, in no
// particular order.
func (r *Report) Records() []FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FileRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of records appended so far.
func (r *Report) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Elapsed is the wall-clock duration of the scan, or the time since it
// started when it is still running.
func (r *Report) Elapsed() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary is a point-in-time copy of the report counters.
type Summary struct {
	TotalFiles   int64 `json:"total_files"`
	TotalErrors  int64 `json:"total_errors"`
	CacheHits    int64 `json:"cache_hits"`
	StaleEntries int64 `json:"stale_entries"`
	CacheErrors  int64 `json:"cache_errors"`
	DirErrors    int64 `json:"dir_errors"`
	BytesHashed  int64 `json:"bytes_hashed"`
	Records      int   `json:"records"`
}

// Summary snapshots the counters. It only reads atomics and the record
// count, so it is safe to call while the scan is running.
func (r *Report) Summary() Summary {
	return Summary{
		TotalFiles:   r.TotalFiles.Load(),
		TotalErrors:  r.TotalErrors.Load(),
		CacheHits:    r.CacheHits.Load(),
		StaleEntries: r.StaleEntries.Load(),
		CacheErrors:  r.CacheErrors.Load(),
		DirErrors:    r.DirErrors.Load(),
		BytesHashed:  r.BytesHashed.Load(),
		Records:      r.Len(),
	}
}
