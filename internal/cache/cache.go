// Package cache persists per-fingerprint scan results between runs.
package cache

import (
	"context"
	"time"

	"github.com/opencontainers/go-digest"
)

// Entry is the last known scan result for one content fingerprint.
type Entry struct {
	Fingerprint  digest.Digest `json:"fingerprint"`
	Path         string        `json:"path"`
	Size         int64         `json:"size"`
	MD5          string        `json:"md5"`
	SHA1         string        `json:"sha1"`
	SHA256       string        `json:"sha256"`
	ScanCount    int64         `json:"scan_count"`
	LastSeen     time.Time     `json:"last_seen"`
	IsError      bool          `json:"is_error"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Matches reports whether the entry describes the file at path with size.
func (e *Entry) Matches(path string, size int64) bool {
	return e.Path == path && e.Size == size
}

// Store looks up, inserts and removes entries by fingerprint.
// Lookup returns (nil, nil) when no entry exists.
type Store interface {
	Lookup(ctx context.Context, fp digest.Digest) (*Entry, error)
	Upsert(ctx context.Context, e Entry) error
	Remove(ctx context.Context, fp digest.Digest) error
}
