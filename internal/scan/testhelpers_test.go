package scan

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	internaldb "github.com/eargollo/hashscan/internal/db"
)

// mustOpenDB opens a temp file SQLite database with the full schema applied.
func mustOpenDB(tb testing.TB) *sql.DB {
	tb.Helper()
	dbPath := filepath.Join(tb.TempDir(), "test.db")
	db, err := internaldb.Open(dbPath)
	if err != nil {
		tb.Fatalf("open test DB: %v", err)
	}
	if err := internaldb.RunMigrations(db); err != nil {
		db.Close()
		tb.Fatalf("run migrations: %v", err)
	}
	tb.Cleanup(func() { db.Close() })
	return db
}

// mustWriteFile writes content to root/rel, creating parent directories.
func mustWriteFile(tb testing.TB, root, rel, content string) string {
	tb.Helper()
	p := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		tb.Fatalf("mkdir %q: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		tb.Fatalf("write %q: %v", p, err)
	}
	return p
}

// createSyntheticTree builds a tree with numFiles files spread over
// subdirectories of 50. Every file has distinct content. Returns numFiles.
func createSyntheticTree(tb testing.TB, root string, numFiles int) int {
	tb.Helper()
	for i := 0; i < numFiles; i++ {
		rel := filepath.Join(fmt.Sprintf("dir%03d", i/50), fmt.Sprintf("sub%d", i%3), fmt.Sprintf("file%04d.bin", i))
		mustWriteFile(tb, root, rel, fmt.Sprintf("%-1024d", i))
	}
	return numFiles
}

// discardLogger drops every record.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureHandler is a slog.Handler that keeps every record for assertions.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.records = append(h.records, r.Clone())
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

// count returns how many records were logged at level with message msg.
func (h *captureHandler) count(level slog.Level, msg string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.Level == level && r.Message == msg {
			n++
		}
	}
	return n
}

// byPath indexes records by path and fails on duplicates.
func byPath(tb testing.TB, recs []FileRecord) map[string]FileRecord {
	tb.Helper()
	out := make(map[string]FileRecord, len(recs))
	for _, r := range recs {
		if _, dup := out[r.Path]; dup {
			tb.Errorf("path %q recorded more than once", r.Path)
		}
		out[r.Path] = r
	}
	return out
}

// skipIfRoot skips tests that rely on permission bits being enforced.
func skipIfRoot(tb testing.TB) {
	tb.Helper()
	if os.Geteuid() == 0 {
		tb.Skip("permission bits are not enforced for root")
	}
}

// newLogger returns a logger writing into h.
func newLogger(h *captureHandler) *slog.Logger {
	return slog.New(h)
}
