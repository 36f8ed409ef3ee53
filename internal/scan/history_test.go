package scan

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/eargollo/hashscan/internal/cache"
)

// TestExecuteRecordsCompletedScan verifies a scan_history row is written
// with the final totals.
func TestExecuteRecordsCompletedScan(t *testing.T) {
	db := mustOpenDB(t)
	root := t.TempDir()
	k := createSyntheticTree(t, root, 25)

	s := newTestScanner(cache.NewSQLiteStore(db), 3)
	report := NewReport()
	id, err := s.Execute(context.Background(), db, root, "cli", report)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if id == "" {
		t.Fatal("expected a scan id")
	}

	last, err := LastCompleted(context.Background(), db)
	if err != nil {
		t.Fatalf("LastCompleted: %v", err)
	}
	if last == nil || last.ID != id {
		t.Fatalf("LastCompleted: got %+v, want id %s", last, id)
	}
	if last.Status != StatusCompleted || last.TriggeredBy != "cli" || last.Root != root {
		t.Errorf("unexpected row: %+v", last)
	}
	if last.TotalFiles != int64(k) || last.TotalErrors != 0 || last.Workers != 3 {
		t.Errorf("totals: files=%d errors=%d workers=%d", last.TotalFiles, last.TotalErrors, last.Workers)
	}
	if last.BytesHashed != int64(k*1024) {
		t.Errorf("BytesHashed: got %d, want %d", last.BytesHashed, k*1024)
	}
	if last.FinishedAt == nil || last.DurationMs == nil {
		t.Error("finished_at and duration_ms must be set")
	}
}

// TestExecuteRejectsInvalidRoot verifies no history row is created for a
// root that fails validation.
func TestExecuteRejectsInvalidRoot(t *testing.T) {
	db := mustOpenDB(t)
	s := newTestScanner(cache.NewMemoryStore(), 2)
	_, err := s.Execute(context.Background(), db, filepath.Join(t.TempDir(), "nope"), "cli", NewReport())
	if !errors.Is(err, ErrPathNotFound) {
		t.Fatalf("got %v, want ErrPathNotFound", err)
	}
	items, err := ListHistory(context.Background(), db, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("expected no history rows, got %d", len(items))
	}
}

// TestExecuteCancelledStatus verifies a cancelled scan is recorded as such.
func TestExecuteCancelledStatus(t *testing.T) {
	db := mustOpenDB(t)
	root := t.TempDir()
	createSyntheticTree(t, root, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newTestScanner(cache.NewMemoryStore(), 2)
	id, err := s.Execute(ctx, db, root, "schedule", NewReport())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	items, err := ListHistory(context.Background(), db, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != id || items[0].Status != StatusCancelled {
		t.Errorf("unexpected history: %+v", items)
	}
	if last, _ := LastCompleted(context.Background(), db); last != nil {
		t.Errorf("cancelled scan must not count as completed: %+v", last)
	}
}

// TestListHistoryPagination inserts rows and checks ordering and paging.
func TestListHistoryPagination(t *testing.T) {
	db := mustOpenDB(t)
	base := time.Unix(1700000000, 0)
	var ids []string
	for i := 0; i < 5; i++ {
		id, err := insertScanRecord(db, "/r", "manual", base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	page, err := ListHistory(context.Background(), db, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("page size: got %d, want 2", len(page))
	}
	// Newest first: offset 1 skips ids[4].
	if page[0].ID != ids[3] || page[1].ID != ids[2] {
		t.Errorf("got %s,%s want %s,%s", page[0].ID, page[1].ID, ids[3], ids[2])
	}
	if page[0].FinishedAt != nil {
		t.Error("running scan must have nil finished_at")
	}
}

func TestMarkStaleScansFailed(t *testing.T) {
	db := mustOpenDB(t)
	id, err := insertScanRecord(db, "/r", "manual", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := MarkStaleScansFailed(db); err != nil {
		t.Fatal(err)
	}
	var status string
	if err := db.QueryRow(`SELECT status FROM scan_history WHERE id = ?`, id).Scan(&status); err != nil {
		t.Fatal(err)
	}
	if status != StatusFailed {
		t.Errorf("status: got %q, want %q", status, StatusFailed)
	}
}
