package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned when a scan is started while one is in progress.
var ErrAlreadyRunning = errors.New("a scan is already in progress")

// ErrNoActiveScan is returned when cancel is called with no scan running.
var ErrNoActiveScan = errors.New("no scan is currently running")

// ErrShuttingDown is returned by Start after Shutdown has been called.
var ErrShuttingDown = errors.New("scan manager is shutting down")

// ActiveScan holds live information about the running scan.
type ActiveScan struct {
	ID          string
	Root        string
	StartedAt   time.Time
	TriggeredBy string
	Report      *Report
}

// Manager enforces a single-active-scan invariant and exposes start/cancel.
// It is safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	db      *sql.DB
	scanner *Scanner
	root    string

	active   *ActiveScan
	cancelFn context.CancelFunc
	closed   bool
	wg       sync.WaitGroup
}

// NewManager creates a Manager that scans root with scanner and records
// every run in db.
func NewManager(db *sql.DB, scanner *Scanner, root string) *Manager {
	return &Manager{db: db, scanner: scanner, root: root}
}

// Root returns the directory scanned by Start.
func (m *Manager) Root() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

// Start launches an asynchronous scan. Returns an ActiveScan snapshot or
// ErrAlreadyRunning if a scan is already in progress. Root validation
// errors are returned synchronously.
func (m *Manager) Start(parentCtx context.Context, triggeredBy string) (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrShuttingDown
	}
	if m.active != nil {
		return nil, ErrAlreadyRunning
	}
	if err := ValidateRoot(m.root); err != nil {
		return nil, err
	}

	// Create the scan_history record now so the ID is available immediately
	// to the caller, before the goroutine begins executing.
	startedAt := time.Now()
	id, err := insertScanRecord(m.db, m.root, triggeredBy, startedAt)
	if err != nil {
		return nil, fmt.Errorf("create scan record: %w", err)
	}

	report := NewReport()
	scanCtx, cancel := context.WithCancel(parentCtx)

	active := &ActiveScan{
		ID:          id,
		Root:        m.root,
		StartedAt:   startedAt,
		TriggeredBy: triggeredBy,
		Report:      report,
	}
	m.active = active
	m.cancelFn = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		if err := m.scanner.execute(scanCtx, m.db, id, active.Root, report); err != nil && !errors.Is(err, context.Canceled) {
			m.scanner.log.Error("scan run error", "id", id, "error", err)
		}

		m.mu.Lock()
		m.active = nil
		m.cancelFn = nil
		m.mu.Unlock()
	}()

	snap := *active
	return &snap, nil
}

// Cancel stops the currently running scan. Returns ErrNoActiveScan if idle.
func (m *Manager) Cancel() (*ActiveScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return nil, ErrNoActiveScan
	}

	snap := *m.active
	m.cancelFn()
	return &snap, nil
}

// ActiveScan returns a snapshot of the running scan, or nil when idle.
// The Report pointer is shared with the running scan.
func (m *Manager) ActiveScan() *ActiveScan {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	snap := *m.active
	return &snap
}

// Shutdown refuses further Start calls, cancels the running scan if any and
// waits for it to finish. It is safe to call more than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	if m.cancelFn != nil {
		m.cancelFn()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Wait blocks until every scan started by this Manager has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
