package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eargollo/hashscan/internal/cache"
	"github.com/eargollo/hashscan/internal/hasher"
)

var (
	// ErrPathNotFound is returned when the scan root does not exist.
	ErrPathNotFound = errors.New("path not found")
	// ErrPathInvalid is returned when the scan root is not a directory.
	ErrPathInvalid = errors.New("path is not a directory")
	// ErrFileChanged is recorded when a file's size changes while it is
	// being hashed.
	ErrFileChanged = errors.New("file changed during hashing")
)

// Options tunes a Scanner. The zero value is usable.
type Options struct {
	// Workers is the number of hashing consumers. Zero or negative means
	// max(runtime.NumCPU(), 2).
	Workers int
	// Logger receives skip notices, directory warnings and per-file errors.
	// Nil means slog.Default().
	Logger *slog.Logger
	// Sum overrides the file hasher. Nil means hasher.Sum.
	Sum SumFunc
	// Now overrides the clock used for cache timestamps.
	Now func() time.Time
}

// Scanner wires the traversal producer, the hashing consumers and the
// cache store together.
type Scanner struct {
	store   cache.Store
	locks   *cache.KeyLocks
	workers int
	log     *slog.Logger
	sum     SumFunc
	now     func() time.Time
}

// New creates a Scanner that reconciles files against store.
func New(store cache.Store, opts Options) *Scanner {
	s := &Scanner{
		store:   store,
		locks:   cache.NewKeyLocks(0),
		workers: WorkerCount(opts.Workers),
		log:     opts.Logger,
		sum:     opts.Sum,
		now:     opts.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.sum == nil {
		s.sum = hasher.Sum
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// WorkerCount returns n when positive, otherwise max(runtime.NumCPU(), 2).
func WorkerCount(n int) int {
	if n > 0 {
		return n
	}
	return max(runtime.NumCPU(), 2)
}

// Workers returns the size of the consumer pool.
func (s *Scanner) Workers() int { return s.workers }

// ValidateRoot checks that root exists and is a directory.
func ValidateRoot(root string) error {
	info, err := os.Stat(root)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrPathNotFound, root)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPathInvalid, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrPathInvalid, root)
	}
	return nil
}

// Run scans root to completion and returns the finished report.
// Validation errors are returned before any file is touched. If ctx is
// cancelled the partial report is returned together with ctx.Err().
func (s *Scanner) Run(ctx context.Context, root string) (*Report, error) {
	report := NewReport()
	if err := s.Scan(ctx, root, report); err != nil {
		return report, err
	}
	return report, nil
}

// Scan is Run with a caller-supplied report, so the counters can be
// observed while the scan is in progress.
func (s *Scanner) Scan(ctx context.Context, root string, report *Report) error {
	if err := ValidateRoot(root); err != nil {
		return err
	}

	report.Workers = s.workers
	report.StartedAt = time.Now()

	queues := make([]*workQueue, s.workers)
	for i := range queues {
		queues[i] = newWorkQueue()
	}

	var g errgroup.Group
	g.Go(func() error {
		walk(ctx, root, queues, report, s.log)
		return nil
	})
	for i, q := range queues {
		c := &consumer{
			id:     i,
			queue:  q,
			store:  s.store,
			locks:  s.locks,
			report: report,
			log:    s.log,
			sum:    s.sum,
			now:    s.now,
		}
		g.Go(func() error {
			c.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = time.Now()
	return ctx.Err()
}
