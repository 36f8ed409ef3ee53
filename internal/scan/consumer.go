package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/eargollo/hashscan/internal/cache"
	"github.com/eargollo/hashscan/internal/hasher"
	"github.com/eargollo/hashscan/internal/media"
)

// SumFunc hashes the file at path.
type SumFunc func(path string) (hasher.Result, error)

// consumer drains one work queue, reconciling each file against the cache
// and appending the outcome to the shared report.
type consumer struct {
	id     int
	queue  *workQueue
	store  cache.Store
	locks  *cache.KeyLocks
	report *Report
	log    *slog.Logger
	sum    SumFunc
	now    func() time.Time
}

// run pops paths until the queue is closed and empty. Once ctx is
// cancelled it stops taking new paths; the file in hand is always finished.
func (c *consumer) run(ctx context.Context) {
	for {
		path, ok := c.queue.Pop()
		if !ok {
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.process(ctx, path)
	}
}

// process handles a single file. Errors never escape: they are recorded on
// the file's record and counted in the report.
func (c *consumer) process(ctx context.Context, path string) {
	// In-flight work must complete even if the scan is being cancelled.
	ctx = context.WithoutCancel(ctx)

	rec := FileRecord{Path: path, Kind: media.Detect(path)}

	info, err := os.Stat(path)
	if err != nil {
		c.fail(rec, err)
		return
	}
	rec.Size = info.Size()

	res, err := c.sum(path)
	if err != nil {
		c.fail(rec, err)
		return
	}
	c.report.BytesHashed.Add(res.BytesRead)
	if res.BytesRead != rec.Size {
		c.fail(rec, fmt.Errorf("%w: stat reported %d bytes, read %d", ErrFileChanged, rec.Size, res.BytesRead))
		return
	}
	rec.Fingerprint = res.Fingerprint

	if c.reconcile(ctx, rec, res) {
		return
	}

	rec.Digests = res.Digests
	c.report.Append(rec)
}

// reconcile runs the lookup/decide/write protocol for rec's fingerprint
// while holding that fingerprint's lock. It returns true on a cache hit.
//
// Store failures degrade to a miss: the file is reported with fresh digests
// and the failure is logged and counted in CacheErrors.
func (c *consumer) reconcile(ctx context.Context, rec FileRecord, res hasher.Result) bool {
	unlock := c.locks.Lock(rec.Fingerprint)
	defer unlock()

	now := c.now()

	entry, err := c.store.Lookup(ctx, rec.Fingerprint)
	if err != nil {
		c.cacheFailure("lookup", rec.Path, err)
		return false
	}

	if entry != nil {
		if entry.Matches(rec.Path, rec.Size) {
			entry.ScanCount++
			entry.LastSeen = now
			if err := c.store.Upsert(ctx, *entry); err != nil {
				c.cacheFailure("upsert", rec.Path, err)
			}
			c.report.CacheHits.Add(1)
			c.log.Info("skipping file, already scanned", "path", rec.Path, "scan_count", entry.ScanCount)
			return true
		}

		// Same content address but a different path or size: the stored
		// entry is stale and is replaced, never merged.
		c.report.StaleEntries.Add(1)
		if err := c.store.Remove(ctx, rec.Fingerprint); err != nil {
			c.cacheFailure("remove", rec.Path, err)
			return false
		}
	}

	if err := c.store.Upsert(ctx, cache.Entry{
		Fingerprint: rec.Fingerprint,
		Path:        rec.Path,
		Size:        rec.Size,
		MD5:         res.MD5,
		SHA1:        res.SHA1,
		SHA256:      res.SHA256,
		ScanCount:   1,
		LastSeen:    now,
	}); err != nil {
		c.cacheFailure("upsert", rec.Path, err)
	}
	return false
}

func (c *consumer) fail(rec FileRecord, err error) {
	rec.IsError = true
	rec.ErrorMessage = err.Error()
	c.report.TotalErrors.Add(1)
	c.log.Error("hash file", "path", rec.Path, "worker", c.id, "error", err)
	c.report.Append(rec)
}

func (c *consumer) cacheFailure(op, path string, err error) {
	c.report.CacheErrors.Add(1)
	c.log.Error("cache "+op, "path", path, "worker", c.id, "error", err)
}
