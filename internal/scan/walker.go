package scan

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
)

// roundRobin hands out queue indexes 0, 1, ..., n-1, 0, ... so files are
// spread evenly across consumers regardless of directory clustering.
type roundRobin struct {
	n    int
	next int
}

func (rr *roundRobin) Next() int {
	i := rr.next
	rr.next = (rr.next + 1) % rr.n
	return i
}

// walk traverses root breadth-first and pushes every regular file path into
// queues in round-robin order, counting each one in report.TotalFiles.
// Directories that cannot be listed are logged and skipped. walk closes
// every queue before returning, including when ctx is cancelled.
func walk(ctx context.Context, root string, queues []*workQueue, report *Report, log *slog.Logger) {
	defer func() {
		for _, q := range queues {
			q.Close()
		}
	}()

	rr := &roundRobin{n: len(queues)}

	// Pending directories, FIFO. head avoids re-slicing on every pop.
	pending := []string{root}
	head := 0

	for head < len(pending) {
		if ctx.Err() != nil {
			log.Info("walk cancelled", "root", root, "files_discovered", report.TotalFiles.Load())
			return
		}

		dir := pending[head]
		pending[head] = ""
		head++
		if head >= 1000 && head >= len(pending)/2 {
			pending = append(pending[:0], pending[head:]...)
			head = 0
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			report.DirErrors.Add(1)
			log.Warn("skipping unreadable directory", "dir", dir, "error", err)
			// ReadDir may still return the entries it read before failing.
			if len(entries) == 0 {
				continue
			}
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())

			if entry.IsDir() {
				pending = append(pending, path)
				continue
			}

			// Symlinks, sockets, devices and pipes are not regular files.
			if !entry.Type().IsRegular() {
				continue
			}

			report.TotalFiles.Add(1)
			queues[rr.Next()].Push(path)
		}
	}
}
