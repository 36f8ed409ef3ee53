package handlers

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/eargollo/hashscan/internal/cache"
	"github.com/eargollo/hashscan/internal/scan"
	"github.com/eargollo/hashscan/internal/scheduler"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	DB      *sql.DB
	Store   cache.Store
	Manager *scan.Manager
	Sched   *scheduler.Scheduler
	Version string
}

// counter is implemented by stores that can report their size.
type counter interface {
	Count(ctx context.Context) (int64, error)
}

type statusResponse struct {
	Version           string             `json:"version"`
	Root              string             `json:"root"`
	CacheEntries      *int64             `json:"cache_entries"`
	ActiveScan        *activeScanInfo    `json:"active_scan"`
	Schedule          scheduleInfo       `json:"schedule"`
	LastCompletedScan *scan.HistoryEntry `json:"last_completed_scan"`
}

type activeScanInfo struct {
	ID          string       `json:"id"`
	StartedAt   time.Time    `json:"started_at"`
	TriggeredBy string       `json:"triggered_by"`
	ElapsedMs   int64        `json:"elapsed_ms"`
	Progress    scan.Summary `json:"progress"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	Paused    bool       `json:"paused"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the system status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version: h.Version,
		Root:    h.Manager.Root(),
	}

	if c, ok := h.Store.(counter); ok {
		n, err := c.Count(r.Context())
		if err != nil {
			slog.Error("status: count cache entries", "error", err)
		} else {
			resp.CacheEntries = &n
		}
	}

	if a := h.Manager.ActiveScan(); a != nil {
		resp.ActiveScan = &activeScanInfo{
			ID:          a.ID,
			StartedAt:   a.StartedAt.UTC(),
			TriggeredBy: a.TriggeredBy,
			ElapsedMs:   time.Since(a.StartedAt).Milliseconds(),
			Progress:    a.Report.Summary(),
		}
	}

	if h.Sched != nil {
		resp.Schedule = scheduleInfo{
			Cron:      h.Sched.CronExpr(),
			Paused:    h.Sched.Paused(),
			NextRunAt: h.Sched.NextRunAt(),
		}
	}

	last, err := scan.LastCompleted(r.Context(), h.DB)
	if err != nil {
		slog.Error("status: query last scan", "error", err)
	}
	resp.LastCompletedScan = last

	writeJSON(w, http.StatusOK, resp)
}
