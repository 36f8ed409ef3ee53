package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/eargollo/hashscan/internal/cache"
	"github.com/eargollo/hashscan/internal/config"
	"github.com/eargollo/hashscan/internal/db"
	"github.com/eargollo/hashscan/internal/export"
	"github.com/eargollo/hashscan/internal/scan"
)

// errReported marks failures whose message has already been printed.
var errReported = errors.New("already reported")

// reported wraps err so run does not print it a second time.
func reported(err error) error {
	return fmt.Errorf("%w: %w", errReported, err)
}

// options holds flag values shared by every command. Zero values mean
// "use the config file".
type options struct {
	configPath string
	dbPath     string
	workers    int
	reportPath string
	logLevel   string
	noCache    bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "hashscan [FolderPath]",
		Short: "Hash every file under a directory, skipping files unchanged since the last scan",
		Long: `hashscan walks a directory tree, computes MD5, SHA1 and SHA256 for every
regular file and keeps the results in a local cache so unchanged files are
skipped on the next run.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), opts, args, stdout, stderr)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "config.yaml", "path to config file")
	pf.StringVar(&opts.dbPath, "db", "", "path to the cache database (overrides db_path)")
	pf.IntVar(&opts.workers, "workers", 0, "number of hashing workers (0 = one per CPU, at least 2)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.Flags().StringVar(&opts.reportPath, "report", "", "write records as JSON lines to this file (.zst compresses)")
	rootCmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "use an in-memory cache that is discarded on exit")

	rootCmd.AddCommand(newServeCmd(opts, stderr))
	return rootCmd
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if opts.reportPath != "" {
		cfg.ReportPath = opts.reportPath
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}

func runScan(ctx context.Context, opts *options, args []string, stdout, stderr io.Writer) error {
	// Validation happens before anything is opened or created.
	if len(args) < 1 {
		fmt.Fprintln(stdout, "ERR: [FolderPath] is required.")
		return errReported
	}
	root := args[0]
	if err := scan.ValidateRoot(root); err != nil {
		fmt.Fprintln(stdout, "ERR: [FolderPath] doesn't exist.")
		return reported(err)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stdout, "ERR: %v\n", err)
		return reported(err)
	}
	logger := newLogger(stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	var (
		store    cache.Store
		database *sql.DB
	)
	if opts.noCache {
		store = cache.NewMemoryStore()
	} else {
		database, err = db.OpenAndMigrate(cfg.DBPath)
		if err != nil {
			fmt.Fprintf(stdout, "ERR: %v\n", err)
			return reported(err)
		}
		defer database.Close()
		if err := scan.MarkStaleScansFailed(database); err != nil {
			logger.Warn("mark stale scans", "error", err)
		}
		store = cache.NewSQLiteStore(database)
	}

	scanner := scan.New(store, scan.Options{Workers: cfg.Workers, Logger: logger})

	start := time.Now()
	report := scan.NewReport()
	if database != nil {
		_, err = scanner.Execute(ctx, database, root, "cli", report)
	} else {
		err = scanner.Scan(ctx, root, report)
	}
	elapsed := time.Since(start)

	if cfg.ReportPath != "" {
		if werr := export.WriteFile(cfg.ReportPath, root, report); werr != nil {
			logger.Error("write report", "path", cfg.ReportPath, "error", werr)
		}
	}

	printSummary(stdout, report, elapsed)
	if err != nil {
		logger.Error("scan", "root", root, "error", err)
		return reported(err)
	}
	return nil
}

func printSummary(w io.Writer, r *scan.Report, elapsed time.Duration) {
	fmt.Fprintf(w, "Total File(s)     : %d\n", r.TotalFiles.Load())
	fmt.Fprintf(w, "Total Error(s)    : %d\n", r.TotalErrors.Load())
	fmt.Fprintf(w, "Cache Hit(s)      : %d\n", r.CacheHits.Load())
	fmt.Fprintf(w, "Bytes Hashed      : %s\n", humanize.Bytes(uint64(r.BytesHashed.Load())))
	fmt.Fprintf(w, "Total Time        : %s\n", elapsed.Round(time.Millisecond))
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}))
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
