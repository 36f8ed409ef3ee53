package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eargollo/hashscan/internal/api"
	"github.com/eargollo/hashscan/internal/cache"
	"github.com/eargollo/hashscan/internal/db"
	"github.com/eargollo/hashscan/internal/scan"
	"github.com/eargollo/hashscan/internal/scheduler"
)

func newServeCmd(opts *options, stderr io.Writer) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve [FolderPath]",
		Short: "Run scheduled scans and expose status over HTTP",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Root = args[0]
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if cfg.Root == "" {
				return fmt.Errorf("serve: no root directory (pass one or set root in %s)", opts.configPath)
			}
			if err := scan.ValidateRoot(cfg.Root); err != nil {
				return err
			}

			logger := newLogger(stderr, cfg.LogLevel)
			slog.SetDefault(logger)
			slog.Info("hashscan starting",
				"version", version,
				"log_level", cfg.LogLevel,
				"http_addr", cfg.HTTPAddr,
				"db_path", cfg.DBPath,
				"root", cfg.Root)

			database, err := db.OpenAndMigrate(cfg.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			// Mark any scans that were 'running' when the last process exited as failed.
			if err := scan.MarkStaleScansFailed(database); err != nil {
				slog.Warn("mark stale scans", "error", err)
			}

			store := cache.NewSQLiteStore(database)
			scanner := scan.New(store, scan.Options{Workers: cfg.Workers, Logger: logger})
			mgr := scan.NewManager(database, scanner, cfg.Root)

			sched := scheduler.New()
			sched.SetPaused(cfg.ScanPaused)
			if cfg.Schedule != "" {
				if err := sched.SetScanJob(cfg.Schedule, func() {
					slog.Info("scheduled scan triggered")
					if _, err := mgr.Start(context.Background(), "schedule"); err != nil {
						slog.Warn("scheduled scan start", "error", err)
					}
				}); err != nil {
					slog.Warn("invalid cron expression", "expr", cfg.Schedule, "error", err)
				}
			}
			sched.Start()

			srv := api.New(cfg.HTTPAddr, api.NewRouter(database, store, mgr, sched, version))

			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.Run(gctx)
			})
			g.Go(func() error {
				<-gctx.Done()
				// No cron tick may start a scan once shutdown has begun.
				sched.Stop()
				mgr.Shutdown()
				return nil
			})
			err = g.Wait()
			slog.Info("hashscan stopped")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides http_addr)")
	return cmd
}
