package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/keystudy/internal/adapters/http/api"
	"github.com/okian/keystudy/internal/adapters/http/site"
	"github.com/okian/keystudy/internal/adapters/http/swagger"
	"github.com/okian/keystudy/internal/adapters/repository"
	service "github.com/okian/keystudy/internal/app"
	"github.com/okian/keystudy/internal/config"
	"github.com/okian/keystudy/pkg/logger"
	"github.com/okian/keystudy/pkg/metrics"
	"github.com/spf13/cobra"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func newServeCmd(c *cli) *cobra.Command {
	var addr, dbPath, staticDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the study frontend",
		Long: `Run the HTTP API and the study frontend.

Examples:
  keystudy serve                          # listen on :5000, keystroke_study.db
  keystudy serve --addr :8080 --db /data/study.db
  keystudy serve --static-dir ./web       # serve the frontend from disk`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("addr") {
				c.cfg.Addr = addr
			}
			if flags.Changed("db") {
				c.cfg.DBPath = dbPath
			}
			if flags.Changed("static-dir") {
				c.cfg.StaticDir = staticDir
			}

			// Root context with cancel on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c.cfg, c.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides addr)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database file (overrides db_path)")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "serve the frontend from this directory")
	return cmd
}

// runServe serves until ctx is canceled, then shuts down gracefully.
func runServe(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	srv, svc, err := buildServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("db_path", cfg.DBPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildServer opens the store, starts the service and wires every route.
// The caller owns the returned service and must Stop it.
func buildServer(ctx context.Context, cfg *config.Config, log logger.Logger) (*http.Server, *service.Service, error) {
	db, err := repository.OpenDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	store := repository.NewSQLiteStore(db,
		repository.WithLogger(log.Named("store")),
		repository.WithOwnedDB(),
	)

	svc := service.New(
		service.WithStore(store),
		service.WithDBPath(cfg.DBPath),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithLogger(log.Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to start service: %w", err)
	}

	mux := http.NewServeMux()
	api.NewServer(svc, svc,
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithCORSOrigin(cfg.CORSOrigin),
		api.WithLogger(log.Named("api")),
	).Register(ctx, mux)
	swagger.Register(ctx, mux)
	if err := site.Register(ctx, mux, site.WithDir(cfg.StaticDir)); err != nil {
		svc.Stop()
		return nil, nil, err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.RequestID(mux),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return srv, svc, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes the row-count gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = svc.Counts(ctx)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
