package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/scan2target/scan2target/internal/api"
	"github.com/scan2target/scan2target/internal/capture"
	"github.com/scan2target/scan2target/internal/cleanup"
	"github.com/scan2target/scan2target/internal/config"
	"github.com/scan2target/scan2target/internal/deliver"
	"github.com/scan2target/scan2target/internal/events"
	"github.com/scan2target/scan2target/internal/health"
	"github.com/scan2target/scan2target/internal/platform/logger"
	"github.com/scan2target/scan2target/internal/platform/postgres"
	"github.com/scan2target/scan2target/internal/printing"
	"github.com/scan2target/scan2target/internal/service"
	"github.com/scan2target/scan2target/internal/worker"
	"github.com/scan2target/scan2target/migrations"
)

const shutdownTimeout = 15 * time.Second

func openDatabase(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	return nil
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Setup(cfg.Server)

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := migrate(db); err != nil {
		return err
	}
	slog.Info("migrations applied")
	return nil
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Server)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDatabase(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := migrate(db); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Scan.WorkDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	jobStore := postgres.NewJobStore(db)
	targetStore := postgres.NewTargetStore(db)
	deviceStore := postgres.NewDeviceStore(db)

	publisher := events.NewInMemoryPublisher(log)
	jobs := service.NewJobService(jobStore, publisher, log)
	w := worker.New(jobs, cfg.Scan.MaxConcurrent, log)

	device := capture.NewSANEDevice(capture.SANEDeviceConfig{
		PageTimeout:  cfg.Scan.PageTimeout,
		BatchTimeout: cfg.Scan.BatchTimeout,
		ProbeTimeout: cfg.Delivery.ProbeTimeout,
	})
	converter := capture.NewExecConverter(cfg.Scan.ConvertTimeout)
	profiles := capture.NewStaticProfiles(capture.BuiltinProfiles()...)

	manager := deliver.NewManager(targetStore,
		deliver.DefaultHandlers(cfg.Delivery.ProbeTimeout), cfg.Delivery.MaxRetries, log)

	pipeline := capture.NewPipeline(device, converter, profiles, jobs, manager,
		cfg.Scan.WorkDir, cfg.Scan.MaxPages, log)
	printer := printing.NewLPPrinter(cfg.Scan.PageTimeout)
	scans := service.NewScanService(jobs, w, pipeline, printer, log)

	monitor := health.NewMonitor(deviceStore, device, cfg.Health.Interval, log)
	monitor.Start(ctx)

	sweeper := cleanup.NewSweeper(jobStore, cfg.Scan.WorkDir, cleanup.Policy{
		MaxAge:       cfg.Cleanup.MaxAge,
		MaxArtifacts: cfg.Cleanup.MaxArtifacts,
	}, log)
	scheduler, err := cleanup.NewScheduler(cfg.Cleanup.Schedule, sweeper, log)
	if err != nil {
		return err
	}
	scheduler.Start()

	router := api.NewRouter(
		api.NewJobHandler(scans, jobs, log),
		api.NewTargetHandler(targetStore, manager, log),
		api.NewHealthHandler(monitor),
	)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}

	w.Stop()
	monitor.Stop()
	if err := scheduler.Stop(); err != nil {
		log.Error("cleanup scheduler shutdown failed", "error", err)
	}
	log.Info("shutdown complete")
	return nil
}
