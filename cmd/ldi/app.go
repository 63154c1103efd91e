package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/simaogato/wealthflow-ldi/internal/adapter/metrics"
	"github.com/simaogato/wealthflow-ldi/internal/adapter/repository/postgres"
	"github.com/simaogato/wealthflow-ldi/internal/adapter/repository/snapshot"
	"github.com/simaogato/wealthflow-ldi/internal/config"
	"github.com/simaogato/wealthflow-ldi/internal/logger"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/execution"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/liability"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/optimizer"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/overlay"
	"github.com/simaogato/wealthflow-ldi/internal/usecase/run"
)

// app holds everything a command needs once configuration is loaded
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *snapshot.Store
	runner   *run.Runner
	recorder *metrics.Recorder
	db       *postgres.DB
}

// newApp loads configuration and wires the providers, engine and runner
// Logic:
//  1. Load config; flags override the file and environment
//  2. Load the snapshot, which serves curves, market data and policies
//  3. With a postgres DSN, holdings and liabilities come from the database
//     and every finished report is stored there
//  4. Build the four engine components from their config sections
func newApp(ctx context.Context, flags *globalFlags, reg prometheus.Registerer) (*app, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.snapshot != "" {
		cfg.Store.Snapshot = flags.snapshot
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if cfg.Store.Snapshot == "" {
		return nil, errors.New("no snapshot configured: set store.snapshot or pass --snapshot")
	}

	a := &app{cfg: cfg, logger: logger.New(cfg.Log.Level)}

	a.store, err = snapshot.LoadFile(cfg.Store.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	providers := run.Providers{
		Curves:      a.store,
		Market:      a.store,
		Positions:   a.store,
		Liabilities: a.store,
		Policies:    a.store,
	}

	var sink run.ReportSink
	if cfg.Store.PostgresDSN != "" {
		a.db, err = postgres.NewDB(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, a.db); err != nil {
			a.db.Close()
			return nil, err
		}
		providers.Positions = postgres.NewHoldingRepository(a.db)
		providers.Liabilities = postgres.NewLiabilityRepository(a.db)
		sink = postgres.NewReportRepository(a.db)
		a.logger.Info("using postgres for holdings, liabilities and reports")
	}

	var recorder run.Recorder
	if reg != nil {
		a.recorder = metrics.NewRecorder(reg)
		recorder = a.recorder
	}

	engine := run.Engine{
		Liability: liability.NewModel(cfg.Liability.DurationBumpBps, cfg.Liability.ConvexityBumpBps),
		Optimizer: optimizer.NewOptimizer(cfg.OptimizerConfig(), a.logger.Named("optimizer")),
		Scheduler: execution.NewScheduler(cfg.ExecutionConfig()),
		Overlay:   overlay.NewManager(cfg.OverlayConfig()),
	}

	a.runner = run.NewRunner(providers, engine, run.Config{
		Parallelism: cfg.Run.Parallelism,
		SessionOpen: cfg.Run.SessionOpen,
	}, a.logger.Named("run"), recorder)
	if sink != nil {
		a.runner.WithSink(sink)
	}

	return a, nil
}

// Close releases the database connection and flushes the logger
func (a *app) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close database", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
