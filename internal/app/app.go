/**
 * Main Application Coordinator for SyncGuard
 *
 * Features:
 * - Dependency injection and initialization
 * - Component lifecycle management
 * - Graceful shutdown handling
 * - Signal handling (SIGINT/SIGTERM)
 * - Configuration management
 *
 * Author: SyncGuard Team
 * Update History:
 * - 2026-10-15: Rewired around the recovery pipeline
 */

package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/VatsalSy/SyncGuard/internal/backup"
	"github.com/VatsalSy/SyncGuard/internal/classifier"
	"github.com/VatsalSy/SyncGuard/internal/config"
	"github.com/VatsalSy/SyncGuard/internal/errorlog"
	"github.com/VatsalSy/SyncGuard/internal/errors"
	"github.com/VatsalSy/SyncGuard/internal/events"
	"github.com/VatsalSy/SyncGuard/internal/logger"
	"github.com/VatsalSy/SyncGuard/internal/metrics"
	"github.com/VatsalSy/SyncGuard/internal/recovery"
	"github.com/VatsalSy/SyncGuard/internal/rollback"
	"github.com/VatsalSy/SyncGuard/internal/runner"
	"github.com/VatsalSy/SyncGuard/internal/state"
	"github.com/VatsalSy/SyncGuard/internal/taxonomy"
)

// App is the main application coordinator.
type App struct {
	config        *config.Config
	logger        *logger.Logger
	logOutput     io.Closer
	stateManager  *state.Manager
	bus           *events.Bus
	metrics       *metrics.Metrics
	errorLog      *errorlog.Logger
	classifier    *classifier.Classifier
	source        *backup.FileSource
	backups       *backup.Manager
	rollbacks     *rollback.Store
	dispatcher    *recovery.Dispatcher
	runner        *runner.Runner
	detach        []func()
	shutdownChan  chan struct{}
	mu            sync.RWMutex
	shutdownOnce  sync.Once
	isInitialized bool
	isRunning     bool
}

// New creates a new application instance.
func New() (*App, error) {
	return &App{
		shutdownChan: make(chan struct{}),
	}, nil
}

// Initialize builds every component from cfg. A nil cfg loads the
// configuration from viper.
func (app *App) Initialize(cfg *config.Config) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.isInitialized {
		return errors.Errorf("application already initialized")
	}

	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		cfg = loaded
	}
	app.config = cfg

	if err := app.initializeLogger(); err != nil {
		return err
	}

	app.logger.Info("Initializing SyncGuard",
		"version", cfg.Version,
		"config", viper.ConfigFileUsed(),
	)

	if err := app.initializeStorage(); err != nil {
		return err
	}
	if err := app.initializeRecovery(); err != nil {
		return err
	}

	app.isInitialized = true
	app.logger.Info("Application initialized successfully")

	return nil
}

func (app *App) initializeLogger() error {
	cfg := app.config.Log

	var output io.Writer = os.Stderr
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "file":
		if cfg.File == "" {
			return errors.Configuration("initialize_logger", "log.file is required when log.output is file")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
			return errors.Wrap(err, "failed to create log directory")
		}
		fw, err := logger.NewFileWriter(cfg.File, int64(cfg.MaxSize)*1024*1024, cfg.MaxBackups)
		if err != nil {
			return errors.Wrap(err, "failed to open log file")
		}
		output = fw
		app.logOutput = fw
	}

	app.logger = logger.New(&logger.Config{
		Level:         cfg.Level,
		Output:        output,
		Pretty:        cfg.Format == "pretty",
		IncludeCaller: cfg.Level == "debug",
	})
	logger.Init(&logger.Config{Level: cfg.Level, Output: output})
	return nil
}

func (app *App) initializeStorage() error {
	cfg := app.config

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0750); err != nil {
		return errors.Wrap(err, "failed to create data directory")
	}

	dbConfig := state.DefaultConfig()
	dbConfig.Path = cfg.Database.Path
	stateManager, err := state.NewManager(dbConfig, app.logger)
	if err != nil {
		return errors.Wrap(err, "failed to initialize state manager")
	}
	app.stateManager = stateManager

	app.bus = events.NewBus(cfg.Recovery.EventHistory, app.logger)
	app.detach = append(app.detach, stateManager.AttachBus(app.bus))

	if cfg.Metrics.Enabled {
		app.metrics = metrics.New(cfg.Metrics.Namespace, nil)
		app.detach = append(app.detach, app.metrics.Attach(app.bus))
	}

	logOpts := errorlog.Options{
		MaxEntries:  cfg.ErrorLog.MaxEntries,
		DedupWindow: cfg.ErrorLog.DedupWindow,
		Registry:    taxonomy.DefaultRegistry(),
		Logger:      app.logger,
	}
	if cfg.ErrorLog.Persist {
		logOpts.Store = stateManager.Errors()
	}
	app.errorLog = errorlog.NewLogger(logOpts)
	if app.metrics != nil {
		app.errorLog.AddObserver(app.metrics)
	}
	if cfg.ErrorLog.Persist {
		n, err := app.errorLog.Restore(context.Background())
		if err != nil {
			app.logger.Warn("Failed to restore error log", "error", err.Error())
		} else {
			app.logger.Debug("Error log restored", "entries", n)
		}
	}

	return nil
}

func (app *App) initializeRecovery() error {
	cfg := app.config

	policies, err := cfg.ConflictPolicies()
	if err != nil {
		return err
	}
	floor, err := cfg.DiskSpaceFloorBytes()
	if err != nil {
		return errors.Configuration("initialize_recovery", "disk space floor: %v", err)
	}
	backoff := cfg.BackoffConfig()

	app.classifier = classifier.New(classifier.Options{
		Registry:       taxonomy.DefaultRegistry(),
		Policies:       policies,
		Backoff:        backoff,
		DiskSpaceFloor: floor,
		MemoryPressure: cfg.Classifier.MemoryPressure,
		RetryCooldown:  cfg.Recovery.RetryCooldown,
	})

	app.source = backup.NewFileSource(cfg.Backup.SourceDir)
	app.backups, err = backup.NewManager(backup.Config{
		Directory:  cfg.Backup.Directory,
		Compress:   cfg.Backup.Compress,
		MaxBackups: cfg.Backup.MaxBackups,
		MaxAge:     cfg.Backup.MaxAge,
	}, app.source, app.stateManager.Backups(), app.bus, app.logger)
	if err != nil {
		return errors.Wrap(err, "failed to initialize backup manager")
	}

	app.rollbacks, err = rollback.Open(rollback.Config{
		Dir: cfg.Backup.RollbackDir,
		TTL: cfg.Backup.RollbackTTL,
	}, app.logger)
	if err != nil {
		return errors.Wrap(err, "failed to open rollback store")
	}

	deps := recovery.Deps{
		Backoff:        backoff,
		RetryCooldown:  cfg.Recovery.RetryCooldown,
		MaxAttempts:    cfg.Recovery.MaxAttempts,
		ResourcesFreed: app.classifier.ResourcesFreed,
		Policies:       policies,
		Resolver:       recovery.NewConflictResolver(),
		Applier:        app.source,
		Backups:        app.backups,
		Rollbacks:      app.rollbacks,
	}
	if cfg.Backup.MirrorDir != "" {
		deps.Resyncer = backup.NewMirror(app.source, backup.NewFileSource(cfg.Backup.MirrorDir))
	}

	registry, err := recovery.NewRegistry(recovery.DefaultStrategies(deps)...)
	if err != nil {
		return errors.Wrap(err, "failed to build strategy registry")
	}
	app.dispatcher = recovery.NewDispatcher(recovery.Options{
		Registry:  registry,
		Publisher: app.bus,
		Logger:    app.logger,
		Limiter:   recovery.NewRetryLimiter(cfg.Recovery.RetryRate, cfg.Recovery.RetryBurst),
	})

	app.runner, err = runner.New(runner.Config{Workers: cfg.Recovery.Workers}, runner.Options{
		Classifier: app.classifier,
		Recoverer:  app.dispatcher,
		Backups:    app.backups,
		Publisher:  app.bus,
		Errors:     app.errorLog,
		Logger:     app.logger,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create runner")
	}

	app.logger.Info("Recovery pipeline ready",
		"strategies", len(registry.Strategies()),
		"workers", cfg.Recovery.Workers,
		"conflict_policies", len(policies),
	)
	return nil
}

// RunRecovery drives jobs through the runner. SIGINT/SIGTERM cancel the
// run; jobs that had not started report the cancellation.
func (app *App) RunRecovery(ctx context.Context, jobs []runner.Job, onOutcome func(runner.Outcome)) ([]runner.Outcome, error) {
	if err := app.ensureReady(); err != nil {
		return nil, err
	}

	app.mu.Lock()
	if app.isRunning {
		app.mu.Unlock()
		return nil, errors.Errorf("recovery already running")
	}
	app.isRunning = true
	app.mu.Unlock()

	defer func() {
		app.mu.Lock()
		app.isRunning = false
		app.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go app.handleSignals(ctx, cancel)

	stopMetrics := app.startMetricsServer()
	defer stopMetrics()

	return app.runner.RunNotify(ctx, jobs, onOutcome)
}

func (app *App) startMetricsServer() func() {
	if app.metrics == nil || app.config.Metrics.Address == "" {
		return func() {}
	}

	server := metrics.NewServer(app.metrics, app.config.Metrics.Address)
	go func() {
		if err := server.Start(); err != nil {
			app.logger.Error(err, "Metrics server failed", "address", app.config.Metrics.Address)
		}
	}()
	app.logger.Info("Serving metrics", "address", app.config.Metrics.Address)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			app.logger.Warn("Metrics server shutdown failed", "error", err.Error())
		}
	}
}

// Maintenance prunes old events, compacts the database and applies backup
// retention. Transient storage failures are retried with backoff.
func (app *App) Maintenance(ctx context.Context, retention time.Duration) (int, error) {
	if err := app.ensureReady(); err != nil {
		return 0, err
	}

	removed := 0
	err := app.logger.LogOperation("maintenance", func() error {
		err := errors.RetryOperation(ctx, func() error {
			return app.stateManager.Maintenance(ctx, retention)
		}, maintenanceBackoff, errors.IsTemporary)
		if err != nil {
			return err
		}

		if err := app.rollbacks.RunGC(); err != nil {
			app.logger.Warn("Rollback store GC failed", "error", err.Error())
		}
		removed, err = app.backups.Cleanup(ctx)
		return err
	})
	return removed, err
}

// maintenanceBackoff bounds retries of a busy or locked state database.
var maintenanceBackoff = &errors.BackoffConfig{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
	Multiplier:      2,
	MaxElapsedTime:  5 * time.Second,
}

// Stop stops the application gracefully.
func (app *App) Stop() error {
	app.shutdownOnce.Do(func() {
		close(app.shutdownChan)

		app.mu.Lock()
		defer app.mu.Unlock()

		if app.logger == nil {
			return
		}
		app.logger.Info("Shutting down SyncGuard...")

		for _, detach := range app.detach {
			detach()
		}
		if app.bus != nil {
			app.bus.Close()
		}

		if app.rollbacks != nil {
			if err := app.rollbacks.Close(); err != nil {
				app.logger.Error(err, "Failed to close rollback store")
			}
		}
		if app.stateManager != nil {
			if err := app.stateManager.Close(); err != nil {
				app.logger.Error(err, "Failed to close state manager")
			}
		}

		app.logger.Info("SyncGuard shutdown complete")
		if app.logOutput != nil {
			app.logOutput.Close()
		}
	})

	return nil
}

// Accessors

// Config returns the loaded configuration.
func (app *App) Config() *config.Config { return app.config }

// Logger returns the application logger.
func (app *App) Logger() *logger.Logger { return app.logger }

// Bus returns the recovery event bus.
func (app *App) Bus() *events.Bus { return app.bus }

// ErrorLog returns the application error log.
func (app *App) ErrorLog() *errorlog.Logger { return app.errorLog }

// Events returns the persisted event audit trail.
func (app *App) Events() *state.EventStore { return app.stateManager.Events() }

// Classifier returns the failure classifier.
func (app *App) Classifier() *classifier.Classifier { return app.classifier }

// Dispatcher returns the recovery dispatcher.
func (app *App) Dispatcher() *recovery.Dispatcher { return app.dispatcher }

// Backups returns the backup manager.
func (app *App) Backups() *backup.Manager { return app.backups }

// Source returns the protected table store.
func (app *App) Source() *backup.FileSource { return app.source }

// Rollbacks returns the rollback point store.
func (app *App) Rollbacks() *rollback.Store { return app.rollbacks }

// Metrics returns the collectors, or nil when metrics are disabled.
func (app *App) Metrics() *metrics.Metrics { return app.metrics }

// Private methods

func (app *App) ensureReady() error {
	app.mu.RLock()
	defer app.mu.RUnlock()

	if !app.isInitialized {
		return errors.Errorf("application not initialized")
	}
	return nil
}

func (app *App) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	app.setupSignalHandling(sigChan)
	defer app.stopSignalHandling(sigChan)

	select {
	case sig := <-sigChan:
		app.logger.Info("Received signal", "signal", sig.String())
		cancel()
	case <-app.shutdownChan:
		cancel()
	case <-ctx.Done():
	}
}
