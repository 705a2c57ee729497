// Package internal provides the App struct that wires the tick components
// together and initializes the CLI layer.
package internal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tick-md/tick/internal/cli"
	"github.com/tick-md/tick/internal/core"
	"github.com/tick-md/tick/internal/integration"
	"github.com/tick-md/tick/internal/observability"
	"github.com/tick-md/tick/internal/storage"
	"github.com/tick-md/tick/pkg/models"
)

// App holds all service dependencies for tick.
type App struct {
	BasePath string
	Config   *models.TickConfig

	// Configuration
	ConfigMgr core.ConfigurationManager

	// Storage layer
	Store *storage.AtomicStore
	Locks *storage.LockManager

	// Core services
	TaskMgr core.TaskManager

	// Integration services
	Queue      *integration.RetryQueue
	Worker     *integration.QueueWorker
	Dispatcher *integration.NotificationDispatcher
	GitSync    *integration.GitSync

	// Observability
	Journal     *observability.Journal
	Notifier    *observability.WebhookNotifier
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
}

// NewApp creates and wires all components. basePath is the project root
// holding .tickconfig and, by default, TICK.md. Log output goes to logOut.
func NewApp(basePath string, logOut io.Writer) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	app.Config = cfg

	logger, err := observability.NewLogger(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("configuring logger: %w", err)
	}

	// --- Storage layer ---
	app.Store = storage.NewAtomicStore(storage.StoreOptions{
		AllowSymlinks: cfg.AllowSymlinks,
		Cache:         storage.NewDocumentCache(),
		Logger:        logger,
	})
	app.Locks = storage.NewLockManager(cfg.LockFile)

	// --- Observability ---
	app.Journal = observability.NewJournal(cfg.JournalFile)
	app.Notifier = observability.NewWebhookNotifier(nil, "tick")
	app.MetricsCalc = observability.NewMetricsCalculator(app.Journal)
	app.AlertEngine = observability.NewAlertEngine(cfg.Alerts)

	// --- Integration services ---
	app.Queue, err = integration.NewRetryQueue(cfg.Queue.File, integration.RetryPolicy{
		InitialDelay: cfg.Queue.InitialDelay,
		MaxDelay:     cfg.Queue.MaxDelay,
		MaxAttempts:  cfg.Queue.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("opening retry queue: %w", err)
	}
	app.Worker = integration.NewQueueWorker(app.Queue, app.Notifier, logger)
	if len(cfg.Webhooks) > 0 {
		app.Dispatcher = integration.NewNotificationDispatcher(cfg.Webhooks, app.Notifier, app.Queue)
	}
	app.GitSync = integration.NewGitSync(basePath)

	// --- Core services ---
	opts := core.TaskManagerOptions{
		PadWidth:   cfg.IDPadWidth,
		Journal:    app.Journal,
		Sync:       app.GitSync,
		AutoCommit: cfg.Git.AutoCommit,
		AutoPush:   cfg.Git.AutoPush,
		Logger:     logger,
	}
	// A nil *NotificationDispatcher must not become a non-nil interface.
	if app.Dispatcher != nil {
		opts.Notifier = app.Dispatcher
	}
	app.TaskMgr = core.NewTaskManager(cfg.Document, app.Store, app.Locks, opts)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Logger = logger
	cli.TaskMgr = app.TaskMgr
	cli.Locks = app.Locks
	cli.Queue = app.Queue
	cli.QueueWorker = app.Worker
	cli.Dispatcher = app.Dispatcher
	cli.GitSync = app.GitSync
	cli.Journal = app.Journal
	cli.MetricsCalc = app.MetricsCalc
	cli.AlertEngine = app.AlertEngine

	return app, nil
}

// ResolveBasePath determines the project root. TICK_HOME wins; otherwise the
// nearest directory at or above the working directory that holds .tickconfig
// or TICK.md; otherwise the working directory itself.
func ResolveBasePath() string {
	if home := os.Getenv("TICK_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	cwd := dir
	for {
		for _, marker := range []string{core.ConfigFileName, "TICK.md"} {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return cwd
}
