package cli

import (
	"log/slog"
	"time"

	"github.com/tick-md/tick/internal/core"
	"github.com/tick-md/tick/internal/integration"
	"github.com/tick-md/tick/internal/observability"
	"github.com/tick-md/tick/internal/storage"
	"github.com/tick-md/tick/pkg/models"
)

// Service instances, set during app initialization in app.go.
var (
	BasePath string
	Config   *models.TickConfig
	Logger   *slog.Logger

	TaskMgr core.TaskManager
	Locks   *storage.LockManager

	Queue       *integration.RetryQueue
	QueueWorker *integration.QueueWorker
	Dispatcher  *integration.NotificationDispatcher
	GitSync     *integration.GitSync

	Journal     observability.EventReader
	MetricsCalc observability.MetricsCalculator
	AlertEngine observability.AlertEngine
)

// now is the clock used for caller timestamps. Tests replace it.
var now = func() time.Time { return time.Now().UTC() }
