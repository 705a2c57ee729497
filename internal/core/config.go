// Package core contains the coordination logic for tick: configuration,
// task lifecycle operations, ID minting, and dependency graph validation.
package core

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/tick-md/tick/pkg/models"
)

// ConfigFileName is the configuration file looked up in the base path.
const ConfigFileName = ".tickconfig"

// ConfigurationManager defines the interface for loading and validating the
// .tickconfig file.
type ConfigurationManager interface {
	LoadConfig() (*models.TickConfig, error)
	ValidateConfig(cfg *models.TickConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the root directory where .tickconfig resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns a TickConfig populated with defaults.
func DefaultConfig() *models.TickConfig {
	return &models.TickConfig{
		Document:       "TICK.md",
		IDPadWidth:     DefaultIDPadWidth,
		LockFile:       filepath.Join(".tick", "locks"),
		LockMaxAge:     time.Hour,
		JournalFile:    filepath.Join(".tick", "activity.jsonl"),
		CommandTimeout: 30 * time.Second,
		Queue: models.QueueConfig{
			File:         filepath.Join(".tick", "retry-queue.json"),
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Minute,
			MaxAttempts:  5,
			PollInterval: 10 * time.Second,
		},
		Log: models.LogConfig{
			Level:  "info",
			Format: "text",
		},
		Alerts: models.AlertConfig{
			StaleAfter:   72 * time.Hour,
			BlockedAfter: 24 * time.Hour,
			ReviewAfter:  5 * 24 * time.Hour,
			MaxBacklog:   25,
		},
	}
}

// LoadConfig reads .tickconfig from the base path using Viper. If the file
// does not exist, defaults are returned. Relative file paths are resolved
// against the base path.
func (cm *viperConfigManager) LoadConfig() (*models.TickConfig, error) {
	cfg := DefaultConfig()

	path := filepath.Join(cm.basePath, ConfigFileName)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("document", cfg.Document)
	v.SetDefault("defaults.agent", cfg.DefaultAgent)
	v.SetDefault("id.pad_width", cfg.IDPadWidth)
	v.SetDefault("store.allow_symlinks", cfg.AllowSymlinks)
	v.SetDefault("locks.file", cfg.LockFile)
	v.SetDefault("locks.max_age", cfg.LockMaxAge)
	v.SetDefault("journal.file", cfg.JournalFile)
	v.SetDefault("command_timeout", cfg.CommandTimeout)
	v.SetDefault("queue.file", cfg.Queue.File)
	v.SetDefault("queue.initial_delay", cfg.Queue.InitialDelay)
	v.SetDefault("queue.max_delay", cfg.Queue.MaxDelay)
	v.SetDefault("queue.max_attempts", cfg.Queue.MaxAttempts)
	v.SetDefault("queue.poll_interval", cfg.Queue.PollInterval)
	v.SetDefault("git.auto_commit", cfg.Git.AutoCommit)
	v.SetDefault("git.auto_push", cfg.Git.AutoPush)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("alerts.stale_after", cfg.Alerts.StaleAfter)
	v.SetDefault("alerts.blocked_after", cfg.Alerts.BlockedAfter)
	v.SetDefault("alerts.review_after", cfg.Alerts.ReviewAfter)
	v.SetDefault("alerts.max_backlog", cfg.Alerts.MaxBacklog)

	// A missing file means defaults; any other stat failure is reported.
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
	}

	cfg.Document = v.GetString("document")
	cfg.DefaultAgent = v.GetString("defaults.agent")
	cfg.IDPadWidth = v.GetInt("id.pad_width")
	cfg.AllowSymlinks = v.GetBool("store.allow_symlinks")
	cfg.LockFile = v.GetString("locks.file")
	cfg.LockMaxAge = v.GetDuration("locks.max_age")
	cfg.JournalFile = v.GetString("journal.file")
	cfg.CommandTimeout = v.GetDuration("command_timeout")
	cfg.Queue.File = v.GetString("queue.file")
	cfg.Queue.InitialDelay = v.GetDuration("queue.initial_delay")
	cfg.Queue.MaxDelay = v.GetDuration("queue.max_delay")
	cfg.Queue.MaxAttempts = v.GetInt("queue.max_attempts")
	cfg.Queue.PollInterval = v.GetDuration("queue.poll_interval")
	cfg.Git.AutoCommit = v.GetBool("git.auto_commit")
	cfg.Git.AutoPush = v.GetBool("git.auto_push")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.Alerts.StaleAfter = v.GetDuration("alerts.stale_after")
	cfg.Alerts.BlockedAfter = v.GetDuration("alerts.blocked_after")
	cfg.Alerts.ReviewAfter = v.GetDuration("alerts.review_after")
	cfg.Alerts.MaxBacklog = v.GetInt("alerts.max_backlog")

	if v.IsSet("notifications.webhooks") {
		var hooks []models.WebhookConfig
		if err := v.UnmarshalKey("notifications.webhooks", &hooks); err != nil {
			return nil, fmt.Errorf("reading notifications.webhooks: %w", err)
		}
		cfg.Webhooks = hooks
	}

	cfg.Document = cm.resolve(cfg.Document)
	cfg.LockFile = cm.resolve(cfg.LockFile)
	cfg.JournalFile = cm.resolve(cfg.JournalFile)
	cfg.Queue.File = cm.resolve(cfg.Queue.File)

	return cfg, nil
}

func (cm *viperConfigManager) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cm.basePath, p)
}

// ValidateConfig checks every field and reports all problems at once.
func (cm *viperConfigManager) ValidateConfig(cfg *models.TickConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if cfg.Document == "" {
		errs = append(errs, "document must not be empty")
	}
	if cfg.IDPadWidth < 0 || cfg.IDPadWidth > 10 {
		errs = append(errs, fmt.Sprintf("id.pad_width must be between 0 and 10, got %d", cfg.IDPadWidth))
	}
	if cfg.LockFile == "" {
		errs = append(errs, "locks.file must not be empty")
	}
	if cfg.LockMaxAge <= 0 {
		errs = append(errs, "locks.max_age must be positive")
	}
	if cfg.CommandTimeout < 0 {
		errs = append(errs, "command_timeout must not be negative")
	}
	if cfg.Queue.File == "" {
		errs = append(errs, "queue.file must not be empty")
	}
	if cfg.Queue.InitialDelay <= 0 {
		errs = append(errs, "queue.initial_delay must be positive")
	}
	if cfg.Queue.MaxDelay < cfg.Queue.InitialDelay {
		errs = append(errs, "queue.max_delay must not be shorter than queue.initial_delay")
	}
	if cfg.Queue.MaxAttempts < 1 {
		errs = append(errs, fmt.Sprintf("queue.max_attempts must be at least 1, got %d", cfg.Queue.MaxAttempts))
	}
	if cfg.Queue.PollInterval <= 0 {
		errs = append(errs, "queue.poll_interval must be positive")
	}
	if cfg.Alerts.StaleAfter < 0 || cfg.Alerts.BlockedAfter < 0 || cfg.Alerts.ReviewAfter < 0 || cfg.Alerts.MaxBacklog < 0 {
		errs = append(errs, "alerts thresholds must not be negative")
	}
	if cfg.Git.AutoPush && !cfg.Git.AutoCommit {
		errs = append(errs, "git.auto_push requires git.auto_commit")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be one of debug, info, warn, error, got %q", cfg.Log.Level))
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be text or json, got %q", cfg.Log.Format))
	}

	names := make(map[string]bool)
	for i, w := range cfg.Webhooks {
		label := w.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
			errs = append(errs, fmt.Sprintf("webhook %s: name must not be empty", label))
		} else if names[w.Name] {
			errs = append(errs, fmt.Sprintf("webhook %s: duplicate name", label))
		}
		names[w.Name] = true
		if u, err := url.Parse(w.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("webhook %s: url must be an absolute http(s) URL", label))
		}
		switch w.Type {
		case "", "generic", "slack":
		default:
			errs = append(errs, fmt.Sprintf("webhook %s: type must be generic or slack, got %q", label, w.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
