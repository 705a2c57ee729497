package models

import "time"

// WebhookConfig describes an outbound notification destination.
// Events filters which event types are sent; empty means all.
type WebhookConfig struct {
	Name   string   `yaml:"name" mapstructure:"name"`
	URL    string   `yaml:"url" mapstructure:"url"`
	Type   string   `yaml:"type" mapstructure:"type"`
	Events []string `yaml:"events,omitempty" mapstructure:"events"`
}

// Accepts reports whether the webhook subscribes to the given event type.
func (w WebhookConfig) Accepts(eventType string) bool {
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// QueueConfig holds retry-queue tuning.
type QueueConfig struct {
	File         string        `yaml:"file" mapstructure:"file"`
	InitialDelay time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	MaxAttempts  int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// GitConfig controls the opportunistic source-control sync after writes.
type GitConfig struct {
	AutoCommit bool `yaml:"auto_commit" mapstructure:"auto_commit"`
	AutoPush   bool `yaml:"auto_push" mapstructure:"auto_push"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AlertConfig holds thresholds for `tick alerts`. Zero disables a check.
type AlertConfig struct {
	StaleAfter   time.Duration `yaml:"stale_after" mapstructure:"stale_after"`
	BlockedAfter time.Duration `yaml:"blocked_after" mapstructure:"blocked_after"`
	ReviewAfter  time.Duration `yaml:"review_after" mapstructure:"review_after"`
	MaxBacklog   int           `yaml:"max_backlog" mapstructure:"max_backlog"`
}

// TickConfig holds settings read from .tickconfig via Viper.
type TickConfig struct {
	Document       string          `yaml:"document" mapstructure:"document"`
	DefaultAgent   string          `yaml:"default_agent" mapstructure:"default_agent"`
	IDPadWidth     int             `yaml:"id_pad_width" mapstructure:"id_pad_width"`
	AllowSymlinks  bool            `yaml:"allow_symlinks" mapstructure:"allow_symlinks"`
	LockFile       string          `yaml:"lock_file" mapstructure:"lock_file"`
	LockMaxAge     time.Duration   `yaml:"lock_max_age" mapstructure:"lock_max_age"`
	JournalFile    string          `yaml:"journal_file" mapstructure:"journal_file"`
	CommandTimeout time.Duration   `yaml:"command_timeout" mapstructure:"command_timeout"`
	Queue          QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Git            GitConfig       `yaml:"git" mapstructure:"git"`
	Log            LogConfig       `yaml:"log" mapstructure:"log"`
	Alerts         AlertConfig     `yaml:"alerts" mapstructure:"alerts"`
	Webhooks       []WebhookConfig `yaml:"webhooks,omitempty" mapstructure:"webhooks"`
}
