package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/tick-md/tick/internal/storage"
	"github.com/tick-md/tick/pkg/models"
)

// DocumentStore is the subset of storage.AtomicStore that TaskManager needs.
type DocumentStore interface {
	ReadWithFingerprint(path string) (*models.TickFile, storage.Fingerprint, error)
	WriteIfUnchanged(path string, doc *models.TickFile, expected *storage.Fingerprint) (storage.Fingerprint, error)
	Exists(path string) (bool, error)
}

// TaskLocker is the subset of storage.LockManager that TaskManager needs.
type TaskLocker interface {
	Acquire(taskID, agent string, at time.Time) (storage.Lock, error)
	Release(taskID, agent string) error
	ForceRelease(taskID string) (bool, error)
	Get(taskID string) (storage.Lock, bool, error)
	Cleanup(maxAge time.Duration, now time.Time) (int, error)
}

// EventNotifier hands committed events to outbound notification delivery.
// Implementations must not block on the network.
type EventNotifier interface {
	Notify(event models.TaskEvent) error
}

// SourceSync is the source-control collaborator used after successful writes.
// Defining it here avoids importing the integration package.
type SourceSync interface {
	Stage(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string) error
	Push(ctx context.Context) error
}

// Caller identifies who performs a mutation and when. The core never infers
// either from the environment.
type Caller struct {
	Actor string
	At    time.Time
}

func (c Caller) validate() error {
	if c.Actor == "" {
		return fmt.Errorf("caller identity is required: pass --as or set TICK_AGENT")
	}
	if c.At.IsZero() {
		return fmt.Errorf("caller timestamp is required")
	}
	return validateAgentName(c.Actor)
}

// validateAgentName rejects names that would corrupt the roster table or the
// lock file.
func validateAgentName(name string) error {
	if name == "" {
		return fmt.Errorf("agent name is required")
	}
	bad := strings.IndexFunc(name, func(r rune) bool {
		return unicode.IsControl(r) || r == '|' || r == '\\'
	})
	if bad >= 0 {
		return &InvalidNameError{Kind: "agent name", Name: name, Hint: `control characters, "|" and "\" are not allowed`}
	}
	return nil
}
