package observability

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tick-md/tick/pkg/models"
)

// EventFilter specifies criteria for reading events. Zero values match all.
type EventFilter struct {
	Since  *time.Time
	Until  *time.Time
	Type   string
	TaskID string
	Actor  string
}

// EventReader reads back journal entries.
type EventReader interface {
	Read(filter EventFilter) ([]models.TaskEvent, error)
}

// Journal is the append-only activity journal. Each LogEvent opens the file
// in append mode, writes one line and closes it, so several short-lived
// processes can share the file.
type Journal struct {
	path string
	mu   sync.Mutex
}

// NewJournal creates a journal at path. The file is created on first write.
func NewJournal(path string) *Journal {
	return &Journal{path: path}
}

// Path returns the journal location.
func (j *Journal) Path() string { return j.path }

// LogEvent appends a JSON-encoded event followed by a newline.
func (j *Journal) LogEvent(event models.TaskEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("creating journal directory: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing event: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing journal: %w", err)
	}
	return nil
}

// Read scans the journal and returns events matching filter in file order.
// Malformed lines are skipped.
func (j *Journal) Read(filter EventFilter) ([]models.TaskEvent, error) {
	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening journal for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []models.TaskEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event models.TaskEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if matchesEventFilter(event, filter) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning journal: %w", err)
	}
	return events, nil
}

func matchesEventFilter(event models.TaskEvent, filter EventFilter) bool {
	if filter.Since != nil && event.At.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.At.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.TaskID != "" && event.TaskID != filter.TaskID {
		return false
	}
	if filter.Actor != "" && event.Actor != filter.Actor {
		return false
	}
	return true
}
