package integration

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tick-md/tick/internal/storage"
)

//go:embed schema/retry_queue.json
var retryQueueSchema string

const queueFileVersion = 1

// QueueStatus marks whether an item is still scheduled or has been
// dead-lettered.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueFailed  QueueStatus = "failed"
)

// Destination describes where a queued notification is delivered.
type Destination struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// QueueItem is one pending or dead-lettered notification.
type QueueItem struct {
	ID          string          `json:"id"`
	Destination Destination     `json:"destination"`
	Event       string          `json:"event"`
	Message     string          `json:"message,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	LastAttempt *time.Time      `json:"last_attempt,omitempty"`
	Attempts    int             `json:"attempts"`
	NextRetry   *time.Time      `json:"next_retry,omitempty"`
	Status      QueueStatus     `json:"status"`
	LastError   string          `json:"last_error,omitempty"`
}

// Due reports whether the item should be delivered at now.
func (i QueueItem) Due(now time.Time) bool {
	return i.Status == QueuePending && i.NextRetry != nil && !i.NextRetry.After(now)
}

type queueFile struct {
	Version int         `json:"version"`
	Items   []QueueItem `json:"items"`
}

// QueueIOError reports a failure to read or write the queue file. Callers on
// the mutation path log it and carry on.
type QueueIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *QueueIOError) Error() string {
	return fmt.Sprintf("retry queue %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *QueueIOError) Unwrap() error { return e.Err }

// RetryPolicy controls backoff and dead-lettering.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// DefaultRetryPolicy returns 1s initial delay, a 5 minute cap and 5 attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Minute, MaxAttempts: 5}
}

// Delay returns min(InitialDelay * 2^attempts, MaxDelay).
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := p.InitialDelay
	for i := 0; i < attempts; i++ {
		if d >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		d *= 2
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// QueueStats summarizes the queue.
type QueueStats struct {
	Pending int `json:"pending"`
	Due     int `json:"due"`
	Failed  int `json:"failed"`
}

// RetryQueue is a durable, file-backed notification queue. The whole file is
// reloaded and rewritten atomically on every change.
type RetryQueue struct {
	path   string
	policy RetryPolicy
	schema *jsonschema.Schema
	now    func() time.Time
	newID  func() string

	mu sync.Mutex
}

// NewRetryQueue creates a queue persisted at path.
func NewRetryQueue(path string, policy RetryPolicy) (*RetryQueue, error) {
	if policy.InitialDelay <= 0 || policy.MaxDelay < policy.InitialDelay || policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("invalid retry policy %+v", policy)
	}
	schema, err := jsonschema.CompileString("retry_queue.json", retryQueueSchema)
	if err != nil {
		return nil, fmt.Errorf("compiling retry queue schema: %w", err)
	}
	return &RetryQueue{
		path:   path,
		policy: policy,
		schema: schema,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}, nil
}

// Path returns the queue file location.
func (q *RetryQueue) Path() string { return q.path }

// Policy returns the retry policy in effect.
func (q *RetryQueue) Policy() RetryPolicy { return q.policy }

// Enqueue adds a notification. The first attempt is scheduled one backoff
// step from now.
func (q *RetryQueue) Enqueue(dest Destination, event, message string, payload []byte) (QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return QueueItem{}, err
	}
	now := q.now()
	next := now.Add(q.policy.Delay(1))
	item := QueueItem{
		ID:          q.newID(),
		Destination: dest,
		Event:       event,
		Message:     message,
		Payload:     json.RawMessage(payload),
		CreatedAt:   now,
		Attempts:    1,
		NextRetry:   &next,
		Status:      QueuePending,
	}
	items = append(items, item)
	if err := q.save(items); err != nil {
		return QueueItem{}, err
	}
	return item, nil
}

// GetRetryableItems returns pending items whose next retry has elapsed,
// oldest schedule first.
func (q *RetryQueue) GetRetryableItems() ([]QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return nil, err
	}
	now := q.now()
	var due []QueueItem
	for _, it := range items {
		if it.Due(now) {
			due = append(due, it)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].NextRetry.Before(*due[j].NextRetry) })
	return due, nil
}

// UpdateQueueItem records a delivery attempt. Success removes the item.
// Failure increments the attempt counter and reschedules, or dead-letters
// the item once MaxAttempts is reached.
func (q *RetryQueue) UpdateQueueItem(id string, success bool, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return err
	}
	idx := -1
	for i := range items {
		if items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("queue item %s not found", id)
	}

	if success {
		items = append(items[:idx], items[idx+1:]...)
		return q.save(items)
	}

	now := q.now()
	it := &items[idx]
	it.Attempts++
	it.LastAttempt = &now
	it.LastError = errMsg
	if it.Attempts >= q.policy.MaxAttempts {
		it.Status = QueueFailed
		it.NextRetry = nil
	} else {
		next := now.Add(q.policy.Delay(it.Attempts))
		it.NextRetry = &next
	}
	return q.save(items)
}

// RequeueFailed resets every dead-lettered item to zero attempts, due now.
func (q *RetryQueue) RequeueFailed() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return 0, err
	}
	now := q.now()
	n := 0
	for i := range items {
		if items[i].Status != QueueFailed {
			continue
		}
		next := now
		items[i].Status = QueuePending
		items[i].Attempts = 0
		items[i].NextRetry = &next
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, q.save(items)
}

// PurgeFailed drops every dead-lettered item.
func (q *RetryQueue) PurgeFailed() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.load()
	if err != nil {
		return 0, err
	}
	kept := items[:0]
	for _, it := range items {
		if it.Status != QueueFailed {
			kept = append(kept, it)
		}
	}
	n := len(items) - len(kept)
	if n == 0 {
		return 0, nil
	}
	return n, q.save(kept)
}

// Items returns every queued item in insertion order.
func (q *RetryQueue) Items() ([]QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Stats counts pending, due and dead-lettered items.
func (q *RetryQueue) Stats() (QueueStats, error) {
	items, err := q.Items()
	if err != nil {
		return QueueStats{}, err
	}
	now := q.now()
	var s QueueStats
	for _, it := range items {
		switch it.Status {
		case QueueFailed:
			s.Failed++
		default:
			s.Pending++
			if it.Due(now) {
				s.Due++
			}
		}
	}
	return s, nil
}

// load reads and schema-checks the queue file. A missing or empty file is an
// empty queue.
func (q *RetryQueue) load() ([]QueueItem, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &QueueIOError{Path: q.path, Op: "read", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &QueueIOError{Path: q.path, Op: "parse", Err: err}
	}
	if err := q.schema.Validate(doc); err != nil {
		return nil, &QueueIOError{Path: q.path, Op: "validate", Err: err}
	}

	var f queueFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &QueueIOError{Path: q.path, Op: "parse", Err: err}
	}
	return f.Items, nil
}

func (q *RetryQueue) save(items []QueueItem) error {
	if items == nil {
		items = []QueueItem{}
	}
	data, err := json.Marshal(queueFile{Version: queueFileVersion, Items: items})
	if err != nil {
		return &QueueIOError{Path: q.path, Op: "encode", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return &QueueIOError{Path: q.path, Op: "write", Err: err}
	}
	if err := storage.WriteFileAtomic(q.path, append(data, '\n'), 0o644); err != nil {
		return &QueueIOError{Path: q.path, Op: "write", Err: err}
	}
	return nil
}
