package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Lock is one advisory claim on a task.
type Lock struct {
	TaskID     string
	Agent      string
	PID        int
	AcquiredAt time.Time
}

// LockManager keeps the advisory lock table in a side file, one lock per
// line as `taskId<TAB>agent<TAB>pid<TAB>RFC3339 timestamp`. Every operation
// reloads the whole file and every mutation rewrites it through a temp file
// and rename. The table is never locked at the OS level; a crashed writer
// leaves either the old or the new file behind.
type LockManager struct {
	path  string
	pid   int
	alive func(pid int) bool
	mu    sync.Mutex
}

// NewLockManager creates a LockManager for the lock file at path. Locks it
// records carry the current process id.
func NewLockManager(path string) *LockManager {
	return &LockManager{
		path:  path,
		pid:   os.Getpid(),
		alive: processAlive,
	}
}

// Path returns the lock file location.
func (m *LockManager) Path() string { return m.path }

// Acquire records a lock on taskID for agent. It fails with
// *AlreadyLockedError naming the holder if any lock on the task exists.
func (m *LockManager) Acquire(taskID, agent string, at time.Time) (Lock, error) {
	if !validLockField(taskID) {
		return Lock{}, &InvalidLockFieldError{Field: "task ID", Value: taskID}
	}
	if !validLockField(agent) {
		return Lock{}, &InvalidLockFieldError{Field: "agent", Value: agent}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	locks, err := m.load()
	if err != nil {
		return Lock{}, err
	}
	for _, l := range locks {
		if l.TaskID == taskID {
			return Lock{}, &AlreadyLockedError{TaskID: taskID, Holder: l.Agent}
		}
	}

	lock := Lock{TaskID: taskID, Agent: agent, PID: m.pid, AcquiredAt: at.UTC().Truncate(time.Second)}
	locks = append(locks, lock)
	if err := m.save(locks); err != nil {
		return Lock{}, err
	}
	return lock, nil
}

// Release removes agent's lock on taskID.
func (m *LockManager) Release(taskID, agent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	locks, err := m.load()
	if err != nil {
		return err
	}
	idx := indexOf(locks, taskID)
	if idx < 0 {
		return &NotLockedError{TaskID: taskID}
	}
	if locks[idx].Agent != agent {
		return &WrongHolderError{TaskID: taskID, Agent: agent, Holder: locks[idx].Agent}
	}
	return m.save(append(locks[:idx], locks[idx+1:]...))
}

// ForceRelease removes any lock on taskID regardless of holder. It reports
// whether a lock was removed.
func (m *LockManager) ForceRelease(taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	locks, err := m.load()
	if err != nil {
		return false, err
	}
	idx := indexOf(locks, taskID)
	if idx < 0 {
		return false, nil
	}
	if err := m.save(append(locks[:idx], locks[idx+1:]...)); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the lock on taskID, if any.
func (m *LockManager) Get(taskID string) (Lock, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	locks, err := m.load()
	if err != nil {
		return Lock{}, false, err
	}
	if idx := indexOf(locks, taskID); idx >= 0 {
		return locks[idx], true, nil
	}
	return Lock{}, false, nil
}

// List returns every lock ordered by task ID.
func (m *LockManager) List() ([]Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	locks, err := m.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].TaskID < locks[j].TaskID })
	return locks, nil
}

// Cleanup removes locks older than maxAge whose owning process is confirmed
// gone from this machine, and returns how many were removed. Locks taken on
// other machines cannot be told apart from live ones.
func (m *LockManager) Cleanup(maxAge time.Duration, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	locks, err := m.load()
	if err != nil {
		return 0, err
	}
	kept := locks[:0]
	removed := 0
	for _, l := range locks {
		if now.Sub(l.AcquiredAt) > maxAge && !m.alive(l.PID) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := m.save(kept); err != nil {
		return 0, err
	}
	return removed, nil
}

func (m *LockManager) load() ([]Lock, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	return parseLocks(data)
}

func (m *LockManager) save(locks []Lock) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}
	if err := WriteFileAtomic(m.path, formatLocks(locks), 0o644); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

func parseLocks(data []byte) ([]Lock, error) {
	var locks []Lock
	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, &ParseError{Section: "lock file", Line: lineNo, Msg: fmt.Sprintf("expected 4 tab-separated fields, got %d", len(fields))}
		}
		pid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, &ParseError{Section: "lock file", Line: lineNo, Msg: "invalid process id", Err: err}
		}
		at, err := time.Parse(time.RFC3339, fields[3])
		if err != nil {
			return nil, &ParseError{Section: "lock file", Line: lineNo, Msg: "invalid timestamp", Err: err}
		}
		locks = append(locks, Lock{TaskID: fields[0], Agent: fields[1], PID: pid, AcquiredAt: at.UTC()})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning lock file: %w", err)
	}
	return locks, nil
}

func formatLocks(locks []Lock) []byte {
	var buf bytes.Buffer
	for _, l := range locks {
		fmt.Fprintf(&buf, "%s\t%s\t%d\t%s\n", l.TaskID, l.Agent, l.PID, l.AcquiredAt.UTC().Format(time.RFC3339))
	}
	return buf.Bytes()
}

func indexOf(locks []Lock, taskID string) int {
	for i, l := range locks {
		if l.TaskID == taskID {
			return i
		}
	}
	return -1
}

// validLockField reports whether s fits in one tab-separated field.
func validLockField(s string) bool {
	return s != "" && !strings.ContainsAny(s, "\t\r\n")
}
