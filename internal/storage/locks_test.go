package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var lockTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLockManager(t *testing.T) *LockManager {
	t.Helper()
	return NewLockManager(filepath.Join(t.TempDir(), ".tick", "locks"))
}

func TestLockManager_AcquireAndRelease(t *testing.T) {
	m := newTestLockManager(t)

	lock, err := m.Acquire("T-001", "@alice", lockTime)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if lock.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", lock.PID, os.Getpid())
	}

	data, err := os.ReadFile(m.Path())
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("T-001\t@alice\t%d\t2026-03-01T12:00:00Z\n", os.Getpid())
	if string(data) != want {
		t.Errorf("lock file = %q, want %q", data, want)
	}

	if err := m.Release("T-001", "@alice"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, ok, _ := m.Get("T-001"); ok {
		t.Error("lock still present after release")
	}
}

func TestLockManager_SecondAcquireNamesHolder(t *testing.T) {
	m := newTestLockManager(t)
	if _, err := m.Acquire("T-001", "@alice", lockTime); err != nil {
		t.Fatal(err)
	}

	_, err := m.Acquire("T-001", "@bob", lockTime)
	var al *AlreadyLockedError
	if !errors.As(err, &al) {
		t.Fatalf("expected *AlreadyLockedError, got %v", err)
	}
	if al.Holder != "@alice" || !strings.Contains(err.Error(), "@alice") {
		t.Errorf("error should name @alice: %v", err)
	}
}

func TestLockManager_ReleaseErrors(t *testing.T) {
	m := newTestLockManager(t)

	var nl *NotLockedError
	if err := m.Release("T-001", "@alice"); !errors.As(err, &nl) {
		t.Errorf("expected *NotLockedError, got %v", err)
	}

	if _, err := m.Acquire("T-001", "@alice", lockTime); err != nil {
		t.Fatal(err)
	}
	var wh *WrongHolderError
	err := m.Release("T-001", "@bob")
	if !errors.As(err, &wh) {
		t.Fatalf("expected *WrongHolderError, got %v", err)
	}
	if wh.Holder != "@alice" {
		t.Errorf("Holder = %q, want @alice", wh.Holder)
	}
}

func TestLockManager_ForceRelease(t *testing.T) {
	m := newTestLockManager(t)
	if _, err := m.Acquire("T-001", "@alice", lockTime); err != nil {
		t.Fatal(err)
	}
	removed, err := m.ForceRelease("T-001")
	if err != nil || !removed {
		t.Fatalf("ForceRelease = %v, %v", removed, err)
	}
	removed, err = m.ForceRelease("T-001")
	if err != nil || removed {
		t.Errorf("second ForceRelease = %v, %v; want false, nil", removed, err)
	}
}

func TestLockManager_CleanupRemovesOnlyOldDeadLocks(t *testing.T) {
	m := newTestLockManager(t)
	dead := map[int]bool{111: true, 222: true}
	m.alive = func(pid int) bool { return !dead[pid] }

	lines := strings.Join([]string{
		"T-001\t@a\t111\t2026-03-01T00:00:00Z", // old, dead
		"T-002\t@b\t222\t2026-03-01T11:59:00Z", // recent, dead
		"T-003\t@c\t333\t2026-03-01T00:00:00Z", // old, alive
	}, "\n") + "\n"
	if err := os.MkdirAll(filepath.Dir(m.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.Path(), []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := m.Cleanup(time.Hour, lockTime)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d locks, want 1", n)
	}
	locks, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(locks) != 2 || locks[0].TaskID != "T-002" || locks[1].TaskID != "T-003" {
		t.Errorf("remaining locks = %+v", locks)
	}
}

func TestLockManager_MalformedFile(t *testing.T) {
	m := newTestLockManager(t)
	if err := os.MkdirAll(filepath.Dir(m.Path()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(m.Path(), []byte("T-001 @alice\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := m.List()
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != 1 {
		t.Errorf("expected *ParseError on line 1, got %v", err)
	}
}

func TestLockManager_ConcurrentAcquireOneWinner(t *testing.T) {
	m := newTestLockManager(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Acquire("T-001", fmt.Sprintf("@agent%d", i), lockTime); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestLockManager_RejectsFieldsThatBreakTheTable(t *testing.T) {
	m := newTestLockManager(t)

	var invalid *InvalidLockFieldError
	if _, err := m.Acquire("T-001", "@bad\tname", lockTime); !errors.As(err, &invalid) || invalid.Field != "agent" {
		t.Errorf("tab in agent: err = %v, want InvalidLockFieldError for agent", err)
	}
	if _, err := m.Acquire("T-001\nT-002", "@alice", lockTime); !errors.As(err, &invalid) || invalid.Field != "task ID" {
		t.Errorf("newline in task ID: err = %v, want InvalidLockFieldError for task ID", err)
	}

	if _, err := m.Acquire("T-002", "@alice", lockTime); err != nil {
		t.Fatalf("Acquire after rejected fields: %v", err)
	}
	locks, err := m.List()
	if err != nil || len(locks) != 1 {
		t.Errorf("List = %+v, %v; want the single valid lock", locks, err)
	}
}
