package integration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var queueEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// testQueue returns a queue with a manual clock and sequential IDs.
func testQueue(t *testing.T, policy RetryPolicy) (*RetryQueue, *time.Time) {
	t.Helper()
	q, err := NewRetryQueue(filepath.Join(t.TempDir(), ".tick", "retry-queue.json"), policy)
	if err != nil {
		t.Fatalf("NewRetryQueue: %v", err)
	}
	now := queueEpoch
	seq := 0
	q.now = func() time.Time { return now }
	q.newID = func() string {
		seq++
		return fmt.Sprintf("item-%d", seq)
	}
	return q, &now
}

var hook = Destination{Name: "ops", URL: "https://hooks.example.com/tick", Type: "generic"}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{-1, time.Second},
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{1000, 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempts); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestNewRetryQueue_RejectsBadPolicy(t *testing.T) {
	bad := []RetryPolicy{
		{InitialDelay: 0, MaxDelay: time.Minute, MaxAttempts: 3},
		{InitialDelay: time.Minute, MaxDelay: time.Second, MaxAttempts: 3},
		{InitialDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 0},
	}
	for _, p := range bad {
		if _, err := NewRetryQueue(filepath.Join(t.TempDir(), "q.json"), p); err == nil {
			t.Errorf("expected error for policy %+v", p)
		}
	}
}

func TestEnqueue_SchedulesFirstAttempt(t *testing.T) {
	q, _ := testQueue(t, DefaultRetryPolicy())

	item, err := q.Enqueue(hook, "task.created", "created TICK-001", []byte(`{"event":"task.created"}`))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if item.Attempts != 1 || item.Status != QueuePending {
		t.Errorf("item = %+v", item)
	}
	if want := queueEpoch.Add(2 * time.Second); !item.NextRetry.Equal(want) {
		t.Errorf("NextRetry = %v, want %v", item.NextRetry, want)
	}

	items, err := q.Items()
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 || items[0].ID != "item-1" || string(items[0].Payload) != `{"event":"task.created"}` {
		t.Errorf("persisted items = %+v", items)
	}
}

func TestGetRetryableItems_OnlyDue(t *testing.T) {
	q, now := testQueue(t, DefaultRetryPolicy())
	for i := 0; i < 2; i++ {
		if _, err := q.Enqueue(hook, "task.created", "", nil); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		*now = now.Add(10 * time.Second)
	}

	// item-1 is due at +2s, item-2 at +12s.
	*now = queueEpoch.Add(5 * time.Second)
	due, err := q.GetRetryableItems()
	if err != nil {
		t.Fatalf("GetRetryableItems: %v", err)
	}
	if len(due) != 1 || due[0].ID != "item-1" {
		t.Fatalf("due = %+v, want item-1 only", due)
	}

	*now = queueEpoch.Add(time.Minute)
	due, _ = q.GetRetryableItems()
	if len(due) != 2 || due[0].ID != "item-1" {
		t.Errorf("due = %+v", due)
	}
}

func TestUpdateQueueItem_SuccessRemoves(t *testing.T) {
	q, _ := testQueue(t, DefaultRetryPolicy())
	item, _ := q.Enqueue(hook, "task.created", "", nil)

	if err := q.UpdateQueueItem(item.ID, true, ""); err != nil {
		t.Fatalf("UpdateQueueItem: %v", err)
	}
	items, _ := q.Items()
	if len(items) != 0 {
		t.Errorf("items = %+v, want empty", items)
	}
}

func TestUpdateQueueItem_FailureBacksOffThenDeadLetters(t *testing.T) {
	q, now := testQueue(t, RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 3})
	item, _ := q.Enqueue(hook, "task.created", "", nil)

	*now = queueEpoch.Add(time.Hour)
	if err := q.UpdateQueueItem(item.ID, false, "status 500"); err != nil {
		t.Fatalf("UpdateQueueItem: %v", err)
	}
	items, _ := q.Items()
	got := items[0]
	if got.Attempts != 2 || got.Status != QueuePending || got.LastError != "status 500" {
		t.Fatalf("after one failure: %+v", got)
	}
	if want := now.Add(4 * time.Second); !got.NextRetry.Equal(want) {
		t.Errorf("NextRetry = %v, want %v", got.NextRetry, want)
	}

	if err := q.UpdateQueueItem(item.ID, false, "status 502"); err != nil {
		t.Fatalf("UpdateQueueItem: %v", err)
	}
	items, _ = q.Items()
	got = items[0]
	if got.Status != QueueFailed || got.NextRetry != nil || got.Attempts != 3 {
		t.Fatalf("after reaching max attempts: %+v", got)
	}

	*now = now.Add(24 * time.Hour)
	due, _ := q.GetRetryableItems()
	if len(due) != 0 {
		t.Errorf("dead-lettered item returned as retryable: %+v", due)
	}
	stats, _ := q.Stats()
	if stats != (QueueStats{Failed: 1}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUpdateQueueItem_UnknownID(t *testing.T) {
	q, _ := testQueue(t, DefaultRetryPolicy())
	if err := q.UpdateQueueItem("nope", true, ""); err == nil {
		t.Fatal("expected an error for an unknown item")
	}
}

func TestRequeueAndPurgeFailed(t *testing.T) {
	q, now := testQueue(t, RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: 2})
	a, _ := q.Enqueue(hook, "task.created", "", nil)
	b, _ := q.Enqueue(hook, "task.claimed", "", nil)
	_ = q.UpdateQueueItem(a.ID, false, "down")
	_ = q.UpdateQueueItem(b.ID, false, "down")

	*now = now.Add(time.Minute)
	n, err := q.RequeueFailed()
	if err != nil || n != 2 {
		t.Fatalf("RequeueFailed = %d, %v", n, err)
	}
	due, _ := q.GetRetryableItems()
	if len(due) != 2 || due[0].Attempts != 0 {
		t.Fatalf("due after requeue = %+v", due)
	}

	_ = q.UpdateQueueItem(a.ID, false, "down")
	_ = q.UpdateQueueItem(a.ID, false, "down")
	n, err = q.PurgeFailed()
	if err != nil || n != 1 {
		t.Fatalf("PurgeFailed = %d, %v", n, err)
	}
	items, _ := q.Items()
	if len(items) != 1 || items[0].ID != b.ID {
		t.Errorf("items after purge = %+v", items)
	}

	if n, _ := q.PurgeFailed(); n != 0 {
		t.Errorf("second purge removed %d items", n)
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	tests := map[string]string{
		"not json":      `{"version":`,
		"wrong version": `{"version": 2, "items": []}`,
		"bad status":    `{"version": 1, "items": [{"id":"x","destination":{"name":"a","url":"u"},"event":"e","created_at":"2026-03-01T09:00:00Z","attempts":1,"status":"lost"}]}`,
		"pending without schedule": `{"version": 1, "items": [{"id":"x","destination":{"name":"a","url":"u"},"event":"e","created_at":"2026-03-01T09:00:00Z","attempts":1,"status":"pending"}]}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			q, _ := testQueue(t, DefaultRetryPolicy())
			if err := os.MkdirAll(filepath.Dir(q.Path()), 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(q.Path(), []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := q.Items()
			var ioErr *QueueIOError
			if !errors.As(err, &ioErr) {
				t.Fatalf("expected QueueIOError, got %v", err)
			}
		})
	}
}

func TestLoad_EmptyFileIsEmptyQueue(t *testing.T) {
	q, _ := testQueue(t, DefaultRetryPolicy())
	_ = os.MkdirAll(filepath.Dir(q.Path()), 0o755)
	if err := os.WriteFile(q.Path(), []byte("\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	items, err := q.Items()
	if err != nil || len(items) != 0 {
		t.Errorf("Items = %v, %v", items, err)
	}
}
