package integration

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Feature: tick, Property 3: Backoff never decreases and never exceeds the cap
func TestProperty_BackoffMonotonicAndCapped(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		initial := time.Duration(rapid.Int64Range(1, int64(time.Minute)).Draw(rt, "initial"))
		maxDelay := initial * time.Duration(rapid.Int64Range(1, 10_000).Draw(rt, "factor"))
		p := RetryPolicy{InitialDelay: initial, MaxDelay: maxDelay, MaxAttempts: 5}

		prev := time.Duration(0)
		for n := 0; n < 80; n++ {
			d := p.Delay(n)
			if d < prev {
				rt.Fatalf("Delay(%d) = %v < Delay(%d) = %v", n, d, n-1, prev)
			}
			if d > maxDelay || d < initial {
				rt.Fatalf("Delay(%d) = %v outside [%v, %v]", n, d, initial, maxDelay)
			}
			prev = d
		}
	})
}

// Feature: tick, Property 4: Dead-lettered items are never retryable
func TestProperty_DeadLetteredItemsNotRetryable(t *testing.T) {
	dir := t.TempDir()
	run := 0
	rapid.Check(t, func(rt *rapid.T) {
		run++
		maxAttempts := rapid.IntRange(1, 6).Draw(rt, "maxAttempts")
		q, err := NewRetryQueue(filepath.Join(dir, fmt.Sprintf("q-%d.json", run)),
			RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Minute, MaxAttempts: maxAttempts})
		if err != nil {
			rt.Fatalf("NewRetryQueue: %v", err)
		}
		defer os.Remove(q.Path())

		now := queueEpoch
		q.now = func() time.Time { return now }

		item, err := q.Enqueue(hook, "task.created", "", nil)
		if err != nil {
			rt.Fatalf("Enqueue: %v", err)
		}
		failures := rapid.IntRange(0, 8).Draw(rt, "failures")
		for i := 0; i < failures; i++ {
			if err := q.UpdateQueueItem(item.ID, false, "down"); err != nil {
				rt.Fatalf("UpdateQueueItem: %v", err)
			}
		}

		now = now.Add(24 * time.Hour)
		items, _ := q.Items()
		due, _ := q.GetRetryableItems()
		dead := items[0].Status == QueueFailed
		if dead != (1+failures >= maxAttempts) && failures > 0 {
			rt.Fatalf("status %s after %d failures with max %d", items[0].Status, failures, maxAttempts)
		}
		if dead && len(due) != 0 {
			rt.Fatalf("dead-lettered item returned as retryable")
		}
		if !dead && len(due) != 1 {
			rt.Fatalf("pending item not returned as retryable")
		}
	})
}
