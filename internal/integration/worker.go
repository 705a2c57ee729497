package integration

import (
	"context"
	"log/slog"
	"time"
)

// ProcessResult summarizes one pass over the due items.
type ProcessResult struct {
	Delivered    int `json:"delivered"`
	Failed       int `json:"failed"`
	DeadLettered int `json:"dead_lettered"`
}

// QueueWorker delivers due retry-queue items.
type QueueWorker struct {
	queue     *RetryQueue
	deliverer Deliverer
	logger    *slog.Logger
}

// NewQueueWorker creates a worker. A nil logger uses slog.Default().
func NewQueueWorker(queue *RetryQueue, deliverer Deliverer, logger *slog.Logger) *QueueWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueWorker{queue: queue, deliverer: deliverer, logger: logger}
}

// ProcessDue attempts every item whose next retry has elapsed, once each.
// Cancelling ctx stops the pass between items.
func (w *QueueWorker) ProcessDue(ctx context.Context) (ProcessResult, error) {
	var res ProcessResult
	items, err := w.queue.GetRetryableItems()
	if err != nil {
		return res, err
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		deliverErr := w.deliverer.Deliver(ctx, it.Destination.URL, it.Payload)
		if deliverErr == nil {
			if err := w.queue.UpdateQueueItem(it.ID, true, ""); err != nil {
				return res, err
			}
			res.Delivered++
			w.logger.Debug("notification delivered", "id", it.ID, "destination", it.Destination.Name, "event", it.Event)
			continue
		}

		if err := w.queue.UpdateQueueItem(it.ID, false, deliverErr.Error()); err != nil {
			return res, err
		}
		res.Failed++
		if it.Attempts+1 >= w.queue.Policy().MaxAttempts {
			res.DeadLettered++
			w.logger.Warn("notification dead-lettered",
				"id", it.ID, "destination", it.Destination.Name, "attempts", it.Attempts+1, "error", deliverErr)
		} else {
			w.logger.Info("notification delivery failed, will retry",
				"id", it.ID, "destination", it.Destination.Name, "attempts", it.Attempts+1, "error", deliverErr)
		}
	}
	return res, nil
}

// Run calls ProcessDue every interval until ctx is cancelled. Errors from a
// pass are logged and the loop continues.
func (w *QueueWorker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("processing retry queue", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
