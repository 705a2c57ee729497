package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tick-md/tick/internal/observability"
	"github.com/tick-md/tick/pkg/models"
)

// PayloadRenderer turns events and alerts into webhook bodies.
type PayloadRenderer interface {
	Render(kind string, ev models.TaskEvent) ([]byte, error)
	RenderAlerts(kind, project string, alerts []observability.Alert, now time.Time) ([]byte, error)
}

// Deliverer posts a rendered payload.
type Deliverer interface {
	Deliver(ctx context.Context, url string, payload []byte) error
}

// NotificationDispatcher fans committed events out to the configured
// webhooks. It never touches the network: every payload goes through the
// retry queue and is delivered by a QueueWorker.
type NotificationDispatcher struct {
	webhooks []models.WebhookConfig
	renderer PayloadRenderer
	queue    *RetryQueue
}

// NewNotificationDispatcher creates a dispatcher for webhooks.
func NewNotificationDispatcher(webhooks []models.WebhookConfig, renderer PayloadRenderer, queue *RetryQueue) *NotificationDispatcher {
	return &NotificationDispatcher{webhooks: webhooks, renderer: renderer, queue: queue}
}

// Notify enqueues ev for every webhook subscribed to its type. A failure for
// one destination does not stop the others; all failures are returned
// together.
func (d *NotificationDispatcher) Notify(ev models.TaskEvent) error {
	var errs []error
	for _, w := range d.webhooks {
		if !w.Accepts(ev.Type) {
			continue
		}
		payload, err := d.renderer.Render(w.Type, ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", w.Name, err))
			continue
		}
		if _, err := d.queue.Enqueue(destinationFor(w), ev.Type, ev.Message, payload); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", w.Name, err))
		}
	}
	return errors.Join(errs...)
}

// NotifyAlerts enqueues one alert summary per webhook that accepts
// "alerts.triggered". It returns the number of queued notifications.
func (d *NotificationDispatcher) NotifyAlerts(project string, alerts []observability.Alert, now time.Time) (int, error) {
	if len(alerts) == 0 {
		return 0, nil
	}
	const eventType = "alerts.triggered"
	var errs []error
	queued := 0
	for _, w := range d.webhooks {
		if !w.Accepts(eventType) {
			continue
		}
		payload, err := d.renderer.RenderAlerts(w.Type, project, alerts, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", w.Name, err))
			continue
		}
		msg := fmt.Sprintf("%d alerts for %s", len(alerts), project)
		if _, err := d.queue.Enqueue(destinationFor(w), eventType, msg, payload); err != nil {
			errs = append(errs, fmt.Errorf("webhook %s: %w", w.Name, err))
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}

func destinationFor(w models.WebhookConfig) Destination {
	return Destination{Name: w.Name, URL: w.URL, Type: w.Type}
}
