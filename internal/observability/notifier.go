package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tick-md/tick/pkg/models"
)

// Webhook payload kinds.
const (
	KindGeneric = "generic"
	KindSlack   = "slack"
)

// WebhookNotifier renders events into webhook payloads and posts them.
// Rendering happens at enqueue time; delivery happens later from the retry
// queue worker.
type WebhookNotifier struct {
	client    *http.Client
	userAgent string
}

// NewWebhookNotifier creates a notifier. A nil client gets a 10 second
// timeout.
func NewWebhookNotifier(client *http.Client, userAgent string) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = "tick"
	}
	return &WebhookNotifier{client: client, userAgent: userAgent}
}

type genericPayload struct {
	Event   string       `json:"event"`
	Project string       `json:"project"`
	Task    *genericTask `json:"task,omitempty"`
	Actor   string       `json:"actor"`
	At      time.Time    `json:"at"`
	Message string       `json:"message"`
	Alerts  []Alert      `json:"alerts,omitempty"`
}

type genericTask struct {
	ID    string            `json:"id"`
	Title string            `json:"title,omitempty"`
	From  models.TaskStatus `json:"from,omitempty"`
	To    models.TaskStatus `json:"to,omitempty"`
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Render builds the payload for one event in the given kind. An empty kind
// renders the generic JSON shape.
func (n *WebhookNotifier) Render(kind string, ev models.TaskEvent) ([]byte, error) {
	switch kind {
	case "", KindGeneric:
		p := genericPayload{
			Event:   ev.Type,
			Project: ev.Project,
			Actor:   ev.Actor,
			At:      ev.At,
			Message: ev.Message,
		}
		if ev.TaskID != "" {
			p.Task = &genericTask{ID: ev.TaskID, Title: ev.Title, From: ev.From, To: ev.To}
		}
		return marshalPayload(p)
	case KindSlack:
		return marshalPayload(slackEventMessage(ev))
	}
	return nil, fmt.Errorf("unknown webhook type %q", kind)
}

// RenderAlerts builds a single payload summarizing alerts.
func (n *WebhookNotifier) RenderAlerts(kind, project string, alerts []Alert, now time.Time) ([]byte, error) {
	switch kind {
	case "", KindGeneric:
		return marshalPayload(genericPayload{
			Event:   "alerts.triggered",
			Project: project,
			Actor:   "tick",
			At:      now,
			Message: fmt.Sprintf("%d alerts", len(alerts)),
			Alerts:  alerts,
		})
	case KindSlack:
		return marshalPayload(slackAlertMessage(project, alerts))
	}
	return nil, fmt.Errorf("unknown webhook type %q", kind)
}

// Deliver posts payload to url. Any non-2xx status is an error.
func (n *WebhookNotifier) Deliver(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func marshalPayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling webhook payload: %w", err)
	}
	return data, nil
}

func slackEventMessage(ev models.TaskEvent) slackMessage {
	headline := ev.Message
	if ev.TaskID != "" {
		headline = fmt.Sprintf("%s *%s* %s", eventEmoji(ev.Type), ev.TaskID, escapeSlack(ev.Title))
	}
	blocks := []slackBlock{{
		Type: "section",
		Text: &slackText{Type: "mrkdwn", Text: headline},
	}}

	parts := []string{ev.Actor}
	if ev.From != "" || ev.To != "" {
		parts = append(parts, fmt.Sprintf("%s → %s", orDash(string(ev.From)), orDash(string(ev.To))))
	}
	parts = append(parts, ev.Project, ev.At.UTC().Format("2006-01-02 15:04 UTC"))
	blocks = append(blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: strings.Join(parts, " · ")}},
	})
	return slackMessage{Text: ev.Message, Blocks: blocks}
}

func slackAlertMessage(project string, alerts []Alert) slackMessage {
	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: fmt.Sprintf("tick alerts: %s", project)},
	}}
	for i, alert := range alerts {
		if i > 0 {
			blocks = append(blocks, slackBlock{Type: "divider"})
		}
		text := fmt.Sprintf("%s *[%s]* %s",
			severityEmoji(alert.Severity),
			strings.ToUpper(string(alert.Severity)),
			escapeSlack(alert.Message),
		)
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: text},
		})
	}
	return slackMessage{Text: fmt.Sprintf("%d tick alerts for %s", len(alerts), project), Blocks: blocks}
}

func eventEmoji(eventType string) string {
	switch eventType {
	case models.EventTaskCreated:
		return "\U0001f195"
	case models.EventTaskClaimed:
		return "\U0001f6a7"
	case models.EventTaskCompleted:
		return "✅"
	case models.EventTaskReopened, models.EventTaskBlocked:
		return "⚠️"
	case models.EventTaskUnblocked:
		return "\U0001f513"
	case models.EventTaskDeleted:
		return "\U0001f5d1️"
	default:
		return "\U0001f4dd"
	}
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return "\U0001f534"
	case SeverityMedium:
		return "\U0001f7e1"
	case SeverityLow:
		return "\U0001f535"
	default:
		return "❓"
	}
}

// escapeSlack escapes the three characters Slack treats as control
// sequences in mrkdwn.
func escapeSlack(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
