package observability

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tick-md/tick/pkg/models"
)

var sampleEvent = models.TaskEvent{
	Type:    models.EventTaskClaimed,
	Project: "demo",
	TaskID:  "TICK-001",
	Title:   "Write <tests>",
	Actor:   "@alice",
	At:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	From:    models.StatusTodo,
	To:      models.StatusInProgress,
	Message: "@alice claimed TICK-001: Write <tests>",
}

func TestRender_Generic(t *testing.T) {
	n := NewWebhookNotifier(nil, "")
	data, err := n.Render(KindGeneric, sampleEvent)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["event"] != models.EventTaskClaimed || got["actor"] != "@alice" {
		t.Errorf("payload = %v", got)
	}
	task, ok := got["task"].(map[string]any)
	if !ok {
		t.Fatalf("payload has no task object: %v", got)
	}
	if task["id"] != "TICK-001" || task["to"] != "in_progress" {
		t.Errorf("task = %v", task)
	}
}

func TestRender_GenericWithoutTask(t *testing.T) {
	ev := sampleEvent
	ev.Type = models.EventAgentUpdated
	ev.TaskID = ""

	data, err := NewWebhookNotifier(nil, "").Render("", ev)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(string(data), `"task"`) {
		t.Errorf("payload %s should omit task", data)
	}
}

func TestRender_SlackBlocks(t *testing.T) {
	data, err := NewWebhookNotifier(nil, "").Render(KindSlack, sampleEvent)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var msg slackMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("payload is not a slack message: %v", err)
	}
	if msg.Text != sampleEvent.Message {
		t.Errorf("Text = %q", msg.Text)
	}
	if len(msg.Blocks) != 2 || msg.Blocks[0].Type != "section" || msg.Blocks[1].Type != "context" {
		t.Fatalf("blocks = %+v", msg.Blocks)
	}
	if !strings.Contains(msg.Blocks[0].Text.Text, "Write &lt;tests&gt;") {
		t.Errorf("title not escaped: %q", msg.Blocks[0].Text.Text)
	}
	if !strings.Contains(msg.Blocks[1].Elements[0].Text, "todo → in_progress") {
		t.Errorf("context = %q", msg.Blocks[1].Elements[0].Text)
	}
}

func TestRender_UnknownKind(t *testing.T) {
	if _, err := NewWebhookNotifier(nil, "").Render("teams", sampleEvent); err == nil {
		t.Fatal("expected an error for an unknown kind")
	}
}

func TestRenderAlerts_Slack(t *testing.T) {
	alerts := []Alert{
		{ID: "a", Severity: SeverityHigh, Message: "first"},
		{ID: "b", Severity: SeverityLow, Message: "second"},
	}
	data, err := NewWebhookNotifier(nil, "").RenderAlerts(KindSlack, "demo", alerts, sampleEvent.At)
	if err != nil {
		t.Fatalf("RenderAlerts: %v", err)
	}
	var msg slackMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// header + section + divider + section
	if len(msg.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(msg.Blocks))
	}
	if !strings.Contains(msg.Blocks[1].Text.Text, "[HIGH]") {
		t.Errorf("first alert = %q", msg.Blocks[1].Text.Text)
	}
}

func TestDeliver_PostsJSON(t *testing.T) {
	var body []byte
	var contentType, agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		agent = r.Header.Get("User-Agent")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.Client(), "tick/test")
	if err := n.Deliver(context.Background(), srv.URL, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if contentType != "application/json" || agent != "tick/test" {
		t.Errorf("headers = %q, %q", contentType, agent)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
}

func TestDeliver_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.Client(), "").Deliver(context.Background(), srv.URL, []byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected a 502 error, got %v", err)
	}
}

func TestDeliver_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewWebhookNotifier(srv.Client(), "").Deliver(ctx, srv.URL, []byte(`{}`)); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}
