package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tick-md/tick/internal/core"
	"github.com/tick-md/tick/internal/storage"
	"github.com/tick-md/tick/pkg/models"
)

func TestTaskCommands_Registration(t *testing.T) {
	want := []string{"init", "add", "claim", "release", "done", "reopen", "comment", "delete", "show", "edit",
		"list", "status", "agent", "locks", "queue", "history", "log", "metrics", "alerts", "validate", "sync", "completion", "version"}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("expected %q command to be registered", name)
		}
	}
}

func TestAddCommand_CreatesTask(t *testing.T) {
	env := setupEnv(t)
	swap(t, &addPriority, "high")
	swap(t, &addTags, []string{"api"})
	swap(t, &addDue, "2026-04-01")

	out := env.run(t, addCmd, "Write", "the", "parser")
	if !strings.Contains(out, "TICK-001") || !strings.Contains(out, "Write the parser") {
		t.Errorf("output = %q", out)
	}

	task := env.task(t, "TICK-001")
	if task.Priority != models.PriorityHigh {
		t.Errorf("Priority = %q, want high", task.Priority)
	}
	if task.Status != models.StatusBacklog || task.CreatedBy != "@alice" {
		t.Errorf("task = %+v", task)
	}
	if task.DueDate == nil || task.DueDate.Format("2006-01-02") != "2026-04-01" {
		t.Errorf("DueDate = %v", task.DueDate)
	}
	if len(task.Tags) != 1 || task.Tags[0] != "api" {
		t.Errorf("Tags = %v", task.Tags)
	}
}

func TestAddCommand_RejectsBadInput(t *testing.T) {
	env := setupEnv(t)

	swap(t, &addPriority, "someday")
	if _, err := env.try(addCmd, "Task"); err == nil || !strings.Contains(err.Error(), "invalid priority") {
		t.Errorf("bad priority: err = %v", err)
	}

	addPriority = "medium"
	swap(t, &addDue, "next week")
	if _, err := env.try(addCmd, "Task"); err == nil || !strings.Contains(err.Error(), "invalid date") {
		t.Errorf("bad due date: err = %v", err)
	}
}

func TestAddCommand_NoIdentity(t *testing.T) {
	env := setupEnv(t)
	swap(t, &actorFlag, "")
	swap(t, &addPriority, "medium")

	_, err := env.try(addCmd, "Anonymous")
	if err == nil || !strings.Contains(err.Error(), "no identity") {
		t.Errorf("err = %v, want no identity", err)
	}
}

func TestTaskLifecycle_ClaimDoneReopen(t *testing.T) {
	env := setupEnv(t)
	swap(t, &addPriority, "medium")
	env.run(t, addCmd, "Schema")
	swap(t, &addDependsOn, []string{"TICK-001"})
	env.run(t, addCmd, "Migration")

	if _, err := env.try(claimCmd, "TICK-002"); err == nil || !strings.Contains(err.Error(), "waiting on TICK-001") {
		t.Errorf("claim before dependency done: err = %v", err)
	}

	out := env.run(t, claimCmd, "TICK-001")
	if !strings.Contains(out, "Claimed") || !strings.Contains(out, "in_progress") {
		t.Errorf("claim output = %q", out)
	}
	if _, held, _ := Locks.Get("TICK-001"); !held {
		t.Error("claim should leave a lock")
	}

	swap(t, &actorFlag, "@bob")
	_, err := env.try(claimCmd, "TICK-001")
	var locked *storage.AlreadyLockedError
	if !errors.As(err, &locked) || locked.Holder != "@alice" {
		t.Errorf("second claim: err = %v, want AlreadyLockedError naming @alice", err)
	}

	actorFlag = "@alice"
	swap(t, &doneNote, "shipped")
	out = env.run(t, doneCmd, "TICK-001")
	if !strings.Contains(out, "Completed") {
		t.Errorf("done output = %q", out)
	}
	if _, held, _ := Locks.Get("TICK-001"); held {
		t.Error("done should release the lock")
	}
	done := env.task(t, "TICK-001")
	last := done.History[len(done.History)-1]
	if last.Note != "shipped" || done.ClaimedBy != "" {
		t.Errorf("done task = %+v", done)
	}

	env.run(t, claimCmd, "TICK-002")

	out = env.run(t, reopenCmd, "TICK-001")
	if !strings.Contains(out, "reopened") {
		t.Errorf("reopen output = %q", out)
	}
}

func TestReleaseCommand(t *testing.T) {
	env := setupEnv(t)
	swap(t, &addPriority, "medium")
	env.run(t, addCmd, "Task")
	env.run(t, claimCmd, "TICK-001")

	swap(t, &actorFlag, "@bob")
	if _, err := env.try(releaseCmd, "TICK-001"); err == nil {
		t.Error("release by a non-holder should fail")
	}

	actorFlag = "@alice"
	swap(t, &releaseNote, "out of time")
	env.run(t, releaseCmd, "TICK-001")

	task := env.task(t, "TICK-001")
	if task.ClaimedBy != "" || task.Status == models.StatusInProgress {
		t.Errorf("released task = %+v", task)
	}
	if locks, _ := Locks.List(); len(locks) != 0 {
		t.Errorf("locks after release = %+v", locks)
	}
}

func TestCommentShowAndDelete(t *testing.T) {
	env := setupEnv(t)
	swap(t, &addPriority, "medium")
	swap(t, &addDescription, "Longer notes")
	env.run(t, addCmd, "Task")

	env.run(t, commentCmd, "TICK-001", "looks", "good")

	out := env.run(t, showCmd, "TICK-001")
	for _, want := range []string{"TICK-001", "Longer notes", "History", "looks good"} {
		if !strings.Contains(out, want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}

	swap(t, &showJSON, true)
	out = env.run(t, showCmd, "TICK-001")
	var task models.Task
	if err := json.Unmarshal([]byte(out), &task); err != nil {
		t.Fatalf("show --json is not JSON: %v\n%s", err, out)
	}
	if task.ID != "TICK-001" {
		t.Errorf("JSON task ID = %q", task.ID)
	}

	env.run(t, deleteCmd, "TICK-001")
	_, err := env.try(showCmd, "TICK-001")
	var notFound *core.TaskNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("show after delete: err = %v, want TaskNotFoundError", err)
	}
}

func TestEditCommand(t *testing.T) {
	env := setupEnv(t)
	swap(t, &addPriority, "medium")
	env.run(t, addCmd, "Draft")
	env.run(t, addCmd, "Other")

	setFlag(t, editCmd, "title", "Final")
	setFlag(t, editCmd, "priority", "urgent")
	setFlag(t, editCmd, "assign", "bob")
	setFlag(t, editCmd, "deliverable", "design=docs/design.md")
	setFlag(t, editCmd, "blocks", "TICK-002")
	setFlag(t, editCmd, "note", "rescoped")

	out := env.run(t, editCmd, "TICK-001")
	if !strings.Contains(out, "Updated") {
		t.Errorf("edit output = %q", out)
	}

	task := env.task(t, "TICK-001")
	if task.Title != "Final" || task.Priority != models.PriorityUrgent || task.AssignedTo != "@bob" {
		t.Errorf("edited task = %+v", task)
	}
	if len(task.Deliverables) != 1 || task.Deliverables[0].Path != "docs/design.md" {
		t.Errorf("Deliverables = %+v", task.Deliverables)
	}
	other := env.task(t, "TICK-002")
	if len(other.DependsOn) != 1 || other.DependsOn[0] != "TICK-001" {
		t.Errorf("blocks link not mirrored: DependsOn = %v", other.DependsOn)
	}
}

func TestEditCommand_RejectsCycle(t *testing.T) {
	env := setupEnv(t)
	swap(t, &addPriority, "medium")
	env.run(t, addCmd, "First")
	swap(t, &addDependsOn, []string{"TICK-001"})
	env.run(t, addCmd, "Second")

	setFlag(t, editCmd, "depends-on", "TICK-002")
	if _, err := env.try(editCmd, "TICK-001"); err == nil {
		t.Error("expected a cycle to be rejected")
	}
	if deps := env.task(t, "TICK-001").DependsOn; len(deps) != 0 {
		t.Errorf("document changed after rejected edit: DependsOn = %v", deps)
	}
}

func TestEditCommand_DueFlagsConflict(t *testing.T) {
	env := setupEnv(t)
	swap(t, &addPriority, "medium")
	env.run(t, addCmd, "Task")

	setFlag(t, editCmd, "due", "2026-05-01")
	setFlag(t, editCmd, "clear-due", "true")
	if _, err := env.try(editCmd, "TICK-001"); err == nil || !strings.Contains(err.Error(), "mutually exclusive") {
		t.Errorf("err = %v, want mutually exclusive", err)
	}
}

func TestHistoryCompactCommand(t *testing.T) {
	env := setupEnv(t)
	swap(t, &addPriority, "medium")
	env.run(t, addCmd, "Chatty")
	for i := 0; i < 5; i++ {
		env.run(t, commentCmd, "TICK-001", "note")
	}

	swap(t, &compactKeep, 2)
	out := env.run(t, historyCompactCmd, "TICK-001")
	if !strings.Contains(out, "4 history entries remain") {
		t.Errorf("output = %q", out)
	}

	swap(t, &compactKeep, -1)
	if _, err := env.try(historyCompactCmd, "TICK-001"); err == nil {
		t.Error("expected error for negative --keep")
	}
}

func TestClaimCommand_RejectsActorWithTab(t *testing.T) {
	env := setupEnv(t)
	swap(t, &addPriority, "medium")
	env.run(t, addCmd, "Task")

	swap(t, &actorFlag, "@bad\tname")
	var invalid *core.InvalidNameError
	if _, err := env.try(claimCmd, "TICK-001"); !errors.As(err, &invalid) {
		t.Errorf("err = %v, want InvalidNameError", err)
	}

	actorFlag = "@alice"
	env.run(t, claimCmd, "TICK-001")
	out := env.run(t, locksListCmd)
	if !strings.Contains(out, "TICK-001") {
		t.Errorf("locks list after rejected claim = %q", out)
	}
}
