package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tick-md/tick/internal/storage"
	"github.com/tick-md/tick/pkg/models"
)

// InitOptions configures a new document.
type InitOptions struct {
	Project  string
	Title    string
	IDPrefix string
	Notes    string
}

// NewTaskOptions holds the fields a caller may set when adding a task.
type NewTaskOptions struct {
	Title          string
	Description    string
	Priority       models.Priority
	AssignedTo     string
	Tags           []string
	DependsOn      []string
	Blocks         []string
	DueDate        *time.Time
	EstimatedHours *float64
	DetailFile     string
}

// TaskEdit lists field changes; nil fields are left untouched.
type TaskEdit struct {
	Title          *string
	Status         *models.TaskStatus
	Priority       *models.Priority
	AssignedTo     *string
	Tags           *[]string
	DependsOn      *[]string
	Blocks         *[]string
	DueDate        *time.Time
	ClearDueDate   bool
	EstimatedHours *float64
	ActualHours    *float64
	DetailFile     *string
	Description    *string
	Deliverables   *[]models.Deliverable
	Note           string
}

// TaskFilter selects tasks for ListTasks. Zero values match everything.
type TaskFilter struct {
	Status     []models.TaskStatus
	Priority   []models.Priority
	ClaimedBy  string
	AssignedTo string
	Tags       []string
}

func (f TaskFilter) matches(t *models.Task) bool {
	if len(f.Status) > 0 && !containsStatus(f.Status, t.Status) {
		return false
	}
	if len(f.Priority) > 0 {
		found := false
		for _, p := range f.Priority {
			if p == t.Priority {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ClaimedBy != "" && t.ClaimedBy != f.ClaimedBy {
		return false
	}
	if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
		return false
	}
	for _, tag := range f.Tags {
		if !contains(t.Tags, tag) {
			return false
		}
	}
	return true
}

// TaskManager defines the task coordination operations. Every mutation reads
// the document with a fingerprint, applies the change, and writes it back
// only if nobody else wrote in between.
type TaskManager interface {
	Init(ctx context.Context, caller Caller, opts InitOptions) (*models.TickFile, error)
	Document(ctx context.Context) (*models.TickFile, error)
	AddTask(ctx context.Context, caller Caller, opts NewTaskOptions) (*models.Task, error)
	ClaimTask(ctx context.Context, caller Caller, taskID string) (*models.Task, error)
	ReleaseTask(ctx context.Context, caller Caller, taskID, note string) (*models.Task, error)
	CompleteTask(ctx context.Context, caller Caller, taskID, note string) (*models.Task, error)
	ReopenTask(ctx context.Context, caller Caller, taskID, note string) (*models.Task, error)
	CommentTask(ctx context.Context, caller Caller, taskID, note string) (*models.Task, error)
	EditTask(ctx context.Context, caller Caller, taskID string, edit TaskEdit) (*models.Task, error)
	DeleteTask(ctx context.Context, caller Caller, taskID string) error
	CompactHistory(ctx context.Context, caller Caller, taskID string, keep int) (*models.Task, error)
	RegisterAgent(ctx context.Context, caller Caller, agent models.Agent) (*models.Agent, error)
	SetAgentStatus(ctx context.Context, caller Caller, name string, status models.AgentStatus, workingOn string) (*models.Agent, error)
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error)
	Validate(ctx context.Context) (*ValidationResult, error)
	CleanupLocks(ctx context.Context, maxAge time.Duration, now time.Time) (int, error)
}

// TaskManagerOptions carries the optional collaborators of a TaskManager.
// Nil collaborators are skipped.
type TaskManagerOptions struct {
	PadWidth   int
	Journal    EventLogger
	Notifier   EventNotifier
	Sync       SourceSync
	AutoCommit bool
	AutoPush   bool
	Logger     *slog.Logger
}

// taskManager implements TaskManager over a DocumentStore and a TaskLocker.
type taskManager struct {
	docPath    string
	store      DocumentStore
	locks      TaskLocker
	padWidth   int
	journal    EventLogger
	notifier   EventNotifier
	sync       SourceSync
	autoCommit bool
	autoPush   bool
	logger     *slog.Logger
}

// NewTaskManager creates a TaskManager for the document at docPath.
func NewTaskManager(docPath string, store DocumentStore, locks TaskLocker, opts TaskManagerOptions) TaskManager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &taskManager{
		docPath:    docPath,
		store:      store,
		locks:      locks,
		padWidth:   opts.PadWidth,
		journal:    opts.Journal,
		notifier:   opts.Notifier,
		sync:       opts.Sync,
		autoCommit: opts.AutoCommit,
		autoPush:   opts.AutoPush,
		logger:     logger,
	}
}

// mutation is the outcome of an in-memory change: the events to publish once
// the document has been written.
type mutation struct {
	events []models.TaskEvent
}

func (m *mutation) add(doc *models.TickFile, caller Caller, eventType string, t *models.Task, from, to models.TaskStatus, msg string) {
	ev := models.TaskEvent{
		Type:    eventType,
		Project: doc.Meta.Project,
		Actor:   caller.Actor,
		At:      caller.At,
		From:    from,
		To:      to,
		Message: msg,
	}
	if t != nil {
		ev.TaskID = t.ID
		ev.Title = t.Title
	}
	m.events = append(m.events, ev)
}

// update runs fn against a fresh copy of the document and writes the result
// guarded by the fingerprint taken at read time.
func (tm *taskManager) update(ctx context.Context, caller Caller, fn func(doc *models.TickFile, m *mutation) error) (*models.TickFile, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, fp, err := tm.store.ReadWithFingerprint(tm.docPath)
	if err != nil {
		return nil, err
	}
	m := &mutation{}
	if err := fn(doc, m); err != nil {
		return nil, err
	}
	doc.Touch(caller.At)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := tm.store.WriteIfUnchanged(tm.docPath, doc, &fp); err != nil {
		return nil, err
	}
	tm.afterCommit(ctx, m.events)
	return doc, nil
}

// afterCommit publishes events and syncs source control. Failures here never
// undo the committed write; they are logged.
func (tm *taskManager) afterCommit(ctx context.Context, events []models.TaskEvent) {
	for _, ev := range events {
		if tm.journal != nil {
			if err := tm.journal.LogEvent(ev); err != nil {
				tm.logger.Warn("journal write failed", "event", ev.Type, "task", ev.TaskID, "error", err)
			}
		}
		if tm.notifier != nil {
			if err := tm.notifier.Notify(ev); err != nil {
				tm.logger.Warn("queueing notification failed", "event", ev.Type, "task", ev.TaskID, "error", err)
			}
		}
	}

	if tm.sync == nil || !tm.autoCommit || len(events) == 0 {
		return
	}
	msg := "tick: " + events[0].Message
	if err := tm.sync.Stage(ctx, []string{tm.docPath}); err != nil {
		tm.logger.Warn("git stage failed", "error", err)
		return
	}
	if err := tm.sync.Commit(ctx, msg); err != nil {
		tm.logger.Warn("git commit failed", "error", err)
		return
	}
	if tm.autoPush {
		if err := tm.sync.Push(ctx); err != nil {
			tm.logger.Warn("git push failed", "error", err)
		}
	}
}

// Init creates the document. It fails if one already exists. A non-empty
// caller is registered as the project owner.
func (tm *taskManager) Init(ctx context.Context, caller Caller, opts InitOptions) (*models.TickFile, error) {
	if caller.At.IsZero() {
		return nil, fmt.Errorf("caller timestamp is required")
	}
	if opts.Project == "" {
		return nil, fmt.Errorf("project name is required")
	}
	exists, err := tm.store.Exists(tm.docPath)
	if err != nil {
		return nil, fmt.Errorf("initializing project: %w", err)
	}
	if exists {
		return nil, &DocumentExistsError{Path: tm.docPath}
	}

	if caller.Actor != "" {
		if err := validateAgentName(caller.Actor); err != nil {
			return nil, err
		}
	}
	prefix := opts.IDPrefix
	if prefix == "" {
		prefix = DerivePrefix(opts.Project)
	} else if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	doc := &models.TickFile{
		Meta: models.ProjectMeta{
			Project:         opts.Project,
			Title:           opts.Title,
			SchemaVersion:   models.SchemaVersion,
			Created:         caller.At,
			Updated:         caller.At,
			DefaultWorkflow: append([]string(nil), models.DefaultWorkflow...),
			IDPrefix:        prefix,
			NextID:          1,
		},
		Notes: opts.Notes,
	}
	if caller.Actor != "" {
		doc.Agents = []models.Agent{{
			Name:       caller.Actor,
			Type:       models.AgentHuman,
			Roles:      []string{"owner"},
			Status:     models.AgentIdle,
			LastActive: caller.At,
			TrustLevel: models.TrustOwner,
		}}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := tm.store.WriteIfUnchanged(tm.docPath, doc, nil); err != nil {
		return nil, fmt.Errorf("initializing project: %w", err)
	}

	m := &mutation{}
	m.add(doc, caller, models.EventProjectInit, nil, "", "", fmt.Sprintf("initialized project %s", opts.Project))
	tm.afterCommit(ctx, m.events)
	return doc, nil
}

// Document returns the current document.
func (tm *taskManager) Document(ctx context.Context) (*models.TickFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, _, err := tm.store.ReadWithFingerprint(tm.docPath)
	return doc, err
}

// AddTask mints an ID from next_id and appends a backlog task. Links are kept
// symmetric; references to missing tasks and new cycles are rejected.
func (tm *taskManager) AddTask(ctx context.Context, caller Caller, opts NewTaskOptions) (*models.Task, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return nil, fmt.Errorf("task title is required")
	}
	if opts.Priority != "" && !opts.Priority.Valid() {
		return nil, fmt.Errorf("unknown priority %q", opts.Priority)
	}

	var created models.Task
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		before := ValidateDocument(doc)

		entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionCreated)
		if err != nil {
			return err
		}
		task := models.Task{
			ID:             mintTaskID(doc, tm.padWidth),
			Title:          strings.TrimSpace(opts.Title),
			Status:         models.StatusBacklog,
			Priority:       opts.Priority,
			AssignedTo:     opts.AssignedTo,
			CreatedBy:      caller.Actor,
			CreatedAt:      caller.At,
			Tags:           dedupe(opts.Tags),
			DueDate:        opts.DueDate,
			EstimatedHours: opts.EstimatedHours,
			DetailFile:     opts.DetailFile,
			Description:    strings.TrimSpace(opts.Description),
		}
		task.Append(entry)
		doc.Tasks = append(doc.Tasks, task)

		t := doc.Task(task.ID)
		setDependsOn(doc, t, dedupe(opts.DependsOn))
		setBlocks(doc, t, dedupe(opts.Blocks))

		if introduced := introducedErrors(before, ValidateDocument(doc)); len(introduced) > 0 {
			return &InvalidGraphError{Issues: introduced}
		}
		created = t.Clone()
		m.add(doc, caller, models.EventTaskCreated, t, "", models.StatusBacklog, fmt.Sprintf("%s created %s: %s", caller.Actor, t.ID, t.Title))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("adding task: %w", err)
	}
	return &created, nil
}

// ClaimTask takes the advisory lock first and then records the claim in the
// document. If the document write fails the lock is released again.
func (tm *taskManager) ClaimTask(ctx context.Context, caller Caller, taskID string) (*models.Task, error) {
	if err := caller.validate(); err != nil {
		return nil, err
	}
	doc, err := tm.Document(ctx)
	if err != nil {
		return nil, fmt.Errorf("claiming %s: %w", taskID, err)
	}
	if err := checkClaimable(doc, taskID); err != nil {
		return nil, fmt.Errorf("claiming %s: %w", taskID, err)
	}

	if _, err := tm.locks.Acquire(taskID, caller.Actor, caller.At); err != nil {
		return nil, fmt.Errorf("claiming %s: %w", taskID, err)
	}

	var claimed models.Task
	_, err = tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		if err := checkClaimable(doc, taskID); err != nil {
			return err
		}
		t := doc.Task(taskID)
		if t.ClaimedBy != "" {
			return &storage.AlreadyLockedError{TaskID: taskID, Holder: t.ClaimedBy}
		}
		from := t.Status
		entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionClaimed)
		if err != nil {
			return err
		}
		t.Status = models.StatusInProgress
		t.ClaimedBy = caller.Actor
		t.Append(entry.WithTransition(from, models.StatusInProgress))
		markAgent(doc, caller, models.AgentWorking, taskID)

		claimed = t.Clone()
		m.add(doc, caller, models.EventTaskClaimed, t, from, t.Status, fmt.Sprintf("%s claimed %s: %s", caller.Actor, t.ID, t.Title))
		return nil
	})
	if err != nil {
		if relErr := tm.locks.Release(taskID, caller.Actor); relErr != nil {
			tm.logger.Warn("rolling back task lock failed", "task", taskID, "agent", caller.Actor, "error", relErr)
		}
		return nil, fmt.Errorf("claiming %s: %w", taskID, err)
	}
	return &claimed, nil
}

func checkClaimable(doc *models.TickFile, taskID string) error {
	t := doc.Task(taskID)
	if t == nil {
		return &TaskNotFoundError{ID: taskID}
	}
	if t.Status == models.StatusDone {
		return &InvalidTransitionError{TaskID: taskID, Op: "claim", Status: t.Status, Reason: "task is already done"}
	}
	var pending []string
	for _, dep := range t.DependsOn {
		if d := doc.Task(dep); d == nil || d.Status != models.StatusDone {
			pending = append(pending, dep)
		}
	}
	if len(pending) > 0 {
		return &InvalidTransitionError{TaskID: taskID, Op: "claim", Status: t.Status,
			Reason: "waiting on " + strings.Join(pending, ", ")}
	}
	return nil
}

// ReleaseTask gives a claimed task back to the pool. The caller must be the
// claimant recorded in the document or the holder of the lock.
func (tm *taskManager) ReleaseTask(ctx context.Context, caller Caller, taskID, note string) (*models.Task, error) {
	var released models.Task
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		t := doc.Task(taskID)
		if t == nil {
			return &TaskNotFoundError{ID: taskID}
		}
		switch {
		case t.ClaimedBy == caller.Actor:
		case t.ClaimedBy != "":
			return &storage.WrongHolderError{TaskID: taskID, Agent: caller.Actor, Holder: t.ClaimedBy}
		default:
			lock, ok, err := tm.locks.Get(taskID)
			if err != nil {
				return err
			}
			if !ok {
				return &storage.NotLockedError{TaskID: taskID}
			}
			if lock.Agent != caller.Actor {
				return &storage.WrongHolderError{TaskID: taskID, Agent: caller.Actor, Holder: lock.Agent}
			}
		}

		from := t.Status
		entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionReleased)
		if err != nil {
			return err
		}
		t.ClaimedBy = ""
		t.Status = models.StatusTodo
		t.Append(entry.WithNote(note).WithTransition(from, models.StatusTodo))
		markAgent(doc, caller, models.AgentIdle, "")

		released = t.Clone()
		m.add(doc, caller, models.EventTaskReleased, t, from, t.Status, fmt.Sprintf("%s released %s: %s", caller.Actor, t.ID, t.Title))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("releasing %s: %w", taskID, err)
	}
	tm.releaseLock(taskID, caller.Actor)
	return &released, nil
}

// releaseLock drops the caller's lock after a committed write. A missing
// lock is fine; any other failure leaves a stale lock for cleanup.
func (tm *taskManager) releaseLock(taskID, agent string) {
	err := tm.locks.Release(taskID, agent)
	var notLocked *storage.NotLockedError
	if err == nil || errors.As(err, &notLocked) {
		return
	}
	tm.logger.Warn("task lock not released; run `tick locks cleanup`", "task", taskID, "agent", agent, "error", err)
}

// CompleteTask marks a task done, clears its claimant, releases the lock and
// unblocks dependents whose dependencies are now all done.
func (tm *taskManager) CompleteTask(ctx context.Context, caller Caller, taskID, note string) (*models.Task, error) {
	var completed models.Task
	var claimant string
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		t := doc.Task(taskID)
		if t == nil {
			return &TaskNotFoundError{ID: taskID}
		}
		if t.Status == models.StatusDone {
			return &InvalidTransitionError{TaskID: taskID, Op: "complete", Status: t.Status, Reason: "task is already done"}
		}
		if t.ClaimedBy != "" && t.ClaimedBy != caller.Actor {
			return &storage.WrongHolderError{TaskID: taskID, Agent: caller.Actor, Holder: t.ClaimedBy}
		}

		claimant = t.ClaimedBy
		from := t.Status
		entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionCompleted)
		if err != nil {
			return err
		}
		t.Status = models.StatusDone
		t.ClaimedBy = ""
		t.Append(entry.WithNote(note).WithTransition(from, models.StatusDone))
		markAgent(doc, caller, models.AgentIdle, "")

		completed = t.Clone()
		m.add(doc, caller, models.EventTaskCompleted, t, from, models.StatusDone, fmt.Sprintf("%s completed %s: %s", caller.Actor, t.ID, t.Title))
		unblockDependents(doc, caller, taskID, "dependencies complete", m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("completing %s: %w", taskID, err)
	}
	if claimant != "" {
		tm.releaseLock(taskID, claimant)
	}
	return &completed, nil
}

// ReopenTask moves a done task to reopened and blocks dependents that are
// not done yet.
func (tm *taskManager) ReopenTask(ctx context.Context, caller Caller, taskID, note string) (*models.Task, error) {
	var reopened models.Task
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		t := doc.Task(taskID)
		if t == nil {
			return &TaskNotFoundError{ID: taskID}
		}
		if t.Status != models.StatusDone {
			return &InvalidTransitionError{TaskID: taskID, Op: "reopen", Status: t.Status, Reason: "only done tasks can be reopened"}
		}
		entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionReopened)
		if err != nil {
			return err
		}
		t.Status = models.StatusReopened
		t.Append(entry.WithNote(note).WithTransition(models.StatusDone, models.StatusReopened))
		reopened = t.Clone()
		m.add(doc, caller, models.EventTaskReopened, t, models.StatusDone, models.StatusReopened, fmt.Sprintf("%s reopened %s: %s", caller.Actor, t.ID, t.Title))

		return reblockDependents(doc, caller, taskID, taskID+" was reopened", m)
	})
	if err != nil {
		return nil, fmt.Errorf("reopening %s: %w", taskID, err)
	}
	return &reopened, nil
}

// CommentTask appends a comment to a task's history.
func (tm *taskManager) CommentTask(ctx context.Context, caller Caller, taskID, note string) (*models.Task, error) {
	if strings.TrimSpace(note) == "" {
		return nil, fmt.Errorf("comment must not be empty")
	}
	var commented models.Task
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		t := doc.Task(taskID)
		if t == nil {
			return &TaskNotFoundError{ID: taskID}
		}
		entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionCommented)
		if err != nil {
			return err
		}
		t.Append(entry.WithNote(strings.TrimSpace(note)))
		commented = t.Clone()
		m.add(doc, caller, models.EventTaskCommented, t, "", "", fmt.Sprintf("%s commented on %s: %s", caller.Actor, t.ID, note))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("commenting on %s: %w", taskID, err)
	}
	return &commented, nil
}

// EditTask applies field changes and records them in a single history entry.
// Setting the status to done clears the claimant and releases its lock, and
// moving a task out of done re-blocks its unfinished dependents. A task only
// enters in_progress through ClaimTask.
func (tm *taskManager) EditTask(ctx context.Context, caller Caller, taskID string, edit TaskEdit) (*models.Task, error) {
	if edit.Status != nil && !edit.Status.Valid() {
		return nil, fmt.Errorf("editing %s: unknown status %q", taskID, *edit.Status)
	}
	if edit.Priority != nil && !edit.Priority.Valid() {
		return nil, fmt.Errorf("editing %s: unknown priority %q", taskID, *edit.Priority)
	}

	var edited models.Task
	var releasedBy string
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		t := doc.Task(taskID)
		if t == nil {
			return &TaskNotFoundError{ID: taskID}
		}
		before := ValidateDocument(doc)

		var changed []string
		from := t.Status
		if edit.Title != nil && strings.TrimSpace(*edit.Title) != t.Title {
			t.Title = strings.TrimSpace(*edit.Title)
			changed = append(changed, "title")
		}
		if edit.Status != nil && *edit.Status != t.Status {
			if *edit.Status == models.StatusInProgress {
				return &InvalidTransitionError{TaskID: taskID, Op: "edit", Status: t.Status, Reason: "use claim to start work on a task"}
			}
			t.Status = *edit.Status
			changed = append(changed, "status")
			if t.Status == models.StatusDone && t.ClaimedBy != "" {
				releasedBy = t.ClaimedBy
				t.ClaimedBy = ""
			}
		}
		if edit.Priority != nil && *edit.Priority != t.Priority {
			t.Priority = *edit.Priority
			changed = append(changed, "priority")
		}
		if edit.AssignedTo != nil && *edit.AssignedTo != t.AssignedTo {
			t.AssignedTo = *edit.AssignedTo
			changed = append(changed, "assigned_to")
		}
		if edit.Tags != nil && !equalStrings(dedupe(*edit.Tags), t.Tags) {
			t.Tags = dedupe(*edit.Tags)
			changed = append(changed, "tags")
		}
		if edit.DependsOn != nil && !equalStrings(dedupe(*edit.DependsOn), t.DependsOn) {
			setDependsOn(doc, t, dedupe(*edit.DependsOn))
			changed = append(changed, "depends_on")
		}
		if edit.Blocks != nil && !equalStrings(dedupe(*edit.Blocks), t.Blocks) {
			setBlocks(doc, t, dedupe(*edit.Blocks))
			changed = append(changed, "blocks")
		}
		if edit.ClearDueDate && t.DueDate != nil {
			t.DueDate = nil
			changed = append(changed, "due_date")
		} else if edit.DueDate != nil && (t.DueDate == nil || !t.DueDate.Equal(*edit.DueDate)) {
			due := *edit.DueDate
			t.DueDate = &due
			changed = append(changed, "due_date")
		}
		if edit.EstimatedHours != nil && !equalHours(t.EstimatedHours, edit.EstimatedHours) {
			v := *edit.EstimatedHours
			t.EstimatedHours = &v
			changed = append(changed, "estimated_hours")
		}
		if edit.ActualHours != nil && !equalHours(t.ActualHours, edit.ActualHours) {
			v := *edit.ActualHours
			t.ActualHours = &v
			changed = append(changed, "actual_hours")
		}
		if edit.DetailFile != nil && *edit.DetailFile != t.DetailFile {
			t.DetailFile = *edit.DetailFile
			changed = append(changed, "detail_file")
		}
		if edit.Description != nil && strings.TrimSpace(*edit.Description) != t.Description {
			t.Description = strings.TrimSpace(*edit.Description)
			changed = append(changed, "description")
		}
		if edit.Deliverables != nil {
			t.Deliverables = append([]models.Deliverable(nil), (*edit.Deliverables)...)
			changed = append(changed, "deliverables")
		}
		if len(changed) == 0 {
			return fmt.Errorf("nothing to change")
		}
		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("task title must not be empty")
		}

		if introduced := introducedErrors(before, ValidateDocument(doc)); len(introduced) > 0 {
			return &InvalidGraphError{Issues: introduced}
		}

		action := models.ActionUpdated
		if len(changed) == 1 && changed[0] == "assigned_to" {
			action = models.ActionAssigned
		}
		entry, err := models.NewHistoryEntry(caller.At, caller.Actor, action)
		if err != nil {
			return err
		}
		note := "changed " + strings.Join(changed, ", ")
		if edit.Note != "" {
			note += ": " + edit.Note
		}
		entry = entry.WithNote(note)
		if t.Status != from {
			entry = entry.WithTransition(from, t.Status)
		}
		t.Append(entry)

		edited = t.Clone()
		m.add(doc, caller, models.EventTaskUpdated, t, from, t.Status, fmt.Sprintf("%s updated %s: %s", caller.Actor, t.ID, note))
		switch {
		case t.Status == models.StatusDone && from != models.StatusDone:
			unblockDependents(doc, caller, taskID, "dependencies complete", m)
		case from == models.StatusDone && t.Status != models.StatusDone:
			return reblockDependents(doc, caller, taskID, fmt.Sprintf("%s moved back to %s", taskID, t.Status), m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("editing %s: %w", taskID, err)
	}
	if releasedBy != "" {
		tm.releaseLock(taskID, releasedBy)
	}
	return &edited, nil
}

// DeleteTask removes a task, scrubs references to it, unblocks dependents
// left without dependencies and drops any lock on it.
func (tm *taskManager) DeleteTask(ctx context.Context, caller Caller, taskID string) error {
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		idx := -1
		for i := range doc.Tasks {
			if doc.Tasks[i].ID == taskID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return &TaskNotFoundError{ID: taskID}
		}
		removed := doc.Tasks[idx]
		doc.Tasks = append(doc.Tasks[:idx], doc.Tasks[idx+1:]...)
		m.add(doc, caller, models.EventTaskDeleted, &removed, removed.Status, "", fmt.Sprintf("%s deleted %s: %s", caller.Actor, removed.ID, removed.Title))

		for i := range doc.Tasks {
			t := &doc.Tasks[i]
			hadDep := contains(t.DependsOn, taskID)
			hadBlock := contains(t.Blocks, taskID)
			if !hadDep && !hadBlock {
				continue
			}
			t.DependsOn = without(t.DependsOn, taskID)
			t.Blocks = without(t.Blocks, taskID)

			if hadDep && len(t.DependsOn) == 0 && t.Status == models.StatusBlocked {
				entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionUnblocked)
				if err != nil {
					return err
				}
				t.Status = models.StatusTodo
				t.Append(entry.WithNote(taskID + " was deleted").WithTransition(models.StatusBlocked, models.StatusTodo))
				m.add(doc, caller, models.EventTaskUnblocked, t, models.StatusBlocked, models.StatusTodo, fmt.Sprintf("%s unblocked: %s was deleted", t.ID, taskID))
				continue
			}
			entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionUpdated)
			if err != nil {
				return err
			}
			t.Append(entry.WithNote("removed reference to deleted " + taskID))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", taskID, err)
	}
	if _, err := tm.locks.ForceRelease(taskID); err != nil {
		tm.logger.Warn("lock on deleted task not removed", "task", taskID, "error", err)
	}
	return nil
}

// CompactHistory keeps the created entry and the last keep entries, then
// records the compaction itself.
func (tm *taskManager) CompactHistory(ctx context.Context, caller Caller, taskID string, keep int) (*models.Task, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must not be negative")
	}
	var compacted models.Task
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		t := doc.Task(taskID)
		if t == nil {
			return &TaskNotFoundError{ID: taskID}
		}

		var created []models.HistoryEntry
		var rest []models.HistoryEntry
		for _, h := range t.History {
			if h.Action == models.ActionCreated && len(created) == 0 {
				created = append(created, h)
				continue
			}
			rest = append(rest, h)
		}
		if len(rest) <= keep {
			return fmt.Errorf("history has %d entries after creation, nothing to compact", len(rest))
		}
		dropped := len(rest) - keep
		t.History = append(created, rest[dropped:]...)

		entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionCompacted)
		if err != nil {
			return err
		}
		t.Append(entry.WithNote(fmt.Sprintf("removed %d entries", dropped)))
		compacted = t.Clone()
		m.add(doc, caller, models.EventTaskUpdated, t, "", "", fmt.Sprintf("%s compacted history of %s", caller.Actor, t.ID))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("compacting %s: %w", taskID, err)
	}
	return &compacted, nil
}

// RegisterAgent adds an agent to the roster or updates an existing entry.
func (tm *taskManager) RegisterAgent(ctx context.Context, caller Caller, agent models.Agent) (*models.Agent, error) {
	if err := validateAgentName(agent.Name); err != nil {
		return nil, err
	}
	if len(agent.Roles) == 0 {
		return nil, fmt.Errorf("agent %s needs at least one role", agent.Name)
	}
	if agent.Type == "" {
		agent.Type = models.AgentHuman
	}
	if agent.Status == "" {
		agent.Status = models.AgentIdle
	}
	if agent.TrustLevel == "" {
		agent.TrustLevel = models.TrustTrusted
	}
	if agent.LastActive.IsZero() {
		agent.LastActive = caller.At
	}

	var registered models.Agent
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		if existing := doc.Agent(agent.Name); existing != nil {
			*existing = agent
		} else {
			doc.Agents = append(doc.Agents, agent)
		}
		registered = agent
		m.add(doc, caller, models.EventAgentUpdated, nil, "", "", fmt.Sprintf("%s registered agent %s", caller.Actor, agent.Name))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registering agent %s: %w", agent.Name, err)
	}
	return &registered, nil
}

// SetAgentStatus updates an agent's availability and current task.
func (tm *taskManager) SetAgentStatus(ctx context.Context, caller Caller, name string, status models.AgentStatus, workingOn string) (*models.Agent, error) {
	switch status {
	case models.AgentWorking, models.AgentIdle, models.AgentOffline:
	default:
		return nil, fmt.Errorf("unknown agent status %q", status)
	}
	var updated models.Agent
	_, err := tm.update(ctx, caller, func(doc *models.TickFile, m *mutation) error {
		a := doc.Agent(name)
		if a == nil {
			return &AgentNotFoundError{Name: name}
		}
		a.Status = status
		a.WorkingOn = workingOn
		a.LastActive = caller.At
		updated = *a
		m.add(doc, caller, models.EventAgentUpdated, nil, "", "", fmt.Sprintf("%s is %s", name, status))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating agent %s: %w", name, err)
	}
	return &updated, nil
}

// GetTask returns a copy of one task.
func (tm *taskManager) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	doc, err := tm.Document(ctx)
	if err != nil {
		return nil, err
	}
	t := doc.Task(taskID)
	if t == nil {
		return nil, &TaskNotFoundError{ID: taskID}
	}
	c := t.Clone()
	return &c, nil
}

// ListTasks returns matching tasks in document order.
func (tm *taskManager) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	doc, err := tm.Document(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Task
	for i := range doc.Tasks {
		if filter.matches(&doc.Tasks[i]) {
			out = append(out, doc.Tasks[i].Clone())
		}
	}
	return out, nil
}

// Validate reads the document and validates its task graph.
func (tm *taskManager) Validate(ctx context.Context) (*ValidationResult, error) {
	doc, err := tm.Document(ctx)
	if err != nil {
		return nil, err
	}
	return ValidateDocument(doc), nil
}

// CleanupLocks removes stale locks held by dead local processes.
func (tm *taskManager) CleanupLocks(ctx context.Context, maxAge time.Duration, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := tm.locks.Cleanup(maxAge, now)
	if err != nil {
		return 0, fmt.Errorf("cleaning up locks: %w", err)
	}
	if n > 0 {
		tm.logger.Info("removed stale locks", "count", n)
	}
	return n, nil
}

// reblockDependents moves dependents of taskID that are not done back to
// blocked.
func reblockDependents(doc *models.TickFile, caller Caller, taskID, reason string, m *mutation) error {
	for i := range doc.Tasks {
		dep := &doc.Tasks[i]
		if !contains(dep.DependsOn, taskID) || dep.Status == models.StatusDone || dep.Status == models.StatusBlocked {
			continue
		}
		from := dep.Status
		blocked, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionBlocked)
		if err != nil {
			return err
		}
		dep.Status = models.StatusBlocked
		dep.Append(blocked.WithNote(reason).WithTransition(from, models.StatusBlocked))
		m.add(doc, caller, models.EventTaskBlocked, dep, from, models.StatusBlocked, fmt.Sprintf("%s blocked again: %s", dep.ID, reason))
	}
	return nil
}

// unblockDependents moves blocked tasks waiting on taskID to todo once every
// task they depend on is done.
func unblockDependents(doc *models.TickFile, caller Caller, taskID, reason string, m *mutation) {
	for i := range doc.Tasks {
		dep := &doc.Tasks[i]
		if dep.Status != models.StatusBlocked || !contains(dep.DependsOn, taskID) {
			continue
		}
		ready := true
		for _, id := range dep.DependsOn {
			if d := doc.Task(id); d == nil || d.Status != models.StatusDone {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		entry, err := models.NewHistoryEntry(caller.At, caller.Actor, models.ActionUnblocked)
		if err != nil {
			continue
		}
		dep.Status = models.StatusTodo
		dep.Append(entry.WithNote(reason).WithTransition(models.StatusBlocked, models.StatusTodo))
		m.add(doc, caller, models.EventTaskUnblocked, dep, models.StatusBlocked, models.StatusTodo, fmt.Sprintf("%s unblocked: %s", dep.ID, reason))
	}
}

// markAgent updates the caller's roster entry if the caller is registered.
func markAgent(doc *models.TickFile, caller Caller, status models.AgentStatus, workingOn string) {
	a := doc.Agent(caller.Actor)
	if a == nil {
		return
	}
	a.Status = status
	a.WorkingOn = workingOn
	a.LastActive = caller.At
}

// setDependsOn replaces t.DependsOn and mirrors the change into the blocks
// lists of the tasks involved.
func setDependsOn(doc *models.TickFile, t *models.Task, deps []string) {
	for _, old := range t.DependsOn {
		if other := doc.Task(old); other != nil && !contains(deps, old) {
			other.Blocks = without(other.Blocks, t.ID)
		}
	}
	t.DependsOn = deps
	for _, id := range deps {
		if other := doc.Task(id); other != nil && !contains(other.Blocks, t.ID) {
			other.Blocks = append(other.Blocks, t.ID)
		}
	}
}

// setBlocks replaces t.Blocks and mirrors the change into the depends_on
// lists of the tasks involved.
func setBlocks(doc *models.TickFile, t *models.Task, blocks []string) {
	for _, old := range t.Blocks {
		if other := doc.Task(old); other != nil && !contains(blocks, old) {
			other.DependsOn = without(other.DependsOn, t.ID)
		}
	}
	t.Blocks = blocks
	for _, id := range blocks {
		if other := doc.Task(id); other != nil && !contains(other.DependsOn, t.ID) {
			other.DependsOn = append(other.DependsOn, t.ID)
		}
	}
}

func containsStatus(list []models.TaskStatus, s models.TaskStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func without(list []string, s string) []string {
	var out []string
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(list []string) []string {
	var out []string
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalHours(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
