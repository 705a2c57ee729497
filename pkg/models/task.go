package models

import "time"

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	StatusBacklog    TaskStatus = "backlog"
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
	StatusBlocked    TaskStatus = "blocked"
	StatusReopened   TaskStatus = "reopened"
)

// AllStatuses lists every status a task may carry, in workflow order.
var AllStatuses = []TaskStatus{
	StatusBacklog, StatusTodo, StatusInProgress, StatusReview,
	StatusDone, StatusBlocked, StatusReopened,
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank orders priorities from most to least urgent. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// Deliverable is a concrete output a task is expected to produce.
type Deliverable struct {
	Name      string
	Path      string
	Completed bool
}

// Task is a unit of work identified by a {prefix}-{sequence} ID. DependsOn
// lists tasks that must be done first; Blocks lists tasks waiting on this one.
// ClaimedBy is backed by the advisory lock file, AssignedTo is not.
type Task struct {
	ID             string
	Title          string
	Status         TaskStatus
	Priority       Priority
	AssignedTo     string
	ClaimedBy      string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DueDate        *time.Time
	Tags           []string
	DependsOn      []string
	Blocks         []string
	EstimatedHours *float64
	ActualHours    *float64
	DetailFile     string
	Deliverables   []Deliverable
	Description    string
	History        []HistoryEntry
}

// Append adds a history entry and bumps UpdatedAt to the entry's timestamp.
func (t *Task) Append(entry HistoryEntry) {
	t.History = append(t.History, entry)
	t.UpdatedAt = entry.At
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	c := t
	if t.DueDate != nil {
		due := *t.DueDate
		c.DueDate = &due
	}
	if t.EstimatedHours != nil {
		v := *t.EstimatedHours
		c.EstimatedHours = &v
	}
	if t.ActualHours != nil {
		v := *t.ActualHours
		c.ActualHours = &v
	}
	c.Tags = cloneStrings(t.Tags)
	c.DependsOn = cloneStrings(t.DependsOn)
	c.Blocks = cloneStrings(t.Blocks)
	if t.Deliverables != nil {
		c.Deliverables = append([]Deliverable(nil), t.Deliverables...)
	}
	if t.History != nil {
		c.History = append([]HistoryEntry(nil), t.History...)
	}
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
