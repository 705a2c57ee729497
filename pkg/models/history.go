package models

import (
	"fmt"
	"time"
)

// HistoryAction is the keyword recorded for each history entry.
type HistoryAction string

const (
	ActionCreated   HistoryAction = "created"
	ActionClaimed   HistoryAction = "claimed"
	ActionReleased  HistoryAction = "released"
	ActionCompleted HistoryAction = "completed"
	ActionCommented HistoryAction = "commented"
	ActionBlocked   HistoryAction = "blocked"
	ActionUnblocked HistoryAction = "unblocked"
	ActionReopened  HistoryAction = "reopened"
	ActionUpdated   HistoryAction = "updated"
	ActionAssigned  HistoryAction = "assigned"
	ActionCompacted HistoryAction = "compacted"
)

var knownActions = map[HistoryAction]bool{
	ActionCreated:   true,
	ActionClaimed:   true,
	ActionReleased:  true,
	ActionCompleted: true,
	ActionCommented: true,
	ActionBlocked:   true,
	ActionUnblocked: true,
	ActionReopened:  true,
	ActionUpdated:   true,
	ActionAssigned:  true,
	ActionCompacted: true,
}

// Valid reports whether a is a known action keyword.
func (a HistoryAction) Valid() bool {
	return knownActions[a]
}

// HistoryEntry records one mutation of a task. Note, From and To are the
// only optional fields; From and To are set together for status transitions.
type HistoryEntry struct {
	At     time.Time
	Actor  string
	Action HistoryAction
	Note   string
	From   TaskStatus
	To     TaskStatus
}

// NewHistoryEntry builds an entry after checking the actor and action.
func NewHistoryEntry(at time.Time, actor string, action HistoryAction) (HistoryEntry, error) {
	if actor == "" {
		return HistoryEntry{}, fmt.Errorf("history entry: actor must not be empty")
	}
	if !action.Valid() {
		return HistoryEntry{}, fmt.Errorf("history entry: unknown action %q", action)
	}
	if at.IsZero() {
		return HistoryEntry{}, fmt.Errorf("history entry: timestamp must be set")
	}
	return HistoryEntry{At: at, Actor: actor, Action: action}, nil
}

// WithNote returns a copy of the entry carrying the given note.
func (e HistoryEntry) WithNote(note string) HistoryEntry {
	e.Note = note
	return e
}

// WithTransition returns a copy of the entry recording a status change.
func (e HistoryEntry) WithTransition(from, to TaskStatus) HistoryEntry {
	e.From = from
	e.To = to
	return e
}

// IsTransition reports whether the entry records a status change.
func (e HistoryEntry) IsTransition() bool {
	return e.From != "" || e.To != ""
}
