package models

import "time"

// Event types emitted after a successful document write.
const (
	EventTaskCreated   = "task.created"
	EventTaskClaimed   = "task.claimed"
	EventTaskReleased  = "task.released"
	EventTaskCompleted = "task.completed"
	EventTaskReopened  = "task.reopened"
	EventTaskUpdated   = "task.updated"
	EventTaskCommented = "task.commented"
	EventTaskDeleted   = "task.deleted"
	EventTaskUnblocked = "task.unblocked"
	EventTaskBlocked   = "task.blocked"
	EventAgentUpdated  = "agent.updated"
	EventProjectInit   = "project.initialized"
)

// TaskEvent describes a committed mutation. It is the payload handed to the
// activity journal and to outbound notifications.
type TaskEvent struct {
	Type    string     `json:"type"`
	Project string     `json:"project"`
	TaskID  string     `json:"task_id,omitempty"`
	Title   string     `json:"title,omitempty"`
	Actor   string     `json:"actor"`
	At      time.Time  `json:"at"`
	From    TaskStatus `json:"from,omitempty"`
	To      TaskStatus `json:"to,omitempty"`
	Message string     `json:"message"`
}
