package core

import (
	"fmt"
	"strings"

	"github.com/tick-md/tick/pkg/models"
)

// TaskNotFoundError reports an operation on a task ID absent from the document.
type TaskNotFoundError struct {
	ID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.ID)
}

// AgentNotFoundError reports an operation on an agent missing from the roster.
type AgentNotFoundError struct {
	Name string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %s is not registered: run `tick agent register %s` first", e.Name, e.Name)
}

// InvalidTransitionError reports an operation the task's current state does
// not allow.
type InvalidTransitionError struct {
	TaskID string
	Op     string
	Status models.TaskStatus
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s task %s (status %s): %s", e.Op, e.TaskID, e.Status, e.Reason)
}

// InvalidGraphError reports a mutation rejected because it would introduce
// dependency graph errors.
type InvalidGraphError struct {
	Issues []ValidationIssue
}

func (e *InvalidGraphError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return "change rejected, it would break the task graph: " + strings.Join(msgs, "; ")
}

// DocumentExistsError reports an init over an existing document.
type DocumentExistsError struct {
	Path string
}

func (e *DocumentExistsError) Error() string {
	return fmt.Sprintf("%s already exists", e.Path)
}

// InvalidNameError reports an agent name or ID prefix that the document or
// the lock table cannot store.
type InvalidNameError struct {
	Kind string
	Name string
	Hint string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Name, e.Hint)
}
