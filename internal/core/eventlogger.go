package core

import "github.com/tick-md/tick/pkg/models"

// EventLogger is the subset of the observability activity journal that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(event models.TaskEvent) error
}
