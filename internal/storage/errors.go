package storage

import (
	"fmt"
	"time"
)

// ParseError identifies the region of a document or lock file that could not
// be parsed. Line is 1-based and zero when unknown.
type ParseError struct {
	Section string
	Line    int
	Msg     string
	Err     error
}

func (e *ParseError) Error() string {
	loc := e.Section
	if e.Line > 0 {
		loc = fmt.Sprintf("%s (line %d)", e.Section, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("parse error in %s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("parse error in %s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotFoundError reports that the document has not been initialized.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: run `tick init` to create it", e.Path)
}

// ConcurrentModificationError reports that the document changed between the
// read that produced a fingerprint and the write that presented it.
type ConcurrentModificationError struct {
	Path     string
	Expected Fingerprint
	Actual   Fingerprint
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("%s was modified by another writer (expected mtime %s size %d, found mtime %s size %d): re-read the file and retry",
		e.Path,
		e.Expected.ModTime.Format(time.RFC3339Nano), e.Expected.Size,
		e.Actual.ModTime.Format(time.RFC3339Nano), e.Actual.Size)
}

// SymlinkError reports a write refused because the target is a symbolic link.
type SymlinkError struct {
	Path string
}

func (e *SymlinkError) Error() string {
	return fmt.Sprintf("refusing to write %s: target is a symbolic link (set allow_symlinks to override)", e.Path)
}

// AlreadyLockedError reports a lock held by another agent.
type AlreadyLockedError struct {
	TaskID string
	Holder string
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("task %s is already locked by %s", e.TaskID, e.Holder)
}

// NotLockedError reports a release of a task that has no lock.
type NotLockedError struct {
	TaskID string
}

func (e *NotLockedError) Error() string {
	return fmt.Sprintf("task %s is not locked", e.TaskID)
}

// WrongHolderError reports a release attempted by an agent that does not hold
// the lock.
type WrongHolderError struct {
	TaskID string
	Agent  string
	Holder string
}

func (e *WrongHolderError) Error() string {
	return fmt.Sprintf("task %s is locked by %s, not %s", e.TaskID, e.Holder, e.Agent)
}

// InvalidLockFieldError reports a task ID or agent name that cannot be stored
// as one field of a lock table line.
type InvalidLockFieldError struct {
	Field string
	Value string
}

func (e *InvalidLockFieldError) Error() string {
	return fmt.Sprintf("invalid lock %s %q: must be non-empty without tabs or line breaks", e.Field, e.Value)
}
