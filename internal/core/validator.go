package core

import (
	"fmt"
	"strings"

	"github.com/tick-md/tick/pkg/models"
)

// IssueSeverity separates problems that invalidate the graph from
// informational findings.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// Issue codes reported by ValidateDocument.
const (
	CodeMissingID         = "missing_id"
	CodeMissingTitle      = "missing_title"
	CodeDuplicateID       = "duplicate_id"
	CodeDanglingDependsOn = "dangling_depends_on"
	CodeDanglingBlocks    = "dangling_blocks"
	CodeCycle             = "dependency_cycle"
	CodeStaleNextID       = "stale_next_id"
	CodeUnknownAssignee   = "unregistered_assignee"
	CodeUnknownClaimant   = "unregistered_claimant"
	CodeDoneWithClaimant  = "done_with_claimant"
	CodeHoursOverrun      = "hours_overrun"
	CodeEmptyHistory      = "empty_history"
	CodeDanglingWorkingOn = "dangling_working_on"
	CodeAsymmetricLink    = "asymmetric_link"
)

// ValidationIssue is one problem found in the document. Ref names the other
// task or agent involved; Cycle lists the IDs of a dependency cycle in order.
type ValidationIssue struct {
	Severity IssueSeverity `json:"severity"`
	Code     string        `json:"code"`
	TaskID   string        `json:"task_id,omitempty"`
	Ref      string        `json:"ref,omitempty"`
	Message  string        `json:"message"`
	Cycle    []string      `json:"cycle,omitempty"`
}

func (i ValidationIssue) key() string {
	return i.Code + "|" + i.TaskID + "|" + i.Ref + "|" + strings.Join(i.Cycle, ">")
}

// ValidationResult is the outcome of a validation pass. Valid is true iff
// Errors is empty; warnings never affect it.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}

func (r *ValidationResult) addError(code, taskID, ref, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationIssue{
		Severity: SeverityError, Code: code, TaskID: taskID, Ref: ref,
		Message: fmt.Sprintf(format, args...),
	})
}

func (r *ValidationResult) addWarning(code, taskID, ref, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationIssue{
		Severity: SeverityWarning, Code: code, TaskID: taskID, Ref: ref,
		Message: fmt.Sprintf(format, args...),
	})
}

// ValidateDocument checks the task graph and reports every problem in one
// pass. It never fails; an invalid document is a normal result.
func ValidateDocument(doc *models.TickFile) *ValidationResult {
	r := &ValidationResult{}

	ids := make(map[string]bool, len(doc.Tasks))
	agents := make(map[string]bool, len(doc.Agents))
	for _, a := range doc.Agents {
		agents[a.Name] = true
	}

	for _, t := range doc.Tasks {
		if t.ID == "" {
			r.addError(CodeMissingID, "", "", "task %q has no ID", t.Title)
			continue
		}
		if ids[t.ID] {
			r.addError(CodeDuplicateID, t.ID, "", "task ID %s is used more than once", t.ID)
		}
		ids[t.ID] = true
	}

	for _, t := range doc.Tasks {
		if t.ID != "" && strings.TrimSpace(t.Title) == "" {
			r.addError(CodeMissingTitle, t.ID, "", "task %s has no title", t.ID)
		}
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				r.addError(CodeDanglingDependsOn, t.ID, dep, "task %s depends on missing task %s", t.ID, dep)
			}
		}
		for _, b := range t.Blocks {
			if !ids[b] {
				r.addError(CodeDanglingBlocks, t.ID, b, "task %s blocks missing task %s", t.ID, b)
			}
		}
	}

	for _, cycle := range findCycles(doc.Tasks) {
		r.Errors = append(r.Errors, ValidationIssue{
			Severity: SeverityError,
			Code:     CodeCycle,
			TaskID:   cycle[0],
			Cycle:    cycle,
			Message:  "dependency cycle: " + strings.Join(cycle, " -> "),
		})
	}

	if prefix := doc.Meta.IDPrefix; prefix != "" {
		for _, t := range doc.Tasks {
			if seq, ok := ParseTaskSeq(prefix, t.ID); ok && seq >= doc.Meta.NextID {
				r.addError(CodeStaleNextID, t.ID, "", "next_id %d would reissue %s: it must be above %d", doc.Meta.NextID, t.ID, seq)
			}
		}
	}

	byID := make(map[string]*models.Task, len(doc.Tasks))
	for i := range doc.Tasks {
		byID[doc.Tasks[i].ID] = &doc.Tasks[i]
	}
	for _, t := range doc.Tasks {
		if t.AssignedTo != "" && !agents[t.AssignedTo] {
			r.addWarning(CodeUnknownAssignee, t.ID, t.AssignedTo, "task %s is assigned to unregistered agent %s", t.ID, t.AssignedTo)
		}
		if t.ClaimedBy != "" && !agents[t.ClaimedBy] {
			r.addWarning(CodeUnknownClaimant, t.ID, t.ClaimedBy, "task %s is claimed by unregistered agent %s", t.ID, t.ClaimedBy)
		}
		if t.Status == models.StatusDone && t.ClaimedBy != "" {
			r.addWarning(CodeDoneWithClaimant, t.ID, t.ClaimedBy, "task %s is done but still claimed by %s", t.ID, t.ClaimedBy)
		}
		if t.EstimatedHours != nil && t.ActualHours != nil && *t.ActualHours > 2*(*t.EstimatedHours) {
			r.addWarning(CodeHoursOverrun, t.ID, "", "task %s took %.1fh against an estimate of %.1fh", t.ID, *t.ActualHours, *t.EstimatedHours)
		}
		if len(t.History) == 0 {
			r.addWarning(CodeEmptyHistory, t.ID, "", "task %s has no history", t.ID)
		}
		for _, b := range t.Blocks {
			if other, ok := byID[b]; ok && !contains(other.DependsOn, t.ID) {
				r.addWarning(CodeAsymmetricLink, t.ID, b, "task %s blocks %s but %s does not depend on it", t.ID, b, b)
			}
		}
	}
	for _, a := range doc.Agents {
		if a.WorkingOn != "" && !ids[a.WorkingOn] {
			r.addWarning(CodeDanglingWorkingOn, "", a.Name, "agent %s is working on missing task %s", a.Name, a.WorkingOn)
		}
	}

	r.Valid = len(r.Errors) == 0
	return r
}

// findCycles runs a depth-first search over depends_on edges. Every task is
// visited once; a back edge into the recursion stack yields the contiguous
// cycle from the repeated task through the current one.
func findCycles(tasks []models.Task) [][]string {
	edges := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		if t.ID == "" {
			continue
		}
		if _, dup := edges[t.ID]; dup {
			continue
		}
		edges[t.ID] = t.DependsOn
	}

	visited := make(map[string]bool, len(edges))
	onStack := make(map[string]int)
	var stack []string
	var cycles [][]string
	seen := make(map[string]bool)

	var visit func(id string)
	visit = func(id string) {
		visited[id] = true
		onStack[id] = len(stack)
		stack = append(stack, id)

		for _, next := range edges[id] {
			if _, exists := edges[next]; !exists {
				continue
			}
			if pos, ok := onStack[next]; ok {
				cycle := append(append([]string(nil), stack[pos:]...), next)
				if k := canonicalCycle(cycle); !seen[k] {
					seen[k] = true
					cycles = append(cycles, cycle)
				}
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
	}

	for _, t := range tasks {
		if _, ok := edges[t.ID]; ok && !visited[t.ID] {
			visit(t.ID)
		}
	}
	return cycles
}

// canonicalCycle rotates a closed cycle so the smallest ID comes first,
// letting the same cycle found from different entry points compare equal.
func canonicalCycle(cycle []string) string {
	open := cycle[:len(cycle)-1]
	lo := 0
	for i, id := range open {
		if id < open[lo] {
			lo = i
		}
	}
	rotated := append(append([]string(nil), open[lo:]...), open[:lo]...)
	return strings.Join(rotated, ">")
}

// introducedErrors returns errors present in after but not in before.
func introducedErrors(before, after *ValidationResult) []ValidationIssue {
	known := make(map[string]bool, len(before.Errors))
	for _, e := range before.Errors {
		if e.Code == CodeCycle {
			known[e.Code+"|"+canonicalCycle(e.Cycle)] = true
			continue
		}
		known[e.key()] = true
	}
	var out []ValidationIssue
	for _, e := range after.Errors {
		k := e.key()
		if e.Code == CodeCycle {
			k = e.Code + "|" + canonicalCycle(e.Cycle)
		}
		if !known[k] {
			out = append(out, e)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
