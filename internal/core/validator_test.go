package core

import (
	"strings"
	"testing"

	"github.com/tick-md/tick/pkg/models"
)

func graphDoc(tasks ...models.Task) *models.TickFile {
	doc := &models.TickFile{
		Meta:   models.ProjectMeta{Project: "demo", IDPrefix: "T", NextID: len(tasks) + 1},
		Agents: []models.Agent{{Name: "@alice", Roles: []string{"owner"}}},
	}
	for _, t := range tasks {
		if t.Title == "" {
			t.Title = "task " + t.ID
		}
		if t.Status == "" {
			t.Status = models.StatusTodo
		}
		t.History = []models.HistoryEntry{{At: baseTime, Actor: "@alice", Action: models.ActionCreated}}
		doc.Tasks = append(doc.Tasks, t)
	}
	return doc
}

func codes(issues []ValidationIssue) []string {
	out := make([]string, len(issues))
	for i, issue := range issues {
		out[i] = issue.Code
	}
	return out
}

func TestValidateDocument_DetectsCycle(t *testing.T) {
	doc := graphDoc(
		models.Task{ID: "T-1", DependsOn: []string{"T-2"}, Blocks: []string{"T-3"}},
		models.Task{ID: "T-2", DependsOn: []string{"T-3"}, Blocks: []string{"T-1"}},
		models.Task{ID: "T-3", DependsOn: []string{"T-1"}, Blocks: []string{"T-2"}},
	)

	res := ValidateDocument(doc)
	if res.Valid {
		t.Fatal("expected the cycle to invalidate the document")
	}
	if len(res.Errors) != 1 || res.Errors[0].Code != CodeCycle {
		t.Fatalf("errors = %v, want one %s", codes(res.Errors), CodeCycle)
	}
	cycle := res.Errors[0].Cycle
	if len(cycle) != 4 || cycle[0] != cycle[len(cycle)-1] {
		t.Errorf("cycle = %v, want a closed path over three tasks", cycle)
	}
	for _, id := range []string{"T-1", "T-2", "T-3"} {
		if !strings.Contains(res.Errors[0].Message, id) {
			t.Errorf("message %q does not mention %s", res.Errors[0].Message, id)
		}
	}
}

func TestValidateDocument_ChainWithoutCycle(t *testing.T) {
	doc := graphDoc(
		models.Task{ID: "T-1", Blocks: []string{"T-2"}},
		models.Task{ID: "T-2", DependsOn: []string{"T-1"}, Blocks: []string{"T-3"}},
		models.Task{ID: "T-3", DependsOn: []string{"T-2"}},
	)

	res := ValidateDocument(doc)
	if !res.Valid {
		t.Fatalf("expected valid, got errors %v", codes(res.Errors))
	}
	if len(res.Warnings) != 0 {
		t.Errorf("warnings = %v, want none", codes(res.Warnings))
	}
}

func TestValidateDocument_SelfDependency(t *testing.T) {
	doc := graphDoc(models.Task{ID: "T-1", DependsOn: []string{"T-1"}, Blocks: []string{"T-1"}})

	res := ValidateDocument(doc)
	if len(res.Errors) != 1 || res.Errors[0].Code != CodeCycle {
		t.Fatalf("errors = %v, want one %s", codes(res.Errors), CodeCycle)
	}
}

func TestValidateDocument_ReportsEveryProblemInOnePass(t *testing.T) {
	doc := graphDoc(
		models.Task{ID: "T-1", DependsOn: []string{"T-9"}},
		models.Task{ID: "T-1", Blocks: []string{"T-8"}},
	)
	doc.Tasks[1].Title = " "

	res := ValidateDocument(doc)
	want := map[string]bool{
		CodeDuplicateID:       true,
		CodeDanglingDependsOn: true,
		CodeDanglingBlocks:    true,
		CodeMissingTitle:      true,
	}
	got := make(map[string]bool)
	for _, c := range codes(res.Errors) {
		got[c] = true
	}
	for code := range want {
		if !got[code] {
			t.Errorf("missing %s in %v", code, codes(res.Errors))
		}
	}
}

func TestValidateDocument_StaleNextID(t *testing.T) {
	doc := graphDoc(models.Task{ID: "T-1"}, models.Task{ID: "T-5"})

	res := ValidateDocument(doc)
	if len(res.Errors) != 1 || res.Errors[0].Code != CodeStaleNextID || res.Errors[0].TaskID != "T-5" {
		t.Fatalf("errors = %+v, want stale next_id on T-5", res.Errors)
	}
}

func TestValidateDocument_Warnings(t *testing.T) {
	est, actual := 2.0, 5.0
	doc := graphDoc(
		models.Task{ID: "T-1", AssignedTo: "@ghost"},
		models.Task{ID: "T-2", Status: models.StatusDone, ClaimedBy: "@alice"},
		models.Task{ID: "T-3", EstimatedHours: &est, ActualHours: &actual},
	)
	doc.Tasks[0].History = nil
	doc.Agents[0].WorkingOn = "T-404"

	res := ValidateDocument(doc)
	if !res.Valid {
		t.Fatalf("warnings must not invalidate: %v", codes(res.Errors))
	}
	want := []string{CodeUnknownAssignee, CodeEmptyHistory, CodeDoneWithClaimant, CodeHoursOverrun, CodeDanglingWorkingOn}
	got := codes(res.Warnings)
	if len(got) != len(want) {
		t.Fatalf("warnings = %v, want %v", got, want)
	}
	for _, code := range want {
		if !contains(got, code) {
			t.Errorf("missing warning %s in %v", code, got)
		}
	}
}

func TestIntroducedErrors_IgnoresExistingProblems(t *testing.T) {
	doc := graphDoc(models.Task{ID: "T-1", DependsOn: []string{"T-9"}})
	before := ValidateDocument(doc)

	doc.Tasks = append(doc.Tasks, models.Task{ID: "T-2", Title: "new", DependsOn: []string{"T-1"}})
	doc.Meta.NextID = 3
	if got := introducedErrors(before, ValidateDocument(doc)); len(got) != 0 {
		t.Errorf("introduced = %v, want none", codes(got))
	}

	doc.Tasks[0].DependsOn = append(doc.Tasks[0].DependsOn, "T-2")
	got := introducedErrors(before, ValidateDocument(doc))
	if len(got) != 1 || got[0].Code != CodeCycle {
		t.Errorf("introduced = %v, want one cycle", codes(got))
	}
}

func TestCanonicalCycle_RotationInvariant(t *testing.T) {
	a := canonicalCycle([]string{"T-2", "T-3", "T-1", "T-2"})
	b := canonicalCycle([]string{"T-1", "T-2", "T-3", "T-1"})
	if a != b {
		t.Errorf("canonical forms differ: %q vs %q", a, b)
	}
}
