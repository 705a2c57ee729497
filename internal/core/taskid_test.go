package core

import (
	"testing"

	"github.com/tick-md/tick/pkg/models"
)

func TestFormatTaskID(t *testing.T) {
	tests := []struct {
		prefix string
		seq    int
		pad    int
		want   string
	}{
		{"TICK", 1, 3, "TICK-001"},
		{"TICK", 42, 3, "TICK-042"},
		{"TICK", 1234, 3, "TICK-1234"},
		{"PRJ", 7, 0, "PRJ-7"},
		{"PRJ", 7, 5, "PRJ-00007"},
	}
	for _, tt := range tests {
		if got := FormatTaskID(tt.prefix, tt.seq, tt.pad); got != tt.want {
			t.Errorf("FormatTaskID(%q, %d, %d) = %q, want %q", tt.prefix, tt.seq, tt.pad, got, tt.want)
		}
	}
}

func TestParseTaskSeq(t *testing.T) {
	tests := []struct {
		id     string
		want   int
		wantOK bool
	}{
		{"TICK-001", 1, true},
		{"TICK-1234", 1234, true},
		{"TICK-", 0, false},
		{"TICK-abc", 0, false},
		{"TICK-000", 0, false},
		{"OTHER-001", 0, false},
		{"TICKET-001", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseTaskSeq("TICK", tt.id)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseTaskSeq(%q) = %d, %v; want %d, %v", tt.id, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMintTaskID_SkipsIDsAlreadyInUse(t *testing.T) {
	doc := &models.TickFile{
		Meta:  models.ProjectMeta{IDPrefix: "TICK", NextID: 2},
		Tasks: []models.Task{{ID: "TICK-002"}, {ID: "TICK-003"}},
	}

	if got := mintTaskID(doc, 3); got != "TICK-004" {
		t.Errorf("mintTaskID = %q, want TICK-004", got)
	}
	if doc.Meta.NextID != 5 {
		t.Errorf("NextID = %d, want 5", doc.Meta.NextID)
	}
}

func TestMintTaskID_RepairsZeroCounter(t *testing.T) {
	doc := &models.TickFile{Meta: models.ProjectMeta{IDPrefix: "TICK"}}

	if got := mintTaskID(doc, 3); got != "TICK-001" {
		t.Errorf("mintTaskID = %q, want TICK-001", got)
	}
}

func TestDerivePrefix(t *testing.T) {
	tests := []struct {
		project string
		want    string
	}{
		{"payments", "PAYM"},
		{"api", "API"},
		{"my project", "MYPR"},
		{"déjà vu", "DÉJÀ"},
		{"v2-core", "V2CO"},
		{"!!!", DefaultIDPrefix},
	}
	for _, tt := range tests {
		if got := DerivePrefix(tt.project); got != tt.want {
			t.Errorf("DerivePrefix(%q) = %q, want %q", tt.project, got, tt.want)
		}
	}
}
