package observability

import (
	"testing"
	"time"

	"github.com/tick-md/tick/pkg/models"
)

type staticEvents []models.TaskEvent

func (s staticEvents) Read(filter EventFilter) ([]models.TaskEvent, error) {
	var out []models.TaskEvent
	for _, ev := range s {
		if matchesEventFilter(ev, filter) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func TestCalculate_CountsAndCycleTime(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	events := staticEvents{
		journalEvent(models.EventTaskCreated, "TICK-001", "@alice", base),
		journalEvent(models.EventTaskCreated, "TICK-002", "@alice", base),
		journalEvent(models.EventTaskClaimed, "TICK-001", "@bob", base.Add(time.Hour)),
		journalEvent(models.EventTaskCompleted, "TICK-001", "@bob", base.Add(3*time.Hour)),
		journalEvent(models.EventTaskClaimed, "TICK-002", "@bob", base.Add(4*time.Hour)),
		journalEvent(models.EventTaskCompleted, "TICK-002", "@bob", base.Add(8*time.Hour)),
		journalEvent(models.EventTaskReopened, "TICK-002", "@alice", base.Add(9*time.Hour)),
	}

	m, err := NewMetricsCalculator(events).Calculate(base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if m.TasksCreated != 2 || m.TasksClaimed != 2 || m.TasksCompleted != 2 || m.TasksReopened != 1 {
		t.Errorf("counts = %+v", m)
	}
	if m.CycleTimeSamples != 2 || m.MeanCycleTime != 3*time.Hour {
		t.Errorf("cycle time = %v over %d samples, want 3h over 2", m.MeanCycleTime, m.CycleTimeSamples)
	}
	if m.CompletedByAgent["@bob"] != 2 {
		t.Errorf("CompletedByAgent = %v", m.CompletedByAgent)
	}
	if len(m.MostActiveAgents) != 2 || m.MostActiveAgents[0].Agent != "@bob" || m.MostActiveAgents[0].Count != 4 {
		t.Errorf("MostActiveAgents = %+v", m.MostActiveAgents)
	}
	if !m.OldestEvent.Equal(base) || !m.NewestEvent.Equal(base.Add(9*time.Hour)) {
		t.Errorf("range = %v .. %v", m.OldestEvent, m.NewestEvent)
	}
}

func TestCalculate_Since(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	events := staticEvents{
		journalEvent(models.EventTaskCreated, "TICK-001", "@alice", base),
		journalEvent(models.EventTaskCreated, "TICK-002", "@alice", base.Add(48*time.Hour)),
	}

	m, err := NewMetricsCalculator(events).Calculate(base.Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if m.EventCount != 1 || m.TasksCreated != 1 {
		t.Errorf("got %d events, %d created; want 1, 1", m.EventCount, m.TasksCreated)
	}
}

func TestCalculate_Empty(t *testing.T) {
	m, err := NewMetricsCalculator(staticEvents{}).Calculate(time.Time{})
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if m.EventCount != 0 || m.OldestEvent != nil || m.MeanCycleTime != 0 {
		t.Errorf("metrics = %+v", m)
	}
}
