package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/tick-md/tick/pkg/models"
)

// Metrics holds figures derived from the activity journal.
type Metrics struct {
	TasksCreated     int            `json:"tasks_created"`
	TasksClaimed     int            `json:"tasks_claimed"`
	TasksCompleted   int            `json:"tasks_completed"`
	TasksReopened    int            `json:"tasks_reopened"`
	EventsByType     map[string]int `json:"events_by_type"`
	CompletedByAgent map[string]int `json:"completed_by_agent"`
	MeanCycleTime    time.Duration  `json:"mean_cycle_time"`
	CycleTimeSamples int            `json:"cycle_time_samples"`
	EventCount       int            `json:"event_count"`
	OldestEvent      *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time     `json:"newest_event,omitempty"`
	MostActiveAgents []AgentCount   `json:"most_active_agents,omitempty"`
}

// AgentCount pairs an agent with a number of events.
type AgentCount struct {
	Agent string `json:"agent"`
	Count int    `json:"count"`
}

// MetricsCalculator derives metrics from the journal.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	events EventReader
}

// NewMetricsCalculator creates a MetricsCalculator reading from events.
func NewMetricsCalculator(events EventReader) MetricsCalculator {
	return &metricsCalculator{events: events}
}

// Calculate aggregates every event since the given time. Cycle time runs
// from a task's first claim to its next completion.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.events.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		EventsByType:     make(map[string]int),
		CompletedByAgent: make(map[string]int),
		EventCount:       len(events),
	}

	claimedAt := make(map[string]time.Time)
	activity := make(map[string]int)
	var cycleTotal time.Duration

	for i, ev := range events {
		at := ev.At
		if i == 0 {
			m.OldestEvent = &at
		}
		m.NewestEvent = &at
		m.EventsByType[ev.Type]++
		if ev.Actor != "" {
			activity[ev.Actor]++
		}

		switch ev.Type {
		case models.EventTaskCreated:
			m.TasksCreated++
		case models.EventTaskClaimed:
			m.TasksClaimed++
			if _, ok := claimedAt[ev.TaskID]; !ok {
				claimedAt[ev.TaskID] = ev.At
			}
		case models.EventTaskCompleted:
			m.TasksCompleted++
			m.CompletedByAgent[ev.Actor]++
			if start, ok := claimedAt[ev.TaskID]; ok {
				cycleTotal += ev.At.Sub(start)
				m.CycleTimeSamples++
				delete(claimedAt, ev.TaskID)
			}
		case models.EventTaskReopened:
			m.TasksReopened++
		}
	}
	if m.CycleTimeSamples > 0 {
		m.MeanCycleTime = cycleTotal / time.Duration(m.CycleTimeSamples)
	}

	for agent, n := range activity {
		m.MostActiveAgents = append(m.MostActiveAgents, AgentCount{Agent: agent, Count: n})
	}
	sort.Slice(m.MostActiveAgents, func(i, j int) bool {
		a, b := m.MostActiveAgents[i], m.MostActiveAgents[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Agent < b.Agent
	})
	if len(m.MostActiveAgents) > 5 {
		m.MostActiveAgents = m.MostActiveAgents[:5]
	}
	return m, nil
}
