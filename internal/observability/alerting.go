package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/tick-md/tick/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

func (s AlertSeverity) rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	}
	return 2
}

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	TaskID      string        `json:"task_id,omitempty"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertInput is the state an AlertEngine inspects.
type AlertInput struct {
	Doc         *models.TickFile
	DeadLetters int
	Now         time.Time
}

// AlertEngine evaluates alert conditions against the current project state.
type AlertEngine interface {
	Evaluate(in AlertInput) []Alert
}

type alertEngine struct {
	thresholds models.AlertConfig
}

// NewAlertEngine creates an AlertEngine with the given thresholds. A zero
// threshold disables its check.
func NewAlertEngine(thresholds models.AlertConfig) AlertEngine {
	return &alertEngine{thresholds: thresholds}
}

// Evaluate checks every condition and returns alerts ordered by severity,
// then ID.
func (ae *alertEngine) Evaluate(in AlertInput) []Alert {
	var alerts []Alert
	now := in.Now
	th := ae.thresholds

	backlog := 0
	if in.Doc != nil {
		for _, t := range in.Doc.Tasks {
			idle := now.Sub(t.UpdatedAt)
			switch t.Status {
			case models.StatusBacklog:
				backlog++
			case models.StatusInProgress:
				if th.StaleAfter > 0 && idle > th.StaleAfter {
					alerts = append(alerts, taskAlert(t, "task_stale", SeverityMedium, now,
						"%s has been in progress with no activity for %s (claimed by %s)", t.ID, roundDuration(idle), orNobody(t.ClaimedBy)))
				}
			case models.StatusBlocked:
				if th.BlockedAfter > 0 && idle > th.BlockedAfter {
					alerts = append(alerts, taskAlert(t, "task_blocked_too_long", SeverityHigh, now,
						"%s has been blocked for %s", t.ID, roundDuration(idle)))
				}
			case models.StatusReview:
				if th.ReviewAfter > 0 && idle > th.ReviewAfter {
					alerts = append(alerts, taskAlert(t, "review_too_long", SeverityMedium, now,
						"%s has been waiting for review for %s", t.ID, roundDuration(idle)))
				}
			}
			if t.DueDate != nil && t.Status != models.StatusDone && now.After(*t.DueDate) {
				alerts = append(alerts, taskAlert(t, "task_overdue", SeverityHigh, now,
					"%s was due %s", t.ID, t.DueDate.Format("2006-01-02")))
			}
		}
	}

	if th.MaxBacklog > 0 && backlog > th.MaxBacklog {
		alerts = append(alerts, Alert{
			ID:          "backlog-size",
			Condition:   "backlog_too_large",
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("backlog has %d tasks, more than %d", backlog, th.MaxBacklog),
			TriggeredAt: now,
		})
	}
	if in.DeadLetters > 0 {
		alerts = append(alerts, Alert{
			ID:          "dead-letters",
			Condition:   "notifications_failed",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("%d notifications exhausted their retries: run `tick queue requeue`", in.DeadLetters),
			TriggeredAt: now,
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if r1, r2 := alerts[i].Severity.rank(), alerts[j].Severity.rank(); r1 != r2 {
			return r1 < r2
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts
}

func taskAlert(t models.Task, condition string, sev AlertSeverity, now time.Time, format string, args ...any) Alert {
	return Alert{
		ID:          condition + "-" + t.ID,
		Condition:   condition,
		Severity:    sev,
		TaskID:      t.ID,
		Message:     fmt.Sprintf(format, args...),
		TriggeredAt: now,
	}
}

func roundDuration(d time.Duration) time.Duration {
	if d >= time.Hour {
		return d.Round(time.Hour)
	}
	return d.Round(time.Minute)
}

func orNobody(agent string) string {
	if agent == "" {
		return "nobody"
	}
	return agent
}
