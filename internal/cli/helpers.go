package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/core"
	"github.com/tick-md/tick/pkg/models"
)

// Style definitions.
var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	idStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	statusInProgress = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	statusDone       = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusBlocked    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusReview     = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	statusBacklog    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusReopened   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	severityHigh   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	severityMedium = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	severityLow    = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))
)

func styleForStatus(status models.TaskStatus) lipgloss.Style {
	switch status {
	case models.StatusInProgress:
		return statusInProgress
	case models.StatusDone:
		return statusDone
	case models.StatusBlocked:
		return statusBlocked
	case models.StatusReview:
		return statusReview
	case models.StatusBacklog, models.StatusTodo:
		return statusBacklog
	case models.StatusReopened:
		return statusReopened
	default:
		return lipgloss.NewStyle()
	}
}

func styleForSeverity(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "high":
		return severityHigh
	case "medium":
		return severityMedium
	case "low":
		return severityLow
	default:
		return lipgloss.NewStyle()
	}
}

// resolveActor picks the acting identity: --as, then TICK_AGENT, then the
// configured default. Names are normalized to start with "@".
func resolveActor() (string, error) {
	actor := strings.TrimSpace(actorFlag)
	if actor == "" {
		actor = strings.TrimSpace(os.Getenv("TICK_AGENT"))
	}
	if actor == "" && Config != nil {
		actor = strings.TrimSpace(Config.DefaultAgent)
	}
	if actor == "" {
		return "", fmt.Errorf("no identity: pass --as @name, set TICK_AGENT, or set defaults.agent in .tickconfig")
	}
	return normalizeAgent(actor), nil
}

func normalizeAgent(name string) string {
	if name == "" || strings.HasPrefix(name, "@") {
		return name
	}
	return "@" + name
}

// callerFor builds the caller for a mutating command.
func callerFor() (core.Caller, error) {
	actor, err := resolveActor()
	if err != nil {
		return core.Caller{}, err
	}
	return core.Caller{Actor: actor, At: now()}, nil
}

// commandContext bounds a command by the configured timeout.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if Config != nil && Config.CommandTimeout > 0 {
		return context.WithTimeout(ctx, Config.CommandTimeout)
	}
	return context.WithCancel(ctx)
}

func requireTaskMgr() error {
	if TaskMgr == nil {
		return fmt.Errorf("task manager not initialized")
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time before now.
func parseSinceDuration(s string) (time.Time, error) {
	current := now()
	s = strings.TrimSpace(s)
	if s == "" {
		return current.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days < 0 {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return current.AddDate(0, 0, -days), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
	}
	return current.Add(-d), nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
	}
	return t.UTC(), nil
}

func parsePriority(s string) (models.Priority, error) {
	p := models.Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q (use urgent, high, medium, low)", s)
	}
	return p, nil
}

func parseStatus(s string) (models.TaskStatus, error) {
	st := models.TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		names := make([]string, len(models.AllStatuses))
		for i, known := range models.AllStatuses {
			names[i] = string(known)
		}
		return "", fmt.Errorf("invalid status %q (use %s)", s, strings.Join(names, ", "))
	}
	return st, nil
}

// splitIDs accepts repeated or comma-separated task IDs.
func splitIDs(values []string) []string {
	var out []string
	for _, v := range values {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

func taskArg(arg string) string {
	return strings.TrimSpace(arg)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
