package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/core"
	"github.com/tick-md/tick/pkg/models"
)

var (
	listStatus   []string
	listPriority []string
	listClaimed  string
	listAssigned string
	listTags     []string
	listMine     bool
	listJSON     bool
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	Long: `List tasks, most urgent first. Filters combine: a task must match all
of them. --mine lists tasks claimed by or assigned to the acting identity.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		filter := core.TaskFilter{
			ClaimedBy:  normalizeAgent(listClaimed),
			AssignedTo: normalizeAgent(listAssigned),
			Tags:       listTags,
		}
		for _, s := range listStatus {
			st, err := parseStatus(s)
			if err != nil {
				return err
			}
			filter.Status = append(filter.Status, st)
		}
		for _, p := range listPriority {
			pr, err := parsePriority(p)
			if err != nil {
				return err
			}
			filter.Priority = append(filter.Priority, pr)
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		tasks, err := TaskMgr.ListTasks(ctx, filter)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		if listMine {
			me, err := resolveActor()
			if err != nil {
				return err
			}
			mine := tasks[:0]
			for _, t := range tasks {
				if t.ClaimedBy == me || t.AssignedTo == me {
					mine = append(mine, t)
				}
			}
			tasks = mine
		}
		sortTasks(tasks)

		out := cmd.OutOrStdout()
		if listJSON {
			return printJSON(out, tasks)
		}
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No tasks found.")
			return nil
		}
		printTaskTable(out, tasks)
		return nil
	},
}

var statusJSON bool

// statusSummary is the JSON shape of `tick status`.
type statusSummary struct {
	Project  string                    `json:"project"`
	Counts   map[models.TaskStatus]int `json:"counts"`
	Agents   []models.Agent            `json:"agents"`
	Valid    bool                      `json:"valid"`
	Problems int                       `json:"problems"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the project: tasks by status, agents, graph health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		doc, err := TaskMgr.Document(ctx)
		if err != nil {
			return err
		}
		result := core.ValidateDocument(doc)

		summary := statusSummary{
			Project:  doc.Meta.Project,
			Counts:   make(map[models.TaskStatus]int),
			Agents:   doc.Agents,
			Valid:    result.Valid,
			Problems: len(result.Errors),
		}
		for _, t := range doc.Tasks {
			summary.Counts[t.Status]++
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			return printJSON(out, summary)
		}

		title := doc.Meta.Project
		if doc.Meta.Title != "" {
			title += " - " + doc.Meta.Title
		}
		fmt.Fprintln(out, headerStyle.Render(title))
		fmt.Fprintf(out, "  %d tasks\n", len(doc.Tasks))
		for _, st := range models.AllStatuses {
			if n := summary.Counts[st]; n > 0 {
				fmt.Fprintf(out, "  %-14s %d\n", styleForStatus(st).Render(string(st)), n)
			}
		}

		if len(doc.Agents) > 0 {
			fmt.Fprintf(out, "\n%s\n", headerStyle.Render("Agents"))
			printAgentTable(out, doc.Agents)
		}

		if !result.Valid {
			fmt.Fprintf(out, "\n%s\n", statusBlocked.Render(fmt.Sprintf("%d graph problems: run `tick validate`", len(result.Errors))))
		}
		return nil
	},
}

func sortTasks(tasks []models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
			return ra < rb
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		return a.ID < b.ID
	})
}

func statusRank(st models.TaskStatus) int {
	for i, known := range []models.TaskStatus{
		models.StatusInProgress, models.StatusReview, models.StatusReopened, models.StatusTodo,
		models.StatusBlocked, models.StatusBacklog, models.StatusDone,
	} {
		if st == known {
			return i
		}
	}
	return 99
}

func printTaskTable(w io.Writer, tasks []models.Task) {
	fmt.Fprintf(w, "  %-10s %-12s %-7s %-12s %s\n", "ID", "STATUS", "PRI", "CLAIMED", "TITLE")
	for _, t := range tasks {
		// Pad before styling so escape codes don't break alignment.
		status := styleForStatus(t.Status).Render(fmt.Sprintf("%-12s", t.Status))
		title := t.Title
		if len(t.DependsOn) > 0 && t.Status != models.StatusDone {
			title += dimStyle.Render(" (after " + strings.Join(t.DependsOn, ", ") + ")")
		}
		fmt.Fprintf(w, "  %-10s %s %-7s %-12s %s\n", t.ID, status, t.Priority, orDash(t.ClaimedBy), title)
	}
}

func init() {
	listCmd.Flags().StringSliceVarP(&listStatus, "status", "s", nil, "Only these statuses")
	listCmd.Flags().StringSliceVarP(&listPriority, "priority", "p", nil, "Only these priorities")
	listCmd.Flags().StringVar(&listClaimed, "claimed-by", "", "Only tasks claimed by this agent")
	listCmd.Flags().StringVar(&listAssigned, "assigned-to", "", "Only tasks assigned to this agent")
	listCmd.Flags().StringSliceVarP(&listTags, "tag", "t", nil, "Only tasks carrying all these tags")
	listCmd.Flags().BoolVar(&listMine, "mine", false, "Only tasks claimed by or assigned to me")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")
	registerTaskFlagCompletions(listCmd)
	rootCmd.AddCommand(listCmd, statusCmd)
}
