package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/core"
	"github.com/tick-md/tick/pkg/models"
)

var (
	addDescription string
	addPriority    string
	addAssign      string
	addTags        []string
	addDependsOn   []string
	addBlocks      []string
	addDue         string
	addEstimate    float64
	addDetailFile  string
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task to the backlog",
	Long: `Add a task. It gets the next ID for the project prefix and starts in
the backlog. --depends-on and --blocks keep the links on both tasks in sync;
a link that would create a dependency cycle is rejected.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		caller, err := callerFor()
		if err != nil {
			return err
		}

		opts := core.NewTaskOptions{
			Title:       strings.Join(args, " "),
			Description: addDescription,
			AssignedTo:  normalizeAgent(addAssign),
			Tags:        addTags,
			DependsOn:   splitIDs(addDependsOn),
			Blocks:      splitIDs(addBlocks),
			DetailFile:  addDetailFile,
		}
		if opts.Priority, err = parsePriority(addPriority); err != nil {
			return err
		}
		if addDue != "" {
			due, err := parseDate(addDue)
			if err != nil {
				return err
			}
			opts.DueDate = &due
		}
		if cmd.Flags().Changed("estimate") {
			est := addEstimate
			opts.EstimatedHours = &est
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		task, err := TaskMgr.AddTask(ctx, caller, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s: %s\n", idStyle.Render(task.ID), task.Title)
		return nil
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim <task-id>",
	Short: "Claim a task and start working on it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskOp(cmd, args[0], "Claimed", func(ctx context.Context, c core.Caller, id string) (*models.Task, error) {
			return TaskMgr.ClaimTask(ctx, c, id)
		})
	},
}

var releaseNote string

var releaseCmd = &cobra.Command{
	Use:   "release <task-id>",
	Short: "Give up a claim and return the task to todo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskOp(cmd, args[0], "Released", func(ctx context.Context, c core.Caller, id string) (*models.Task, error) {
			return TaskMgr.ReleaseTask(ctx, c, id, releaseNote)
		})
	},
}

var doneNote string

var doneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a task done and release its claim",
	Long: `Mark a task done. The claim is released and every task that was only
waiting on this one is unblocked.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskOp(cmd, args[0], "Completed", func(ctx context.Context, c core.Caller, id string) (*models.Task, error) {
			return TaskMgr.CompleteTask(ctx, c, id, doneNote)
		})
	},
}

var reopenNote string

var reopenCmd = &cobra.Command{
	Use:   "reopen <task-id>",
	Short: "Reopen a done task",
	Long:  `Reopen a done task. Dependents that are not done yet are blocked again.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTaskOp(cmd, args[0], "Reopened", func(ctx context.Context, c core.Caller, id string) (*models.Task, error) {
			return TaskMgr.ReopenTask(ctx, c, id, reopenNote)
		})
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment <task-id> <note>",
	Short: "Add a note to a task's history",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		note := strings.Join(args[1:], " ")
		return runTaskOp(cmd, args[0], "Commented on", func(ctx context.Context, c core.Caller, id string) (*models.Task, error) {
			return TaskMgr.CommentTask(ctx, c, id, note)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <task-id>",
	Short: "Delete a task and remove every reference to it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		caller, err := callerFor()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		id := taskArg(args[0])
		if err := TaskMgr.DeleteTask(ctx, caller, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
		return nil
	},
}

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show a task with its history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		task, err := TaskMgr.GetTask(ctx, taskArg(args[0]))
		if err != nil {
			return err
		}
		if showJSON {
			return printJSON(cmd.OutOrStdout(), task)
		}
		printTask(cmd.OutOrStdout(), task)
		return nil
	},
}

// runTaskOp runs a single-task mutation and prints a one-line summary.
func runTaskOp(cmd *cobra.Command, arg, verb string, op func(context.Context, core.Caller, string) (*models.Task, error)) error {
	if err := requireTaskMgr(); err != nil {
		return err
	}
	caller, err := callerFor()
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd)
	defer cancel()

	task, err := op(ctx, caller, taskArg(arg))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s [%s]\n",
		verb, idStyle.Render(task.ID), task.Title, styleForStatus(task.Status).Render(string(task.Status)))
	return nil
}

func printTask(w io.Writer, t *models.Task) {
	fmt.Fprintf(w, "%s  %s\n", idStyle.Render(t.ID), t.Title)
	row := func(label, value string) {
		fmt.Fprintf(w, "  %-12s %s\n", label+":", value)
	}
	row("Status", styleForStatus(t.Status).Render(string(t.Status)))
	row("Priority", string(t.Priority))
	row("Claimed by", orDash(t.ClaimedBy))
	row("Assigned to", orDash(t.AssignedTo))
	row("Created", fmt.Sprintf("%s by %s", t.CreatedAt.Format("2006-01-02 15:04"), t.CreatedBy))
	if t.DueDate != nil {
		row("Due", t.DueDate.Format("2006-01-02"))
	}
	if len(t.Tags) > 0 {
		row("Tags", strings.Join(t.Tags, ", "))
	}
	if len(t.DependsOn) > 0 {
		row("Depends on", strings.Join(t.DependsOn, ", "))
	}
	if len(t.Blocks) > 0 {
		row("Blocks", strings.Join(t.Blocks, ", "))
	}
	if t.EstimatedHours != nil || t.ActualHours != nil {
		row("Hours", fmt.Sprintf("%s estimated, %s actual", hours(t.EstimatedHours), hours(t.ActualHours)))
	}
	if t.DetailFile != "" {
		row("Details", t.DetailFile)
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	if len(t.Deliverables) > 0 {
		fmt.Fprintf(w, "\n%s\n", headerStyle.Render("Deliverables"))
		for _, d := range t.Deliverables {
			mark := " "
			if d.Completed {
				mark = "x"
			}
			fmt.Fprintf(w, "  [%s] %s %s\n", mark, d.Name, dimStyle.Render(d.Path))
		}
	}
	if len(t.History) > 0 {
		fmt.Fprintf(w, "\n%s\n", headerStyle.Render("History"))
		for _, h := range t.History {
			line := fmt.Sprintf("  %s %s %s", h.At.Format("2006-01-02 15:04"), h.Actor, h.Action)
			if h.IsTransition() {
				line += fmt.Sprintf(" (%s → %s)", orDash(string(h.From)), orDash(string(h.To)))
			}
			if h.Note != "" {
				line += ": " + h.Note
			}
			fmt.Fprintln(w, line)
		}
	}
}

func hours(h *float64) string {
	if h == nil {
		return "-"
	}
	return strconv.FormatFloat(*h, 'f', -1, 64) + "h"
}

func init() {
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Task description")
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "medium", "Priority: urgent, high, medium, low")
	addCmd.Flags().StringVar(&addAssign, "assign", "", "Assign to an agent (e.g. @bob)")
	addCmd.Flags().StringSliceVarP(&addTags, "tags", "t", nil, "Comma-separated tags")
	addCmd.Flags().StringSliceVar(&addDependsOn, "depends-on", nil, "Tasks that must be done first")
	addCmd.Flags().StringSliceVar(&addBlocks, "blocks", nil, "Tasks waiting on this one")
	addCmd.Flags().StringVar(&addDue, "due", "", "Due date (YYYY-MM-DD)")
	addCmd.Flags().Float64Var(&addEstimate, "estimate", 0, "Estimated hours")
	addCmd.Flags().StringVar(&addDetailFile, "detail-file", "", "Path to a longer write-up")

	releaseCmd.Flags().StringVarP(&releaseNote, "note", "m", "", "Why the task is released")
	doneCmd.Flags().StringVarP(&doneNote, "note", "m", "", "Completion note")
	reopenCmd.Flags().StringVarP(&reopenNote, "note", "m", "", "Why the task is reopened")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output the task as JSON")

	registerTaskFlagCompletions(addCmd)

	rootCmd.AddCommand(addCmd, claimCmd, releaseCmd, doneCmd, reopenCmd, commentCmd, deleteCmd, showCmd)
}
