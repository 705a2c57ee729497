package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/core"
	"github.com/tick-md/tick/pkg/models"
)

var (
	editTitle        string
	editStatus       string
	editPriority     string
	editAssign       string
	editTags         []string
	editDependsOn    []string
	editBlocks       []string
	editDue          string
	editClearDue     bool
	editEstimate     float64
	editActual       float64
	editDetailFile   string
	editDescription  string
	editDeliverables []string
	editNote         string
)

var editCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Change task fields",
	Long: `Change any task field. Only the flags given are applied and a single
history entry lists what changed.

Setting --status done releases the claim and unblocks dependents.
--depends-on and --blocks replace the whole list (pass "" to clear) and keep
the opposite links in sync. A deliverable is written as name=path, with a
trailing "!" on the name marking it complete.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		caller, err := callerFor()
		if err != nil {
			return err
		}
		edit, err := buildTaskEdit(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		task, err := TaskMgr.EditTask(ctx, caller, taskArg(args[0]), edit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s: %s [%s]\n",
			idStyle.Render(task.ID), task.Title, styleForStatus(task.Status).Render(string(task.Status)))
		return nil
	},
}

func buildTaskEdit(cmd *cobra.Command) (core.TaskEdit, error) {
	flags := cmd.Flags()
	edit := core.TaskEdit{Note: editNote}

	if flags.Changed("title") {
		edit.Title = &editTitle
	}
	if flags.Changed("status") {
		st, err := parseStatus(editStatus)
		if err != nil {
			return edit, err
		}
		edit.Status = &st
	}
	if flags.Changed("priority") {
		p, err := parsePriority(editPriority)
		if err != nil {
			return edit, err
		}
		edit.Priority = &p
	}
	if flags.Changed("assign") {
		assignee := normalizeAgent(strings.TrimSpace(editAssign))
		edit.AssignedTo = &assignee
	}
	if flags.Changed("tags") {
		tags := editTags
		edit.Tags = &tags
	}
	if flags.Changed("depends-on") {
		ids := splitIDs(editDependsOn)
		edit.DependsOn = &ids
	}
	if flags.Changed("blocks") {
		ids := splitIDs(editBlocks)
		edit.Blocks = &ids
	}
	if editClearDue && flags.Changed("due") {
		return edit, fmt.Errorf("--due and --clear-due are mutually exclusive")
	}
	if flags.Changed("due") {
		due, err := parseDate(editDue)
		if err != nil {
			return edit, err
		}
		edit.DueDate = &due
	}
	edit.ClearDueDate = editClearDue
	if flags.Changed("estimate") {
		v := editEstimate
		edit.EstimatedHours = &v
	}
	if flags.Changed("actual") {
		v := editActual
		edit.ActualHours = &v
	}
	if flags.Changed("detail-file") {
		edit.DetailFile = &editDetailFile
	}
	if flags.Changed("description") {
		edit.Description = &editDescription
	}
	if flags.Changed("deliverable") {
		deliverables, err := parseDeliverables(editDeliverables)
		if err != nil {
			return edit, err
		}
		edit.Deliverables = &deliverables
	}
	return edit, nil
}

func parseDeliverables(values []string) ([]models.Deliverable, error) {
	out := []models.Deliverable{}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		name, path, _ := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		d := models.Deliverable{Path: strings.TrimSpace(path)}
		if strings.HasSuffix(name, "!") {
			d.Completed = true
			name = strings.TrimSpace(strings.TrimSuffix(name, "!"))
		}
		if name == "" {
			return nil, fmt.Errorf("deliverable %q has no name", v)
		}
		d.Name = name
		out = append(out, d)
	}
	return out, nil
}

func init() {
	f := editCmd.Flags()
	f.StringVar(&editTitle, "title", "", "New title")
	f.StringVarP(&editStatus, "status", "s", "", "New status")
	f.StringVarP(&editPriority, "priority", "p", "", "New priority")
	f.StringVar(&editAssign, "assign", "", "Assign to an agent; empty clears")
	f.StringSliceVarP(&editTags, "tags", "t", nil, "Replace tags")
	f.StringSliceVar(&editDependsOn, "depends-on", nil, "Replace dependencies")
	f.StringSliceVar(&editBlocks, "blocks", nil, "Replace the tasks this one blocks")
	f.StringVar(&editDue, "due", "", "Due date (YYYY-MM-DD)")
	f.BoolVar(&editClearDue, "clear-due", false, "Remove the due date")
	f.Float64Var(&editEstimate, "estimate", 0, "Estimated hours")
	f.Float64Var(&editActual, "actual", 0, "Actual hours spent")
	f.StringVar(&editDetailFile, "detail-file", "", "Path to a longer write-up")
	f.StringVarP(&editDescription, "description", "d", "", "Replace the description")
	f.StringArrayVar(&editDeliverables, "deliverable", nil, "Deliverable as name=path (repeatable, replaces the list)")
	f.StringVarP(&editNote, "note", "m", "", "Note for the history entry")
	registerTaskFlagCompletions(editCmd)
	rootCmd.AddCommand(editCmd)
}
