package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/core"
	"github.com/tick-md/tick/pkg/models"
)

// completeTaskIDs returns a completion function that lists task IDs,
// optionally filtered to exclude certain statuses.
func completeTaskIDs(excludeStatuses ...models.TaskStatus) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if TaskMgr == nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		tasks, err := TaskMgr.ListTasks(context.Background(), core.TaskFilter{})
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		exclude := make(map[models.TaskStatus]bool)
		for _, s := range excludeStatuses {
			exclude[s] = true
		}

		var ids []string
		for _, task := range tasks {
			if exclude[task.Status] {
				continue
			}
			if toComplete == "" || strings.HasPrefix(task.ID, toComplete) {
				ids = append(ids, task.ID+"\t"+task.Title)
			}
		}

		return ids, cobra.ShellCompDirectiveNoFileComp
	}
}

// completeAgents lists registered agent names.
func completeAgents(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if TaskMgr == nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	doc, err := TaskMgr.Document(context.Background())
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, a := range doc.Agents {
		if strings.HasPrefix(a.Name, toComplete) {
			names = append(names, a.Name+"\t"+string(a.Status))
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func completePriorities(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"urgent\tDrop everything",
		"high\tNext up",
		"medium\tNormal",
		"low\tWhen there is time",
	}, cobra.ShellCompDirectiveNoFileComp
}

func completeStatuses(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	return []string{
		"backlog\tNot yet scheduled",
		"todo\tReady to pick up",
		"in_progress\tClaimed and being worked on",
		"review\tWaiting for review",
		"done\tCompleted",
		"blocked\tWaiting on a dependency",
		"reopened\tCompleted once, reopened",
	}, cobra.ShellCompDirectiveNoFileComp
}

// registerTaskFlagCompletions attaches value completions to the flags a
// command defines. Flags the command lacks are skipped.
func registerTaskFlagCompletions(cmd *cobra.Command) {
	funcs := map[string]func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective){
		"priority":    completePriorities,
		"status":      completeStatuses,
		"assign":      completeAgents,
		"claimed-by":  completeAgents,
		"assigned-to": completeAgents,
		"depends-on":  completeTaskIDs(),
		"blocks":      completeTaskIDs(),
	}
	for name, fn := range funcs {
		if cmd.Flags().Lookup(name) == nil {
			continue
		}
		_ = cmd.RegisterFlagCompletionFunc(name, fn)
	}
}

func init() {
	claimCmd.ValidArgsFunction = completeTaskIDs(models.StatusDone, models.StatusInProgress)
	releaseCmd.ValidArgsFunction = completeTaskIDs(models.StatusDone)
	doneCmd.ValidArgsFunction = completeTaskIDs(models.StatusDone)
	reopenCmd.ValidArgsFunction = completeTaskIDs()
	commentCmd.ValidArgsFunction = completeTaskIDs()
	deleteCmd.ValidArgsFunction = completeTaskIDs()
	showCmd.ValidArgsFunction = completeTaskIDs()
	editCmd.ValidArgsFunction = completeTaskIDs()
	historyCompactCmd.ValidArgsFunction = completeTaskIDs()
	agentStatusCmd.ValidArgsFunction = completeAgents
}
