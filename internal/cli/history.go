package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Maintain task histories",
}

var compactKeep int

var historyCompactCmd = &cobra.Command{
	Use:   "compact <task-id>",
	Short: "Drop old history entries, keeping the creation entry and the latest --keep",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		if compactKeep < 0 {
			return fmt.Errorf("--keep must not be negative")
		}
		caller, err := callerFor()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		task, err := TaskMgr.CompactHistory(ctx, caller, taskArg(args[0]), compactKeep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Compacted %s: %d history entries remain\n", task.ID, len(task.History))
		return nil
	},
}

func init() {
	historyCompactCmd.Flags().IntVar(&compactKeep, "keep", 10, "Number of recent entries to keep")
	historyCmd.AddCommand(historyCompactCmd)
	rootCmd.AddCommand(historyCmd)
}
