package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/observability"
)

var (
	logSince string
	logTask  string
	logActor string
	logType  string
	logLimit int
	logJSON  bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show the activity journal",
	Long: `Show committed changes from the activity journal, oldest first.
--limit keeps only the most recent entries.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Journal == nil {
			return fmt.Errorf("activity journal not initialized")
		}
		filter := observability.EventFilter{
			TaskID: taskArg(logTask),
			Actor:  normalizeAgent(logActor),
			Type:   logType,
		}
		if logSince != "" {
			since, err := parseSinceDuration(logSince)
			if err != nil {
				return fmt.Errorf("parsing --since: %w", err)
			}
			filter.Since = &since
		}

		events, err := Journal.Read(filter)
		if err != nil {
			return fmt.Errorf("reading journal: %w", err)
		}
		if logLimit > 0 && len(events) > logLimit {
			events = events[len(events)-logLimit:]
		}

		out := cmd.OutOrStdout()
		if logJSON {
			return printJSON(out, events)
		}
		if len(events) == 0 {
			fmt.Fprintln(out, "No activity recorded.")
			return nil
		}
		for _, ev := range events {
			fmt.Fprintf(out, "%s  %-16s %s\n", dimStyle.Render(ev.At.Format("2006-01-02 15:04:05")), ev.Type, ev.Message)
		}
		return nil
	},
}

func init() {
	logCmd.Flags().StringVar(&logSince, "since", "", "Only events newer than this (e.g. 7d, 24h)")
	logCmd.Flags().StringVar(&logTask, "task", "", "Only events for this task")
	logCmd.Flags().StringVar(&logActor, "actor", "", "Only events by this agent")
	logCmd.Flags().StringVar(&logType, "type", "", "Only this event type (e.g. task.completed)")
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 50, "Show at most this many recent events (0 for all)")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(logCmd)
}
