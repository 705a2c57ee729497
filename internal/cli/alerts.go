package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/observability"
)

var (
	alertsNotify bool
	alertsJSON   bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active alerts and warnings",
	Long: `Evaluate alert conditions against the task document and the retry queue
and display any triggered alerts.

Alerts check for stale in-progress tasks, tasks blocked or in review for too
long, overdue tasks, backlog size, and dead-lettered notifications. With
--notify, the alerts are also queued to every webhook that accepts the
"alerts.triggered" event.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized")
		}
		if err := requireTaskMgr(); err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		doc, err := TaskMgr.Document(ctx)
		if err != nil {
			return err
		}
		in := observability.AlertInput{Doc: doc, Now: now()}
		if Queue != nil {
			stats, err := Queue.Stats()
			if err != nil {
				return fmt.Errorf("reading retry queue: %w", err)
			}
			in.DeadLetters = stats.Failed
		}
		alerts := AlertEngine.Evaluate(in)

		out := cmd.OutOrStdout()
		if alertsJSON {
			if alerts == nil {
				alerts = []observability.Alert{}
			}
			if err := printJSON(out, alerts); err != nil {
				return err
			}
		} else if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
		} else {
			fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
			for _, alert := range alerts {
				severity := strings.ToUpper(string(alert.Severity))
				fmt.Fprintf(out, "  [%s] %s\n", styleForSeverity(string(alert.Severity)).Render(severity), alert.Message)
			}
		}

		if alertsNotify && len(alerts) > 0 {
			if Dispatcher == nil {
				return fmt.Errorf("notification dispatcher not initialized")
			}
			n, err := Dispatcher.NotifyAlerts(doc.Meta.Project, alerts, in.Now)
			if err != nil {
				return fmt.Errorf("queueing alert notifications: %w", err)
			}
			if !alertsJSON {
				fmt.Fprintf(out, "\nQueued %d notifications\n", n)
			}
		}
		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Queue the alerts to configured webhooks")
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(alertsCmd)
}
