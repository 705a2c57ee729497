package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/integration"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and deliver queued webhook notifications",
	Long: `Notifications are queued when a change is committed and delivered by
"tick queue process" (once) or "tick queue run" (until interrupted). Failed
deliveries back off exponentially; after queue.max_attempts an item is
dead-lettered until "tick queue requeue" or "tick queue purge".`,
}

var queueJSON bool

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued notifications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Queue == nil {
			return fmt.Errorf("retry queue not initialized")
		}
		items, err := Queue.Items()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if queueJSON {
			if items == nil {
				items = []integration.QueueItem{}
			}
			return printJSON(out, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "Queue is empty.")
			return nil
		}
		current := now()
		fmt.Fprintf(out, "  %-8s %-8s %-12s %-18s %-8s %s\n", "ID", "STATUS", "DESTINATION", "EVENT", "ATTEMPT", "NEXT")
		for _, it := range items {
			next := "-"
			if it.NextRetry != nil {
				if d := it.NextRetry.Sub(current); d > 0 {
					next = "in " + d.Round(time.Second).String()
				} else {
					next = "due"
				}
			}
			status := string(it.Status)
			if it.Status == integration.QueueFailed {
				status = statusBlocked.Render(fmt.Sprintf("%-8s", status))
			} else {
				status = fmt.Sprintf("%-8s", status)
			}
			fmt.Fprintf(out, "  %-8s %s %-12s %-18s %-8d %s\n", shortID(it.ID), status, it.Destination.Name, it.Event, it.Attempts, next)
			if it.LastError != "" {
				fmt.Fprintf(out, "           %s\n", dimStyle.Render(it.LastError))
			}
		}
		return nil
	},
}

var queueProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Deliver every due notification once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if QueueWorker == nil {
			return fmt.Errorf("queue worker not initialized")
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		res, err := QueueWorker.ProcessDue(ctx)
		if err != nil {
			return fmt.Errorf("processing queue: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Delivered %d, failed %d, dead-lettered %d\n", res.Delivered, res.Failed, res.DeadLettered)
		return nil
	},
}

var queueInterval time.Duration

var queueRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Deliver notifications continuously until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if QueueWorker == nil {
			return fmt.Errorf("queue worker not initialized")
		}
		interval := queueInterval
		if !cmd.Flags().Changed("interval") && Config != nil && Config.Queue.PollInterval > 0 {
			interval = Config.Queue.PollInterval
		}
		base := cmd.Context()
		if base == nil {
			base = context.Background()
		}
		ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Delivering notifications every %s (Ctrl-C to stop)\n", interval)
		return QueueWorker.Run(ctx, interval)
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue",
	Short: "Retry every dead-lettered notification",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Queue == nil {
			return fmt.Errorf("retry queue not initialized")
		}
		n, err := Queue.RequeueFailed()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d notifications\n", n)
		return nil
	},
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop every dead-lettered notification",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Queue == nil {
			return fmt.Errorf("retry queue not initialized")
		}
		n, err := Queue.PurgeFailed()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d notifications\n", n)
		return nil
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	queueListCmd.Flags().BoolVar(&queueJSON, "json", false, "Output as JSON")
	queueRunCmd.Flags().DurationVar(&queueInterval, "interval", 10*time.Second, "Polling interval (default from queue.poll_interval)")
	queueCmd.AddCommand(queueListCmd, queueProcessCmd, queueRunCmd, queueRequeueCmd, queuePurgeCmd)
	rootCmd.AddCommand(queueCmd)
}
