package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and clean the advisory claim locks",
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List held locks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Locks == nil {
			return fmt.Errorf("lock manager not initialized")
		}
		locks, err := Locks.List()
		if err != nil {
			return fmt.Errorf("reading locks: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(locks) == 0 {
			fmt.Fprintln(out, "No locks held.")
			return nil
		}
		current := now()
		fmt.Fprintf(out, "  %-10s %-16s %-8s %s\n", "TASK", "AGENT", "PID", "HELD FOR")
		for _, l := range locks {
			age := current.Sub(l.AcquiredAt).Round(time.Second)
			fmt.Fprintf(out, "  %-10s %-16s %-8d %s\n", l.TaskID, l.Agent, l.PID, age)
		}
		return nil
	},
}

var locksMaxAge time.Duration

var locksCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove locks older than --max-age whose holder process has exited",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		maxAge := locksMaxAge
		if !cmd.Flags().Changed("max-age") && Config != nil {
			maxAge = Config.LockMaxAge
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		n, err := TaskMgr.CleanupLocks(ctx, maxAge, now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale locks\n", n)
		return nil
	},
}

func init() {
	locksCleanupCmd.Flags().DurationVar(&locksMaxAge, "max-age", time.Hour, "Only remove locks older than this (default from locks.max_age)")
	locksCmd.AddCommand(locksListCmd, locksCleanupCmd)
	rootCmd.AddCommand(locksCmd)
}
