package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncNoPush bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Commit TICK.md, pull teammates' changes, and push",
	Long: `Stage and commit the task document if it changed, pull with rebase, and
push. The command stops when the pull leaves merge conflicts so they can be
resolved by hand.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if GitSync == nil || Config == nil {
			return fmt.Errorf("git sync not initialized")
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		if !GitSync.IsRepo(ctx) {
			return fmt.Errorf("%s is not inside a git repository", GitSync.Dir())
		}

		actor, err := resolveActor()
		if err != nil {
			actor = "tick"
		}
		out := cmd.OutOrStdout()

		if err := GitSync.Stage(ctx, []string{Config.Document}); err != nil {
			return err
		}
		if err := GitSync.Commit(ctx, "tick: sync by "+actor); err != nil {
			return err
		}
		if err := GitSync.Pull(ctx); err != nil {
			if conflicted, cerr := GitSync.HasConflicts(ctx); cerr == nil && conflicted {
				return fmt.Errorf("pull left merge conflicts: resolve them, then run `tick validate`")
			}
			return err
		}
		fmt.Fprintln(out, "Pulled latest changes")

		if syncNoPush {
			return nil
		}
		if err := GitSync.Push(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Pushed")
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncNoPush, "no-push", false, "Commit and pull only")
	rootCmd.AddCommand(syncCmd)
}
