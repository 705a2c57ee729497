package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// actorFlag holds the persistent --as flag.
var actorFlag string

var rootCmd = &cobra.Command{
	Use:   "tick",
	Short: "Coordinate humans and agents through a shared TICK.md task file",
	Long: `tick keeps a project's tasks in a single markdown file (TICK.md) that
humans and automated agents edit concurrently without a server.

Every change is guarded against concurrent writers, claims are backed by an
advisory lock file, and the dependency graph between tasks is validated.
Committed changes are journaled and optionally sent to webhooks and git.

The acting identity comes from --as, then TICK_AGENT, then defaults.agent in
.tickconfig.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tick %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&actorFlag, "as", "", "Act as this agent (e.g. @alice)")
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
