package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// shellCompletion generates one shell's script and knows where that shell
// picks up user completions.
type shellCompletion struct {
	generate func(w io.Writer) error
	dir      func(home string) string
	file     string
	load     string
}

var completionShells = map[string]shellCompletion{
	"bash": {
		generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		dir: func(home string) string {
			return filepath.Join(home, ".local", "share", "bash-completion", "completions")
		},
		file: "tick",
		load: `source <(tick completion bash)`,
	},
	"zsh": {
		generate: func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
		dir: func(home string) string {
			return filepath.Join(home, ".local", "share", "zsh", "site-functions")
		},
		file: "_tick",
		load: `source <(tick completion zsh)`,
	},
	"fish": {
		generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		dir: func(home string) string {
			return filepath.Join(home, ".config", "fish", "completions")
		},
		file: "tick.fish",
		load: "tick completion fish | source",
	},
	"powershell": {
		generate: func(w io.Writer) error { return rootCmd.GenPowerShellCompletionWithDesc(w) },
		load:     "tick completion powershell | Out-String | Invoke-Expression",
	},
}

var (
	completionInstall bool
	completionDir     string
)

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Print or install shell completions for tick",
	Long: `Print the completion script for a shell, or install it with --install.

Task IDs, agents, priorities and statuses complete from the current TICK.md.`,
	ValidArgs: shellNames(),
	Args:      cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		sc, ok := completionShells[args[0]]
		if !ok {
			return fmt.Errorf("unsupported shell %q (supported: %s)", args[0], strings.Join(shellNames(), ", "))
		}
		if !completionInstall {
			fmt.Fprintf(cmd.ErrOrStderr(), "# load in this session: %s\n", sc.load)
			return sc.generate(cmd.OutOrStdout())
		}

		dir := completionDir
		if dir == "" {
			if sc.dir == nil {
				return fmt.Errorf("--install needs --dir for %s; or add `%s` to your profile", args[0], sc.load)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("detecting home directory: %w", err)
			}
			dir = sc.dir(home)
		}
		file := sc.file
		if file == "" {
			file = "tick." + args[0]
		}
		target := filepath.Join(dir, file)
		if err := writeCompletion(target, sc.generate); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s completions to %s\n", args[0], target)
		return nil
	},
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false, "Write the script where the shell loads completions")
	completionCmd.Flags().StringVar(&completionDir, "dir", "", "Install into this directory instead of the shell default")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func shellNames() []string {
	names := make([]string, 0, len(completionShells))
	for name := range completionShells {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeCompletion(target string, generate func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file: %w", err)
	}
	if err := generate(f); err != nil {
		f.Close()
		return fmt.Errorf("writing completion file: %w", err)
	}
	return f.Close()
}
