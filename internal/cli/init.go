package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/core"
	"github.com/tick-md/tick/internal/storage"
	"gopkg.in/yaml.v3"
)

var (
	initTitle      string
	initPrefix     string
	initNotes      string
	initSkipConfig bool
)

var initCmd = &cobra.Command{
	Use:   "init <project>",
	Short: "Create TICK.md for a new project",
	Long: `Create the task document for a new project. The acting identity is
registered as the project owner.

Unless --no-config is given, a starter .tickconfig is written next to the
document when none exists.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		caller, err := callerFor()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		doc, err := TaskMgr.Init(ctx, caller, core.InitOptions{
			Project:  args[0],
			Title:    initTitle,
			IDPrefix: initPrefix,
			Notes:    initNotes,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Initialized %s (prefix %s, owner %s)\n", doc.Meta.Project, doc.Meta.IDPrefix, caller.Actor)

		if !initSkipConfig && BasePath != "" {
			path, written, err := writeStarterConfig(BasePath, caller.Actor)
			if err != nil {
				return fmt.Errorf("writing starter config: %w", err)
			}
			if written {
				fmt.Fprintf(out, "Wrote %s\n", path)
			}
		}
		return nil
	},
}

// writeStarterConfig creates .tickconfig with the common keys filled in. An
// existing file is left alone.
func writeStarterConfig(basePath, agent string) (string, bool, error) {
	path := filepath.Join(basePath, core.ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return path, false, err
	}

	defaults := core.DefaultConfig()
	starter := map[string]any{
		"document": "TICK.md",
		"defaults": map[string]any{"agent": agent},
		"git": map[string]any{
			"auto_commit": false,
			"auto_push":   false,
		},
		"queue": map[string]any{
			"max_attempts": defaults.Queue.MaxAttempts,
			"max_delay":    defaults.Queue.MaxDelay.String(),
		},
		"notifications": map[string]any{"webhooks": []any{}},
	}
	data, err := yaml.Marshal(starter)
	if err != nil {
		return path, false, err
	}
	if err := storage.WriteFileAtomic(path, data, 0o644); err != nil {
		return path, false, err
	}
	return path, true, nil
}

func init() {
	initCmd.Flags().StringVar(&initTitle, "title", "", "Human-readable project title")
	initCmd.Flags().StringVar(&initPrefix, "prefix", "", "Task ID prefix (default: first letters of the project name)")
	initCmd.Flags().StringVar(&initNotes, "notes", "", "Free-form project notes")
	initCmd.Flags().BoolVar(&initSkipConfig, "no-config", false, "Do not write a starter .tickconfig")
	rootCmd.AddCommand(initCmd)
}
