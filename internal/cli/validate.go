package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/internal/core"
)

var validateJSON bool

// errInvalidDocument makes `tick validate` exit non-zero.
var errInvalidDocument = errors.New("document has graph errors")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check task references and the dependency graph",
	Long: `Check every task reference and the dependency graph. Errors (dangling
references, cycles, duplicate IDs) make the command fail; warnings are
reported but do not.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		result, err := TaskMgr.Validate(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if validateJSON {
			if err := printJSON(out, result); err != nil {
				return err
			}
		} else {
			printIssues(cmd, result)
		}
		if !result.Valid {
			return errInvalidDocument
		}
		return nil
	},
}

func printIssues(cmd *cobra.Command, result *core.ValidationResult) {
	out := cmd.OutOrStdout()
	for _, issue := range result.Errors {
		fmt.Fprintf(out, "  %s %s\n", severityHigh.Render("error"), issue.Message)
	}
	for _, issue := range result.Warnings {
		fmt.Fprintf(out, "  %s %s\n", severityMedium.Render("warn "), issue.Message)
	}
	if result.Valid {
		fmt.Fprintf(out, "Valid (%d warnings)\n", len(result.Warnings))
	} else {
		fmt.Fprintf(out, "Invalid: %d errors, %d warnings\n", len(result.Errors), len(result.Warnings))
	}
}

func init() {
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(validateCmd)
}
