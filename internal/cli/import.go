package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"example.com/activitysync/internal/persistence"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot.json|->",
		Short: "Load a snapshot produced by export",
		Long: `Load a snapshot produced by export. Records are re-validated and
re-synchronized before they are written; entries that fail are reported
and skipped. Use - to read from stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, cmd, args[0])
		},
	}
}

func runImport(opts *RootOptions, cmd *cobra.Command, path string) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return wrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	return opts.withStore(cmd.Context(), func(store *persistence.Orchestrator) error {
		result := store.ImportAll(cmd.Context(), data)
		store.Flush()

		if opts.jsonOutput() {
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
		} else {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d records, %d constructed entries\n", result.Records, result.Constructed)
			for _, e := range result.Errors {
				fmt.Fprintf(out, "  skipped %s: %s\n", e.ID, e.Reason)
			}
		}
		if len(result.Errors) > 0 {
			return wrapExitError(ExitFailure, fmt.Sprintf("%d entries skipped", len(result.Errors)), nil)
		}
		return nil
	})
}
