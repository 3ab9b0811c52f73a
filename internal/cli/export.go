package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/activitysync/internal/persistence"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a snapshot of every valid record and the constructed index",
		Example: `  storectl export -o snapshot.json
  storectl export --medium sqlite --sqlite-path ./activitysync.db > snapshot.json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "snapshot file (default stdout)")
	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	return opts.withStore(cmd.Context(), func(store *persistence.Orchestrator) error {
		data, ok := store.ExportAll(cmd.Context())
		if !ok {
			return wrapExitError(ExitCommandError, "export failed", nil)
		}
		if opts.Output == "" {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return wrapExitError(ExitCommandError, "failed to write snapshot", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "snapshot written to %s\n", opts.Output)
		return nil
	})
}
