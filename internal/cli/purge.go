package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/activitysync/internal/persistence"
)

// PurgeOptions holds flags for the purge command.
type PurgeOptions struct {
	*RootOptions
	Yes bool
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PurgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "purge [id...]",
		Short: "Remove the given activities, or every owned key with --all",
		Example: `  storectl purge act-42 act-43
  storectl purge --all --yes`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			return runPurge(opts, cmd, args, all)
		},
	}
	cmd.Flags().Bool("all", false, "remove every key owned by the store")
	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm --all")
	return cmd
}

func runPurge(opts *PurgeOptions, cmd *cobra.Command, ids []string, all bool) error {
	switch {
	case all && len(ids) > 0:
		return wrapExitError(ExitCommandError, "ids and --all are mutually exclusive", nil)
	case !all && len(ids) == 0:
		return wrapExitError(ExitCommandError, "no ids given", nil)
	case all && !opts.Yes:
		return wrapExitError(ExitFailure, "refusing to clear the store without --yes", nil)
	}

	return opts.withStore(cmd.Context(), func(store *persistence.Orchestrator) error {
		out := cmd.OutOrStdout()
		if all {
			if !store.ClearAll(cmd.Context()) {
				return wrapExitError(ExitFailure, "clear failed", nil)
			}
			fmt.Fprintln(out, "store cleared")
			return nil
		}
		failed := 0
		for _, id := range ids {
			if store.Remove(cmd.Context(), id) {
				fmt.Fprintf(out, "removed %s\n", id)
			} else {
				fmt.Fprintf(out, "failed %s\n", id)
				failed++
			}
		}
		if failed > 0 {
			return wrapExitError(ExitFailure, fmt.Sprintf("%d removals failed", failed), nil)
		}
		return nil
	})
}
