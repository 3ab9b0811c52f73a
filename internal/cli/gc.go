package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/activitysync/internal/persistence"
)

// GCOptions holds flags for the gc command.
type GCOptions struct {
	*RootOptions
	MaxAge time.Duration
}

// NewGCCommand creates the gc command.
func NewGCCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GCOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "gc",
		Short:         "Remove constructed content older than --max-age",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.MaxAge <= 0 {
				return wrapExitError(ExitCommandError, "--max-age must be positive", nil)
			}
			return opts.withStore(cmd.Context(), func(store *persistence.Orchestrator) error {
				result := store.CollectGarbage(cmd.Context(), opts.MaxAge)
				if opts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d constructed entries\n", len(result.Removed))
				if opts.Verbose {
					for _, id := range result.Removed {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&opts.MaxAge, "max-age", 7*24*time.Hour, "age after which constructed content is collected")
	return cmd
}
