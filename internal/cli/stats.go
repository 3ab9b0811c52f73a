package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/activitysync/internal/persistence"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show key counts and storage usage",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withStore(cmd.Context(), func(store *persistence.Orchestrator) error {
				stats := store.Stats(cmd.Context())
				if rootOpts.jsonOutput() {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "keys:        %d\n", stats.Keys)
				fmt.Fprintf(out, "records:     %d\n", stats.Records)
				fmt.Fprintf(out, "constructed: %d\n", stats.Constructed)
				if stats.CapacityBytes > 0 {
					fmt.Fprintf(out, "used:        %d / %d bytes (%.1f%%)\n", stats.BytesUsed, stats.CapacityBytes, stats.PercentUsed)
				} else {
					fmt.Fprintf(out, "used:        %d bytes\n", stats.BytesUsed)
				}
				return nil
			})
		},
	}
}
