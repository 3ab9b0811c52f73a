// Package cli implements storectl, the maintenance CLI for an activitysync store.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"example.com/activitysync/internal/bootstrap"
	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/persistence"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // partial import, refused purge
	ExitCommandError = 2 // bad flags, unreachable storage
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func wrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format     string
	Medium     string
	SQLitePath string
	Verbose    bool
}

// NewRootCommand creates the storectl root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "storectl",
		Short: "Inspect and maintain an activitysync store",
		Long: `storectl operates directly on the configured storage medium.

Connection settings come from the same environment variables and
ACTIVITYSYNC_CONFIG file the services read; --medium and --sqlite-path
override them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Medium, "medium", "", "storage medium override (memory|sqlite|redis|postgres)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", "", "SQLite database path override")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log storage diagnostics to stderr")

	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewGCCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))

	return cmd
}

// withStore opens the configured medium, runs fn against an orchestrator over
// it and releases everything afterwards.
func (opts *RootOptions) withStore(ctx context.Context, fn func(*persistence.Orchestrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return wrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Medium != "" {
		cfg.StorageMedium = opts.Medium
	}
	if opts.SQLitePath != "" {
		cfg.SQLitePath = opts.SQLitePath
	}

	log := logger.NewNop()
	if opts.Verbose {
		if log, err = logger.New("dev"); err != nil {
			return wrapExitError(ExitCommandError, "failed to init logger", err)
		}
	}

	storage, err := bootstrap.OpenStorage(ctx, cfg, log)
	if err != nil {
		return wrapExitError(ExitCommandError, "failed to open storage", err)
	}
	defer storage.Close()

	store := storage.Orchestrator(cfg, log)
	defer store.Close()
	return fn(store)
}

func (opts *RootOptions) jsonOutput() bool { return opts.Format == "json" }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
