// Package cli is the witcopy command surface: one subcommand per
// migration mode, shared connection flags, and exit codes callers can
// script against.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/adotools/witcopy/internal/ado"
	"github.com/adotools/witcopy/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Stores overrides how commands reach the two organizations (for
	// testing). If nil, REST clients are built from the resolved config.
	Stores StoreFactory
}

// StoreFactory builds the source and target stores from resolved
// configuration.
type StoreFactory func(cfg *config.Config) (source, target ado.Store, err error)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the witcopy CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "witcopy",
		Short: "witcopy - copy Azure DevOps work items between organizations",
		Long: `Copies work item hierarchies between Azure DevOps organizations: fields
mapped onto the target process, parent-child and related links re-established,
attachments and comments carried over. Re-runs are idempotent through a local
state database, so an interrupted migration picks up where it stopped.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewCopyHierarchyCommand(opts))
	cmd.AddCommand(NewCopyLastNCommand(opts))
	cmd.AddCommand(NewCopySingleCommand(opts))
	cmd.AddCommand(NewDiagnoseFieldsCommand(opts))
	cmd.AddCommand(NewDownloadAttachmentsCommand(opts))
	cmd.AddCommand(NewUploadAttachmentsCommand(opts))
	cmd.AddCommand(NewLinkExistingCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// initLogging routes structured logs to stderr, at debug level with
// --verbose.
func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// newFormatter builds the output formatter for one command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
