// Package cli implements the recipebook command-line tool: the HTTP server
// plus offline import, export, listing and reset against the same store.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/tbourn/recipe-notebook/internal/sysutil"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "text" | "json" | "yaml"
	DBDriver string // overrides DB_DRIVER
	DSN      string // overrides DB_DSN
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the recipebook CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "recipebook",
		Short:   "Recipe notebook server and import tools",
		Long:    "Store recipes, serve them over HTTP and reconcile JSON imports against the notebook.",
		Version: Version,
		// main prints errors once, after the formatter had its chance.
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			sysutil.SetupLogger(cmd.ErrOrStderr(), level, opts.Format == "text")
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.DBDriver, "db-driver", "", "database driver (sqlite|postgres); defaults to DB_DRIVER")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "SQLite path or Postgres DSN; defaults to DB_DSN")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}
