package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tbourn/recipe-notebook/internal/domain"
	"github.com/tbourn/recipe-notebook/internal/importer"
	"github.com/tbourn/recipe-notebook/internal/services"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	ID     string
	Output string
}

// ExportResult reports a file export.
type ExportResult struct {
	Path    string `json:"path"    yaml:"path"`
	Recipes int    `json:"recipes" yaml:"recipes"`
}

func (r ExportResult) String() string {
	return fmt.Sprintf("exported %d recipe(s) to %s", r.Recipes, r.Path)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recipes as JSON",
		Long: `Write recipes in the import file format, images inlined as data URLs.

Without --id the whole notebook is exported as an array. With --id a single
recipe (by id or slug) is exported as an object. The document goes to stdout
unless -o is given.

Example:
  recipebook export -o backup.json
  recipebook export --id tomato-soup`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "recipe id or slug to export alone")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)
	ctx := cmd.Context()

	a, err := openApp(cmd, opts.RootOptions, out)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		recipes []domain.Recipe
		single  = opts.ID != ""
	)
	if single {
		r, err := a.Recipes.Get(ctx, opts.ID)
		if errors.Is(err, services.ErrRecipeNotFound) {
			r, err = a.Recipes.GetBySlug(ctx, opts.ID)
		}
		switch {
		case errors.Is(err, services.ErrRecipeNotFound):
			return out.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("recipe %q not found", opts.ID), nil, nil)
		case err != nil:
			return out.Fail(ExitCommandError, ErrCodeStore, "store unavailable", err, nil)
		}
		recipes = []domain.Recipe{*r}
	} else {
		recipes, err = a.Recipes.All(ctx)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeStore, "store unavailable", err, nil)
		}
	}

	if opts.Output == "" {
		if err := importer.WriteExport(cmd.OutOrStdout(), recipes, single); err != nil {
			return WrapExitError(ExitCommandError, "write export", err)
		}
		return nil
	}

	if err := writeExportFile(opts.Output, recipes, single); err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "write export", err, nil)
	}
	out.VerboseLog("wrote %s", opts.Output)
	return out.Success(ExportResult{Path: opts.Output, Recipes: len(recipes)})
}

func writeExportFile(path string, recipes []domain.Recipe, single bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return importer.WriteExport(f, recipes, single)
}
