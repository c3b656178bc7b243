package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// RecipeRow is one line of the list output.
type RecipeRow struct {
	ID        string    `json:"id"        yaml:"id"`
	Slug      string    `json:"slug"      yaml:"slug"`
	Name      string    `json:"name"      yaml:"name"`
	Servings  int       `json:"servings"  yaml:"servings"`
	Images    int       `json:"images"    yaml:"images"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// RecipeRows renders as a table in text mode.
type RecipeRows []RecipeRow

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored recipes",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, cmd)
		},
	}
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts)

	a, err := openApp(cmd, opts, out)
	if err != nil {
		return err
	}
	defer a.Close()

	recipes, err := a.Recipes.All(cmd.Context())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeStore, "store unavailable", err, nil)
	}
	rows := make(RecipeRows, 0, len(recipes))
	for _, r := range recipes {
		rows = append(rows, RecipeRow{
			ID:        r.ID,
			Slug:      r.Slug,
			Name:      r.Name,
			Servings:  r.Servings,
			Images:    len(r.Images),
			UpdatedAt: r.UpdatedAt.UTC(),
		})
	}
	return out.Success(rows)
}

// RenderText prints an aligned table, or a note when empty.
func (rows RecipeRows) RenderText(w io.Writer) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "no recipes")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tNAME\tSERVINGS\tIMAGES\tUPDATED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.Slug, r.Name, r.Servings, r.Images, r.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
