package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ResetResult reports how many recipes were removed.
type ResetResult struct {
	Deleted int64 `json:"deleted" yaml:"deleted"`
}

func (r ResetResult) String() string {
	return fmt.Sprintf("deleted %d recipe(s)", r.Deleted)
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:           "reset",
		Short:         "Delete every stored recipe",
		Long:          "Delete every recipe and its images. Requires --yes.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newFormatter(cmd, rootOpts)
			if !yes {
				return out.Fail(ExitCommandError, ErrCodeBadRequest, "refusing to delete all recipes without --yes", nil, nil)
			}
			a, err := openApp(cmd, rootOpts, out)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Recipes.DeleteAll(cmd.Context())
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeStore, "store unavailable", err, nil)
			}
			return out.Success(ResetResult{Deleted: n})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")

	return cmd
}
