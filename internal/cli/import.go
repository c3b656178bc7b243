package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/recipe-notebook/internal/importer"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	OnDuplicate string
	DryRun      bool
}

// ImportResult is the output of a successful import or dry run.
type ImportResult struct {
	File    string           `json:"file"              yaml:"file"`
	DryRun  bool             `json:"dryRun"            yaml:"dryRun"`
	Summary importer.Summary `json:"summary"           yaml:"summary"`
	Plan    []PlanRow        `json:"plan,omitempty"    yaml:"plan,omitempty"`
	Report  *importer.Report `json:"report,omitempty"  yaml:"report,omitempty"`
}

// PlanRow is one line of a dry-run plan.
type PlanRow struct {
	Index  int    `json:"index"          yaml:"index"`
	Action string `json:"action"         yaml:"action"`
	ID     string `json:"id,omitempty"   yaml:"id,omitempty"`
	Slug   string `json:"slug,omitempty" yaml:"slug,omitempty"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
}

// InvalidRow lists the field errors of one rejected candidate.
type InvalidRow struct {
	Index  int               `json:"index"          yaml:"index"`
	Name   string            `json:"name,omitempty" yaml:"name,omitempty"`
	Errors map[string]string `json:"errors"         yaml:"errors"`
}

// InvalidRows is the error detail when a batch cannot be confirmed.
type InvalidRows []InvalidRow

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import recipes from a JSON export",
		Long: `Import recipes from a JSON file holding one recipe object or an array.

Every candidate is validated and checked against the stored recipes by id,
slug and name. Duplicates are resolved with --on-duplicate. The import is
refused while any candidate is invalid.

Example:
  recipebook import backup.json
  recipebook import backup.json --on-duplicate keep-both --dry-run`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OnDuplicate, "on-duplicate", string(importer.DecisionUpdate), "resolution for duplicates (update|skip|keep-both)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "show the plan without writing")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	out := newFormatter(cmd, opts.RootOptions)
	ctx := cmd.Context()

	decision, err := importer.ParseDecision(opts.OnDuplicate)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeBadRequest, "invalid --on-duplicate", err, nil)
	}

	a, err := openApp(cmd, opts.RootOptions, out)
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := readImportFile(path, a.Cfg.ImportMaxBytes)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return out.Fail(ExitCommandError, ErrCodeTooLarge, "import file too large", err, nil)
		}
		return out.Fail(ExitCommandError, ErrCodeBadRequest, "read import file", err, nil)
	}

	cands, err := importer.ParseBatch(data)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeParse, "parse import file", err, nil)
	}

	rec := &importer.Reconciler{Store: a.Recipes}
	preview, err := rec.Preview(ctx, cands)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeStore, "store unavailable", err, nil)
	}
	if _, err := preview.SetAllDecisions(decision); err != nil {
		return out.Fail(ExitCommandError, ErrCodeBadRequest, "apply decisions", err, nil)
	}
	sum := preview.Summary()
	out.VerboseLog("%s: %d candidates, %d new, %d duplicates, %d invalid",
		path, sum.Total, sum.New, sum.Duplicates, sum.Invalid)

	if err := preview.CanConfirm(); err != nil {
		return out.Fail(ExitFailure, ErrCodeInvalid, "import refused", err, invalidRows(preview))
	}

	res := ImportResult{File: path, DryRun: opts.DryRun, Summary: sum}
	if opts.DryRun {
		plan, err := rec.Plan(ctx, preview)
		if err != nil {
			return out.Fail(ExitCommandError, ErrCodeStore, "plan import", err, nil)
		}
		res.Plan = planRows(plan)
		return out.Success(res)
	}

	rep, err := rec.Apply(ctx, preview)
	if err != nil {
		if rep != nil {
			log.Warn().Err(err).Int("changed", rep.Changed()).Msg("import partially applied")
		}
		return out.Fail(ExitFailure, ErrCodeStore, "import interrupted", err, rep)
	}
	res.Report = rep
	return out.Success(res)
}

var errTooLarge = errors.New("file exceeds IMPORT_MAX_BYTES")

// readImportFile reads at most limit bytes, or stdin when path is "-".
func readImportFile(path string, limit int64) ([]byte, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w (%d bytes)", errTooLarge, limit)
	}
	return data, nil
}

func invalidRows(p *importer.Preview) InvalidRows {
	var rows InvalidRows
	for _, it := range p.Items {
		if it.Status == importer.StatusInvalid {
			rows = append(rows, InvalidRow{Index: it.Index, Name: it.Name, Errors: it.Errors})
		}
	}
	return rows
}

func planRows(plan []importer.PlanEntry) []PlanRow {
	rows := make([]PlanRow, 0, len(plan))
	for _, e := range plan {
		row := PlanRow{Index: e.Index, Action: string(e.Action)}
		if e.Recipe != nil {
			row.ID, row.Slug, row.Name = e.Recipe.ID, e.Recipe.Slug, e.Recipe.Name
		}
		rows = append(rows, row)
	}
	return rows
}

// RenderText prints the summary followed by the plan or the report.
func (r ImportResult) RenderText(w io.Writer) error {
	s := r.Summary
	fmt.Fprintf(w, "%s: %d candidates (%d new, %d duplicates)\n", r.File, s.Total, s.New, s.Duplicates)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	switch {
	case r.DryRun:
		fmt.Fprintln(tw, "INDEX\tACTION\tSLUG\tNAME")
		for _, p := range r.Plan {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.Index, p.Action, p.Slug, p.Name)
		}
	case r.Report != nil:
		rep := r.Report
		fmt.Fprintf(tw, "inserted\t%d\nupdated\t%d\nskipped\t%d\nstale\t%d\n",
			rep.Inserted, rep.Updated, rep.Skipped, rep.Stale)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if r.Report != nil {
		for _, warn := range r.Report.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warn)
		}
	}
	return nil
}

// RenderText prints one line per field error.
func (rows InvalidRows) RenderText(w io.Writer) error {
	for _, row := range rows {
		fields := make([]string, 0, len(row.Errors))
		for f := range row.Errors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		label := strings.TrimSpace(row.Name)
		if label == "" {
			label = "(unnamed)"
		}
		for _, f := range fields {
			if _, err := fmt.Fprintf(w, "  #%d %s: %s %s\n", row.Index, label, f, row.Errors[f]); err != nil {
				return err
			}
		}
	}
	return nil
}
