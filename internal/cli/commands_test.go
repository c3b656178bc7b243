package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/recipe-notebook/internal/importer"
)

type harness struct {
	t   *testing.T
	dir string
	dsn string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("IMPORT_MAX_BYTES", "1048576")
	dir := t.TempDir()
	return &harness{t: t, dir: dir, dsn: filepath.Join(dir, "recipes.db")}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--dsn", h.dsn}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) writeFile(name string, v any) string {
	h.t.Helper()
	b, err := json.Marshal(v)
	require.NoError(h.t, err)
	p := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(p, b, 0o600))
	return p
}

func decodeData[T any](t *testing.T, s string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(s), &resp), s)
	require.Equal(t, "ok", resp.Status, s)
	return resp.Data
}

func decodeError(t *testing.T, s string) CLIError {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(s), &resp), s)
	require.Equal(t, "error", resp.Status, s)
	require.NotNil(t, resp.Error)
	return *resp.Error
}

func recipe(name string) map[string]any {
	return map[string]any{
		"name":         name,
		"ingredients":  []any{"Water", map[string]any{"name": "Salt", "amount": 1, "unit": "tsp"}},
		"instructions": []string{"Boil", "Season"},
		"servings":     2,
	}
}

func (h *harness) listNames() []string {
	h.t.Helper()
	out, err := h.run("list", "--format", "json")
	require.NoError(h.t, err)
	rows := decodeData[[]RecipeRow](h.t, out)
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

func TestImportListExportReset(t *testing.T) {
	h := newHarness(t)
	file := h.writeFile("batch.json", []any{recipe("Tomato Soup"), recipe("Pea Soup")})

	out, err := h.run("import", file, "--format", "json")
	require.NoError(t, err)
	res := decodeData[ImportResult](t, out)
	assert.Equal(t, 2, res.Summary.New)
	require.NotNil(t, res.Report)
	assert.Equal(t, 2, res.Report.Inserted)

	assert.Equal(t, []string{"Pea Soup", "Tomato Soup"}, h.listNames())

	// Re-importing the same file collides by name; skip leaves the store alone.
	out, err = h.run("import", file, "--format", "json", "--on-duplicate", "skip")
	require.NoError(t, err)
	res = decodeData[ImportResult](t, out)
	assert.Equal(t, 2, res.Summary.Duplicates)
	assert.Equal(t, 2, res.Report.Skipped)
	assert.Equal(t, 0, res.Report.Changed())

	// A keep-both dry run plans copies under fresh slugs and writes nothing.
	out, err = h.run("import", file, "--format", "json", "--on-duplicate", "keep-both", "--dry-run")
	require.NoError(t, err)
	res = decodeData[ImportResult](t, out)
	assert.True(t, res.DryRun)
	assert.Nil(t, res.Report)
	require.Len(t, res.Plan, 2)
	for _, row := range res.Plan {
		assert.Equal(t, string(importer.ActionKeepBoth), row.Action)
		assert.NotEqual(t, "tomato-soup", row.Slug)
		assert.NotEqual(t, "pea-soup", row.Slug)
	}
	assert.Len(t, h.listNames(), 2)

	// Export everything to a file and read it back as an import batch.
	exported := filepath.Join(h.dir, "export.json")
	out, err = h.run("export", "-o", exported, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, ExportResult{Path: exported, Recipes: 2}, decodeData[ExportResult](t, out))
	data, err := os.ReadFile(exported)
	require.NoError(t, err)
	cands, err := importer.ParseBatch(data)
	require.NoError(t, err)
	assert.Len(t, cands, 2)

	// Single export by slug goes to stdout as one object.
	out, err = h.run("export", "--id", "tomato-soup")
	require.NoError(t, err)
	var single map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &single))
	assert.Equal(t, "Tomato Soup", single["name"])

	out, err = h.run("export", "--id", "no-such-recipe", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decodeError(t, out).Code)

	// Reset refuses without --yes.
	_, err = h.run("reset")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Len(t, h.listNames(), 2)

	out, err = h.run("reset", "--yes", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, int64(2), decodeData[ResetResult](t, out).Deleted)
	assert.Empty(t, h.listNames())
}

func TestImportUpdateOverwritesByName(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("import", h.writeFile("a.json", recipe("Tomato Soup")))
	require.NoError(t, err)

	changed := recipe("Tomato Soup")
	changed["servings"] = 6
	out, err := h.run("import", h.writeFile("b.json", changed), "--format", "json")
	require.NoError(t, err)
	res := decodeData[ImportResult](t, out)
	assert.Equal(t, 1, res.Report.Updated)

	out, err = h.run("list", "--format", "json")
	require.NoError(t, err)
	rows := decodeData[[]RecipeRow](t, out)
	require.Len(t, rows, 1)
	assert.Equal(t, 6, rows[0].Servings)
}

func TestImportRefusesInvalidBatch(t *testing.T) {
	h := newHarness(t)
	bad := recipe("Broken")
	delete(bad, "servings")
	file := h.writeFile("bad.json", []any{recipe("Fine"), bad})

	out, err := h.run("import", file, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	cliErr := decodeError(t, out)
	assert.Equal(t, ErrCodeInvalid, cliErr.Code)
	assert.Contains(t, cliErr.Message, importer.ErrUnresolvedInvalid.Error())

	details, err := json.Marshal(cliErr.Details)
	require.NoError(t, err)
	var rows InvalidRows
	require.NoError(t, json.Unmarshal(details, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Index)
	assert.Equal(t, "is required", rows[0].Errors["servings"])

	// Nothing from the batch was written.
	assert.Empty(t, h.listNames())
}

func TestImportCommandErrors(t *testing.T) {
	h := newHarness(t)

	t.Run("parse error", func(t *testing.T) {
		p := filepath.Join(h.dir, "garbage.json")
		require.NoError(t, os.WriteFile(p, []byte("not json"), 0o600))
		out, err := h.run("import", p, "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Equal(t, ErrCodeParse, decodeError(t, out).Code)
	})

	t.Run("bad decision", func(t *testing.T) {
		p := h.writeFile("one.json", recipe("Soup"))
		out, err := h.run("import", p, "--format", "json", "--on-duplicate", "merge")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Equal(t, ErrCodeBadRequest, decodeError(t, out).Code)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := h.run("import", filepath.Join(h.dir, "nope.json"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("too large", func(t *testing.T) {
		t.Setenv("IMPORT_MAX_BYTES", "16")
		p := h.writeFile("big.json", recipe("A rather long recipe name"))
		out, err := h.run("import", p, "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ErrCodeTooLarge, decodeError(t, out).Code)
	})

	t.Run("empty batch", func(t *testing.T) {
		p := h.writeFile("empty.json", []any{})
		_, err := h.run("import", p)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}

func TestListText(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("list")
	require.NoError(t, err)
	assert.Equal(t, "no recipes\n", out)

	_, err = h.run("import", h.writeFile("a.json", recipe("Tomato Soup")))
	require.NoError(t, err)
	out, err = h.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "SLUG")
	assert.Contains(t, out, "tomato-soup")
	assert.Contains(t, out, "Tomato Soup")
}

func TestInvalidConfigurationIsCommandError(t *testing.T) {
	h := newHarness(t)
	t.Setenv("DB_DRIVER", "oracle")
	out, err := h.run("list", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeBadRequest, decodeError(t, out).Code)
}
