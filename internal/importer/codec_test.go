package importer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/recipe-notebook/internal/domain"
)

func TestDataURLRoundTrip(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	s := EncodeDataURL(payload, "image/png")
	assert.True(t, strings.HasPrefix(s, "data:image/png"), s)

	data, mt, err := DecodeDataURL(s)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, "image/png", mt)

	s = EncodeDataURL([]byte("x"), "")
	_, mt, err = DecodeDataURL(s)
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", mt)

	_, _, err = DecodeDataURL("")
	assert.Error(t, err)
}

func goldenRecipe() domain.Recipe {
	four := 4.0
	return domain.Recipe{
		ID:   "r1",
		Name: "Tomato Soup",
		Slug: "tomato-soup",
		Ingredients: []domain.Ingredient{
			{ID: "i1", Name: "Tomato", Amount: &four, Unit: "pcs"},
			{ID: "i2", Name: "Salt"},
		},
		Instructions: []string{"Chop", "Simmer"},
		CookTime:     "PT30M",
		Servings:     2,
		Keywords:     []string{"soup"},
		Author:       "Ada",
		CreatedAt:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC),
	}
}

func TestWriteExport_Golden(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExport(&buf, []domain.Recipe{goldenRecipe()}, true))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_single", buf.Bytes())
}

func TestWriteExport_CollectionShape(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteExport(&buf, nil, false))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteExport(&buf, []domain.Recipe{goldenRecipe()}, false))
	assert.True(t, strings.HasPrefix(buf.String(), "["))
}

func TestExportReimportsAsValid(t *testing.T) {
	r := goldenRecipe()
	r.Images = []domain.RecipeImage{{ID: "img1", Data: []byte{1, 2, 3}, MimeType: "image/png", Filename: "a.png"}}

	var buf bytes.Buffer
	require.NoError(t, WriteExport(&buf, []domain.Recipe{r}, true))

	cands, err := ParseBatch(buf.Bytes())
	require.NoError(t, err)
	res := Validate(cands[0])
	require.True(t, res.OK(), "errors: %+v", res.Partial)

	got := res.Recipe
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.Slug, got.Slug)
	assert.Equal(t, r.Ingredients, got.Ingredients)
	assert.Equal(t, r.UpdatedAt, got.UpdatedAt)
	require.Len(t, got.Images, 1)
	assert.Equal(t, r.Images[0].Data, got.Images[0].Data)
	assert.Equal(t, "img1", got.Images[0].ID)
}
