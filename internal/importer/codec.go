package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"time"

	"github.com/vincent-petithory/dataurl"

	"github.com/tbourn/recipe-notebook/internal/domain"
)

const fallbackMediaType = "application/octet-stream"

// DecodeDataURL converts a data URL ("data:image/png;base64,...") into its
// payload and media type.
func DecodeDataURL(s string) ([]byte, string, error) {
	if s == "" {
		return nil, "", errors.New("data is required")
	}
	du, err := dataurl.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("data is not a valid data URL: %w", err)
	}
	return du.Data, du.MediaType.ContentType(), nil
}

// EncodeDataURL is the inverse of DecodeDataURL. Unparseable media types fall
// back to application/octet-stream.
func EncodeDataURL(data []byte, mediaType string) string {
	if _, _, err := mime.ParseMediaType(mediaType); err != nil || mediaType == "" {
		mediaType = fallbackMediaType
	}
	return dataurl.New(data, mediaType).String()
}

// ExportImage is the file representation of a recipe image.
type ExportImage struct {
	ID       string `json:"id"`
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename,omitempty"`
}

// ExportRecipe is the file representation of a recipe. Its shape is accepted
// back by ParseBatch and Validate unchanged.
type ExportRecipe struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Slug         string              `json:"slug"`
	Ingredients  []domain.Ingredient `json:"ingredients"`
	Instructions []string            `json:"instructions"`
	PrepTime     string              `json:"prepTime,omitempty"`
	CookTime     string              `json:"cookTime,omitempty"`
	TotalTime    string              `json:"totalTime,omitempty"`
	Servings     int                 `json:"servings"`
	Keywords     []string            `json:"keywords"`
	Author       string              `json:"author,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
	Images       []ExportImage       `json:"images,omitempty"`
}

// ToExport converts a stored recipe to its file representation.
func ToExport(r domain.Recipe) ExportRecipe {
	out := ExportRecipe{
		ID:           r.ID,
		Name:         r.Name,
		Slug:         r.Slug,
		Ingredients:  r.Ingredients,
		Instructions: r.Instructions,
		PrepTime:     r.PrepTime,
		CookTime:     r.CookTime,
		TotalTime:    r.TotalTime,
		Servings:     r.Servings,
		Keywords:     r.Keywords,
		Author:       r.Author,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
	if out.Keywords == nil {
		out.Keywords = []string{}
	}
	for _, img := range r.Images {
		out.Images = append(out.Images, ExportImage{
			ID:       img.ID,
			Data:     EncodeDataURL(img.Data, img.MimeType),
			MimeType: img.MimeType,
			Filename: img.Filename,
		})
	}
	return out
}

// WriteExport writes recipes as an indented JSON document: a single object
// when single is true and exactly one recipe is given, otherwise an array.
func WriteExport(w io.Writer, recipes []domain.Recipe, single bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if single && len(recipes) == 1 {
		return enc.Encode(ToExport(recipes[0]))
	}
	out := make([]ExportRecipe, 0, len(recipes))
	for _, r := range recipes {
		out = append(out, ToExport(r))
	}
	return enc.Encode(out)
}
