package importer

import (
	"time"

	"github.com/tbourn/recipe-notebook/internal/domain"
)

// MatchField names the candidate field that matched a stored recipe.
type MatchField string

const (
	MatchID   MatchField = "id"
	MatchSlug MatchField = "slug"
	MatchName MatchField = "name"
)

// RecipeRef is the summary of a stored recipe shown next to a duplicate.
type RecipeRef struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Match records that a candidate collides with a stored recipe.
type Match struct {
	Field    MatchField `json:"matchField"`
	Existing RecipeRef  `json:"existing"`
}

// existingIndex answers duplicate lookups against a snapshot of the store.
// Names are not unique; the first recipe in snapshot order wins.
type existingIndex struct {
	byID   map[string]RecipeRef
	bySlug map[string]RecipeRef
	byName map[string]RecipeRef
}

func newExistingIndex(recipes []domain.Recipe) *existingIndex {
	ix := &existingIndex{
		byID:   make(map[string]RecipeRef, len(recipes)),
		bySlug: make(map[string]RecipeRef, len(recipes)),
		byName: make(map[string]RecipeRef, len(recipes)),
	}
	for _, r := range recipes {
		ref := RecipeRef{ID: r.ID, Name: r.Name, Slug: r.Slug, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
		ix.byID[r.ID] = ref
		if r.Slug != "" {
			if _, ok := ix.bySlug[r.Slug]; !ok {
				ix.bySlug[r.Slug] = ref
			}
		}
		if _, ok := ix.byName[r.Name]; !ok {
			ix.byName[r.Name] = ref
		}
	}
	return ix
}

// hasSlug reports whether any stored recipe uses slug.
func (ix *existingIndex) hasSlug(slug string) bool {
	_, ok := ix.bySlug[slug]
	return ok
}

// detect tries id, then slug, then exact name. Fields that are absent, blank
// or not strings are skipped, so a candidate lacking all three never matches.
func (ix *existingIndex) detect(c Candidate) *Match {
	if id := c.String("id"); id != "" {
		if ref, ok := ix.byID[id]; ok {
			return &Match{Field: MatchID, Existing: ref}
		}
	}
	if slug := c.String("slug"); slug != "" {
		if ref, ok := ix.bySlug[slug]; ok {
			return &Match{Field: MatchSlug, Existing: ref}
		}
	}
	if name := c.String("name"); name != "" {
		if ref, ok := ix.byName[name]; ok {
			return &Match{Field: MatchName, Existing: ref}
		}
	}
	return nil
}

// DetectDuplicate reports whether c collides with any of existing, using the
// same precedence as a preview.
func DetectDuplicate(c Candidate, existing []domain.Recipe) *Match {
	return newExistingIndex(existing).detect(c)
}
