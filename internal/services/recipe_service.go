// Package services – RecipeService
//
// RecipeService owns the lifecycle of notebook recipes: validated create and
// full-overwrite update, lookups, pagination, deletion and search. It is also
// the record store the importer reconciles against (importer.Store).
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-notebook/internal/domain"
	"github.com/tbourn/recipe-notebook/internal/importer"
	"github.com/tbourn/recipe-notebook/internal/repo"
	"github.com/tbourn/recipe-notebook/internal/search"
	"github.com/tbourn/recipe-notebook/internal/utils"
)

const defaultSearchK = 10

// Fields a client may not set through Create/Update.
var serverOwnedFields = []string{"id", "slug", "createdAt", "updatedAt"}

// RecipeService provides recipe CRUD and search.
type RecipeService struct {
	DB   *gorm.DB
	Repo RecipeRepo

	// SearchOptions configure the lazily built search index.
	SearchOptions []search.Option

	mu    sync.Mutex
	index search.Index
}

var _ importer.Store = (*RecipeService)(nil)

// NewRecipeService constructs a RecipeService. A nil repo selects the GORM
// implementation.
func NewRecipeService(db *gorm.DB, r RecipeRepo) *RecipeService {
	if r == nil {
		r = GormRecipeRepo{}
	}
	return &RecipeService{DB: db, Repo: r}
}

func tracer() trace.Tracer { return otel.Tracer("services/RecipeService") }

// Create validates c and inserts it as a new recipe. Client-supplied id, slug
// and timestamps are ignored.
func (s *RecipeService) Create(ctx context.Context, c importer.Candidate) (*domain.Recipe, error) {
	ctx, span := tracer().Start(ctx, "Create")
	defer span.End()

	rec, err := validateInput(c)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.CreateRecipe(ctx, s.DB, rec); err != nil {
		return nil, storeErr(err)
	}
	s.invalidate()
	span.SetAttributes(attribute.String("recipe.id", rec.ID))
	return rec, nil
}

// Update overwrites the recipe with id using c. The slug changes only when
// the name does; createdAt is kept.
func (s *RecipeService) Update(ctx context.Context, id string, c importer.Candidate) (*domain.Recipe, error) {
	ctx, span := tracer().Start(ctx, "Update",
		trace.WithAttributes(attribute.String("recipe.id", id)),
	)
	defer span.End()

	rec, err := validateInput(c)
	if err != nil {
		return nil, err
	}
	rec.ID = id
	if err := s.Repo.UpdateRecipe(ctx, s.DB, rec); err != nil {
		return nil, mapRecipeErr(err)
	}
	s.invalidate()
	return rec, nil
}

// Get returns the recipe with id.
func (s *RecipeService) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	ctx, span := tracer().Start(ctx, "Get",
		trace.WithAttributes(attribute.String("recipe.id", id)),
	)
	defer span.End()

	r, err := s.Repo.GetRecipe(ctx, s.DB, id)
	if err != nil {
		return nil, mapRecipeErr(err)
	}
	return r, nil
}

// GetBySlug returns the recipe with slug.
func (s *RecipeService) GetBySlug(ctx context.Context, slug string) (*domain.Recipe, error) {
	ctx, span := tracer().Start(ctx, "GetBySlug",
		trace.WithAttributes(attribute.String("recipe.slug", slug)),
	)
	defer span.End()

	r, err := s.Repo.GetRecipeBySlug(ctx, s.DB, slug)
	if err != nil {
		return nil, mapRecipeErr(err)
	}
	return r, nil
}

// List returns a page of recipes (most recently updated first) and the total
// count. page starts at 1; pageSize is clamped to [1, 100].
func (s *RecipeService) List(ctx context.Context, page, pageSize int) ([]domain.Recipe, int64, error) {
	ctx, span := tracer().Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	p := utils.NewPage(page, pageSize)
	total, err := s.Repo.CountRecipes(ctx, s.DB)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	items, err := s.Repo.ListRecipesPage(ctx, s.DB, p.Offset(), p.Size)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	return items, total, nil
}

// All returns every recipe with images, oldest first.
func (s *RecipeService) All(ctx context.Context) ([]domain.Recipe, error) {
	ctx, span := tracer().Start(ctx, "All")
	defer span.End()

	out, err := s.Repo.ListRecipes(ctx, s.DB)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// Stats returns the recipe count and the newest updatedAt, for ETags.
func (s *RecipeService) Stats(ctx context.Context) (int64, *time.Time, error) {
	n, maxUpd, err := s.Repo.RecipesStats(ctx, s.DB)
	if err != nil {
		return 0, nil, storeErr(err)
	}
	return n, maxUpd, nil
}

// Delete removes the recipe with id and its images.
func (s *RecipeService) Delete(ctx context.Context, id string) error {
	ctx, span := tracer().Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("recipe.id", id)),
	)
	defer span.End()

	if err := s.Repo.DeleteRecipe(ctx, s.DB, id); err != nil {
		return mapRecipeErr(err)
	}
	s.invalidate()
	return nil
}

// DeleteAll empties the notebook and returns how many recipes were removed.
func (s *RecipeService) DeleteAll(ctx context.Context) (int64, error) {
	ctx, span := tracer().Start(ctx, "DeleteAll")
	defer span.End()

	n, err := s.Repo.DeleteAllRecipes(ctx, s.DB)
	if err != nil {
		return 0, storeErr(err)
	}
	s.invalidate()
	span.SetAttributes(attribute.Int64("recipes.deleted", n))
	return n, nil
}

// Image returns one image of a recipe.
func (s *RecipeService) Image(ctx context.Context, recipeID, imageID string) (*domain.RecipeImage, error) {
	ctx, span := tracer().Start(ctx, "Image",
		trace.WithAttributes(
			attribute.String("recipe.id", recipeID),
			attribute.String("image.id", imageID),
		),
	)
	defer span.End()

	img, err := s.Repo.GetRecipeImage(ctx, s.DB, recipeID, imageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return img, nil
}

// Search ranks recipes against q. k <= 0 selects the default of 10.
func (s *RecipeService) Search(ctx context.Context, q string, k int) ([]search.Result, error) {
	ctx, span := tracer().Start(ctx, "Search",
		trace.WithAttributes(attribute.Int("k", k)),
	)
	defer span.End()

	if k <= 0 {
		k = defaultSearchK
	}
	idx, err := s.searchIndex(ctx)
	if err != nil {
		return nil, err
	}
	return idx.TopK(q, k), nil
}

// ListRecipes implements importer.Store.
func (s *RecipeService) ListRecipes(ctx context.Context) ([]domain.Recipe, error) {
	return s.All(ctx)
}

// UpsertRecipes implements importer.Store with last-write-wins.
func (s *RecipeService) UpsertRecipes(ctx context.Context, recs []domain.Recipe) ([]domain.UpsertOutcome, error) {
	ctx, span := tracer().Start(ctx, "UpsertRecipes",
		trace.WithAttributes(attribute.Int("recipes.count", len(recs))),
	)
	defer span.End()

	out, err := s.Repo.UpsertRecipes(ctx, s.DB, recs)
	if len(out) > 0 {
		s.invalidate()
	}
	if err != nil {
		return out, storeErr(err)
	}
	return out, nil
}

func (s *RecipeService) searchIndex(ctx context.Context) (search.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, nil
	}
	all, err := s.Repo.ListRecipes(ctx, s.DB)
	if err != nil {
		return nil, storeErr(err)
	}
	s.index = search.NewIndex(all, s.SearchOptions...)
	return s.index, nil
}

func (s *RecipeService) invalidate() {
	s.mu.Lock()
	s.index = nil
	s.mu.Unlock()
}

// validateInput runs the import validator over an API payload and assigns
// ids to ingredients that lack one.
func validateInput(c importer.Candidate) (*domain.Recipe, error) {
	c = c.Clone()
	for _, f := range serverOwnedFields {
		delete(c, f)
	}
	res := importer.Validate(c)
	if !res.OK() {
		return nil, &ValidationError{Fields: res.Partial.Errors}
	}
	rec := res.Recipe
	for i := range rec.Ingredients {
		if rec.Ingredients[i].ID == "" {
			rec.Ingredients[i].ID = uuid.NewString()
		}
	}
	for i := range rec.Images {
		rec.Images[i].ID = uuid.NewString()
	}
	return rec, nil
}

func mapRecipeErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return ErrRecipeNotFound
	}
	return storeErr(err)
}
