package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/recipe-notebook/internal/domain"
	"github.com/tbourn/recipe-notebook/internal/repo"
)

// RecipeRepo abstracts persistence for RecipeService. Every call receives the
// *gorm.DB so implementations stay usable inside transactions.
type RecipeRepo interface {
	ListRecipes(ctx context.Context, db *gorm.DB) ([]domain.Recipe, error)
	CountRecipes(ctx context.Context, db *gorm.DB) (int64, error)
	ListRecipesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Recipe, error)
	GetRecipe(ctx context.Context, db *gorm.DB, id string) (*domain.Recipe, error)
	GetRecipeBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Recipe, error)
	GetRecipeImage(ctx context.Context, db *gorm.DB, recipeID, imageID string) (*domain.RecipeImage, error)
	CreateRecipe(ctx context.Context, db *gorm.DB, r *domain.Recipe) error
	UpdateRecipe(ctx context.Context, db *gorm.DB, r *domain.Recipe) error
	DeleteRecipe(ctx context.Context, db *gorm.DB, id string) error
	DeleteAllRecipes(ctx context.Context, db *gorm.DB) (int64, error)
	UpsertRecipes(ctx context.Context, db *gorm.DB, recs []domain.Recipe) ([]domain.UpsertOutcome, error)
	RecipesStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error)
}

// GormRecipeRepo adapts the repo package's free functions to RecipeRepo.
type GormRecipeRepo struct{}

// ListRecipes proxies repo.ListRecipes.
func (GormRecipeRepo) ListRecipes(ctx context.Context, db *gorm.DB) ([]domain.Recipe, error) {
	return repo.ListRecipes(ctx, db)
}

// CountRecipes proxies repo.CountRecipes.
func (GormRecipeRepo) CountRecipes(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.CountRecipes(ctx, db)
}

// ListRecipesPage proxies repo.ListRecipesPage.
func (GormRecipeRepo) ListRecipesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Recipe, error) {
	return repo.ListRecipesPage(ctx, db, offset, limit)
}

// GetRecipe proxies repo.GetRecipe.
func (GormRecipeRepo) GetRecipe(ctx context.Context, db *gorm.DB, id string) (*domain.Recipe, error) {
	return repo.GetRecipe(ctx, db, id)
}

// GetRecipeBySlug proxies repo.GetRecipeBySlug.
func (GormRecipeRepo) GetRecipeBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Recipe, error) {
	return repo.GetRecipeBySlug(ctx, db, slug)
}

// GetRecipeImage proxies repo.GetRecipeImage.
func (GormRecipeRepo) GetRecipeImage(ctx context.Context, db *gorm.DB, recipeID, imageID string) (*domain.RecipeImage, error) {
	return repo.GetRecipeImage(ctx, db, recipeID, imageID)
}

// CreateRecipe proxies repo.CreateRecipe.
func (GormRecipeRepo) CreateRecipe(ctx context.Context, db *gorm.DB, r *domain.Recipe) error {
	return repo.CreateRecipe(ctx, db, r)
}

// UpdateRecipe proxies repo.UpdateRecipe.
func (GormRecipeRepo) UpdateRecipe(ctx context.Context, db *gorm.DB, r *domain.Recipe) error {
	return repo.UpdateRecipe(ctx, db, r)
}

// DeleteRecipe proxies repo.DeleteRecipe.
func (GormRecipeRepo) DeleteRecipe(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteRecipe(ctx, db, id)
}

// DeleteAllRecipes proxies repo.DeleteAllRecipes.
func (GormRecipeRepo) DeleteAllRecipes(ctx context.Context, db *gorm.DB) (int64, error) {
	return repo.DeleteAllRecipes(ctx, db)
}

// UpsertRecipes proxies repo.UpsertRecipes.
func (GormRecipeRepo) UpsertRecipes(ctx context.Context, db *gorm.DB, recs []domain.Recipe) ([]domain.UpsertOutcome, error) {
	return repo.UpsertRecipes(ctx, db, recs)
}

// RecipesStats proxies repo.RecipesStats.
func (GormRecipeRepo) RecipesStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	return repo.RecipesStats(ctx, db)
}
