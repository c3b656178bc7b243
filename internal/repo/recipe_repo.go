// Package repo implements the data persistence layer for recipes, backed by
// GORM. This file provides repository functions for the Recipe model and its
// images.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
//
// Error semantics:
//   - Missing recipes yield ErrNotFound (an alias of gorm.ErrRecordNotFound).
//   - Other DB errors are propagated unchanged.
//
// Every write that touches a recipe and its images runs in one transaction,
// so each call is atomic on its own. Batch upserts commit per record.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/recipe-notebook/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

func withImages(db *gorm.DB) *gorm.DB {
	return db.Preload("Images", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("position asc")
	})
}

// ListRecipes returns every recipe with images, oldest first.
func ListRecipes(ctx context.Context, db *gorm.DB) ([]domain.Recipe, error) {
	var out []domain.Recipe
	err := withImages(db.WithContext(ctx)).
		Order("created_at asc").
		Order("id asc").
		Find(&out).Error
	return out, err
}

// CountRecipes returns the total number of recipes.
func CountRecipes(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Recipe{}).Count(&total).Error
	return total, err
}

// ListRecipesPage returns a page of recipes, most recently updated first.
// Images are not loaded.
func ListRecipesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Recipe, error) {
	var out []domain.Recipe
	err := db.WithContext(ctx).
		Order("updated_at desc").
		Order("id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetRecipe fetches a recipe with its images by id.
func GetRecipe(ctx context.Context, db *gorm.DB, id string) (*domain.Recipe, error) {
	var r domain.Recipe
	if err := withImages(db.WithContext(ctx)).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRecipeBySlug fetches a recipe with its images by slug.
func GetRecipeBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Recipe, error) {
	var r domain.Recipe
	if err := withImages(db.WithContext(ctx)).Where("slug = ?", slug).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// FindRecipesByName returns recipes whose name equals name exactly.
func FindRecipesByName(ctx context.Context, db *gorm.DB, name string) ([]domain.Recipe, error) {
	var out []domain.Recipe
	err := db.WithContext(ctx).
		Where("name = ?", name).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// GetRecipeImage fetches a single image belonging to recipeID.
func GetRecipeImage(ctx context.Context, db *gorm.DB, recipeID, imageID string) (*domain.RecipeImage, error) {
	var img domain.RecipeImage
	err := db.WithContext(ctx).
		Where("id = ? AND recipe_id = ?", imageID, recipeID).
		First(&img).Error
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// CreateRecipe inserts r. A missing ID, slug or timestamp is assigned; the
// slug is made unique with a numeric suffix.
func CreateRecipe(ctx context.Context, db *gorm.DB, r *domain.Recipe) error {
	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slug, err := UniqueSlug(ctx, tx, r.Slug, r.Name, r.ID)
		if err != nil {
			return err
		}
		r.Slug = slug
		if err := tx.Omit(clause.Associations).Create(r).Error; err != nil {
			return err
		}
		return replaceImages(ctx, tx, r)
	})
}

// UpdateRecipe overwrites the recipe with r.ID. CreatedAt is preserved. The
// slug is regenerated only when the name changed, and UpdatedAt is bumped to
// now but never moves backwards. Returns ErrNotFound when r.ID is unknown.
func UpdateRecipe(ctx context.Context, db *gorm.DB, r *domain.Recipe) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Recipe
		if err := tx.Where("id = ?", r.ID).First(&existing).Error; err != nil {
			return err
		}

		r.CreatedAt = existing.CreatedAt
		r.Slug = existing.Slug
		if r.Name != existing.Name {
			slug, err := UniqueSlug(ctx, tx, "", r.Name, r.ID)
			if err != nil {
				return err
			}
			r.Slug = slug
		}
		now := time.Now().UTC()
		if now.Before(existing.UpdatedAt) {
			now = existing.UpdatedAt
		}
		r.UpdatedAt = now

		if err := tx.Omit(clause.Associations).Save(r).Error; err != nil {
			return err
		}
		return replaceImages(ctx, tx, r)
	})
}

// DeleteRecipe removes a recipe and its images. Returns ErrNotFound when no
// row was deleted.
func DeleteRecipe(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recipe_id = ?", id).Delete(&domain.RecipeImage{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&domain.Recipe{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAllRecipes removes every recipe and image and returns the number of
// recipes deleted.
func DeleteAllRecipes(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&domain.RecipeImage{}).Error; err != nil {
			return err
		}
		res := all.Delete(&domain.Recipe{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// UpsertRecipes writes recs in order, one transaction per record, applying
// last-write-wins: a record whose stored copy has UpdatedAt >= the incoming
// UpdatedAt is left untouched and reported as UpsertStale. An update with an
// empty slug keeps the stored slug when the name is unchanged. Slugs are made
// unique. On error the outcomes so far are returned with it.
func UpsertRecipes(ctx context.Context, db *gorm.DB, recs []domain.Recipe) ([]domain.UpsertOutcome, error) {
	out := make([]domain.UpsertOutcome, 0, len(recs))
	for i := range recs {
		o, err := upsertOne(ctx, db, &recs[i])
		if err != nil {
			return out, err
		}
		out = append(out, o)
	}
	return out, nil
}

func upsertOne(ctx context.Context, db *gorm.DB, r *domain.Recipe) (domain.UpsertOutcome, error) {
	o := domain.UpsertOutcome{ID: r.ID, Incoming: r.UpdatedAt}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Recipe
		err := tx.Where("id = ?", r.ID).First(&existing).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if exists && !r.UpdatedAt.After(existing.UpdatedAt) {
			stored := existing.UpdatedAt
			o.Status, o.Stored, o.Slug = domain.UpsertStale, &stored, existing.Slug
			return nil
		}

		base := r.Slug
		if base == "" && exists && existing.Name == r.Name {
			base = existing.Slug
		}
		slug, err := UniqueSlug(ctx, tx, base, r.Name, r.ID)
		if err != nil {
			return err
		}
		r.Slug = slug

		if exists {
			o.Status = domain.UpsertUpdated
			err = tx.Omit(clause.Associations).Save(r).Error
		} else {
			o.Status = domain.UpsertInserted
			err = tx.Omit(clause.Associations).Create(r).Error
		}
		if err != nil {
			return err
		}
		o.Slug = r.Slug
		return replaceImages(ctx, tx, r)
	})
	return o, err
}

// replaceImages swaps the stored images of r for r.Images.
func replaceImages(ctx context.Context, tx *gorm.DB, r *domain.Recipe) error {
	if err := tx.WithContext(ctx).Where("recipe_id = ?", r.ID).Delete(&domain.RecipeImage{}).Error; err != nil {
		return err
	}
	if len(r.Images) == 0 {
		return nil
	}
	for i := range r.Images {
		img := &r.Images[i]
		img.RecipeID = r.ID
		img.Position = i
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
	}
	return tx.WithContext(ctx).Create(&r.Images).Error
}
