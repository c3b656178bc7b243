// Package domain defines the persistence models for recipes, their
// ingredients and embedded images. These types are mapped with GORM and
// form the core data layer of the recipe notebook.
package domain

import "time"

// Recipe is a single notebook entry.
//
// Fields:
//   - ID: opaque unique key, immutable once assigned.
//   - Slug: unique, URL-safe, derived from Name; regenerated only on rename.
//   - Ingredients / Instructions / Keywords: stored as JSON columns.
//   - PrepTime / CookTime / TotalTime: ISO-8601 durations ("PT10M"), optional.
//   - CreatedAt / UpdatedAt: set by the store; UpdatedAt never moves backwards.
//   - Images: embedded binary images, cascade-deleted with the recipe.
type Recipe struct {
	ID           string        `json:"id"                  gorm:"type:varchar(64);primaryKey"`
	Name         string        `json:"name"                gorm:"type:varchar(255);not null;index:idx_recipes_name"`
	Slug         string        `json:"slug"                gorm:"type:varchar(255);not null;uniqueIndex:ux_recipes_slug"`
	Ingredients  []Ingredient  `json:"ingredients"         gorm:"serializer:json;type:text;not null"`
	Instructions []string      `json:"instructions"        gorm:"serializer:json;type:text;not null"`
	PrepTime     string        `json:"prepTime,omitempty"  gorm:"type:varchar(32)"`
	CookTime     string        `json:"cookTime,omitempty"  gorm:"type:varchar(32)"`
	TotalTime    string        `json:"totalTime,omitempty" gorm:"type:varchar(32)"`
	Servings     int           `json:"servings"            gorm:"not null"`
	Keywords     []string      `json:"keywords"            gorm:"serializer:json;type:text"`
	Author       string        `json:"author,omitempty"    gorm:"type:varchar(255)"`
	CreatedAt    time.Time     `json:"createdAt"           gorm:"autoCreateTime:false"`
	UpdatedAt    time.Time     `json:"updatedAt"           gorm:"autoUpdateTime:false;index"`
	Images       []RecipeImage `json:"images,omitempty"    gorm:"foreignKey:RecipeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Recipe.
func (Recipe) TableName() string { return "recipes" }

// Ingredient is one line of a recipe's ingredient list. Amount is nil when
// the quantity is unspecified ("salt to taste").
type Ingredient struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Amount *float64 `json:"amount,omitempty"`
	Unit   string   `json:"unit,omitempty"`
}

// RecipeImage is a binary image attached to a recipe.
//
// LegacyDataURL holds the pre-blob representation (a base64 data URL) found
// in older stores. The startup migration decodes it into Data/MimeType and
// clears it; new rows never set it.
type RecipeImage struct {
	ID            string `json:"id"       gorm:"type:varchar(64);primaryKey"`
	RecipeID      string `json:"-"        gorm:"type:varchar(64);not null;index:idx_recipe_images_recipe"`
	Position      int    `json:"-"        gorm:"not null;default:0"`
	Data          []byte `json:"data"`
	MimeType      string `json:"mimeType" gorm:"type:varchar(100)"`
	Filename      string `json:"filename" gorm:"type:varchar(255)"`
	LegacyDataURL string `json:"-"        gorm:"column:data_url;type:text"`
}

// TableName returns the database table name for RecipeImage.
func (RecipeImage) TableName() string { return "recipe_images" }

// IngredientNames returns the non-blank ingredient names in order.
func (r *Recipe) IngredientNames() []string {
	out := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		if ing.Name != "" {
			out = append(out, ing.Name)
		}
	}
	return out
}
