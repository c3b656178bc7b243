package repo

import (
	"context"
	"strconv"

	"gorm.io/gorm"

	"github.com/tbourn/recipe-notebook/internal/domain"
	"github.com/tbourn/recipe-notebook/internal/utils"
)

// UniqueSlug returns base, or base-2, base-3, … the first candidate not used
// by any recipe other than excludeID. An empty base is derived from name.
func UniqueSlug(ctx context.Context, db *gorm.DB, base, name, excludeID string) (string, error) {
	if base == "" {
		base = utils.Slugify(name)
	}

	var used []string
	err := db.WithContext(ctx).
		Model(&domain.Recipe{}).
		Where("(slug = ? OR slug LIKE ?) AND id <> ?", base, base+"-%", excludeID).
		Pluck("slug", &used).Error
	if err != nil {
		return "", err
	}
	taken := make(map[string]struct{}, len(used))
	for _, s := range used {
		taken[s] = struct{}{}
	}

	slug := base
	for n := 2; ; n++ {
		if _, ok := taken[slug]; !ok {
			return slug, nil
		}
		slug = base + "-" + strconv.Itoa(n)
	}
}
