package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"github.com/vincent-petithory/dataurl"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-notebook/internal/domain"
)

// Versions of the one-time data migrations tracked in goose's version table.
const versionLegacyImages int64 = 1

// RunDataMigrations applies pending one-time data migrations and returns the
// versions that ran. They execute after AutoMigrate, so the current columns
// exist.
func RunDataMigrations(ctx context.Context, db *gorm.DB) ([]int64, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	dialect, err := gooseDialect(db)
	if err != nil {
		return nil, err
	}

	p, err := goose.NewProvider(dialect, sqlDB, nil,
		goose.WithGoMigrations(
			goose.NewGoMigration(versionLegacyImages,
				&goose.GoFunc{
					Mode: goose.TransactionDisabled,
					RunDB: func(ctx context.Context, _ *sql.DB) error {
						_, err := MigrateLegacyImages(ctx, db)
						return err
					},
				},
				nil,
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return nil, err
	}
	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
	}
	return applied, nil
}

func gooseDialect(db *gorm.DB) (goose.Dialect, error) {
	switch db.Dialector.Name() {
	case "sqlite", "sqlite3":
		return goose.DialectSQLite3, nil
	case "postgres":
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("no migration dialect for %q", db.Dialector.Name())
	}
}

// LegacyImageStats summarizes a legacy image migration pass.
type LegacyImageStats struct {
	Converted int
	Failed    int
}

// MigrateLegacyImages decodes images still stored as data-URL text in the
// data_url column into binary data and a MIME type, then clears data_url.
// Rows that fail to decode are logged and left as they are.
func MigrateLegacyImages(ctx context.Context, db *gorm.DB) (LegacyImageStats, error) {
	var stats LegacyImageStats

	var rows []domain.RecipeImage
	err := db.WithContext(ctx).
		Where("data_url IS NOT NULL AND data_url <> ''").
		Find(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, row := range rows {
		du, err := dataurl.DecodeString(row.LegacyDataURL)
		if err != nil {
			stats.Failed++
			log.Warn().Err(err).
				Str("image_id", row.ID).
				Str("recipe_id", row.RecipeID).
				Msg("legacy image not migrated")
			continue
		}
		mime := row.MimeType
		if mime == "" {
			mime = du.MediaType.ContentType()
		}
		err = db.WithContext(ctx).
			Model(&domain.RecipeImage{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"data":      du.Data,
				"mime_type": mime,
				"data_url":  "",
			}).Error
		if err != nil {
			return stats, err
		}
		stats.Converted++
	}

	if stats.Converted > 0 || stats.Failed > 0 {
		log.Info().
			Int("converted", stats.Converted).
			Int("failed", stats.Failed).
			Msg("legacy image migration finished")
	}
	return stats, nil
}
