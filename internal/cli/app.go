package cli

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-notebook/internal/config"
	"github.com/tbourn/recipe-notebook/internal/repo"
	"github.com/tbourn/recipe-notebook/internal/services"
	"github.com/tbourn/recipe-notebook/internal/sysutil"
)

// app is the store-backed state shared by the offline commands.
type app struct {
	Cfg     config.Config
	DB      *gorm.DB
	Recipes *services.RecipeService
}

// loadConfig reads the environment and applies the --db-driver/--dsn
// overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	cfg.DBDriver = sysutil.FirstNonEmpty(opts.DBDriver, cfg.DBDriver)
	cfg.DBDSN = sysutil.FirstNonEmpty(opts.DSN, cfg.DBDSN)
	return cfg, nil
}

// openDB opens the configured store and brings its schema up to date.
func openDB(ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	if err := repo.Migrate(ctx, db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func closeDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("close db")
	}
}

// openApp loads configuration and opens the store. Failures are reported
// through out and returned as ExitCommandError.
func openApp(cmd *cobra.Command, opts *RootOptions, out *OutputFormatter) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeBadRequest, "invalid configuration", err, nil)
	}
	out.VerboseLog("opening %s store %s", cfg.DBDriver, cfg.DBDSN)
	db, err := openDB(cmd.Context(), cfg)
	if err != nil {
		return nil, out.Fail(ExitCommandError, ErrCodeStore, "store unavailable", err, nil)
	}
	return &app{Cfg: cfg, DB: db, Recipes: services.NewRecipeService(db, nil)}, nil
}

func (a *app) Close() { closeDB(a.DB) }

func newFormatter(cmd *cobra.Command, opts *RootOptions) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
