package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-notebook/docs"
	"github.com/tbourn/recipe-notebook/internal/config"
	httpapi "github.com/tbourn/recipe-notebook/internal/http"
	"github.com/tbourn/recipe-notebook/internal/observability"
	"github.com/tbourn/recipe-notebook/internal/services"
	"github.com/tbourn/recipe-notebook/internal/sysutil"
)

const (
	shutdownTimeout = 15 * time.Second
	flushTimeout    = 5 * time.Second
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the recipe notebook HTTP API.

Configuration comes from the environment (and .env when present). The
server drains in-flight requests on SIGINT/SIGTERM.

Example:
  recipebook serve
  DB_DRIVER=postgres DB_DSN=postgres://... recipebook serve --addr :9090`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default :$PORT)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	sysutil.SetupLogger(cmd.ErrOrStderr(), level, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, observability.Resource{
		Version:   Version,
		Component: "server",
		DBDriver:  cfg.DBDriver,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "otel setup", err)
	}
	defer observability.Flush(shutdownOTel, flushTimeout)

	db, err := openDB(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "store unavailable", err)
	}
	defer closeDB(db)

	addr := sysutil.FirstNonEmpty(opts.Addr, ":"+cfg.Port)
	srv := newServer(cfg, db, addr)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "listen", err)
	}
	return serveUntilDone(ctx, srv, ln)
}

// newServer builds the HTTP server with all routes mounted.
func newServer(cfg config.Config, db *gorm.DB, addr string) *http.Server {
	gin.SetMode(cfg.GinMode)
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	docs.SwaggerInfo.Version = Version

	recipes := services.NewRecipeService(db, nil)
	imports := services.NewImportService(db, recipes, cfg.ImportSessionTTL, cfg.ImportMaxBytes)
	imports.IdemTTL = cfg.IdempotencyTTL

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Services{Recipes: recipes, Imports: imports}, cfg)

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
}

// serveUntilDone serves on ln until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("server starting")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	log.Info().Msg("server stopped")
	return nil
}
