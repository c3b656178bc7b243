// Package httpapi assembles the Gin engine for the recipe notebook: the
// middleware chain, operational endpoints (/health, /metrics, /swagger) and
// the versioned recipe, import and export routes.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/recipe-notebook/internal/config"
	"github.com/tbourn/recipe-notebook/internal/http/handlers"
	"github.com/tbourn/recipe-notebook/internal/http/middleware"
	"github.com/tbourn/recipe-notebook/internal/services"
)

// Services bundles the application services the router exposes.
type Services struct {
	Recipes *services.RecipeService
	Imports *services.ImportService
}

const (
	// bodySlack leaves room for multipart framing around an import file.
	bodySlack = 64 << 10
	// importCost is the token price of parsing or applying a batch.
	importCost = 3
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, and then
// mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (import size + slack)
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per API key/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, svc Services, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderAPIKey},
		MaskQuery:   []string{"q"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	maxBody := cfg.ImportMaxBytes + bodySlack
	if cfg.ImportMaxBytes <= 0 {
		maxBody = 1 << 20
	}
	r.Use(limitBody(maxBody))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotent confirm replays (before rate limiting)
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, svc.Imports.Lookup))

	// 8) Token-bucket rate limiter per API key/IP; uploads and confirms cost more
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:   cfg.RateRPS,
		Burst: cfg.RateBurst,
		Key:   middleware.KeyByAPIKeyOrIP(),
		Cost:  middleware.WeightedCost(importCost, middleware.RouteSuffix("/imports", "/confirm")),
		Skip:  middleware.RouteSuffix("/health", "/metrics"),
	})
	r.Use(rl.Handler())

	// 9) CORS and security headers
	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
		// The list relies on ETag revalidation; images set their own max-age.
		Cacheable: middleware.RouteSuffix("/recipes", "/images/:imageId"),
		Downloads: middleware.RouteSuffix("/export"),
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(svc.Recipes, svc.Imports, handlers.Options{ImageMaxHeight: cfg.ImageMaxHeight})

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	{
		// Recipes
		api.POST("/recipes", h.CreateRecipe)
		api.GET("/recipes", h.ListRecipes)
		api.DELETE("/recipes", h.DeleteAllRecipes)
		api.GET("/recipes/search", h.SearchRecipes)
		api.GET("/recipes/slug/:slug", h.GetRecipeBySlug)
		api.GET("/recipes/:id", h.GetRecipe)
		api.PUT("/recipes/:id", h.UpdateRecipe)
		api.DELETE("/recipes/:id", h.DeleteRecipe)
		api.GET("/recipes/:id/images/:imageId", h.GetImage)

		// Export (gzip when accepted; data URLs compress well)
		export := api.Group("", gzip.Gzip(gzip.DefaultCompression))
		export.GET("/recipes/:id/export", h.ExportRecipe)
		export.GET("/export", h.ExportAll)

		// Imports
		api.POST("/imports", h.CreateImport)
		api.GET("/imports/:id", h.GetImport)
		api.DELETE("/imports/:id", h.CancelImport)
		api.PUT("/imports/:id/decision", h.SetAllDecisions)
		api.PUT("/imports/:id/candidates/:index", h.CorrectCandidate)
		api.PUT("/imports/:id/candidates/:index/decision", h.SetDecision)
		api.POST("/imports/:id/confirm", h.ConfirmImport)
	}
}

// corsHandlers allows any origin when the list is empty. Otherwise listed
// origins are echoed back; gin-contrib/cors only sets the header on
// preflight-eligible requests, and browsers also read it on simple GETs.
func corsHandlers(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.HeaderAPIKey, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{
			"X-Request-ID", "Content-Length", "ETag", "Location",
			"Content-Disposition", "Idempotent-Replay", "Retry-After",
		},
		MaxAge: 12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					c.Writer.Header().Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
