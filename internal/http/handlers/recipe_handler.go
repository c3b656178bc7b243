// Recipe HTTP handlers.
//
// This file exposes REST endpoints for recipe resources:
//   - POST   /recipes               (create)
//   - GET    /recipes               (list, paginated, ETag support)
//   - GET    /recipes/search        (ranked search)
//   - GET    /recipes/{id}          (fetch by id)
//   - GET    /recipes/slug/{slug}   (fetch by slug)
//   - PUT    /recipes/{id}          (full overwrite)
//   - DELETE /recipes/{id}          (delete)
//   - DELETE /recipes              (reset the notebook)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/recipe-notebook/internal/domain"
	"github.com/tbourn/recipe-notebook/internal/importer"
	"github.com/tbourn/recipe-notebook/internal/search"
	"github.com/tbourn/recipe-notebook/internal/services"
	"github.com/tbourn/recipe-notebook/internal/utils"
)

//
// Service contracts (context-aware)
//

// RecipeService defines recipe operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RecipeService interface {
	Create(ctx context.Context, c importer.Candidate) (*domain.Recipe, error)
	Update(ctx context.Context, id string, c importer.Candidate) (*domain.Recipe, error)
	Get(ctx context.Context, id string) (*domain.Recipe, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Recipe, error)
	List(ctx context.Context, page, pageSize int) ([]domain.Recipe, int64, error)
	All(ctx context.Context) ([]domain.Recipe, error)
	Stats(ctx context.Context) (int64, *time.Time, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context) (int64, error)
	Image(ctx context.Context, recipeID, imageID string) (*domain.RecipeImage, error)
	Search(ctx context.Context, q string, k int) ([]search.Result, error)
}

// ImportService defines the interactive import workflow.
type ImportService interface {
	Preview(ctx context.Context, data []byte) (*services.SessionView, error)
	Get(id string) (*services.SessionView, error)
	SetDecision(id string, index int, d importer.Decision) (*importer.Item, error)
	SetAllDecisions(id string, d importer.Decision) (int, error)
	Correct(id string, index int, c importer.Candidate) (*importer.Item, error)
	Confirm(ctx context.Context, id, idemKey string) (*importer.Report, bool, error)
	Cancel(id string) error
}

//
// Handler wiring
//

// Options tune handler behaviour.
type Options struct {
	// ImageMaxHeight caps the height query parameter of the image endpoint.
	ImageMaxHeight int
}

// Handlers groups HTTP endpoints for recipes, imports, exports and images.
type Handlers struct {
	recipeSvc RecipeService
	importSvc ImportService
	opts      Options
}

// New constructs and returns a Handlers instance bound to the given services.
func New(recipeSvc RecipeService, importSvc ImportService, opts Options) *Handlers {
	if opts.ImageMaxHeight <= 0 {
		opts.ImageMaxHeight = 2048
	}
	return &Handlers{recipeSvc: recipeSvc, importSvc: importSvc, opts: opts}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListRecipesResponse wraps a page of recipes and pagination information.
type ListRecipesResponse struct {
	Recipes    []domain.Recipe `json:"recipes"`
	Pagination Pagination      `json:"pagination"`
}

// SearchResponse lists ranked matches.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

// DeleteAllResponse reports how many recipes a reset removed.
type DeleteAllResponse struct {
	Deleted int64 `json:"deleted" example:"12"`
}

//
// Helpers
//

// pageQuery reads page and page_size. Out-of-range values are clamped rather
// than rejected.
func pageQuery(c *gin.Context) utils.Page {
	return utils.NewPage(
		utils.IntInRange(c.Query("page"), 1, 1, math.MaxInt32),
		utils.IntInRange(c.Query("page_size"), utils.DefaultPageSize, 1, utils.MaxPageSize),
	)
}

// bindCandidate decodes the request body as one recipe object.
func bindCandidate(c *gin.Context) (importer.Candidate, bool) {
	var cand importer.Candidate
	if err := c.ShouldBindJSON(&cand); err != nil || cand == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body must be a JSON recipe object")
		return nil, false
	}
	return cand, true
}

//
// Handlers
//

// CreateRecipe godoc
// @ID          createRecipe
// @Summary     Create a recipe
// @Description Validates and stores a new recipe. Server assigns id, slug and timestamps.
// @Tags        Recipes
// @Accept      json
// @Produce     json
// @Param       body  body      object  true  "Recipe"
// @Success     201   {object}  domain.Recipe
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422   {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     503   {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /recipes [post]
func (h *Handlers) CreateRecipe(c *gin.Context) {
	cand, good := bindCandidate(c)
	if !good {
		return
	}
	r, err := h.recipeSvc.Create(c.Request.Context(), cand)
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, r.ID, r)
}

// ListRecipes godoc
// @ID          listRecipes
// @Summary     List recipes (paginated)
// @Description Returns a page of recipes, most recently updated first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Recipes
// @Produce     json
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
// @Success     200  {object} handlers.ListRecipesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     503  {object} handlers.ErrorResponse "Store unavailable"
// @Router      /recipes [get]
func (h *Handlers) ListRecipes(c *gin.Context) {
	ctx := c.Request.Context()
	p := pageQuery(c)

	// ETag pre-check (best effort).
	if count, maxTS, err := h.recipeSvc.Stats(ctx); err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		if notModified(c, fmt.Sprintf(`W/"recipes:%d:%d:%d:%d"`, count, ts, p.Number, p.Size)) {
			return
		}
	}

	items, total, err := h.recipeSvc.List(ctx, p.Number, p.Size)
	if err != nil {
		failErr(c, err)
		return
	}

	ok(c, http.StatusOK, ListRecipesResponse{
		Recipes: items,
		Pagination: Pagination{
			Page:       p.Number,
			PageSize:   p.Size,
			Total:      total,
			TotalPages: p.TotalPages(total),
			HasNext:    p.HasNext(total),
		},
	})
}

// GetRecipe godoc
// @ID          getRecipe
// @Summary     Get a recipe
// @Tags        Recipes
// @Produce     json
// @Param       id   path      string  true  "Recipe ID"
// @Success     200  {object}  domain.Recipe
// @Failure     404  {object}  handlers.ErrorResponse  "Recipe not found"
// @Router      /recipes/{id} [get]
func (h *Handlers) GetRecipe(c *gin.Context) {
	r, err := h.recipeSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// GetRecipeBySlug godoc
// @ID          getRecipeBySlug
// @Summary     Get a recipe by slug
// @Tags        Recipes
// @Produce     json
// @Param       slug  path      string  true  "Recipe slug"  example(tomato-soup)
// @Success     200   {object}  domain.Recipe
// @Failure     404   {object}  handlers.ErrorResponse  "Recipe not found"
// @Router      /recipes/slug/{slug} [get]
func (h *Handlers) GetRecipeBySlug(c *gin.Context) {
	r, err := h.recipeSvc.GetBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// UpdateRecipe godoc
// @ID          updateRecipe
// @Summary     Replace a recipe
// @Description Full overwrite. The slug is regenerated only when the name changes.
// @Tags        Recipes
// @Accept      json
// @Produce     json
// @Param       id    path      string  true  "Recipe ID"
// @Param       body  body      object  true  "Recipe"
// @Success     200   {object}  domain.Recipe
// @Failure     404   {object}  handlers.ErrorResponse  "Recipe not found"
// @Failure     422   {object}  handlers.ErrorResponse  "Validation failed"
// @Router      /recipes/{id} [put]
func (h *Handlers) UpdateRecipe(c *gin.Context) {
	cand, good := bindCandidate(c)
	if !good {
		return
	}
	r, err := h.recipeSvc.Update(c.Request.Context(), c.Param("id"), cand)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteRecipe godoc
// @ID          deleteRecipe
// @Summary     Delete a recipe
// @Tags        Recipes
// @Param       id   path    string  true  "Recipe ID"
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Recipe not found"
// @Router      /recipes/{id} [delete]
func (h *Handlers) DeleteRecipe(c *gin.Context) {
	if err := h.recipeSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DeleteAllRecipes godoc
// @ID          deleteAllRecipes
// @Summary     Reset the notebook
// @Description Deletes every recipe and image. Requires confirm=true.
// @Tags        Recipes
// @Produce     json
// @Param       confirm  query     bool  true  "Must be true"
// @Success     200      {object}  handlers.DeleteAllResponse
// @Failure     400      {object}  handlers.ErrorResponse  "Missing confirmation"
// @Router      /recipes [delete]
func (h *Handlers) DeleteAllRecipes(c *gin.Context) {
	if c.Query("confirm") != "true" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "confirm=true required")
		return
	}
	n, err := h.recipeSvc.DeleteAll(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DeleteAllResponse{Deleted: n})
}

// SearchRecipes godoc
// @ID          searchRecipes
// @Summary     Search recipes
// @Description Ranks recipes by token overlap with name, keywords and ingredients.
// @Tags        Recipes
// @Produce     json
// @Param       q    query     string  true   "Query"  example(tomato basil)
// @Param       k    query     int     false  "Max results"  minimum(1) maximum(50) default(10)
// @Success     200  {object}  handlers.SearchResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Missing query"
// @Router      /recipes/search [get]
func (h *Handlers) SearchRecipes(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "q required")
		return
	}
	k := utils.IntInRange(c.Query("k"), 10, 1, 50)
	res, err := h.recipeSvc.Search(c.Request.Context(), q, k)
	if err != nil {
		failErr(c, err)
		return
	}
	if res == nil {
		res = []search.Result{}
	}
	ok(c, http.StatusOK, SearchResponse{Query: q, Results: res})
}
