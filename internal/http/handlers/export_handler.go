// Export HTTP handlers.
//
// Exports use the same JSON shape the importer accepts, with image bytes
// written as data URLs, so a file exported here can be imported again.
//   - GET /recipes/{id}/export  (single recipe object)
//   - GET /export               (array of every recipe)
package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/recipe-notebook/internal/domain"
	"github.com/tbourn/recipe-notebook/internal/importer"
)

// ExportRecipe godoc
// @ID          exportRecipe
// @Summary     Export one recipe
// @Tags        Export
// @Produce     json
// @Param       id   path      string  true  "Recipe ID"
// @Success     200  {object}  importer.ExportRecipe
// @Failure     404  {object}  handlers.ErrorResponse  "Recipe not found"
// @Router      /recipes/{id}/export [get]
func (h *Handlers) ExportRecipe(c *gin.Context) {
	r, err := h.recipeSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	writeExport(c, []domain.Recipe{*r}, true, r.Slug+".json")
}

// ExportAll godoc
// @ID          exportAll
// @Summary     Export the notebook
// @Description Returns every recipe as a JSON array. Compressed when the client accepts gzip.
// @Tags        Export
// @Produce     json
// @Success     200  {array}   importer.ExportRecipe
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /export [get]
func (h *Handlers) ExportAll(c *gin.Context) {
	all, err := h.recipeSvc.All(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	writeExport(c, all, false, "recipes.json")
}

func writeExport(c *gin.Context, recipes []domain.Recipe, single bool, filename string) {
	var buf bytes.Buffer
	if err := importer.WriteExport(&buf, recipes, single); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeExportFailed, err.Error())
		return
	}
	attachment(c, filename, "application/json; charset=utf-8", buf.Bytes())
}
