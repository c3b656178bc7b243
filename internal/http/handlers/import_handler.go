// Import HTTP handlers.
//
// An import runs as a short-lived session:
//   - POST   /imports                                  (upload, returns preview)
//   - GET    /imports/{id}                             (current preview)
//   - PUT    /imports/{id}/candidates/{index}          (replace a candidate)
//   - PUT    /imports/{id}/candidates/{index}/decision (resolve one duplicate)
//   - PUT    /imports/{id}/decision                    (resolve all duplicates)
//   - POST   /imports/{id}/confirm                     (apply, Idempotency-Key aware)
//   - DELETE /imports/{id}                             (cancel)
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/recipe-notebook/internal/http/middleware"
	"github.com/tbourn/recipe-notebook/internal/importer"
)

// DecisionRequest picks how a duplicate is resolved.
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required" example:"keep-both" enums:"update,skip,keep-both"`
}

// DecisionAllResponse reports how many duplicates were changed.
type DecisionAllResponse struct {
	Changed int `json:"changed" example:"3"`
}

// readImportBody returns the uploaded file from a multipart "file" field or
// the raw request body.
func readImportBody(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(c.Request.Body)
}

func indexParam(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "index must be a non-negative integer")
		return 0, false
	}
	return i, true
}

// CreateImport godoc
// @ID          createImport
// @Summary     Upload an import file
// @Description Parses a JSON recipe or array of recipes, validates each and checks for duplicates. Nothing is written until confirm.
// @Tags        Imports
// @Accept      json
// @Accept      mpfd
// @Produce     json
// @Param       file  formData  file    false  "Import file (multipart)"
// @Success     201   {object}  services.SessionView
// @Failure     400   {object}  handlers.ErrorResponse  "Not a JSON object or array"
// @Failure     413   {object}  handlers.ErrorResponse  "File too large"
// @Failure     503   {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /imports [post]
func (h *Handlers) CreateImport(c *gin.Context) {
	data, err := readImportBody(c)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "import file too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "could not read import file")
		return
	}
	v, err := h.importSvc.Preview(c.Request.Context(), data)
	if err != nil {
		failErr(c, err)
		return
	}
	created(c, v.ID, v)
}

// GetImport godoc
// @ID          getImport
// @Summary     Get an import preview
// @Tags        Imports
// @Produce     json
// @Param       id   path      string  true  "Import session ID"
// @Success     200  {object}  services.SessionView
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found or expired"
// @Router      /imports/{id} [get]
func (h *Handlers) GetImport(c *gin.Context) {
	v, err := h.importSvc.Get(c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// CorrectCandidate godoc
// @ID          correctCandidate
// @Summary     Replace an import candidate
// @Description Re-validates the corrected candidate and checks it for duplicates again.
// @Tags        Imports
// @Accept      json
// @Produce     json
// @Param       id     path      string  true  "Import session ID"
// @Param       index  path      int     true  "Candidate index"
// @Param       body   body      object  true  "Corrected recipe"
// @Success     200    {object}  importer.Item
// @Failure     400    {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404    {object}  handlers.ErrorResponse  "Session not found"
// @Router      /imports/{id}/candidates/{index} [put]
func (h *Handlers) CorrectCandidate(c *gin.Context) {
	idx, good := indexParam(c)
	if !good {
		return
	}
	cand, good := bindCandidate(c)
	if !good {
		return
	}
	it, err := h.importSvc.Correct(c.Param("id"), idx, cand)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// SetDecision godoc
// @ID          setDecision
// @Summary     Resolve a duplicate
// @Tags        Imports
// @Accept      json
// @Produce     json
// @Param       id     path      string                    true  "Import session ID"
// @Param       index  path      int                       true  "Candidate index"
// @Param       body   body      handlers.DecisionRequest  true  "Decision"
// @Success     200    {object}  importer.Item
// @Failure     400    {object}  handlers.ErrorResponse  "Bad decision or not a duplicate"
// @Failure     404    {object}  handlers.ErrorResponse  "Session not found"
// @Router      /imports/{id}/candidates/{index}/decision [put]
func (h *Handlers) SetDecision(c *gin.Context) {
	idx, good := indexParam(c)
	if !good {
		return
	}
	d, good := bindDecision(c)
	if !good {
		return
	}
	it, err := h.importSvc.SetDecision(c.Param("id"), idx, d)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, it)
}

// SetAllDecisions godoc
// @ID          setAllDecisions
// @Summary     Resolve every duplicate the same way
// @Tags        Imports
// @Accept      json
// @Produce     json
// @Param       id    path      string                    true  "Import session ID"
// @Param       body  body      handlers.DecisionRequest  true  "Decision"
// @Success     200   {object}  handlers.DecisionAllResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Bad decision"
// @Failure     404   {object}  handlers.ErrorResponse  "Session not found"
// @Router      /imports/{id}/decision [put]
func (h *Handlers) SetAllDecisions(c *gin.Context) {
	d, good := bindDecision(c)
	if !good {
		return
	}
	n, err := h.importSvc.SetAllDecisions(c.Param("id"), d)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, DecisionAllResponse{Changed: n})
}

func bindDecision(c *gin.Context) (importer.Decision, bool) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "decision required")
		return "", false
	}
	d, err := importer.ParseDecision(req.Decision)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return "", false
	}
	return d, true
}

// ConfirmImport godoc
// @ID          confirmImport
// @Summary     Apply an import
// @Description Writes the batch with last-write-wins. Stale records are skipped and reported as warnings. Repeating the request with the same Idempotency-Key returns the stored report.
// @Tags        Imports
// @Produce     json
// @Param       id               path    string  true   "Import session ID"
// @Param       Idempotency-Key  header  string  false  "Retry key"  example(3f1c9a2e)
// @Success     200  {object}  importer.Report
// @Header      200  {string}  Idempotent-Replay  "true when the stored report was returned"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Empty batch or unresolved invalid candidates"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable (partial report logged)"
// @Router      /imports/{id}/confirm [post]
func (h *Handlers) ConfirmImport(c *gin.Context) {
	key, _ := middleware.GetIdempotencyKey(c)
	rep, replayed, err := h.importSvc.Confirm(c.Request.Context(), c.Param("id"), key)
	if err != nil {
		if rep != nil {
			middleware.LoggerFrom(c).Warn().
				Int("inserted", rep.Inserted).
				Int("updated", rep.Updated).
				Int("stale", rep.Stale).
				Msg("import partially applied")
		}
		failErr(c, err)
		return
	}
	if replayed {
		c.Header("Idempotent-Replay", "true")
	}
	ok(c, http.StatusOK, rep)
}

// CancelImport godoc
// @ID          cancelImport
// @Summary     Cancel an import
// @Tags        Imports
// @Param       id   path    string  true  "Import session ID"
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Router      /imports/{id} [delete]
func (h *Handlers) CancelImport(c *gin.Context) {
	if err := h.importSvc.Cancel(c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
