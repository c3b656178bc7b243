// Image HTTP handler.
//
//   - GET /recipes/{id}/images/{imageId}[?height=N]
//
// JPEG and PNG images can be scaled down to a requested height (aspect ratio
// preserved). Other formats are served unchanged. Only raster image types are
// served as such; anything else an import declared goes out as
// application/octet-stream.
package handlers

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nfnt/resize"

	"github.com/tbourn/recipe-notebook/internal/utils"
)

// GetImage godoc
// @ID          getImage
// @Summary     Get a recipe image
// @Tags        Images
// @Produce     image/jpeg
// @Produce     image/png
// @Param       id       path   string  true   "Recipe ID"
// @Param       imageId  path   string  true   "Image ID"
// @Param       height   query  int     false  "Scale down to this height in pixels"  minimum(1)
// @Success     200  {file}    binary
// @Failure     400  {object}  handlers.ErrorResponse  "Bad height"
// @Failure     404  {object}  handlers.ErrorResponse  "Image not found"
// @Router      /recipes/{id}/images/{imageId} [get]
func (h *Handlers) GetImage(c *gin.Context) {
	img, err := h.recipeSvc.Image(c.Request.Context(), c.Param("id"), c.Param("imageId"))
	if err != nil {
		failErr(c, err)
		return
	}
	ctype := servedType(img.MimeType, img.Data)

	data := img.Data
	if hq := c.Query("height"); hq != "" {
		height := utils.AtoiDefault(hq, 0)
		if height < 1 || height > h.opts.ImageMaxHeight {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "height out of range")
			return
		}
		scaled, err := scaleToHeight(data, ctype, uint(height))
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeImageFailed, err.Error())
			return
		}
		data = scaled
	}

	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, ctype, data)
}

const fallbackType = "application/octet-stream"

// servedType returns the Content-Type for a stored image. The declared type is
// used when it is an image/* type other than SVG, which can carry script.
func servedType(declared string, data []byte) string {
	if strings.TrimSpace(declared) == "" {
		declared = http.DetectContentType(data)
	}
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil || !strings.HasPrefix(mt, "image/") || mt == "image/svg+xml" {
		return fallbackType
	}
	return mt
}

// scaleToHeight shrinks JPEG/PNG data taller than height. Anything else,
// including images already small enough, is returned as is.
func scaleToHeight(data []byte, ctype string, height uint) ([]byte, error) {
	if ctype != "image/jpeg" && ctype != "image/png" {
		return data, nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if uint(src.Bounds().Dy()) <= height {
		return data, nil
	}
	dst := resize.Resize(0, height, src, resize.Lanczos3)

	var buf bytes.Buffer
	if ctype == "image/png" {
		err = png.Encode(&buf, dst)
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
