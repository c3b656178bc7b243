// Package middleware contains the Gin middleware shared by the recipe API:
// correlation ids, access logging with redaction, panic recovery, metrics,
// idempotent import confirmation, rate limiting and security headers.
//
// Recommended order: RequestID, RedactingLogger, Recovery. The logger stores
// a request-scoped zerolog.Logger that handlers fetch with LoggerFrom, so
// handler logs carry the request id and the recipe or import being touched.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key under which the request ID is stored.
	requestIDKey = "requestID"
	// requestIDHeader is the HTTP header used to propagate the correlation ID.
	requestIDHeader = "X-Request-ID"
	// loggerKey holds the request-scoped *zerolog.Logger.
	loggerKey = "logger"
	// maxQueryLogLength caps the number of bytes of the raw query string logged.
	maxQueryLogLength = 2048
)

// RequestID reuses an incoming X-Request-ID or generates a UUIDv4, stores it
// in the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// routeFields maps route parameters to log field names. ":id" names a
// recipe except under /imports, where it is an import session.
func routeFields(c *gin.Context) map[string]string {
	if len(c.Params) == 0 {
		return nil
	}
	imports := strings.Contains(c.FullPath(), "/imports/")
	out := make(map[string]string, len(c.Params))
	for _, p := range c.Params {
		switch p.Key {
		case "id":
			if imports {
				out["import_id"] = p.Value
			} else {
				out["recipe_id"] = p.Value
			}
		case "imageId":
			out["image_id"] = p.Value
		case "index":
			out["candidate_index"] = p.Value
		case "slug":
			out["slug"] = p.Value
		}
	}
	return out
}

// scopedLogger builds the request logger: correlation id, method, route and
// the ids named by the route.
func scopedLogger(c *gin.Context, path string) zerolog.Logger {
	v, _ := c.Get(requestIDKey)
	rid := asString(v)
	if rid == "" {
		rid = c.Writer.Header().Get(requestIDHeader)
	}
	if rid == "" {
		rid = c.GetHeader(requestIDHeader)
	}
	lc := log.With().
		Str("request_id", rid).
		Str("method", c.Request.Method).
		Str("path", path)
	for k, v := range routeFields(c) {
		lc = lc.Str(k, v)
	}
	return lc.Logger()
}

// Recovery turns panics into the standard JSON 500 envelope and logs the
// stack on the request logger. If the handler already wrote a response only
// the status is aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid, _ := c.Get(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, asString(rid))
			abortError(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// abortError writes the same error envelope the handlers use so clients see
// one shape whether a request was refused here or by a handler.
func abortError(c *gin.Context, status int, code, msg string) {
	rid := c.Writer.Header().Get(requestIDHeader)
	if rid == "" {
		v, _ := c.Get(requestIDKey)
		rid = asString(v)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": rid,
		"code":       code,
		"message":    msg,
	})
}

// LoggerFrom returns the request-scoped logger set by RedactingLogger, or the
// global logger when none is attached.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// truncate cuts s to max bytes plus an ellipsis; max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
