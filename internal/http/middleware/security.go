package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures the headers emitted by SecurityHeaders.
//
// NoStore marks API responses Cache-Control: no-store. Routes for which
// Cacheable returns true (recipe images, which carry their own caching
// headers) are left alone. Downloads reports routes that return a file for
// saving (exports); they get X-Download-Options: noopen so older browsers do
// not open the JSON in the site's context.
type SecurityOptions struct {
	EnableHSTS   bool          // only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool
	EnablePolicy bool // Permissions-Policy and X-Permitted-Cross-Domain-Policies

	Cacheable func(c *gin.Context) bool
	Downloads func(c *gin.Context) bool
}

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// RouteSuffix matches routes whose pattern ends with one of suffixes, e.g.
// RouteSuffix("/images/:imageId"). Unmatched requests (no route) never match.
func RouteSuffix(suffixes ...string) func(*gin.Context) bool {
	return func(c *gin.Context) bool {
		p := c.FullPath()
		if p == "" {
			return false
		}
		for _, s := range suffixes {
			if strings.HasSuffix(p, s) {
				return true
			}
		}
		return false
	}
}

// SecurityHeaders adds hardening headers suited to a JSON API that also
// serves recipe images and export downloads.
//
// Always set: X-Content-Type-Options, X-Frame-Options and Referrer-Policy.
// If X-Request-ID is already on the response it is added to
// Access-Control-Expose-Headers so browser clients can read it.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}

		if opt.NoStore && !matches(opt.Cacheable, c) {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}

		if matches(opt.Downloads, c) {
			h.Set("X-Download-Options", "noopen")
		}

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		if h.Get("X-Request-ID") != "" {
			appendExposed(h, "X-Request-ID")
		}

		c.Next()
	}
}

func matches(pred func(*gin.Context) bool, c *gin.Context) bool {
	return pred != nil && pred(c)
}

// appendExposed adds name to Access-Control-Expose-Headers once.
func appendExposed(h http.Header, name string) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	switch {
	case cur == "":
		h.Set(hdr, name)
	case !strings.Contains(cur, name):
		h.Set(hdr, cur+", "+name)
	}
}

// isHTTPS reports whether the request used TLS directly or behind a proxy
// that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
