package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures RedactingLogger.
//
// MaskHeaders are fully replaced with "[REDACTED]", in addition to
// Authorization, Cookie and Set-Cookie. MaskQuery names query parameters whose
// values are replaced outright, such as free-text search. RedactIDs also
// scrubs UUIDs; recipe and import ids are not personal data, so it is off
// unless set.
type RedactOptions struct {
	MaskHeaders []string
	MaskQuery   []string
	RedactIDs   bool
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// digits only, so hex runs are never taken for phone numbers
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

type redactor struct {
	ids         bool
	maskHeaders map[string]struct{}
	maskQuery   map[string]struct{}
}

func newRedactor(opts RedactOptions) *redactor {
	r := &redactor{
		ids: opts.RedactIDs,
		maskHeaders: map[string]struct{}{
			"authorization": {},
			"cookie":        {},
			"set-cookie":    {},
		},
		maskQuery: map[string]struct{}{},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			r.maskHeaders[h] = struct{}{}
		}
	}
	for _, q := range opts.MaskQuery {
		if q = strings.TrimSpace(q); q != "" {
			r.maskQuery[q] = struct{}{}
		}
	}
	return r
}

// text scrubs emails and phone numbers. UUIDs are either redacted or kept
// intact; in both cases they are taken out before the phone pattern runs so
// their digit groups are never read as a number.
func (r *redactor) text(s string) string {
	if s == "" {
		return s
	}
	scrub := func(part string) string {
		part = emailRE.ReplaceAllString(part, "[REDACTED:email]")
		return phoneRE.ReplaceAllString(part, "[REDACTED:phone]")
	}

	var b strings.Builder
	last := 0
	for _, loc := range uuidRE.FindAllStringIndex(s, -1) {
		b.WriteString(scrub(s[last:loc[0]]))
		if r.ids {
			b.WriteString("[REDACTED:id]")
		} else {
			b.WriteString(s[loc[0]:loc[1]])
		}
		last = loc[1]
	}
	b.WriteString(scrub(s[last:]))
	return b.String()
}

// query masks listed parameters and scrubs the rest, keeping the original
// parameter order.
func (r *redactor) query(raw string) string {
	if raw == "" {
		return raw
	}
	pairs := strings.Split(raw, "&")
	for i, p := range pairs {
		k, _, hasValue := strings.Cut(p, "=")
		if key, err := url.QueryUnescape(k); err == nil {
			if _, ok := r.maskQuery[key]; ok && hasValue {
				pairs[i] = k + "=[REDACTED]"
				continue
			}
		}
		pairs[i] = r.text(p)
	}
	return truncate(strings.Join(pairs, "&"), maxQueryLogLength)
}

func (r *redactor) headers(h map[string][]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.maskHeaders[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.text(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger writes one structured access line per request with
// sensitive values scrubbed and attaches the request-scoped logger that
// LoggerFrom returns. Bodies are never logged; imports are recorded by size.
//
// Level follows the outcome: error for 5xx or recorded gin errors, warn for
// 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := newRedactor(opts)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		lg := scopedLogger(c, path)
		c.Set(loggerKey, &lg)

		safeQuery := red.query(c.Request.URL.RawQuery)
		safeHeaders := red.headers(c.Request.Header)

		c.Next()

		status := c.Writer.Status()

		ev := lg.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = lg.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= 400:
			ev = lg.Warn()
		}

		ev.
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
