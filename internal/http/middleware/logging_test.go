package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf) // plain JSON lines
	return &buf
}

// logLines decodes the captured JSON lines.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func findLog(lines []map[string]any, msg string) map[string]any {
	for _, l := range lines {
		if l["message"] == msg {
			return l
		}
	}
	return nil
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/recipes", func(c *gin.Context) {
		if v, ok := c.Get(requestIDKey); !ok || v == "" {
			t.Fatalf("requestID not set in context")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/recipes", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated %s header", requestIDHeader)
	}

	for _, hdr := range []string{strings.ToLower(requestIDHeader), requestIDHeader} {
		w = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/recipes", nil)
		req.Header.Set(hdr, "abc-123")
		r.ServeHTTP(w, req)
		if got := w.Header().Get(requestIDHeader); got != "abc-123" {
			t.Fatalf("header %s: propagated id = %q", hdr, got)
		}
	}
}

func TestRouteFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	got := map[string]map[string]string{}
	r := gin.New()
	record := func(c *gin.Context) {
		got[c.Request.URL.Path] = routeFields(c)
		c.Status(http.StatusOK)
	}
	r.GET("/api/v1/recipes/:id/images/:imageId", record)
	r.PUT("/api/v1/imports/:id/candidates/:index", record)
	r.GET("/api/v1/recipes/slug/:slug", record)
	r.GET("/api/v1/export", record)

	for _, p := range []string{
		"/api/v1/recipes/r1/images/i1",
		"/api/v1/imports/s1/candidates/2",
		"/api/v1/recipes/slug/tomato-soup",
		"/api/v1/export",
	} {
		method := http.MethodGet
		if strings.Contains(p, "/imports/") {
			method = http.MethodPut
		}
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, p, nil))
	}

	want := map[string]map[string]string{
		"/api/v1/recipes/r1/images/i1":     {"recipe_id": "r1", "image_id": "i1"},
		"/api/v1/imports/s1/candidates/2":  {"import_id": "s1", "candidate_index": "2"},
		"/api/v1/recipes/slug/tomato-soup": {"slug": "tomato-soup"},
	}
	for path, fields := range want {
		for k, v := range fields {
			if got[path][k] != v {
				t.Fatalf("%s: %s = %q; want %q (all %v)", path, k, got[path][k], v, got[path])
			}
		}
		if len(got[path]) != len(fields) {
			t.Fatalf("%s: fields = %v; want %v", path, got[path], fields)
		}
	}
	if got["/api/v1/export"] != nil {
		t.Fatalf("export has no params, got %v", got["/api/v1/export"])
	}
}

func TestLoggerFrom_FallbackAndRequestScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Without RedactingLogger the global logger is returned.
	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/recipes/:id", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("plain")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/recipes/r1", nil))
	plain := findLog(logLines(t, buf), "plain")
	if plain == nil || plain["request_id"] != nil {
		t.Fatalf("fallback logger: %v", plain)
	}

	// With it, handler logs carry the request id and route ids.
	buf = captureLogger(t)
	r = gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{}))
	r.POST("/imports/:id/confirm", func(c *gin.Context) {
		LoggerFrom(c).Warn().Msg("partial")
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodPost, "/imports/s-9/confirm", nil)
	req.Header.Set(requestIDHeader, "rid-7")
	r.ServeHTTP(httptest.NewRecorder(), req)

	scoped := findLog(logLines(t, buf), "partial")
	if scoped == nil {
		t.Fatalf("scoped log missing: %s", buf.String())
	}
	if scoped["request_id"] != "rid-7" || scoped["import_id"] != "s-9" || scoped["path"] != "/imports/:id/confirm" {
		t.Fatalf("scoped fields: %v", scoped)
	}
}

func TestRecovery_PanicsToJSON500AndLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{}))
	r.Use(Recovery())
	r.GET("/recipes/:id", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/recipes/r1", nil)
	req.Header.Set(requestIDHeader, "rid-p")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from Recovery, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-p" {
		t.Fatalf("unexpected body: %v", body)
	}

	lines := logLines(t, buf)
	p := findLog(lines, "panic recovered")
	if p == nil || p["recipe_id"] != "r1" || p["panic"] != "kaboom" {
		t.Fatalf("panic log: %v", p)
	}
	if access := findLog(lines, "http_request"); access == nil || access["level"] != "error" {
		t.Fatalf("access log after panic: %v", access)
	}
}

func TestRecovery_PanicAfterWrite_NoJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(Recovery())
	r.GET("/export", func(c *gin.Context) {
		c.String(http.StatusOK, "[")
		panic("late kaboom")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export", nil))

	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("no JSON envelope expected after a partial write, got %q", w.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("expected panic log, got:\n%s", buf.String())
	}
}

func TestHelpers_asString_and_truncate(t *testing.T) {
	if asString("x") != "x" || asString(123) != "" {
		t.Fatalf("asString failed")
	}
	if truncate("hello", 10) != "hello" {
		t.Fatalf("truncate no-op failed")
	}
	if got := truncate("abcdefgh", 5); got != "abcde…" {
		t.Fatalf("truncate result = %q; want %q", got, "abcde…")
	}
	if truncate("abc", 0) != "abc" {
		t.Fatalf("truncate disable failed")
	}
}
