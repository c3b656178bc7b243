package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func responseRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := zerolog.New(buf).Level(zerolog.DebugLevel)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	return r
}

func TestFail_EnvelopeAndLogLevel(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		wantLevel string
	}{
		{http.StatusServiceUnavailable, ErrCodeUnavailable, `"level":"error"`},
		{http.StatusNotFound, ErrCodeNotFound, `"level":"debug"`},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			var buf bytes.Buffer
			r := responseRouter(&buf)
			r.GET("/x", func(c *gin.Context) { Fail(c, tt.status, tt.code, "nope") })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			if w.Code != tt.status {
				t.Fatalf("status = %d", w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("json: %v", err)
			}
			if resp != (ErrorResponse{RequestID: "rid-1", Code: tt.code, Message: "nope"}) {
				t.Fatalf("body = %+v", resp)
			}
			if !strings.Contains(buf.String(), tt.wantLevel) {
				t.Fatalf("log = %s; want %s", buf.String(), tt.wantLevel)
			}
		})
	}
}

func TestCreated_LocationUnderRoute(t *testing.T) {
	var buf bytes.Buffer
	r := responseRouter(&buf)
	r.POST("/api/v1/imports", func(c *gin.Context) { created(c, "s-1", gin.H{"id": "s-1"}) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/imports", nil))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/api/v1/imports/s-1" {
		t.Fatalf("Location = %q", got)
	}
}

func TestNotModified(t *testing.T) {
	const etag = `W/"recipes:1:2:1:20"`
	tests := []struct {
		name string
		inm  string
		want int
	}{
		{"no header", "", http.StatusOK},
		{"match", etag, http.StatusNotModified},
		{"match in list", `W/"other", ` + etag, http.StatusNotModified},
		{"wildcard", "*", http.StatusNotModified},
		{"stale", `W/"recipes:0:0:1:20"`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := responseRouter(&buf)
			r.GET("/recipes", func(c *gin.Context) {
				if notModified(c, etag) {
					return
				}
				ok(c, http.StatusOK, gin.H{"recipes": []string{}})
			})

			req := httptest.NewRequest(http.MethodGet, "/recipes", nil)
			if tt.inm != "" {
				req.Header.Set("If-None-Match", tt.inm)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want || w.Header().Get("ETag") != etag {
				t.Fatalf("status=%d etag=%q", w.Code, w.Header().Get("ETag"))
			}
			if tt.want == http.StatusNotModified && w.Body.Len() != 0 {
				t.Fatalf("304 carried a body: %q", w.Body.String())
			}
		})
	}
}

func TestAttachmentAndNoContent(t *testing.T) {
	var buf bytes.Buffer
	r := responseRouter(&buf)
	r.GET("/export", func(c *gin.Context) {
		attachment(c, "tomato soup.json", "application/json", []byte(`[]`))
	})
	r.DELETE("/imports/s-1", func(c *gin.Context) { noContent(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export", nil))
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename="tomato soup.json"` {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if w.Body.String() != "[]" || w.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("body=%q type=%q", w.Body.String(), w.Header().Get("Content-Type"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/imports/s-1", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("delete = %d body=%q", w.Code, w.Body.String())
	}
}
