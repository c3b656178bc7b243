package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type seenState struct {
	key    string
	hasKey bool
	replay bool
	bypass bool
}

// confirmRouter mounts the validator in front of a confirm route and a plain
// recipe write, recording what the handler observed.
func confirmRouter(opts IdempotencyOptions, lookup IdempotencyLookup, seen *seenState) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.Use(IdempotencyValidator(opts, lookup))
	record := func(c *gin.Context) {
		seen.key, seen.hasKey = GetIdempotencyKey(c)
		seen.replay = IsReplay(c)
		seen.bypass = IsRateBypass(c)
		c.Status(http.StatusOK)
	}
	r.POST("/api/v1/imports/:id/confirm", record)
	r.POST("/api/v1/recipes", record)
	return r
}

func postWithKey(r http.Handler, path, key string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyAccessors_Defaults(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) {
		t.Fatal("fresh context should carry no key or replay flag")
	}
	c.Set(ctxKeyIdemKey, 42)
	c.Set(ctxKeyIdemReplay, "yes")
	if _, ok := GetIdempotencyKey(c); ok || IsReplay(c) {
		t.Fatal("values of the wrong type must read as absent")
	}
}

func TestIdempotencyValidator_ConfirmRoute(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		found      bool
		lookupErr  error
		wantReplay bool
	}{
		{name: "first attempt", key: "retry-1"},
		{name: "replay", key: "retry-1", found: true, wantReplay: true},
		{name: "key is trimmed", key: "  retry-2  ", found: true, wantReplay: true},
		{name: "lookup error proceeds", key: "retry-3", lookupErr: errors.New("db down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotScope, gotKey string
			lookup := func(_ context.Context, scope, key string, now time.Time) (bool, error) {
				if now.IsZero() || now.Location() != time.UTC {
					t.Errorf("lookup time = %v; want UTC now", now)
				}
				gotScope, gotKey = scope, key
				return tt.found, tt.lookupErr
			}
			var seen seenState
			w := postWithKey(confirmRouter(IdempotencyOptions{}, lookup, &seen), "/api/v1/imports/s42/confirm", tt.key)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			want := strings.TrimSpace(tt.key)
			if gotScope != "s42" || gotKey != want {
				t.Fatalf("lookup(%q, %q); want (s42, %q)", gotScope, gotKey, want)
			}
			if !seen.hasKey || seen.key != want {
				t.Fatalf("handler key = %q, %v", seen.key, seen.hasKey)
			}
			if seen.replay != tt.wantReplay || seen.bypass != tt.wantReplay {
				t.Fatalf("replay=%v bypass=%v; want %v", seen.replay, seen.bypass, tt.wantReplay)
			}
		})
	}
}

func TestIdempotencyValidator_IgnoredOffConfirm(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	var seen seenState
	r := confirmRouter(IdempotencyOptions{}, lookup, &seen)

	// Even a malformed key is ignored where the header has no meaning.
	w := postWithKey(r, "/api/v1/recipes", "not a valid key!")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if called || seen.hasKey || seen.replay {
		t.Fatalf("validator acted on /recipes: called=%v seen=%+v", called, seen)
	}

	// No header on the confirm route: nothing to look up.
	w = postWithKey(r, "/api/v1/imports/s1/confirm", "")
	if w.Code != http.StatusOK || called || seen.hasKey {
		t.Fatalf("no header: status=%d called=%v seen=%+v", w.Code, called, seen)
	}
}

func TestIdempotencyValidator_RejectsBadKeys(t *testing.T) {
	tests := []struct {
		name string
		opts IdempotencyOptions
		key  string
	}{
		{name: "too long", opts: IdempotencyOptions{MaxLen: 5}, key: "abcdef"},
		{name: "default pattern", key: "has space"},
		{name: "custom pattern", opts: IdempotencyOptions{Pattern: regexp.MustCompile(`^[0-9]+$`)}, key: "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen seenState
			w := postWithKey(confirmRouter(tt.opts, nil, &seen), "/api/v1/imports/s1/confirm", tt.key)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d; want 400", w.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("json: %v", err)
			}
			if body["code"] != "bad_idempotency_key" || body["request_id"] == "" {
				t.Fatalf("body = %v", body)
			}
			if body["request_id"] != w.Header().Get(requestIDHeader) {
				t.Fatalf("request_id %q does not match header", body["request_id"])
			}
		})
	}
}

func TestIdempotencyValidator_CustomRoutesAndScope(t *testing.T) {
	var gotScope string
	lookup := func(_ context.Context, scope, _ string, _ time.Time) (bool, error) {
		gotScope = scope
		return false, nil
	}
	opts := IdempotencyOptions{
		Routes: RouteSuffix("/recipes"),
		Scope:  func(c *gin.Context) string { return c.GetHeader(HeaderAPIKey) },
	}
	r := confirmRouter(opts, lookup, &seenState{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipes", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-9")
	req.Header.Set(HeaderAPIKey, "client-a")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || gotScope != "client-a" {
		t.Fatalf("status=%d scope=%q", w.Code, gotScope)
	}
}
