package cli

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_MountsRoutesWithConfigTimeouts(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("GIN_MODE", "test")
	t.Setenv("WRITE_TIMEOUT", "7s")

	cfg, err := loadConfig(&RootOptions{DSN: filepath.Join(t.TempDir(), "serve.db")})
	require.NoError(t, err)
	db, err := openDB(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { closeDB(db) })

	srv := newServer(cfg, db, ":0")
	assert.Equal(t, 7*time.Second, srv.WriteTimeout)
	assert.Equal(t, cfg.MaxHeaderBytes, srv.MaxHeaderBytes)

	w := httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, cfg.APIBasePath+"/recipes", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":0`)
}

func TestServeUntilDone_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveUntilDone(ctx, srv, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
