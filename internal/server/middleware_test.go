package server

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/agentq/internal/config"
	"github.com/me/agentq/internal/queue"
	"github.com/me/agentq/internal/store"
)

// loggedServer builds a server whose request log is captured at debug level.
func loggedServer(t *testing.T) (*Server, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	quiet := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	st, err := store.NewSQLiteStore(":memory:", quiet)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	mgr := queue.NewManager(st, queue.NewRegistry(quiet), nil, quiet)
	return New(config.ServerConfig{Addr: ":0"}, st, mgr, logger), &buf
}

func requestLines(buf *bytes.Buffer) []string {
	var out []string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "msg=request") {
			out = append(out, l)
		}
	}
	return out
}

func TestLoggingMiddlewareLevels(t *testing.T) {
	srv, buf := loggedServer(t)

	for _, path := range []string{"/api/v1/health", "/api/v1/uploads", "/api/v1/jobs/77"} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := requestLines(buf)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "level=DEBUG")
	assert.Contains(t, got[1], "level=INFO")
	assert.Contains(t, got[1], "status=200")
	assert.Contains(t, got[2], "level=WARN")
	assert.Contains(t, got[2], "route=/api/v1/jobs/{id}")
	assert.Contains(t, got[2], "path=/api/v1/jobs/77")
	assert.NotContains(t, got[2], "bytes=0 ")
}

func TestRequestIDRejectsUnsafeValues(t *testing.T) {
	srv := testServer(t)

	for _, id := range []string{"bad id\nlevel=ERROR", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.Header.Set("X-Request-ID", id)
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, req)

		got := w.Header().Get("X-Request-ID")
		assert.NotEqual(t, id, got)
		assert.True(t, strings.HasPrefix(got, "req_"), got)
	}
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, requestLevel("/api/v1/health", 200))
	assert.Equal(t, slog.LevelError, requestLevel("/api/v1/health", 503))
	assert.Equal(t, slog.LevelInfo, requestLevel("/api/v1/jobs/", 201))
	assert.Equal(t, slog.LevelWarn, requestLevel("/api/v1/jobs/{id}/", 404))
}
