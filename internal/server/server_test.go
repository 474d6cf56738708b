package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/dispatch"
	"github.com/vyrodovalexey/avaroute/internal/middleware"
	"github.com/vyrodovalexey/avaroute/internal/router"
)

const testManifest = `
assets:
  /index.html:
    type: static
    contentType: text/html; charset=utf-8
    digest: d-index
  /404.html:
    type: static
    contentType: text/html; charset=utf-8
    digest: d-404
  /api/hello:
    type: function
    function: hello
`

const testRoutes = `{
  "version": 3,
  "routes": [
    {"src": "^/old$", "status": 308, "headers": {"Location": "/index.html"}},
    {"src": "^/hi$", "dest": "/api/hello"},
    {"handle": "filesystem"},
    {"handle": "error"},
    {"src": "^/.*$", "dest": "/404.html", "status": 404}
  ]
}`

type fixture struct {
	cfg     *config.Config
	calls   *atomic.Int32
	runtime *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	blobs := filepath.Join(dir, "blobs")
	require.NoError(t, os.MkdirAll(blobs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(blobs, "d-index"), []byte("<h1>home</h1>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(blobs, "d-404"), []byte("<h1>not found</h1>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(testManifest), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "routes.json"), []byte(testRoutes), 0o600))

	calls := &atomic.Int32{}
	runtime := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Cache-Control", "public, s-maxage=60")
		_, _ = io.WriteString(w, "hello from "+r.URL.Path)
	}))
	t.Cleanup(runtime.Close)

	cfg := config.DefaultConfig()
	cfg.Server.Listen = "127.0.0.1:0"
	cfg.Admin.Listen = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = config.Duration(5 * time.Second)
	cfg.Routes.Path = filepath.Join(dir, "routes.json")
	cfg.Routes.Watch = false
	cfg.Assets.Manifest = filepath.Join(dir, "manifest.yaml")
	cfg.Assets.Blobs = config.BlobStoreConfig{Type: config.BlobStoreDir, Dir: blobs}
	cfg.Functions.BaseURL = runtime.URL
	cfg.Functions.Timeout = config.Duration(5 * time.Second)

	return &fixture{cfg: cfg, calls: calls, runtime: runtime}
}

func newTestServer(t *testing.T, f *fixture) *Server {
	t.Helper()
	s, err := New(context.Background(), f.cfg, WithVersion("1.2.3", "abc"))
	require.NoError(t, err)
	return s
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServer_Handler(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := newTestServer(t, f)
	h := s.Handler()

	t.Run("static asset", func(t *testing.T) {
		rec := serve(t, h, http.MethodGet, "/index.html")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "<h1>home</h1>", rec.Body.String())
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.NotEmpty(t, rec.Header().Get(middleware.HeaderRequestID))
	})

	t.Run("redirect", func(t *testing.T) {
		rec := serve(t, h, http.MethodGet, "/old")
		assert.Equal(t, http.StatusPermanentRedirect, rec.Code)
		assert.Equal(t, "/index.html", rec.Header().Get("Location"))
	})

	t.Run("not found runs error phase", func(t *testing.T) {
		rec := serve(t, h, http.MethodGet, "/nope")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not found")
	})

	t.Run("inbound request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
		req.Header.Set(middleware.HeaderRequestID, "req-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "req-42", rec.Header().Get(middleware.HeaderRequestID))
	})
}

func TestServer_FunctionCaching(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := newTestServer(t, f)
	h := s.Handler()

	first := serve(t, h, http.MethodGet, "/hi")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "hello from /hello", first.Body.String())
	assert.Equal(t, dispatch.StatusMiss, first.Header().Get(dispatch.HeaderCacheStatus))

	second := serve(t, h, http.MethodGet, "/hi")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "hello from /hello", second.Body.String())
	assert.Equal(t, dispatch.StatusHit, second.Header().Get(dispatch.HeaderCacheStatus))

	assert.Equal(t, int32(1), f.calls.Load())
}

func TestServer_Admin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := newTestServer(t, f)
	admin := s.AdminHandler()

	// Drive a request so the request counters have a series.
	serve(t, s.Handler(), http.MethodGet, "/index.html")

	t.Run("metrics", func(t *testing.T) {
		rec := serve(t, admin, http.MethodGet, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "avaroute_requests_total")
		assert.Contains(t, body, `avaroute_build_info{commit="abc",version="1.2.3"}`)
	})

	t.Run("probes", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, serve(t, admin, http.MethodGet, "/live").Code)
		assert.Equal(t, http.StatusOK, serve(t, admin, http.MethodGet, "/health").Code)
		assert.Equal(t, http.StatusOK, serve(t, admin, http.MethodGet, "/ready").Code)
	})

	t.Run("routes", func(t *testing.T) {
		rec := serve(t, admin, http.MethodGet, "/routes/")
		require.Equal(t, http.StatusOK, rec.Code)

		var view routesView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.False(t, view.LoadedAt.IsZero())
		assert.NotEmpty(t, view.Rules)
		assert.Equal(t, "^/old$", view.Rules[0].Src)
		assert.Equal(t, 308, view.Rules[0].Status)
	})

	t.Run("breakers", func(t *testing.T) {
		rec := serve(t, admin, http.MethodGet, "/breakers")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})

	t.Run("cache", func(t *testing.T) {
		rec := serve(t, admin, http.MethodGet, "/cache")
		require.Equal(t, http.StatusOK, rec.Code)

		var view cacheView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.True(t, view.Enabled)
	})
}

func TestServer_ReloadKeepsPreviousOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := newTestServer(t, f)
	admin := s.AdminHandler()
	before := s.Loader().Router()
	require.NotNil(t, before)

	rec := serve(t, admin, http.MethodPost, "/routes/reload")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reloaded")
	assert.NotSame(t, before, s.Loader().Router())

	require.NoError(t, os.WriteFile(f.cfg.Routes.Path, []byte(`{"routes": [{"src": "(["}]}`), 0o600))
	current := s.Loader().Router()

	rec = serve(t, admin, http.MethodPost, "/routes/reload")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Same(t, current, s.Loader().Router())

	// Still routing with the previous rules.
	assert.Equal(t, http.StatusPermanentRedirect, serve(t, s.Handler(), http.MethodGet, "/old").Code)
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), nil)
	require.Error(t, err)

	f := newFixture(t)
	f.cfg.Routes.Path = filepath.Join(t.TempDir(), "missing.json")
	_, err = New(context.Background(), f.cfg)
	require.Error(t, err)

	f = newFixture(t)
	f.cfg.Assets.Manifest = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(context.Background(), f.cfg)
	require.Error(t, err)
}

func TestServer_StaticOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.cfg.Functions.BaseURL = ""
	s := newTestServer(t, f)

	assert.Equal(t, http.StatusOK, serve(t, s.Handler(), http.MethodGet, "/index.html").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, s.Handler(), http.MethodGet, "/api/hello").Code)
	assert.Zero(t, f.calls.Load())
}

type emptySource struct{}

func (emptySource) Router() *router.Router { return nil }

func TestHandler_NoRouter(t *testing.T) {
	t.Parallel()

	h := NewHandler(emptySource{}, nil, 0, nil)
	rec := serve(t, h, http.MethodGet, "/")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get(middleware.HeaderRetryAfter))
	assert.Equal(t, "route set not loaded\n", rec.Body.String())
}

func TestRouteLoader_ReadyBeforeLoad(t *testing.T) {
	t.Parallel()

	l := NewRouteLoader(config.RoutesConfig{Path: "unused.json"}, router.Hooks{}, nil, nil)
	assert.Nil(t, l.Router())
	assert.True(t, l.LoadedAt().IsZero())
	require.ErrorIs(t, l.Ready(context.Background()), ErrNoRoutes)
}

func TestServer_Lifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := newTestServer(t, f)
	ctx := context.Background()

	assert.Equal(t, StateStopped, s.State())
	require.Error(t, s.Shutdown(ctx))

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, StateRunning, s.State())
	require.Error(t, s.Start(ctx))

	resp, err := http.Get("http://" + s.PublicAddr() + "/index.html")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>home</h1>", string(body))

	resp, err = http.Get("http://" + s.AdminAddr() + "/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	shutdownCtx, cancel := context.WithTimeout(ctx, f.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	require.NoError(t, s.Shutdown(shutdownCtx))
	assert.Equal(t, StateStopped, s.State())

	rec := serve(t, s.AdminHandler(), http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "draining"))
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "unknown", State(42).String())
}
