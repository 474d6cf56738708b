package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaroute/internal/assets"
	"github.com/vyrodovalexey/avaroute/internal/cache"
	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/functions"
	"github.com/vyrodovalexey/avaroute/internal/router"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

type fakeAssets struct {
	assets map[string]*assets.Asset
	blobs  map[string]string
}

func (f *fakeAssets) Lookup(path string) (*assets.Asset, bool) {
	a, ok := f.assets[path]
	return a, ok
}

func (f *fakeAssets) Content(_ context.Context, a *assets.Asset) ([]byte, error) {
	data, ok := f.blobs[a.Digest]
	if !ok {
		return nil, assets.ErrBlobNotFound
	}
	return []byte(data), nil
}

type fakeExecutor struct {
	mu           sync.Mutex
	calls        []*functions.Request
	cacheControl string
	status       int
	err          error
}

func (f *fakeExecutor) Execute(_ context.Context, req *functions.Request) (*router.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	resp := router.NewResponse(status, fmt.Appendf(nil, "render %d", len(f.calls)))
	if f.cacheControl != "" {
		resp.Header.Set("Cache-Control", f.cacheControl)
	}
	resp.Header.Set("Content-Type", "text/html")
	return resp, nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExecutor) last() *functions.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	d     *Dispatcher
	exec  *fakeExecutor
	clock *fakeClock
	store cache.Cache
	bg    *Background
}

func newHarness(t *testing.T, store cache.Cache) *harness {
	t.Helper()

	if store == nil {
		var err error
		store, err = cache.New(&config.CacheConfig{Enabled: true, Type: config.CacheTypeMemory}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
	}

	fa := &fakeAssets{
		assets: map[string]*assets.Asset{
			"/index.html": {Path: "/index.html", Type: assets.KindStatic, ContentType: "text/html; charset=utf-8", Digest: "d1"},
			"/raw":        {Path: "/raw", Type: assets.KindStatic, Digest: "d2"},
			"/blog/fallback.html": {
				Path: "/blog/fallback.html", Type: assets.KindStatic, ContentType: "text/html", Digest: "fb",
			},
			"/api/hello": {Path: "/api/hello", Type: assets.KindFunction, Function: "hello"},
			"/blog/post": {
				Path: "/blog/post", Type: assets.KindFunction, Function: "blog",
				Prerender: &assets.PrerenderConfig{
					Expiration:  assets.NeverExpires,
					Group:       "blog",
					BypassToken: "secret",
					Fallback:    "/blog/fallback.html",
					AllowQuery:  []string{"slug"},
				},
			},
			"/about": {
				Path: "/about", Type: assets.KindFunction, Function: "about",
				Prerender: &assets.PrerenderConfig{Expiration: assets.NeverExpires, Group: "blog"},
			},
			"/news": {
				Path: "/news", Type: assets.KindFunction, Function: "news",
				Prerender: &assets.PrerenderConfig{Expiration: assets.Expiration{Seconds: 60}},
			},
		},
		blobs: map[string]string{"d1": "<h1>home</h1>", "d2": "plain text", "fb": "loading..."},
	}

	h := &harness{
		exec:  &fakeExecutor{cacheControl: "public, s-maxage=60, stale-while-revalidate=30"},
		clock: &fakeClock{now: time.UnixMilli(1_700_000_000_000)},
		store: store,
		bg:    NewBackground(time.Second, nil),
	}
	d, err := New(fa, h.exec,
		WithStore(store, "svc"),
		WithBackground(h.bg),
		WithClock(h.clock.Now),
	)
	require.NoError(t, err)
	h.d = d
	return h
}

func (h *harness) dispatch(t *testing.T, method, target, path string, header http.Header) *router.Response {
	t.Helper()
	req := httptest.NewRequest(method, "http://example.com"+target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := h.d.Dispatch(context.Background(), router.NewMatchContext(req), path, "")
	require.NoError(t, err)
	return resp
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.bg.Wait(ctx))
}

func TestDispatch_Static(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	resp := h.dispatch(t, http.MethodGet, "/index.html", "/index.html", nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "<h1>home</h1>", string(resp.Body))
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get(HeaderCacheStatus))

	resp = h.dispatch(t, http.MethodGet, "/raw", "/raw", nil)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Zero(t, h.exec.count())
}

func TestDispatch_MissThenHit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	resp := h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)
	assert.Equal(t, StatusMiss, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, "render 1", string(resp.Body))

	resp = h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)
	assert.Equal(t, StatusHit, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, "render 1", string(resp.Body))
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Equal(t, 1, h.exec.count())
}

func TestDispatch_Freshness(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)

	h.clock.Advance(59 * time.Second)
	resp := h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)
	assert.Equal(t, StatusHit, resp.Header.Get(HeaderCacheStatus))

	h.clock.Advance(2 * time.Second)
	resp = h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)
	assert.Equal(t, StatusStale, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, "render 1", string(resp.Body))

	h.drain(t)
	assert.Equal(t, 2, h.exec.count())

	resp = h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)
	assert.Equal(t, StatusHit, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, "render 2", string(resp.Body))
}

func TestDispatch_PastStaleWindowIsMiss(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)

	h.clock.Advance(95 * time.Second)
	resp := h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)
	assert.Equal(t, StatusMiss, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, "render 2", string(resp.Body))
	assert.Equal(t, 2, h.exec.count())
}

func TestDispatch_NeverExpiresWithFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.exec.cacheControl = ""

	resp := h.dispatch(t, http.MethodGet, "/blog/post?slug=hello", "/blog/post", nil)
	assert.Equal(t, StatusPrerender, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, "loading...", string(resp.Body))

	h.drain(t)
	require.Equal(t, 1, h.exec.count())
	assert.Equal(t, "/blog/post?slug=hello", h.exec.last().URL)

	h.clock.Advance(365 * 24 * time.Hour)
	resp = h.dispatch(t, http.MethodGet, "/blog/post?slug=hello&utm=x", "/blog/post", nil)
	assert.Equal(t, StatusHit, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, "render 1", string(resp.Body))

	// Another slug has its own entry.
	resp = h.dispatch(t, http.MethodGet, "/blog/post?slug=other", "/blog/post", nil)
	assert.Equal(t, StatusPrerender, resp.Header.Get(HeaderCacheStatus))
	h.drain(t)
}

func TestDispatch_NeverExpiresWithoutFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.exec.cacheControl = ""

	resp := h.dispatch(t, http.MethodGet, "/about", "/about", nil)
	assert.Equal(t, StatusMiss, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, 1, h.exec.count())

	h.clock.Advance(time.Hour)
	resp = h.dispatch(t, http.MethodGet, "/about", "/about", nil)
	assert.Equal(t, StatusHit, resp.Header.Get(HeaderCacheStatus))
}

func TestDispatch_Revalidate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.exec.cacheControl = ""

	// Populate /about, which shares the blog group.
	h.dispatch(t, http.MethodGet, "/about", "/about", nil)
	require.Equal(t, 1, h.exec.count())

	// A wrong token is an ordinary request.
	resp := h.dispatch(t, http.MethodGet, "/blog/post?slug=a", "/blog/post",
		http.Header{HeaderRevalidate: {"wrong"}})
	assert.Equal(t, StatusPrerender, resp.Header.Get(HeaderCacheStatus))
	h.drain(t)
	require.Equal(t, 2, h.exec.count())

	h.clock.Advance(time.Second)
	resp = h.dispatch(t, http.MethodGet, "/blog/post?slug=a", "/blog/post",
		http.Header{HeaderRevalidate: {"secret"}})
	assert.Equal(t, StatusRevalidated, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)

	h.drain(t)
	require.Equal(t, 3, h.exec.count())
	assert.Empty(t, h.exec.last().Header.Get(HeaderRevalidate))

	raw, err := h.store.Get(context.Background(), GroupKey("svc", "blog"))
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"refreshTimeMs":%d}`, h.clock.Now().UnixMilli()), string(raw))

	// The regenerated entry is fresh; the older group member is not.
	resp = h.dispatch(t, http.MethodGet, "/blog/post?slug=a", "/blog/post", nil)
	assert.Equal(t, StatusHit, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, "render 3", string(resp.Body))

	resp = h.dispatch(t, http.MethodGet, "/about", "/about", nil)
	assert.Equal(t, StatusMiss, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, 4, h.exec.count())
}

func TestDispatch_NotCached(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		method       string
		cacheControl string
		status       int
	}{
		{name: "private", method: http.MethodGet, cacheControl: "private, s-maxage=60"},
		{name: "no-store", method: http.MethodGet, cacheControl: "no-store, s-maxage=60"},
		{name: "no freshness information", method: http.MethodGet, cacheControl: "public"},
		{name: "server error", method: http.MethodGet, cacheControl: "public, s-maxage=60", status: http.StatusBadGateway},
		{name: "post", method: http.MethodPost, cacheControl: "public, s-maxage=60"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			h.exec.cacheControl = tt.cacheControl
			h.exec.status = tt.status

			for i := 1; i <= 2; i++ {
				resp := h.dispatch(t, tt.method, "/api/hello", "/api/hello", nil)
				assert.Equal(t, StatusMiss, resp.Header.Get(HeaderCacheStatus))
				assert.Equal(t, i, h.exec.count())
			}
		})
	}
}

func TestDispatch_HeadRendersGet(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.dispatch(t, http.MethodHead, "/api/hello", "/api/hello", nil)
	assert.Equal(t, http.MethodGet, h.exec.last().Method)

	resp := h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)
	assert.Equal(t, StatusHit, resp.Header.Get(HeaderCacheStatus))
	assert.Equal(t, "render 1", string(resp.Body))
}

func TestDispatch_WithoutStore(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{cacheControl: "public, s-maxage=60"}
	fa := &fakeAssets{assets: map[string]*assets.Asset{
		"/api/hello": {Path: "/api/hello", Type: assets.KindFunction, Function: "hello"},
	}}
	d, err := New(fa, exec)
	require.NoError(t, err)

	for range 2 {
		mc := router.NewMatchContext(httptest.NewRequest(http.MethodGet, "/api/hello", nil))
		resp, err := d.Dispatch(context.Background(), mc, "/api/hello", "")
		require.NoError(t, err)
		assert.Equal(t, StatusMiss, resp.Header.Get(HeaderCacheStatus))
	}
	assert.Equal(t, 2, exec.count())
}

type failingStore struct{ cache.Cache }

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) ([]byte, error) { return nil, errStoreDown }

func (failingStore) Set(context.Context, string, []byte, time.Duration) error { return errStoreDown }

func TestDispatch_StoreErrorsAreMisses(t *testing.T) {
	t.Parallel()

	h := newHarness(t, failingStore{})
	for i := 1; i <= 2; i++ {
		resp := h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)
		assert.Equal(t, StatusMiss, resp.Header.Get(HeaderCacheStatus))
		assert.Equal(t, "render "+fmt.Sprint(i), string(resp.Body))
	}
}

func TestDispatch_CorruptMetadataIsMiss(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	keys := EntryKeys("svc", "/api/hello", nil, nil, "")
	require.NoError(t, h.store.Set(context.Background(), keys.Metadata, []byte("{not json"), 0))
	require.NoError(t, h.store.Set(context.Background(), keys.Body, []byte("x"), 0))

	resp := h.dispatch(t, http.MethodGet, "/api/hello", "/api/hello", nil)
	assert.Equal(t, StatusMiss, resp.Header.Get(HeaderCacheStatus))
}

func TestDispatch_Errors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	mc := router.NewMatchContext(httptest.NewRequest(http.MethodGet, "/missing", nil))
	_, err := h.d.Dispatch(context.Background(), mc, "/missing", "")
	assert.ErrorIs(t, err, util.ErrNotFound)

	h.exec.err = errors.New("runtime down")
	mc = router.NewMatchContext(httptest.NewRequest(http.MethodGet, "/api/hello", nil))
	_, err = h.d.Dispatch(context.Background(), mc, "/api/hello", "")
	assert.ErrorContains(t, err, "runtime down")
}

func TestDispatch_PassesMatches(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	mc := router.NewMatchContext(httptest.NewRequest(http.MethodPost, "/api/hello", nil))
	_, err := h.d.Dispatch(context.Background(), mc, "/api/hello", "1=x&id=x")
	require.NoError(t, err)
	assert.Equal(t, "1=x&id=x", h.exec.last().Matches)
	assert.Equal(t, "hello", h.exec.last().Function)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, &fakeExecutor{})
	assert.Error(t, err)
	_, err = New(&fakeAssets{}, nil)
	assert.Error(t, err)
}
