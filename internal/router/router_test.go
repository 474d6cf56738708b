package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/pattern"
	"github.com/vyrodovalexey/avaroute/internal/routes"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

type fakeFS struct {
	mu     sync.Mutex
	paths  map[string]bool
	checks []string
}

func newFakeFS(paths ...string) *fakeFS {
	fs := &fakeFS{paths: make(map[string]bool)}
	for _, p := range paths {
		fs.paths[p] = true
	}
	return fs
}

func (f *fakeFS) Exists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, path)
	return f.paths[path]
}

type dispatchCall struct {
	path    string
	query   url.Values
	matches string
	header  http.Header
}

type fakeDispatcher struct {
	calls []dispatchCall
	err   error
	panic bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, mc *MatchContext, path, matches string) (*Response, error) {
	if f.panic {
		panic("boom")
	}
	f.calls = append(f.calls, dispatchCall{path: path, query: mc.Query, matches: matches, header: mc.Header.Clone()})
	if f.err != nil {
		return nil, f.err
	}
	return NewResponse(http.StatusOK, []byte("asset:"+path)), nil
}

type fakeResponder struct {
	failKinds map[string]bool
}

func (f *fakeResponder) Respond(_ context.Context, o Outcome, _ *MatchContext) (*Response, error) {
	if f.failKinds[o.Kind()] {
		return nil, errors.New("render failed")
	}
	switch v := o.(type) {
	case Redirect:
		resp := NewResponse(v.Status, nil)
		resp.Header.Set("Location", v.Location)
		return resp, nil
	case Proxy:
		return NewResponse(http.StatusOK, []byte("proxy:"+v.URL)), nil
	case Synthetic:
		return v.Response, nil
	case Error:
		return NewResponse(v.Status, []byte("error")), nil
	}
	return nil, errors.New("unexpected outcome")
}

type middlewareFunc func(ctx context.Context, ref string, mc *MatchContext) (*MiddlewareResult, error)

func (f middlewareFunc) Execute(ctx context.Context, ref string, mc *MatchContext) (*MiddlewareResult, error) {
	return f(ctx, ref, mc)
}

type harness struct {
	router     *Router
	fs         *fakeFS
	dispatcher *fakeDispatcher
	responder  *fakeResponder
}

func newHarness(t *testing.T, rules []config.Rule, fs *fakeFS, opts ...Option) *harness {
	t.Helper()
	return newHarnessWithMiddleware(t, rules, fs, nil, opts...)
}

func newHarnessWithMiddleware(
	t *testing.T, rules []config.Rule, fs *fakeFS, mw MiddlewareExecutor, opts ...Option,
) *harness {
	t.Helper()

	rs, err := routes.New(rules, pattern.NewCache())
	require.NoError(t, err)

	h := &harness{fs: fs, dispatcher: &fakeDispatcher{}, responder: &fakeResponder{}}
	h.router, err = New(rs, Hooks{
		FileSystem: fs,
		Middleware: mw,
		Dispatcher: h.dispatcher,
		Responder:  h.responder,
	}, opts...)
	require.NoError(t, err)
	return h
}

func (h *harness) do(method, target string, header http.Header) *Response {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	return h.router.Route(context.Background(), NewMatchContext(req))
}

func TestNew_RequiresHooks(t *testing.T) {
	t.Parallel()

	rs, err := routes.New(nil, nil)
	require.NoError(t, err)

	_, err = New(nil, Hooks{})
	assert.Error(t, err)

	_, err = New(rs, Hooks{FileSystem: newFakeFS()})
	assert.Error(t, err)
}

func TestRoute_ContinueAppliesLaterRules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Src: "^/a$", Dest: "/b", Continue: true},
		{Src: "^/b$", Headers: map[string]string{"x": "$0"}},
	}, newFakeFS("/b"))

	resp := h.do(http.MethodGet, "/a", nil)

	require.Len(t, h.dispatcher.calls, 1)
	assert.Equal(t, "/b", h.dispatcher.calls[0].path)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "/b", resp.Header.Get("x"))
}

func TestRoute_ProxySkipsFilesystem(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	h := newHarness(t, []config.Rule{
		{Src: "^/ext$", Dest: "https://example.com/x"},
	}, fs)

	resp := h.do(http.MethodGet, "/ext", nil)

	assert.Equal(t, "proxy:https://example.com/x", string(resp.Body))
	assert.Empty(t, fs.checks)
	assert.Empty(t, h.dispatcher.calls)
}

func TestRoute_AbsoluteDestProxiesEvenWithRedirectStatus(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	h := newHarness(t, []config.Rule{
		{Src: "^/ext$", Dest: "https://example.com/x", Status: 301},
	}, fs)

	resp := h.do(http.MethodGet, "/ext", nil)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Header.Get("Location"))
	assert.Equal(t, "proxy:https://example.com/x", string(resp.Body))
	assert.Empty(t, fs.checks)
	assert.Empty(t, h.dispatcher.calls)
}

func TestRoute_Redirects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rule     config.Rule
		target   string
		status   int
		location string
	}{
		{
			name:     "dest with 3xx",
			rule:     config.Rule{Src: "^/old$", Dest: "/new", Status: 308},
			target:   "/old",
			status:   308,
			location: "/new",
		},
		{
			name: "location header",
			rule: config.Rule{
				Src:     "^/go/(.*)$",
				Headers: map[string]string{"Location": "https://example.com/$1"},
				Status:  301,
			},
			target:   "/go/docs",
			status:   301,
			location: "https://example.com/docs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, []config.Rule{tt.rule}, newFakeFS())
			resp := h.do(http.MethodGet, tt.target, nil)

			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, tt.location, resp.Header.Get("Location"))
		})
	}
}

func TestRoute_LocaleRedirect(t *testing.T) {
	t.Parallel()

	rules := []config.Rule{
		{
			Src:      "^/(?:fr|de)?$",
			Locale:   &config.LocaleConfig{Redirect: map[string]string{"fr": "/fr", "de": "/de"}, Cookie: "NEXT_LOCALE"},
			Continue: true,
		},
	}

	t.Run("accept-language", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, rules, newFakeFS("/fr"))
		resp := h.do(http.MethodGet, "/", http.Header{"Accept-Language": {"fr;q=0.9"}})

		assert.Equal(t, http.StatusTemporaryRedirect, resp.Status)
		assert.Equal(t, "/fr", resp.Header.Get("Location"))
	})

	t.Run("self loop guard", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, rules, newFakeFS("/fr"))
		resp := h.do(http.MethodGet, "/fr", http.Header{"Accept-Language": {"fr;q=0.9"}})

		assert.Equal(t, http.StatusOK, resp.Status)
		require.Len(t, h.dispatcher.calls, 1)
		assert.Equal(t, "/fr", h.dispatcher.calls[0].path)
	})

	t.Run("cookie wins", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, rules, newFakeFS())
		resp := h.do(http.MethodGet, "/", http.Header{
			"Accept-Language": {"FR-fr, en"},
			"Cookie":          {"next_locale=DE"},
		})

		assert.Equal(t, http.StatusTemporaryRedirect, resp.Status)
		assert.Equal(t, "/de", resp.Header.Get("Location"))
	})

	t.Run("unknown locale", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, rules, newFakeFS("/"))
		resp := h.do(http.MethodGet, "/", http.Header{"Accept-Language": {"es"}})

		assert.Equal(t, http.StatusOK, resp.Status)
	})
}

func TestRoute_RewritePhase(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Handle: "filesystem"},
		{Handle: "rewrite"},
		{Src: "^/blog/(?<slug>[^/]+)$", Dest: "/blog/[slug]?slug=$slug", Check: true},
	}, newFakeFS("/blog/[slug]"))

	resp := h.do(http.MethodGet, "/blog/hello?ref=x", nil)

	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, h.dispatcher.calls, 1)
	call := h.dispatcher.calls[0]
	assert.Equal(t, "/blog/[slug]", call.path)
	assert.Equal(t, "hello", call.query.Get("slug"))
	assert.Equal(t, "x", call.query.Get("ref"))
	assert.Equal(t, "1=hello&slug=hello", call.matches)
}

func TestRoute_FilesystemPhase(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Handle: "filesystem"},
		{Src: "^/docs/?$", Dest: "/docs/index.html"},
	}, newFakeFS("/docs/index.html"))

	resp := h.do(http.MethodGet, "/docs", nil)

	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, h.dispatcher.calls, 1)
	assert.Equal(t, "/docs/index.html", h.dispatcher.calls[0].path)
}

func TestRoute_MissPhaseIsRolledBack(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Handle: "miss"},
		{Src: "/.*", Dest: "/nowhere"},
		{Handle: "rewrite"},
		{Src: "^/page$", Dest: "/page.html"},
	}, newFakeFS("/page.html"))

	resp := h.do(http.MethodGet, "/page", nil)

	assert.Equal(t, http.StatusOK, resp.Status)
	require.Len(t, h.dispatcher.calls, 1)
	assert.Equal(t, "/page.html", h.dispatcher.calls[0].path)
}

func TestRoute_ErrorPhase(t *testing.T) {
	t.Parallel()

	rules := []config.Rule{
		{Handle: "miss"},
		{Src: "^/api/.*$", Status: 404},
		{Handle: "error"},
		{Src: "/.*", Dest: "/500", Status: 500},
		{Src: "/.*", Dest: "/404", Status: 404},
	}

	t.Run("miss status renders error page", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, rules, newFakeFS("/404", "/500"))
		resp := h.do(http.MethodGet, "/api/thing", nil)

		assert.Equal(t, http.StatusNotFound, resp.Status)
		assert.Equal(t, "asset:/404", string(resp.Body))
	})

	t.Run("nothing matched", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, rules, newFakeFS("/404"))
		resp := h.do(http.MethodGet, "/missing", nil)

		assert.Equal(t, http.StatusNotFound, resp.Status)
		assert.Equal(t, "asset:/404", string(resp.Body))
	})

	t.Run("no error page", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, nil, newFakeFS())
		resp := h.do(http.MethodGet, "/missing", nil)

		assert.Equal(t, http.StatusNotFound, resp.Status)
		assert.Equal(t, "error", string(resp.Body))
	})

	t.Run("execution failure uses 500 page", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, rules, newFakeFS("/x", "/500"))
		h.dispatcher.err = errors.New("function crashed")
		resp := h.do(http.MethodGet, "/x", nil)

		assert.Equal(t, http.StatusInternalServerError, resp.Status)
	})
}

func TestRoute_ResourcePhase(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Handle: "resource"},
		{Src: "/.*", Dest: "https://origin.example.com$0"},
	}, newFakeFS())

	resp := h.do(http.MethodGet, "/legacy/page", nil)

	assert.Equal(t, "proxy:https://origin.example.com/legacy/page", string(resp.Body))
}

func TestRoute_Headers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Src: "/.*", Headers: map[string]string{"Cache-Control": "s-maxage=1", "x-a": "first"}, Continue: true},
		{Src: "/.*", Headers: map[string]string{"x-a": "second"}, Continue: true},
		{Src: "/.*", Headers: map[string]string{"x-b": "one"}, Continue: true},
		{Src: "/.*", Headers: map[string]string{"x-b": "two"}, Override: true, Continue: true},
		{Handle: "hit"},
		{Src: "/.*", Headers: map[string]string{"Cache-Control": "immutable", "x-hit": "1"}, Override: true, Continue: true},
	}, newFakeFS("/file"))

	resp := h.do(http.MethodGet, "/file", nil)

	assert.Equal(t, "s-maxage=1", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "first", resp.Header.Get("x-a"))
	assert.Equal(t, "two", resp.Header.Get("x-b"))
	assert.Equal(t, "1", resp.Header.Get("x-hit"))
}

func TestRoute_DefaultHeaders(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, newFakeFS("/"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	mc := NewMatchContext(req)
	mc.RequestID = "req-1"
	resp := h.router.Route(context.Background(), mc)

	assert.Equal(t, config.DefaultCacheControl, resp.Header.Get(HeaderCacheControl))
	assert.Equal(t, "req-1", resp.Header.Get(HeaderRequestID))

	resp = h.do(http.MethodGet, "/", nil)
	assert.NotEmpty(t, resp.Header.Get(HeaderRequestID))

	h = newHarness(t, nil, newFakeFS("/"), WithDefaultCacheControl(""))
	resp = h.do(http.MethodGet, "/", nil)
	assert.Empty(t, resp.Header.Get(HeaderCacheControl))
}

func TestRoute_Tokens(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Src: "/.*", Dest: "/sites/$wildcard$0", Has: []config.Condition{{Type: "host", Value: "[a-z]+\\.example\\.com"}}},
		{
			Src:  "^/t$",
			Dest: "/tenants/$tenant",
			Has:  []config.Condition{{Type: "header", Key: "x-tenant", Value: "(?<tenant>[a-z]+)"}},
		},
	}, newFakeFS("/sites/acme/x", "/tenants/globex"), WithWildcard(map[string]string{"acme.example.com": "acme"}))

	req := httptest.NewRequest(http.MethodGet, "http://acme.example.com:8080/x", nil)
	h.router.Route(context.Background(), NewMatchContext(req))
	require.Len(t, h.dispatcher.calls, 1)
	assert.Equal(t, "/sites/acme/x", h.dispatcher.calls[0].path)

	h.do(http.MethodGet, "/t", http.Header{"X-Tenant": {"globex"}})
	require.Len(t, h.dispatcher.calls, 2)
	assert.Equal(t, "/tenants/globex", h.dispatcher.calls[1].path)
}

func TestRoute_Conditions(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Src: "^/$", Dest: "/preview", Has: []config.Condition{{Type: "cookie", Key: "preview"}}},
		{Src: "^/$", Dest: "/beta", Has: []config.Condition{{Type: "query", Key: "beta"}},
			Missing: []config.Condition{{Type: "header", Key: "x-opt-out"}}},
		{Src: "^/$", Dest: "/post", Methods: []string{"POST"}},
	}, newFakeFS("/", "/preview", "/beta", "/post"))

	paths := func() []string {
		out := make([]string, 0, len(h.dispatcher.calls))
		for _, c := range h.dispatcher.calls {
			out = append(out, c.path)
		}
		return out
	}

	h.do(http.MethodGet, "/", http.Header{"Cookie": {"preview=1"}})
	h.do(http.MethodGet, "/?beta", nil)
	h.do(http.MethodGet, "/?beta", http.Header{"X-Opt-Out": {"1"}})
	h.do(http.MethodGet, "/", nil)

	assert.Equal(t, []string{"/preview", "/beta", "/", "/"}, paths())
}

func TestRoute_Middleware(t *testing.T) {
	t.Parallel()

	t.Run("continue with headers", func(t *testing.T) {
		t.Parallel()

		mw := middlewareFunc(func(_ context.Context, ref string, _ *MatchContext) (*MiddlewareResult, error) {
			assert.Equal(t, "_middleware", ref)
			return &MiddlewareResult{
				Continue:       true,
				RequestHeaders: http.Header{"X-From-Mw": {"yes"}},
				Headers:        http.Header{"X-Mw": {"1"}},
			}, nil
		})
		h := newHarnessWithMiddleware(t, []config.Rule{
			{Src: "/.*", MiddlewarePath: "_middleware", Continue: true},
			{Src: "/.*", Dest: "/seen", Has: []config.Condition{{Type: "header", Key: "x-from-mw", Value: "yes"}}},
		}, newFakeFS("/seen"), mw)

		resp := h.do(http.MethodGet, "/", nil)

		require.Len(t, h.dispatcher.calls, 1)
		assert.Equal(t, "/seen", h.dispatcher.calls[0].path)
		assert.Equal(t, "yes", h.dispatcher.calls[0].header.Get("X-From-Mw"))
		assert.Equal(t, "1", resp.Header.Get("X-Mw"))
	})

	t.Run("rewrite", func(t *testing.T) {
		t.Parallel()

		mw := middlewareFunc(func(context.Context, string, *MatchContext) (*MiddlewareResult, error) {
			return &MiddlewareResult{Dest: "/rewritten"}, nil
		})
		h := newHarnessWithMiddleware(t, []config.Rule{
			{Src: "/.*", MiddlewarePath: "mw"},
		}, newFakeFS("/rewritten"), mw)

		h.do(http.MethodGet, "/", nil)

		require.Len(t, h.dispatcher.calls, 1)
		assert.Equal(t, "/rewritten", h.dispatcher.calls[0].path)
	})

	t.Run("inline response", func(t *testing.T) {
		t.Parallel()

		mw := middlewareFunc(func(context.Context, string, *MatchContext) (*MiddlewareResult, error) {
			return &MiddlewareResult{Response: NewResponse(http.StatusTeapot, []byte("short and stout"))}, nil
		})
		h := newHarnessWithMiddleware(t, []config.Rule{
			{Src: "/.*", MiddlewarePath: "mw"},
		}, newFakeFS("/"), mw)

		resp := h.do(http.MethodGet, "/", nil)

		assert.Equal(t, http.StatusTeapot, resp.Status)
		assert.Equal(t, "short and stout", string(resp.Body))
		assert.Empty(t, h.dispatcher.calls)
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()

		mw := middlewareFunc(func(context.Context, string, *MatchContext) (*MiddlewareResult, error) {
			return nil, errors.New("runtime unavailable")
		})
		h := newHarnessWithMiddleware(t, []config.Rule{
			{Src: "/.*", MiddlewarePath: "mw"},
		}, newFakeFS("/"), mw)

		resp := h.do(http.MethodGet, "/", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
	})

	t.Run("panic", func(t *testing.T) {
		t.Parallel()

		mw := middlewareFunc(func(context.Context, string, *MatchContext) (*MiddlewareResult, error) {
			panic("bad middleware")
		})
		h := newHarnessWithMiddleware(t, []config.Rule{
			{Src: "/.*", MiddlewarePath: "mw"},
		}, newFakeFS("/"), mw)

		resp := h.do(http.MethodGet, "/", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
	})

	t.Run("no executor", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, []config.Rule{{Src: "/.*", MiddlewarePath: "mw"}}, newFakeFS("/"))
		resp := h.do(http.MethodGet, "/", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
	})
}

func TestRoute_DepthGuard(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Handle: "rewrite"},
		{Src: "^/l(.*)$", Dest: "/l$1a", Check: true},
	}, newFakeFS(), WithMaxCheckDepth(3))

	resp := h.do(http.MethodGet, "/l", nil)

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.LessOrEqual(t, len(h.fs.checks), 10)
}

func TestRoute_RendererFailures(t *testing.T) {
	t.Parallel()

	t.Run("redirect render failure becomes 500", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, []config.Rule{{Src: "^/old$", Dest: "/new", Status: 308}}, newFakeFS())
		h.responder.failKinds = map[string]bool{"redirect": true}

		resp := h.do(http.MethodGet, "/old", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		assert.Equal(t, "error", string(resp.Body))
	})

	t.Run("error render failure falls back to plain text", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, nil, newFakeFS())
		h.responder.failKinds = map[string]bool{"error": true}

		resp := h.do(http.MethodGet, "/missing", nil)
		assert.Equal(t, http.StatusNotFound, resp.Status)
		assert.Equal(t, "Not Found\n", string(resp.Body))
	})

	t.Run("dispatcher panic", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, nil, newFakeFS("/"))
		h.dispatcher.panic = true

		resp := h.do(http.MethodGet, "/", nil)
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
	})
}

func TestRoute_StatusOverride(t *testing.T) {
	t.Parallel()

	h := newHarness(t, []config.Rule{
		{Src: "^/gone$", Dest: "/gone.html", Status: 200},
	}, newFakeFS("/gone.html"))

	resp := h.do(http.MethodGet, "/gone", nil)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "asset:/gone.html", string(resp.Body))
}

func TestCheckStructure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		phase routes.Phase
		rule  routes.Rule
		bad   bool
	}{
		{name: "hit with dest", phase: routes.PhaseHit, rule: routes.Rule{Dest: "/x", Continue: true}, bad: true},
		{name: "hit without continue", phase: routes.PhaseHit, rule: routes.Rule{}, bad: true},
		{name: "hit headers", phase: routes.PhaseHit, rule: routes.Rule{Continue: true}},
		{name: "error with check", phase: routes.PhaseError, rule: routes.Rule{Check: true}, bad: true},
		{name: "middleware in main", phase: routes.PhaseMain, rule: routes.Rule{Middleware: "mw"}, bad: true},
		{name: "middleware in null", phase: routes.PhaseNull, rule: routes.Rule{Middleware: "mw"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := checkStructure(tt.phase, &tt.rule)
			if tt.bad {
				require.Error(t, err)
				assert.True(t, util.IsStructuralError(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}
