package dispatch

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vyrodovalexey/avaroute/internal/assets"
	"github.com/vyrodovalexey/avaroute/internal/cache"
	"github.com/vyrodovalexey/avaroute/internal/cachecontrol"
	"github.com/vyrodovalexey/avaroute/internal/functions"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/router"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

const tracerName = "avaroute/dispatch"

// Headers owned by the dispatch layer.
const (
	HeaderCacheStatus = "X-Cache-Status"
	HeaderRevalidate  = "X-Prerender-Revalidate"
)

// Cache status tags.
const (
	StatusHit         = "HIT"
	StatusStale       = "STALE"
	StatusMiss        = "MISS"
	StatusPrerender   = "PRERENDER"
	StatusRevalidated = "REVALIDATED"
)

// Executor runs function assets.
type Executor interface {
	Execute(ctx context.Context, req *functions.Request) (*router.Response, error)
}

// Assets resolves paths to assets and reads static content.
type Assets interface {
	Lookup(path string) (*assets.Asset, bool)
	Content(ctx context.Context, a *assets.Asset) ([]byte, error)
}

// Dispatcher serves resolved asset paths. It implements router.Dispatcher.
type Dispatcher struct {
	assets     Assets
	executor   Executor
	store      cache.Cache
	background *Background
	serviceID  string
	storeTTL   time.Duration
	logger     observability.Logger
	now        func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithStore enables response caching in store, namespaced by serviceID.
func WithStore(store cache.Cache, serviceID string) Option {
	return func(d *Dispatcher) {
		d.store = store
		d.serviceID = serviceID
	}
}

// WithStoreTTL sets the store-level TTL of written entries. Zero uses the
// store default.
func WithStoreTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) {
		d.storeTTL = ttl
	}
}

// WithBackground sets the task group used for regeneration.
func WithBackground(b *Background) Option {
	return func(d *Dispatcher) {
		d.background = b
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New creates a dispatcher.
func New(a Assets, exec Executor, opts ...Option) (*Dispatcher, error) {
	if a == nil {
		return nil, errors.New("dispatch: assets are required")
	}
	if exec == nil {
		return nil, errors.New("dispatch: function executor is required")
	}

	d := &Dispatcher{
		assets:   a,
		executor: exec,
		logger:   observability.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.background == nil {
		d.background = NewBackground(DefaultBackgroundTimeout, d.logger)
	}
	return d, nil
}

// Dispatch serves the asset at path.
func (d *Dispatcher) Dispatch(ctx context.Context, mc *router.MatchContext, path, matches string) (*router.Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "dispatch.Serve")
	defer span.End()
	span.SetAttributes(attribute.String("asset.path", path))

	a, ok := d.assets.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", path, util.ErrNotFound)
	}

	var (
		resp *router.Response
		err  error
	)
	if a.IsFunction() {
		span.SetAttributes(attribute.String("asset.function", a.Function))
		var req *functions.Request
		req, err = functions.NewRequest(mc, a.Function, path, matches)
		if err == nil {
			resp, err = d.serveFunction(ctx, a, req, mc.Query)
		}
	} else {
		resp, err = d.serveStatic(ctx, a)
		if err == nil {
			getDispatchMetrics().cacheStatus.WithLabelValues("static", "").Inc()
		}
	}

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, err
	}
	if tag := resp.Header.Get(HeaderCacheStatus); tag != "" {
		span.SetAttributes(attribute.String("cache.status", tag))
	}
	return resp, nil
}

func (d *Dispatcher) serveStatic(ctx context.Context, a *assets.Asset) (*router.Response, error) {
	data, err := d.assets.Content(ctx, a)
	if err != nil {
		return nil, err
	}
	resp := router.NewResponse(http.StatusOK, data)
	contentType := a.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	resp.Header.Set("Content-Type", contentType)
	return resp, nil
}

func (d *Dispatcher) serveFunction(
	ctx context.Context,
	a *assets.Asset,
	req *functions.Request,
	query url.Values,
) (*router.Response, error) {
	if d.store == nil || !cacheableMethod(req.Method) {
		resp, err := d.executor.Execute(ctx, req)
		if err != nil {
			return nil, err
		}
		return d.tag(resp, StatusMiss), nil
	}

	var (
		allow []string
		group string
	)
	if p := a.Prerender; p != nil {
		allow, group = p.AllowQuery, p.Group
	}
	keys := EntryKeys(d.serviceID, req.Path, query, allow, group)

	// Cached bodies are shared by GET and HEAD, so always render the GET.
	req.Method = http.MethodGet

	if d.isRevalidation(a, req) {
		return d.revalidate(ctx, a, req, keys), nil
	}

	log := d.logger.WithContext(ctx)
	if e := d.lookup(ctx, keys); e != nil {
		switch Classify(e.meta, expirationOf(a), e.group, d.now()) {
		case Fresh:
			return d.tag(e.response(), StatusHit), nil
		case Stale:
			d.refresh(ctx, "stale_refresh", a, req, keys)
			return d.tag(e.response(), StatusStale), nil
		default:
			log.Debug("cached entry expired", observability.String("key", keys.Metadata))
		}
	}

	if p := a.Prerender; p != nil && p.Fallback != "" {
		if fb, ok := d.assets.Lookup(p.Fallback); ok {
			resp, err := d.serveStatic(ctx, fb)
			if err == nil {
				d.refresh(ctx, "fallback_regenerate", a, req, keys)
				return d.tag(resp, StatusPrerender), nil
			}
			log.Warn("prerender fallback unavailable",
				observability.String("fallback", p.Fallback),
				observability.Error(err),
			)
		}
	}

	resp, err := d.regenerate(ctx, a, req, keys)
	if err != nil {
		return nil, err
	}
	return d.tag(resp, StatusMiss), nil
}

func (d *Dispatcher) isRevalidation(a *assets.Asset, req *functions.Request) bool {
	if a.Prerender == nil {
		return false
	}
	vals := req.Header.Values(HeaderRevalidate)
	if len(vals) == 0 {
		return false
	}
	token := a.Prerender.BypassToken
	return token == "" || subtle.ConstantTimeCompare([]byte(vals[0]), []byte(token)) == 1
}

// revalidate schedules a group refresh and a re-execution and answers
// without waiting for either.
func (d *Dispatcher) revalidate(ctx context.Context, a *assets.Asset, req *functions.Request, keys Keys) *router.Response {
	refreshMs := d.now().UnixMilli()
	if keys.Group != "" {
		d.background.Go(ctx, "group_refresh", func(ctx context.Context) error {
			return d.writeGroup(ctx, keys.Group, refreshMs)
		})
	}

	regen := req.Clone()
	regen.Header.Del(HeaderRevalidate)
	d.refresh(ctx, "revalidate", a, regen, keys)

	d.logger.WithContext(ctx).Info("on-demand revalidation",
		observability.String("path", req.Path),
		observability.String("group", a.Prerender.Group),
	)
	return d.tag(router.NewResponse(http.StatusOK, nil), StatusRevalidated)
}

// refresh re-executes the function in the background.
func (d *Dispatcher) refresh(ctx context.Context, task string, a *assets.Asset, req *functions.Request, keys Keys) {
	regen := req.Clone()
	d.background.Go(ctx, task, func(ctx context.Context) error {
		_, err := d.regenerate(ctx, a, regen, keys)
		return err
	})
}

// regenerate executes the function and stores a cacheable result.
func (d *Dispatcher) regenerate(ctx context.Context, a *assets.Asset, req *functions.Request, keys Keys) (*router.Response, error) {
	resp, err := d.executor.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}

	cc := cachecontrol.Parse(resp.Header.Get("Cache-Control"), cachecontrol.WithLogger(d.logger))
	if !d.cacheable(a, req, resp, cc) {
		return resp, nil
	}

	meta := &Metadata{
		Status:               resp.Status,
		Headers:              resp.Header.Clone(),
		CreateTimeMs:         d.now().UnixMilli(),
		SMaxAge:              cc.SMaxAge,
		StaleWhileRevalidate: cc.StaleWhileRevalidate,
	}
	d.writeEntry(ctx, keys, meta, resp.Body)
	return resp, nil
}

// cacheable reports whether resp may be stored. Entries that could never
// be served fresh or stale are skipped.
func (d *Dispatcher) cacheable(a *assets.Asset, req *functions.Request, resp *router.Response, cc cachecontrol.Directives) bool {
	if !cacheableMethod(req.Method) || !cc.Public || resp.Stream != nil {
		return false
	}
	if resp.Status >= http.StatusInternalServerError || resp.Status == 0 {
		return false
	}
	return a.Prerender != nil || cc.SMaxAge != nil || cc.StaleWhileRevalidate != nil
}

func (d *Dispatcher) tag(resp *router.Response, status string) *router.Response {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(HeaderCacheStatus, status)
	getDispatchMetrics().cacheStatus.WithLabelValues("function", status).Inc()
	return resp
}
