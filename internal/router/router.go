package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/routes"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

// Header names set on every response.
const (
	HeaderRequestID    = "X-Request-Id"
	HeaderCacheControl = "Cache-Control"
)

// DefaultMaxCheckDepth bounds nested filesystem checks per request.
const DefaultMaxCheckDepth = 50

const tracerName = "avaroute/router"

// Router evaluates a RouteSet. It is immutable and safe for concurrent use.
type Router struct {
	routes              *routes.RouteSet
	hooks               Hooks
	logger              observability.Logger
	wildcard            map[string]string
	defaultCacheControl string
	maxDepth            int
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithWildcard sets the host to $wildcard mapping.
func WithWildcard(wildcard map[string]string) Option {
	return func(r *Router) {
		r.wildcard = wildcard
	}
}

// WithDefaultCacheControl sets the Cache-Control value used when neither a
// rule nor the served response provides one. Empty disables it.
func WithDefaultCacheControl(value string) Option {
	return func(r *Router) {
		r.defaultCacheControl = value
	}
}

// WithMaxCheckDepth bounds nested filesystem checks.
func WithMaxCheckDepth(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxDepth = n
		}
	}
}

// New creates a router. FileSystem, Dispatcher and Responder are required.
func New(rs *routes.RouteSet, hooks Hooks, opts ...Option) (*Router, error) {
	if rs == nil {
		return nil, errors.New("route set is required")
	}
	if hooks.FileSystem == nil || hooks.Dispatcher == nil || hooks.Responder == nil {
		return nil, errors.New("filesystem, dispatcher and responder hooks are required")
	}

	r := &Router{
		routes:              rs,
		hooks:               hooks,
		logger:              observability.NopLogger(),
		defaultCacheControl: config.DefaultCacheControl,
		maxDepth:            DefaultMaxCheckDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Routes returns the route set being evaluated.
func (r *Router) Routes() *routes.RouteSet {
	return r.routes
}

// evaluation is the bookkeeping for one Route call.
type evaluation struct {
	mc        *MatchContext
	logger    observability.Logger
	depth     int
	matches   string
	errStatus int
	current   routes.Phase

	phase routes.Phase
	kind  string
}

func (e *evaluation) decide(phase routes.Phase, kind string) {
	e.phase = phase
	e.kind = kind
}

// halt stops top-level evaluation; the error phase renders status.
type halt struct {
	status int
	err    error
}

func (h *halt) Error() string {
	if h.err == nil {
		return fmt.Sprintf("routing halted with status %d", h.status)
	}
	return fmt.Sprintf("routing halted with status %d: %v", h.status, h.err)
}

func (h *halt) Unwrap() error {
	return h.err
}

// Route evaluates mc and always returns a response.
func (r *Router) Route(ctx context.Context, mc *MatchContext) *Response {
	start := time.Now()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "router.Route",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("http.request.method", mc.Method),
			attribute.String("url.path", mc.Path),
		),
	)
	defer span.End()

	if mc.RequestID == "" {
		mc.RequestID = uuid.NewString()
	}

	ev := &evaluation{
		mc:     mc,
		logger: r.logger.WithContext(ctx).With(observability.String("request_id", mc.RequestID)),
		kind:   "none",
	}

	resp := r.route(ctx, ev)
	r.finish(resp, ev)
	mc.Phase, mc.Outcome = string(ev.phase), ev.kind

	m := getRouterMetrics()
	m.outcomes.WithLabelValues(string(ev.phase), ev.kind).Inc()
	m.evaluation.Observe(time.Since(start).Seconds())

	span.SetAttributes(
		attribute.String("route.phase", string(ev.phase)),
		attribute.String("route.outcome", ev.kind),
		attribute.Int("http.response.status_code", resp.Status),
	)

	return resp
}

func (r *Router) route(ctx context.Context, ev *evaluation) *Response {
	mc := ev.mc
	initial := mc.Snapshot()

	status := http.StatusNotFound
	var cause error

	for _, phase := range routes.TopLevel {
		mc.Restore(initial)
		ev.depth = 0

		resp, err := r.runPhase(ctx, ev, phase)
		if err == nil {
			if resp != nil {
				return resp
			}
			continue
		}
		if util.IsStructuralError(err) {
			return r.abort(ctx, ev, err)
		}
		status, cause = haltStatus(err)
		break
	}

	return r.fail(ctx, ev, status, cause)
}

func (r *Router) runPhase(ctx context.Context, ev *evaluation, phase routes.Phase) (*Response, error) {
	res, err := r.evaluate(ctx, ev, phase)
	if err != nil {
		return nil, err
	}
	return r.apply(ctx, ev, res)
}

// fail runs the error phase once and renders status when it does not
// produce a response.
func (r *Router) fail(ctx context.Context, ev *evaluation, status int, cause error) *Response {
	if cause != nil {
		ev.logger.Warn("routing failed",
			observability.Int("status", status),
			observability.Error(cause))
	}
	ev.errStatus = status

	res, err := r.evaluate(ctx, ev, routes.PhaseError)
	if err == nil && res.Matched() {
		var resp *Response
		resp, err = r.applyErrorPhase(ctx, ev, res, status)
		if err == nil && resp != nil {
			return resp
		}
	}
	if err != nil {
		if util.IsStructuralError(err) {
			return r.abort(ctx, ev, err)
		}
		ev.logger.Error("error phase failed", observability.Error(err))
	}

	ev.decide(routes.PhaseError, Error{}.Kind())
	return r.respondError(ctx, ev, status, cause)
}

// abort handles a malformed route set. The error phase is not consulted.
func (r *Router) abort(ctx context.Context, ev *evaluation, err error) *Response {
	getRouterMetrics().structuralErrors.Inc()
	ev.logger.Error("route set is malformed", observability.Error(err))
	ev.decide(ev.current, "structural")
	return r.respondError(ctx, ev, http.StatusInternalServerError, err)
}

func (r *Router) respondError(ctx context.Context, ev *evaluation, status int, cause error) *Response {
	resp, err := r.respond(ctx, ev, Error{Status: status, Err: cause})
	if err != nil {
		ev.logger.Error("failed to render error response", observability.Error(err))
		return plainError(status)
	}
	return resp
}

// finish applies rule headers, the default Cache-Control and the request
// id.
func (r *Router) finish(resp *Response, ev *evaluation) {
	mc := ev.mc
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	for name, vals := range mc.ResponseHeader() {
		resp.Header[name] = append([]string(nil), vals...)
	}
	if r.defaultCacheControl != "" && resp.Header.Get(HeaderCacheControl) == "" {
		resp.Header.Set(HeaderCacheControl, r.defaultCacheControl)
	}
	resp.Header.Set(HeaderRequestID, mc.RequestID)

	if ev.kind == (Dest{}).Kind() && mc.Status != 0 {
		resp.Status = mc.Status
	}
	if resp.Status == 0 {
		resp.Status = http.StatusOK
	}
}

func haltStatus(err error) (int, error) {
	var h *halt
	if errors.As(err, &h) {
		return h.status, h.err
	}
	return http.StatusInternalServerError, err
}

func plainError(status int) *Response {
	resp := NewResponse(status, []byte(http.StatusText(status)+"\n"))
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	return resp
}
