package functions

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaroute/internal/circuitbreaker"
	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/router"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

// Response headers the middleware runtime uses to steer routing.
const (
	HeaderMiddlewareRewrite         = "X-Middleware-Rewrite"
	HeaderMiddlewareNext            = "X-Middleware-Next"
	HeaderMiddlewareOverrideHeaders = "X-Middleware-Override-Headers"
	HeaderMiddlewareRequestPrefix   = "X-Middleware-Request-"

	middlewarePrefix = "X-Middleware-"
)

// HTTPMiddleware runs middleware functions on an HTTP runtime.
type HTTPMiddleware struct {
	client   *runtimeClient
	breakers *circuitbreaker.Registry
	logger   observability.Logger
}

// MiddlewareOption configures an HTTPMiddleware.
type MiddlewareOption func(*HTTPMiddleware)

// WithMiddlewareLogger sets the middleware logger.
func WithMiddlewareLogger(logger observability.Logger) MiddlewareOption {
	return func(m *HTTPMiddleware) {
		m.logger = logger
	}
}

// WithMiddlewareBreakers runs middleware calls under the given breakers.
func WithMiddlewareBreakers(r *circuitbreaker.Registry) MiddlewareOption {
	return func(m *HTTPMiddleware) {
		m.breakers = r
	}
}

// WithMiddlewareTransport sets the HTTP transport used to reach the runtime.
func WithMiddlewareTransport(rt http.RoundTripper) MiddlewareOption {
	return func(m *HTTPMiddleware) {
		m.client.http.Transport = rt
	}
}

// NewHTTPMiddleware creates a middleware executor for cfg.
func NewHTTPMiddleware(cfg *config.MiddlewareConfig, opts ...MiddlewareOption) (*HTTPMiddleware, error) {
	client, err := newRuntimeClient(cfg.BaseURL, cfg.Timeout.Duration())
	if err != nil {
		return nil, err
	}
	m := &HTTPMiddleware{
		client:   client,
		breakers: circuitbreaker.NewRegistry(nil),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Execute runs the middleware named ref against the current request state.
func (m *HTTPMiddleware) Execute(ctx context.Context, ref string, mc *router.MatchContext) (*router.MiddlewareResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "functions.Middleware",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("middleware.name", ref),
			attribute.String("http.path", mc.Path),
		),
	)
	defer span.End()

	req, err := NewRequest(mc, ref, "", "")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var resp *response
	err = m.breakers.Execute("middleware:"+ref, func() error {
		var err error
		resp, err = m.client.do(ctx, ref, req)
		return err
	})

	metrics := getMetrics()
	metrics.duration.WithLabelValues("middleware", ref).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.invocations.WithLabelValues("middleware", ref, statusClass(0)).Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return nil, &InvocationError{Function: ref, Cause: err}
	}
	metrics.invocations.WithLabelValues("middleware", ref, statusClass(resp.status)).Inc()

	result := interpret(resp)
	m.logger.Debug("middleware responded",
		observability.String("middleware", ref),
		observability.Int("status", resp.status),
		observability.Bool("next", result.Continue),
		observability.String("rewrite", result.Dest),
	)
	return result, nil
}

// interpret maps a runtime response onto routing effects.
func interpret(resp *response) *router.MiddlewareResult {
	h := resp.header
	result := &router.MiddlewareResult{
		Headers: make(http.Header),
		Dest:    h.Get(HeaderMiddlewareRewrite),
	}
	next := h.Get(HeaderMiddlewareNext) != ""

	if names := h.Get(HeaderMiddlewareOverrideHeaders); names != "" {
		result.RequestHeaders = make(http.Header)
		for _, name := range strings.Split(names, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			key := http.CanonicalHeaderKey(name)
			result.RequestHeaders[key] = h.Values(HeaderMiddlewareRequestPrefix + name)
		}
	}

	for name, vals := range h {
		if name == "Date" || strings.HasPrefix(http.CanonicalHeaderKey(name), middlewarePrefix) {
			continue
		}
		result.Headers[name] = append([]string(nil), vals...)
	}

	switch {
	case util.IsRedirectStatus(resp.status) && h.Get("Location") != "":
		result.Status = resp.status
	case next || result.Dest != "":
		result.Continue = true
	default:
		inline := router.NewResponse(resp.status, resp.body)
		inline.Header = result.Headers
		result.Response = inline
		result.Headers = nil
	}
	return result
}
