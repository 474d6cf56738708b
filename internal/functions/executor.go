package functions

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaroute/internal/circuitbreaker"
	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/retry"
	"github.com/vyrodovalexey/avaroute/internal/router"
)

const tracerName = "avaroute/functions"

// HTTPExecutor runs function assets on an HTTP function runtime.
type HTTPExecutor struct {
	client   *runtimeClient
	breakers *circuitbreaker.Registry
	retry    *retry.Config
	logger   observability.Logger
}

// ExecutorOption configures an HTTPExecutor.
type ExecutorOption func(*HTTPExecutor)

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(logger observability.Logger) ExecutorOption {
	return func(e *HTTPExecutor) {
		e.logger = logger
	}
}

// WithBreakers replaces the circuit breaker registry built from config.
func WithBreakers(r *circuitbreaker.Registry) ExecutorOption {
	return func(e *HTTPExecutor) {
		e.breakers = r
	}
}

// WithTransport sets the HTTP transport used to reach the runtime.
func WithTransport(rt http.RoundTripper) ExecutorOption {
	return func(e *HTTPExecutor) {
		e.client.http.Transport = rt
	}
}

// NewHTTPExecutor creates an executor for the runtime described by cfg.
func NewHTTPExecutor(cfg *config.FunctionsConfig, opts ...ExecutorOption) (*HTTPExecutor, error) {
	client, err := newRuntimeClient(cfg.BaseURL, cfg.Timeout.Duration())
	if err != nil {
		return nil, err
	}

	e := &HTTPExecutor{
		client: client,
		retry:  retry.DefaultConfig(),
		logger: observability.NopLogger(),
	}
	if rc := cfg.Retry; rc != nil {
		e.retry = &retry.Config{
			MaxRetries:     rc.MaxRetries,
			InitialBackoff: rc.InitialBackoff.Duration(),
			MaxBackoff:     rc.MaxBackoff.Duration(),
			JitterFactor:   retry.DefaultJitterFactor,
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.breakers == nil {
		e.breakers = circuitbreaker.NewRegistry(cfg.CircuitBreaker, circuitbreaker.WithLogger(e.logger))
	}
	return e, nil
}

// Execute invokes req.Function. A response with a 5xx status is returned
// as a response, not an error; errors mean no usable response exists.
func (e *HTTPExecutor) Execute(ctx context.Context, req *Request) (*router.Response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "functions.Execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("function.name", req.Function),
			attribute.String("http.method", req.Method),
			attribute.String("function.path", req.Path),
		),
	)
	defer span.End()

	start := time.Now()
	var last *response
	err := e.breakers.Execute(req.Function, func() error {
		resp, err := e.invoke(ctx, req)
		if resp != nil {
			last = resp
		}
		return err
	})

	m := getMetrics()
	m.duration.WithLabelValues("function", req.Function).Observe(time.Since(start).Seconds())

	var se *statusError
	if err != nil && !(errors.As(err, &se) && last != nil) {
		m.invocations.WithLabelValues("function", req.Function, statusClass(0)).Inc()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		e.logger.Warn("function invocation failed",
			observability.String("function", req.Function),
			observability.String("path", req.Path),
			observability.Error(err),
		)
		return nil, &InvocationError{Function: req.Function, Cause: err}
	}

	m.invocations.WithLabelValues("function", req.Function, statusClass(last.status)).Inc()
	span.SetAttributes(attribute.Int("http.status_code", last.status))
	return &router.Response{Status: last.status, Header: last.header, Body: last.body}, nil
}

// invoke calls the runtime, retrying idempotent requests. A 5xx response
// is returned together with a statusError so the breaker counts it.
func (e *HTTPExecutor) invoke(ctx context.Context, req *Request) (*response, error) {
	var last *response
	attempt := func() error {
		resp, err := e.client.do(ctx, req.Function, req)
		if err != nil {
			return err
		}
		last = resp
		if resp.status >= http.StatusInternalServerError {
			return &statusError{status: resp.status}
		}
		return nil
	}

	if !req.Idempotent() {
		err := attempt()
		return last, err
	}

	err := retry.Do(ctx, e.retry, attempt, &retry.Options{
		Operation: "function",
		ShouldRetry: func(err error) bool {
			var se *statusError
			if errors.As(err, &se) {
				return retry.IsRetryableStatus(se.status)
			}
			return retry.IsRetryableNetError(err)
		},
		OnRetry: func(n int, err error, backoff time.Duration) {
			e.logger.Debug("retrying function invocation",
				observability.String("function", req.Function),
				observability.Int("attempt", n),
				observability.Duration("backoff", backoff),
				observability.Error(err),
			)
		},
	})
	return last, err
}
