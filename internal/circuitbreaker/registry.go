package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

// Defaults applied when the configuration leaves a value unset.
const (
	DefaultThreshold = 5
	DefaultTimeout   = 30 * time.Second
)

// Registry lazily creates one breaker per name.
type Registry struct {
	breakers sync.Map
	settings gobreaker.Settings
	enabled  bool
	logger   observability.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for state transitions.
func WithLogger(logger observability.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry from cfg. A nil or disabled config yields a
// registry whose Execute calls straight through.
func NewRegistry(cfg *config.CircuitBreakerConfig, opts ...Option) *Registry {
	r := &Registry{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(r)
	}
	if cfg == nil || !cfg.Enabled {
		return r
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	thresholdU32 := safeIntToUint32(threshold)

	r.enabled = true
	r.settings = gobreaker.Settings{
		MaxRequests: 1,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= thresholdU32
		},
		OnStateChange: r.onStateChange,
	}
	return r
}

func (r *Registry) onStateChange(name string, from, to gobreaker.State) {
	r.logger.Warn("circuit breaker state change",
		observability.String("function", name),
		observability.String("from", from.String()),
		observability.String("to", to.String()),
	)

	m := getMetrics()
	m.transitions.WithLabelValues(name, from.String(), to.String()).Inc()
	m.state.WithLabelValues(name).Set(float64(to))

	_, span := otel.Tracer(tracerName).Start(context.Background(),
		"circuitbreaker.state_change",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.AddEvent("state_change", trace.WithAttributes(
		attribute.String("circuitbreaker.name", name),
		attribute.String("circuitbreaker.from", from.String()),
		attribute.String("circuitbreaker.to", to.String()),
	))
	span.End()
}

func (r *Registry) breaker(name string) *gobreaker.CircuitBreaker {
	if cb, ok := r.breakers.Load(name); ok {
		return cb.(*gobreaker.CircuitBreaker)
	}
	settings := r.settings
	settings.Name = name
	cb, loaded := r.breakers.LoadOrStore(name, gobreaker.NewCircuitBreaker(settings))
	if !loaded {
		r.logger.Debug("created circuit breaker", observability.String("function", name))
	}
	return cb.(*gobreaker.CircuitBreaker)
}

// Execute runs fn under the breaker for name. A rejected call returns an
// error wrapping util.ErrCircuitOpen.
func (r *Registry) Execute(name string, fn func() error) error {
	if !r.enabled {
		return fn()
	}

	_, err := r.breaker(name).Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		getMetrics().rejected.WithLabelValues(name).Inc()
		return &RejectedError{Name: name, Cause: err}
	}
	return err
}

// State returns the state of the breaker for name. Unknown names and
// disabled registries report closed.
func (r *Registry) State(name string) gobreaker.State {
	if !r.enabled {
		return gobreaker.StateClosed
	}
	cb, ok := r.breakers.Load(name)
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.(*gobreaker.CircuitBreaker).State()
}

// Names returns the names of the breakers created so far.
func (r *Registry) Names() []string {
	var names []string
	r.breakers.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// RejectedError is returned when the circuit for Name is open.
type RejectedError struct {
	Name  string
	Cause error
}

func (e *RejectedError) Error() string {
	return "circuit breaker for " + e.Name + " is open: " + e.Cause.Error()
}

func (e *RejectedError) Unwrap() error {
	return e.Cause
}

// Is matches util.ErrCircuitOpen.
func (e *RejectedError) Is(target error) bool {
	return target == util.ErrCircuitOpen
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
