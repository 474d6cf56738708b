package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avaroute/internal/observability"
)

// DefaultCheckTimeout bounds a single readiness check.
const DefaultCheckTimeout = 5 * time.Second

// Status is a probe or check status.
type Status string

// Status values.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusDraining  Status = "draining"
)

// HealthResponse is the body of the health probe.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse is the body of the readiness probe.
type ReadinessResponse struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// CheckFunc reports a dependency failure as an error.
type CheckFunc func(ctx context.Context) error

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// CheckOption configures a registered check.
type CheckOption func(*check)

// Critical makes a failing check mark the service unhealthy rather than
// degraded.
func Critical() CheckOption {
	return func(c *check) {
		c.critical = true
	}
}

// Checker aggregates readiness checks.
type Checker struct {
	version   string
	startTime time.Time
	timeout   time.Duration
	logger    observability.Logger
	draining  atomic.Bool

	mu     sync.RWMutex
	checks map[string]*check
}

// Option configures a Checker.
type Option func(*Checker)

// WithLogger sets the checker logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithTimeout sets the per-check timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewChecker creates a checker reporting version.
func NewChecker(version string, opts ...Option) *Checker {
	c := &Checker{
		version:   version,
		startTime: time.Now(),
		timeout:   DefaultCheckTimeout,
		logger:    observability.NopLogger(),
		checks:    make(map[string]*check),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds or replaces a named check.
func (c *Checker) Register(name string, fn CheckFunc, opts ...CheckOption) {
	ch := &check{name: name, fn: fn}
	for _, opt := range opts {
		opt(ch)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = ch
}

// Unregister removes a named check.
func (c *Checker) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// SetDraining marks the service as shutting down. Readiness fails from
// then on so load balancers stop sending traffic.
func (c *Checker) SetDraining(draining bool) {
	c.draining.Store(draining)
}

// Health reports process health.
func (c *Checker) Health() HealthResponse {
	getHealthMetrics().probes.WithLabelValues("health").Inc()
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Readiness runs every check concurrently.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	getHealthMetrics().probes.WithLabelValues("readiness").Inc()

	c.mu.RLock()
	checks := make([]*check, 0, len(c.checks))
	for _, ch := range c.checks {
		checks = append(checks, ch)
	}
	c.mu.RUnlock()
	sort.Slice(checks, func(i, j int) bool { return checks[i].name < checks[j].name })

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, ch := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, ch)
		}()
	}
	wg.Wait()

	resp := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now(),
	}
	for i, ch := range checks {
		r := results[i]
		resp.Checks[ch.name] = r
		switch {
		case r.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case r.Status == StatusDegraded && resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
	if c.draining.Load() {
		resp.Status = StatusDraining
	}
	return resp
}

func (c *Checker) run(ctx context.Context, ch *check) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := ch.fn(ctx)
	elapsed := time.Since(start)

	m := getHealthMetrics()
	m.checkDuration.WithLabelValues(ch.name).Observe(elapsed.Seconds())
	res := CheckResult{Status: StatusHealthy, Duration: elapsed.String()}
	if err == nil {
		m.checkStatus.WithLabelValues(ch.name).Set(1)
		return res
	}

	m.checkStatus.WithLabelValues(ch.name).Set(0)
	res.Error = err.Error()
	res.Status = StatusDegraded
	if ch.critical {
		res.Status = StatusUnhealthy
	}
	c.logger.Warn("readiness check failed",
		observability.String("check", ch.name),
		observability.Bool("critical", ch.critical),
		observability.Error(err),
	)
	return res
}

// HealthHandler serves Health.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, c.Health())
	}
}

// ReadinessHandler serves Readiness; unhealthy and draining answer 503.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := c.Readiness(r.Context())
		status := http.StatusOK
		if resp.Status == StatusUnhealthy || resp.Status == StatusDraining {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, resp)
	}
}

// LivenessHandler answers 200 while the process can serve HTTP.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		getHealthMetrics().probes.WithLabelValues("liveness").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
