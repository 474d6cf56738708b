package middleware

import (
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/observability"
)

// Per-client limiter housekeeping.
const (
	DefaultClientTTL   = 10 * time.Minute
	MinCleanupInterval = 10 * time.Second
	MaxCleanupInterval = time.Minute
)

type clientEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter is a token bucket limiter, shared or keyed by client address.
type RateLimiter struct {
	global    *rate.Limiter
	perClient bool
	rps       rate.Limit
	burst     int

	mu        sync.Mutex
	clients   map[string]*clientEntry
	clientTTL time.Duration
	stopCh    chan struct{}
	stopped   bool

	ips    *ClientIPExtractor
	logger observability.Logger
	now    func() time.Time
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the limiter logger.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithClientIPExtractor sets how clients are identified.
func WithClientIPExtractor(e *ClientIPExtractor) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.ips = e
	}
}

// WithClientTTL sets how long an idle client keeps its bucket.
func WithClientTTL(ttl time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.clientTTL = ttl
	}
}

// NewRateLimiter creates a limiter allowing rps requests per second with
// the given burst.
func NewRateLimiter(rps, burst int, perClient bool, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		global:    rate.NewLimiter(rate.Limit(rps), burst),
		perClient: perClient,
		rps:       rate.Limit(rps),
		burst:     burst,
		clients:   make(map[string]*clientEntry),
		clientTTL: DefaultClientTTL,
		stopCh:    make(chan struct{}),
		logger:    observability.NopLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rl)
	}
	if rl.ips == nil {
		rl.ips = NewClientIPExtractor(nil)
	}
	return rl
}

// Allow reports whether a request from client may proceed.
func (rl *RateLimiter) Allow(client string) bool {
	if !rl.perClient {
		return rl.global.Allow()
	}

	rl.mu.Lock()
	e, ok := rl.clients[client]
	if !ok {
		e = &clientEntry{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.clients[client] = e
	}
	e.lastAccess = rl.now()
	limiter := e.limiter
	rl.mu.Unlock()

	return limiter.Allow()
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// CleanupOldClients forgets clients idle for longer than maxAge.
func (rl *RateLimiter) CleanupOldClients(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for client, e := range rl.clients {
		if now.Sub(e.lastAccess) > maxAge {
			delete(rl.clients, client)
			removed++
		}
	}
	if removed > 0 {
		rl.logger.Debug("cleaned up idle rate limiter clients",
			observability.Int("removed", removed),
			observability.Int("remaining", len(rl.clients)),
		)
	}
}

// StartAutoCleanup periodically forgets idle clients until Stop.
func (rl *RateLimiter) StartAutoCleanup() {
	rl.mu.Lock()
	stopped := rl.stopped
	rl.mu.Unlock()
	if stopped {
		return
	}

	interval := min(max(rl.clientTTL/2, MinCleanupInterval), MaxCleanupInterval)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.CleanupOldClients(rl.clientTTL)
			case <-rl.stopCh:
				return
			}
		}
	}()
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if !rl.stopped {
		rl.stopped = true
		close(rl.stopCh)
	}
}

// RateLimit returns a middleware that answers 429 once rl is exhausted.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := rl.ips.Extract(r)
			if !rl.Allow(client) {
				getMiddlewareMetrics().rateLimitRejected.Inc()
				rl.logger.WithContext(r.Context()).Warn("rate limit exceeded",
					observability.String("client_ip", client),
					observability.String("path", r.URL.Path),
				)

				w.Header().Set(HeaderContentType, ContentTypeJSON)
				w.Header().Set(HeaderRetryAfter, "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitFromConfig builds the rate limit middleware. It returns a nil
// limiter and a pass-through middleware when limiting is disabled. The
// caller stops the returned limiter on shutdown.
func RateLimitFromConfig(
	cfg *config.RateLimitConfig,
	ips *ClientIPExtractor,
	logger observability.Logger,
) (func(http.Handler) http.Handler, *RateLimiter) {
	if cfg == nil || !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}

	rl := NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, cfg.PerClient,
		WithRateLimiterLogger(logger),
		WithClientIPExtractor(ips),
	)
	if cfg.PerClient {
		rl.StartAutoCleanup()
	}
	return RateLimit(rl), rl
}
