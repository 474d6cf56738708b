package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/health"
	"github.com/vyrodovalexey/avaroute/internal/middleware"
	"github.com/vyrodovalexey/avaroute/internal/observability"
)

// State is the server lifecycle state.
type State int32

// Lifecycle states.
const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Server is the routing service.
type Server struct {
	cfg     *config.Config
	logger  observability.Logger
	tracer  *observability.Tracer
	version string
	commit  string

	metrics    *observability.Metrics
	health     *health.Checker
	loader     *RouteLoader
	comps      *components
	limiter    *middleware.RateLimiter
	handler    http.Handler
	adminRoute http.Handler

	mu         sync.Mutex
	public     *http.Server
	admin      *http.Server
	publicAddr net.Addr
	adminAddr  net.Addr
	watcher    *config.Watcher
	state      atomic.Int32
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithTracer enables inbound span creation.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

// WithVersion sets the reported build version.
func WithVersion(version, commit string) Option {
	return func(s *Server) {
		s.version = version
		s.commit = commit
	}
}

// New builds a server from cfg and loads the initial route set. It fails
// when the route set, asset manifest or stores cannot be initialized.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	s := &Server{
		cfg:     cfg,
		logger:  observability.NopLogger(),
		version: "dev",
		commit:  "unknown",
	}
	for _, opt := range opts {
		opt(s)
	}

	s.metrics = observability.NewMetrics("avaroute")
	s.metrics.SetBuildInfo(s.version, s.commit)
	registerCollectors(s.metrics)

	comps, err := buildComponents(ctx, cfg, s.logger)
	if err != nil {
		return nil, err
	}
	s.comps = comps

	s.loader = NewRouteLoader(cfg.Routes, comps.hooks, s.metrics, s.logger)
	if err := s.loader.Load(ctx); err != nil {
		_ = comps.store.Close()
		return nil, err
	}

	s.health = health.NewChecker(s.version, health.WithLogger(s.logger))
	s.health.Register("routes", s.loader.Ready, health.Critical())
	if cfg.Cache.Enabled {
		s.health.Register("cache", comps.store.Ping)
	}

	ips := middleware.NewClientIPExtractor(cfg.Server.TrustedProxies)
	rateLimit, limiter := middleware.RateLimitFromConfig(cfg.RateLimit, ips, s.logger)
	s.limiter = limiter

	var tracing func(http.Handler) http.Handler
	if s.tracer != nil {
		tracing = observability.TracingMiddleware(s.tracer)
	}
	s.handler = newPublicEngine(middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		tracing,
		middleware.Logging(s.logger, ips),
		rateLimit,
		middleware.BodyLimit(cfg.Server.MaxBodySize, s.logger),
	)(NewHandler(s.loader, s.metrics, cfg.Server.MaxBodySize, s.logger)))

	s.adminRoute = newAdminRouter(adminDeps{
		metrics:     s.metrics,
		metricsPath: cfg.Admin.MetricsPath,
		health:      s.health,
		loader:      s.loader,
		breakers:    comps.breakers,
		store:       comps.store,
		logger:      s.logger,
	})

	s.state.Store(int32(StateStopped))
	return s, nil
}

// Handler returns the public request handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// AdminHandler returns the admin handler.
func (s *Server) AdminHandler() http.Handler {
	return s.adminRoute
}

// Loader returns the route loader.
func (s *Server) Loader() *RouteLoader {
	return s.loader
}

// State returns the lifecycle state.
func (s *Server) State() State {
	return State(s.state.Load())
}

// PublicAddr returns the bound public address once started.
func (s *Server) PublicAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publicAddr == nil {
		return ""
	}
	return s.publicAddr.String()
}

// AdminAddr returns the bound admin address once started.
func (s *Server) AdminAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adminAddr == nil {
		return ""
	}
	return s.adminAddr.String()
}

// Start binds both listeners and begins serving. It returns once the
// listeners are bound.
func (s *Server) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("server is %s", s.State())
	}

	srv := s.cfg.Server
	public := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       srv.ReadTimeout.Duration(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      srv.WriteTimeout.Duration(),
		IdleTimeout:       srv.IdleTimeout.Duration(),
		MaxHeaderBytes:    1 << 20,
	}
	admin := &http.Server{
		Handler:           s.adminRoute,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	var lc net.ListenConfig
	publicLn, err := lc.Listen(ctx, "tcp", srv.Listen)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to listen on %s: %w", srv.Listen, err)
	}
	adminLn, err := lc.Listen(ctx, "tcp", s.cfg.Admin.Listen)
	if err != nil {
		_ = publicLn.Close()
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Admin.Listen, err)
	}

	s.mu.Lock()
	s.public, s.admin = public, admin
	s.publicAddr, s.adminAddr = publicLn.Addr(), adminLn.Addr()
	s.mu.Unlock()

	go s.serve("public", public, publicLn)
	go s.serve("admin", admin, adminLn)

	if s.cfg.Routes.Watch {
		if err := s.startWatcher(ctx); err != nil {
			s.logger.Warn("route file watching disabled", observability.Error(err))
		}
	}

	s.state.Store(int32(StateRunning))
	s.logger.Info("server started",
		observability.String("public", publicLn.Addr().String()),
		observability.String("admin", adminLn.Addr().String()),
	)
	return nil
}

func (s *Server) serve(name string, srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("listener failed",
			observability.String("listener", name),
			observability.Error(err),
		)
	}
}

func (s *Server) startWatcher(ctx context.Context) error {
	w, err := config.NewWatcher(s.cfg.Routes.Path, s.loader.Load,
		config.WithLogger(s.logger),
		config.WithErrorCallback(func(err error) {
			s.logger.Warn("route reload rejected; keeping previous route set", observability.Error(err))
		}),
	)
	if err != nil {
		return err
	}
	if err := w.Start(context.WithoutCancel(ctx)); err != nil {
		_ = w.Stop()
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

// Shutdown drains the service: readiness fails, the public listener stops
// accepting and finishes in-flight requests, pending background
// regeneration completes, then the admin listener and stores close.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("server is %s", s.State())
	}
	s.logger.Info("shutting down")
	s.health.SetDraining(true)

	s.mu.Lock()
	watcher, public, admin := s.watcher, s.public, s.admin
	s.mu.Unlock()

	var errs []error
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("watcher: %w", err))
		}
	}
	if err := public.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("public listener: %w", err))
	}
	if err := s.comps.background.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("background tasks: %w", err))
	}
	if err := admin.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("admin listener: %w", err))
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if err := s.comps.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache store: %w", err))
	}

	s.state.Store(int32(StateStopped))
	s.logger.Info("server stopped")
	return errors.Join(errs...)
}
