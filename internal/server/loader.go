package server

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/pattern"
	"github.com/vyrodovalexey/avaroute/internal/router"
	"github.com/vyrodovalexey/avaroute/internal/routes"
)

// ErrNoRoutes is returned before the first successful load.
var ErrNoRoutes = errors.New("no route set loaded")

// RouteLoader builds routers from the routing file and holds the current
// one.
type RouteLoader struct {
	cfg      config.RoutesConfig
	hooks    router.Hooks
	patterns *pattern.Cache
	metrics  *observability.Metrics
	logger   observability.Logger

	current  atomic.Pointer[router.Router]
	loadedAt atomic.Int64
}

// NewRouteLoader creates a loader. Nothing is read until Load.
func NewRouteLoader(
	cfg config.RoutesConfig,
	hooks router.Hooks,
	metrics *observability.Metrics,
	logger observability.Logger,
) *RouteLoader {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RouteLoader{
		cfg:      cfg,
		hooks:    hooks,
		patterns: pattern.NewCache(),
		metrics:  metrics,
		logger:   logger,
	}
}

// Load reads the routing file and swaps in a new router. On failure the
// previous router stays in effect.
func (l *RouteLoader) Load(ctx context.Context) error {
	rt, err := l.build()
	if l.metrics != nil {
		l.metrics.RecordReload(err == nil)
	}
	if err != nil {
		l.logger.WithContext(ctx).Error("route set load failed",
			observability.String("path", l.cfg.Path),
			observability.Error(err),
		)
		return err
	}

	l.current.Store(rt)
	l.loadedAt.Store(time.Now().UnixMilli())

	fields := []observability.Field{observability.String("path", l.cfg.Path)}
	for phase, n := range rt.Routes().Summary() {
		fields = append(fields, observability.Int("rules."+phase.String(), n))
	}
	l.logger.WithContext(ctx).Info("route set loaded", fields...)
	return nil
}

func (l *RouteLoader) build() (*router.Router, error) {
	rf, err := config.LoadRouteFile(l.cfg.Path)
	if err != nil {
		return nil, err
	}
	rs, err := routes.New(rf.Routes, l.patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid route set: %w", err)
	}
	return router.New(rs, l.hooks,
		router.WithLogger(l.logger),
		router.WithWildcard(rf.WildcardMap(l.cfg.Wildcard)),
		router.WithDefaultCacheControl(l.cfg.DefaultCacheControl),
		router.WithMaxCheckDepth(l.cfg.MaxCheckDepth),
	)
}

// Router returns the current router, or nil before the first load.
func (l *RouteLoader) Router() *router.Router {
	return l.current.Load()
}

// LoadedAt returns when the current router was loaded.
func (l *RouteLoader) LoadedAt() time.Time {
	ms := l.loadedAt.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Ready reports whether a router is loaded. It is a readiness check.
func (l *RouteLoader) Ready(context.Context) error {
	if l.Router() == nil {
		return ErrNoRoutes
	}
	return nil
}
