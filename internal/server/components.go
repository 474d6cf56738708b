package server

import (
	"context"
	"fmt"

	"github.com/vyrodovalexey/avaroute/internal/assets"
	"github.com/vyrodovalexey/avaroute/internal/cache"
	"github.com/vyrodovalexey/avaroute/internal/circuitbreaker"
	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/dispatch"
	"github.com/vyrodovalexey/avaroute/internal/encoding"
	"github.com/vyrodovalexey/avaroute/internal/functions"
	"github.com/vyrodovalexey/avaroute/internal/health"
	"github.com/vyrodovalexey/avaroute/internal/middleware"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/pattern"
	"github.com/vyrodovalexey/avaroute/internal/proxy"
	"github.com/vyrodovalexey/avaroute/internal/render"
	"github.com/vyrodovalexey/avaroute/internal/retry"
	"github.com/vyrodovalexey/avaroute/internal/router"
)

// components are the collaborators behind the router hooks.
type components struct {
	registry   *assets.Registry
	store      cache.Cache
	breakers   *circuitbreaker.Registry
	background *dispatch.Background
	hooks      router.Hooks
}

// noRuntime stands in for the executor when no function runtime is
// configured; static-only deployments still route.
type noRuntime struct{}

func (noRuntime) Execute(_ context.Context, req *functions.Request) (*router.Response, error) {
	return nil, &functions.InvocationError{Function: req.Function, Cause: functions.ErrNoBaseURL}
}

func buildComponents(ctx context.Context, cfg *config.Config, logger observability.Logger) (*components, error) {
	blobs, err := assets.NewBlobStore(ctx, cfg.Assets.Blobs)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	manifest, err := assets.LoadManifest(cfg.Assets.Manifest)
	if err != nil {
		return nil, err
	}
	registry := assets.NewRegistry(manifest, blobs)

	store, err := cache.New(&cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}

	breakers := circuitbreaker.NewRegistry(cfg.Functions.CircuitBreaker, circuitbreaker.WithLogger(logger))

	var exec dispatch.Executor = noRuntime{}
	if cfg.Functions.BaseURL != "" {
		httpExec, err := functions.NewHTTPExecutor(&cfg.Functions,
			functions.WithExecutorLogger(logger),
			functions.WithBreakers(breakers),
		)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("function executor: %w", err)
		}
		exec = httpExec
	} else {
		logger.Warn("no function runtime configured; function assets will fail")
	}

	var mw router.MiddlewareExecutor
	if cfg.Middleware.BaseURL != "" {
		httpMW, err := functions.NewHTTPMiddleware(&cfg.Middleware,
			functions.WithMiddlewareLogger(logger),
			functions.WithMiddlewareBreakers(breakers),
		)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("middleware executor: %w", err)
		}
		mw = httpMW
	}

	background := dispatch.NewBackground(cfg.Cache.BackgroundTimeout.Duration(), logger)
	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithBackground(background),
	}
	if cfg.Cache.Enabled {
		dispatchOpts = append(dispatchOpts,
			dispatch.WithStore(store, cfg.Cache.ServiceID),
			dispatch.WithStoreTTL(cfg.Cache.TTL.Duration()),
		)
	}
	dispatcher, err := dispatch.New(registry, exec, dispatchOpts...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	responder := render.New(
		render.WithLogger(logger),
		render.WithForwarder(proxy.NewForwarder(proxy.WithLogger(logger))),
	)

	logger.Info("components initialized",
		observability.Int("assets", registry.Len()),
		observability.String("blob_store", cfg.Assets.Blobs.Type),
		observability.Bool("cache", cfg.Cache.Enabled),
		observability.Bool("middleware", mw != nil),
	)

	return &components{
		registry:   registry,
		store:      store,
		breakers:   breakers,
		background: background,
		hooks: router.Hooks{
			FileSystem: registry,
			Middleware: mw,
			Dispatcher: dispatcher,
			Responder:  responder,
		},
	}, nil
}

// registerCollectors exposes every package's collectors on the admin
// registry.
func registerCollectors(m *observability.Metrics) {
	m.MustRegisterCollector(pattern.Collectors()...)
	m.MustRegisterCollector(router.Collectors()...)
	m.MustRegisterCollector(assets.Collectors()...)
	m.MustRegisterCollector(circuitbreaker.Collectors()...)
	m.MustRegisterCollector(proxy.Collectors()...)
	m.MustRegisterCollector(functions.Collectors()...)
	m.MustRegisterCollector(encoding.Collectors()...)
	m.MustRegisterCollector(dispatch.Collectors()...)
	m.MustRegisterCollector(middleware.Collectors()...)
	m.MustRegisterCollector(health.Collectors()...)

	cm := cache.GetMetrics()
	cm.Init()
	cm.MustRegister(m.Registry())
	retry.GetMetrics().MustRegister(m.Registry())
}
