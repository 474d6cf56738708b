package main

import (
	"fmt"

	"github.com/vyrodovalexey/avaroute/internal/config"
	"github.com/vyrodovalexey/avaroute/internal/observability"
)

// loadConfig reads and validates the configuration, applying flag and
// environment overrides.
func loadConfig(g *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, err
	}

	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	cfg.Routes.Watch = getEnvBool("AVAROUTE_WATCH", cfg.Routes.Watch)
	cfg.Tracing.Enabled = getEnvBool("AVAROUTE_TRACING", cfg.Tracing.Enabled)

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg config.LoggingConfig) (observability.Logger, error) {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func initTracer(cfg config.TracingConfig) (*observability.Tracer, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "avaroute"
	}
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  name,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.SamplingRate,
		Enabled:      cfg.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	return tracer, nil
}
