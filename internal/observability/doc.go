// Package observability provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for the routing engine.
//
// Logging is exposed through the Logger interface backed by zap. Request
// and trace identifiers travel in the context and are attached with
// Logger.WithContext.
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	logger.WithContext(ctx).Info("routed", observability.String("phase", "main"))
//
// Metrics are registered on a dedicated registry served by the admin
// listener. Package-level collectors (cache, router, dispatch) are bridged
// into it with MustRegisterCollector.
package observability
