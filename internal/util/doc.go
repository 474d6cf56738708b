// Package util provides shared helpers for the routing engine.
//
// # Error Types
//
// Structured error types for consistent error handling:
//
//   - ConfigError: configuration loading problems
//   - ValidationError: a rule set that cannot be constructed
//   - StructuralError: a malformed rule set detected while routing
//   - ExecutionError: middleware, function or rendering failures
//
// # Context Helpers
//
//	ctx = util.ContextWithStartTime(ctx, time.Now())
//	start := util.StartTimeFromContext(ctx)
//
// # HTTP Utilities
//
//	w := util.NewStatusCapturingResponseWriter(responseWriter)
//	handler.ServeHTTP(w, r)
//	statusCode := w.StatusCode
package util
