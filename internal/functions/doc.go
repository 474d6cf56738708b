// Package functions talks to the runtimes that execute function assets and
// middleware.
//
// HTTPExecutor replays the routed request (method, headers, body) against
// <baseURL>/<function> and buffers the response so it can be cached. Each function has its own
// circuit breaker, and idempotent requests are retried on transport errors
// and gateway statuses.
//
// HTTPMiddleware calls a middleware function the same way and translates
// the x-middleware-* response headers into a router.MiddlewareResult.
package functions
