// Package middleware provides the inbound HTTP middleware that wraps the
// routing handler.
//
//   - RequestID: propagates or assigns X-Request-Id
//   - Recovery: turns handler panics into 500 responses
//   - Logging: one structured line per request
//   - RateLimit: token bucket limiting, globally or per client
//   - BodyLimit: rejects oversized request bodies
//
// Chain composes them in the order the server uses:
//
//	handler := middleware.Chain(
//	    middleware.Recovery(logger),
//	    middleware.RequestID(),
//	    middleware.Logging(logger, ips),
//	)(router)
package middleware

import "net/http"

// Chain composes middlewares so that the first one is outermost.
func Chain(mws ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			if mws[i] != nil {
				h = mws[i](h)
			}
		}
		return h
	}
}
