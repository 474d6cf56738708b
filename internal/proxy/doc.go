// Package proxy forwards requests to absolute upstream URLs.
//
// It serves the router's proxy outcomes: the request described by the
// MatchContext is sent to the destination with hop-by-hop headers removed
// and X-Forwarded-* headers set, and the upstream response is streamed back.
//
// # Features
//
//   - Hop-by-hop header removal per RFC 7230, on both legs
//   - Query propagation when the destination carries none
//   - Structured error types for upstream failures
//   - Upstream latency and error metrics
//
// # Usage
//
//	fwd := proxy.NewForwarder(
//	    proxy.WithLogger(logger),
//	    proxy.WithTimeout(30*time.Second),
//	)
//	resp, err := fwd.Forward(ctx, "https://api.example.com/v1", mc)
package proxy
