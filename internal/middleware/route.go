package middleware

import "context"

type routeSinkKey struct{}

func withRouteSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, routeSinkKey{}, sink)
}

// SetRoute reports the route label of the current request to Logging.
// It is a no-op outside the Logging middleware.
func SetRoute(ctx context.Context, route string) {
	if sink, ok := ctx.Value(routeSinkKey{}).(*string); ok {
		*sink = route
	}
}
