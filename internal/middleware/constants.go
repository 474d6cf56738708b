package middleware

// HTTP header names.
const (
	HeaderContentType   = "Content-Type"
	HeaderRetryAfter    = "Retry-After"
	HeaderRequestID     = "X-Request-Id"
	HeaderXForwardedFor = "X-Forwarded-For"
)

// ContentTypeJSON is the content type of middleware error bodies.
const ContentTypeJSON = "application/json"

// Error bodies written by middleware that answers on its own.
const (
	ErrRateLimitExceeded     = `{"error":{"code":429,"message":"rate limit exceeded"}}`
	ErrInternalServerError   = `{"error":{"code":500,"message":"internal server error"}}`
	ErrRequestEntityTooLarge = `{"error":{"code":413,"message":"request entity too large"}}`
)
