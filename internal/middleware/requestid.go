package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avaroute/internal/observability"
)

// maxRequestIDLength bounds an inbound request ID before it is trusted.
const maxRequestIDLength = 128

// RequestID returns a middleware that keeps a well-formed inbound
// X-Request-Id or assigns a new UUID. The ID is set on the request, the
// response and the context logger fields.
func RequestID() func(http.Handler) http.Handler {
	return RequestIDWithGenerator(func() string { return uuid.New().String() })
}

// RequestIDWithGenerator is RequestID with a custom ID source.
func RequestIDWithGenerator(generate func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(HeaderRequestID)
			if !validRequestID(id) {
				id = generate()
				r.Header.Set(HeaderRequestID, id)
			}

			r = r.WithContext(observability.ContextWithRequestID(r.Context(), id))
			w.Header().Set(HeaderRequestID, id)

			next.ServeHTTP(w, r)
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
