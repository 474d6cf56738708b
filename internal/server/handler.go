package server

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/avaroute/internal/middleware"
	"github.com/vyrodovalexey/avaroute/internal/observability"
	"github.com/vyrodovalexey/avaroute/internal/router"
	"github.com/vyrodovalexey/avaroute/internal/util"
)

// RouterSource yields the router for a request.
type RouterSource interface {
	Router() *router.Router
}

// Handler adapts a router to net/http.
type Handler struct {
	source      RouterSource
	metrics     *observability.Metrics
	maxBodySize int64
	logger      observability.Logger
}

// NewHandler creates the public request handler.
func NewHandler(source RouterSource, metrics *observability.Metrics, maxBodySize int64, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handler{source: source, metrics: metrics, maxBodySize: maxBodySize, logger: logger}
}

// ServeHTTP evaluates r against the current router.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := util.StartTimeFromContext(r.Context())
	if start.IsZero() {
		start = time.Now()
	}
	if h.metrics != nil {
		h.metrics.IncActive()
		defer h.metrics.DecActive()
	}

	rt := h.source.Router()
	if rt == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set(middleware.HeaderRetryAfter, "1")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("route set not loaded\n"))
		h.record(r.Method, "unavailable", http.StatusServiceUnavailable, start, 0)
		return
	}

	mc := router.NewMatchContext(r)
	mc.RequestID = observability.RequestIDFromContext(r.Context())
	mc.SetBodyLimit(h.maxBodySize)

	resp := rt.Route(r.Context(), mc)
	phase := mc.Phase
	if phase == "" {
		phase = "none"
	}
	middleware.SetRoute(r.Context(), phase+"/"+mc.Outcome)

	n, err := resp.Write(w, r.Method)
	if err != nil {
		h.logger.WithContext(r.Context()).Debug("response write interrupted",
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
	}
	h.record(r.Method, phase, resp.Status, start, int(n))
}

func (h *Handler) record(method, phase string, status int, start time.Time, size int) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordRequest(method, phase, status, time.Since(start), size)
}
