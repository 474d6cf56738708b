package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vyrodovalexey/avaroute/internal/cache"
	"github.com/vyrodovalexey/avaroute/internal/circuitbreaker"
	"github.com/vyrodovalexey/avaroute/internal/health"
	"github.com/vyrodovalexey/avaroute/internal/middleware"
	"github.com/vyrodovalexey/avaroute/internal/observability"
)

// ruleView is the admin rendering of one rule.
type ruleView struct {
	Index      int    `json:"index"`
	Phase      string `json:"phase"`
	Src        string `json:"src,omitempty"`
	Dest       string `json:"dest,omitempty"`
	Status     int    `json:"status,omitempty"`
	Continue   bool   `json:"continue,omitempty"`
	Check      bool   `json:"check,omitempty"`
	Middleware string `json:"middleware,omitempty"`
}

type routesView struct {
	LoadedAt time.Time      `json:"loadedAt"`
	Phases   map[string]int `json:"phases"`
	Rules    []ruleView     `json:"rules"`
}

// adminDeps is what the admin surface reads from.
type adminDeps struct {
	metrics     *observability.Metrics
	metricsPath string
	health      *health.Checker
	loader      *RouteLoader
	breakers    *circuitbreaker.Registry
	store       cache.Cache
	logger      observability.Logger
}

type cacheView struct {
	Enabled bool    `json:"enabled"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int64   `json:"size"`
	HitRate float64 `json:"hitRate"`
}

// newAdminRouter builds the admin handler.
func newAdminRouter(d adminDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.logger))

	path := d.metricsPath
	if path == "" {
		path = "/metrics"
	}
	r.Method(http.MethodGet, path, d.metrics.Handler())
	r.Get("/health", d.health.HealthHandler())
	r.Get("/ready", d.health.ReadinessHandler())
	r.Get("/live", d.health.LivenessHandler())

	r.Route("/routes", func(r chi.Router) {
		r.Get("/", d.routes)
		r.Post("/reload", d.reload)
	})
	r.Get("/breakers", d.breakerStates)
	r.Get("/cache", d.cacheStats)
	return r
}

func (d adminDeps) routes(w http.ResponseWriter, _ *http.Request) {
	rt := d.loader.Router()
	if rt == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrNoRoutes.Error()})
		return
	}

	rs := rt.Routes()
	view := routesView{
		LoadedAt: d.loader.LoadedAt(),
		Phases:   make(map[string]int),
		Rules:    make([]ruleView, 0, len(rs.Rules())),
	}
	for phase, n := range rs.Summary() {
		view.Phases[phase.String()] = n
	}
	for _, rule := range rs.Rules() {
		view.Rules = append(view.Rules, ruleView{
			Index:      rule.Index,
			Phase:      rule.Phase.String(),
			Src:        rule.Src,
			Dest:       rule.Dest,
			Status:     rule.Status,
			Continue:   rule.Continue,
			Check:      rule.Check,
			Middleware: rule.Middleware,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (d adminDeps) reload(w http.ResponseWriter, r *http.Request) {
	if err := d.loader.Load(r.Context()); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (d adminDeps) breakerStates(w http.ResponseWriter, _ *http.Request) {
	states := make(map[string]string)
	if d.breakers != nil {
		for _, name := range d.breakers.Names() {
			states[name] = d.breakers.State(name).String()
		}
	}
	writeJSON(w, http.StatusOK, states)
}

func (d adminDeps) cacheStats(w http.ResponseWriter, _ *http.Request) {
	sp, ok := d.store.(cache.StatsProvider)
	if !ok {
		writeJSON(w, http.StatusOK, cacheView{})
		return
	}
	st := sp.Stats()
	writeJSON(w, http.StatusOK, cacheView{
		Enabled: true,
		Hits:    st.Hits,
		Misses:  st.Misses,
		Size:    st.Size,
		HitRate: st.HitRate(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
