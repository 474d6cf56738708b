package router

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type routerMetrics struct {
	outcomes         *prometheus.CounterVec
	evaluation       prometheus.Histogram
	structuralErrors prometheus.Counter
	executionErrors  *prometheus.CounterVec
}

var (
	routerMetricsInstance *routerMetrics
	routerMetricsOnce     sync.Once
)

func getRouterMetrics() *routerMetrics {
	routerMetricsOnce.Do(func() {
		routerMetricsInstance = &routerMetrics{
			outcomes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "router",
					Name:      "outcomes_total",
					Help:      "Total number of routed requests by deciding phase and outcome",
				},
				[]string{"phase", "outcome"},
			),
			evaluation: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "avaroute",
					Subsystem: "router",
					Name:      "evaluation_duration_seconds",
					Help:      "Time spent routing a request, including dispatch",
					Buckets:   prometheus.DefBuckets,
				},
			),
			structuralErrors: promauto.NewCounter(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "router",
					Name:      "structural_errors_total",
					Help:      "Total number of requests aborted by a malformed route set",
				},
			),
			executionErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "router",
					Name:      "execution_errors_total",
					Help:      "Total number of hook failures converted to 500 responses",
				},
				[]string{"hook"},
			),
		}
	})
	return routerMetricsInstance
}

// Collectors returns the router collectors for registration on a custom
// registry.
func Collectors() []prometheus.Collector {
	m := getRouterMetrics()
	return []prometheus.Collector{m.outcomes, m.evaluation, m.structuralErrors, m.executionErrors}
}
