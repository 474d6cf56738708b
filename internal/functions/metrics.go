package functions

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

var (
	metricsInstance *metrics
	metricsOnce     sync.Once
)

func getMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInstance = &metrics{
			invocations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "functions",
					Name:      "invocations_total",
					Help:      "Total number of function and middleware invocations",
				},
				[]string{"kind", "function", "status_class"},
			),
			duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "avaroute",
					Subsystem: "functions",
					Name:      "invocation_duration_seconds",
					Help:      "Duration of function and middleware invocations",
					Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
				},
				[]string{"kind", "function"},
			),
		}
	})
	return metricsInstance
}

func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Collectors returns the function runtime collectors.
func Collectors() []prometheus.Collector {
	m := getMetrics()
	return []prometheus.Collector{m.invocations, m.duration}
}
