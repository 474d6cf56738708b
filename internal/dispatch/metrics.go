package dispatch

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type dispatchMetrics struct {
	cacheStatus        *prometheus.CounterVec
	storeErrors        *prometheus.CounterVec
	backgroundTasks    *prometheus.CounterVec
	backgroundInflight prometheus.Gauge
}

var (
	dispatchMetricsInstance *dispatchMetrics
	dispatchMetricsOnce     sync.Once
)

func getDispatchMetrics() *dispatchMetrics {
	dispatchMetricsOnce.Do(func() {
		dispatchMetricsInstance = &dispatchMetrics{
			cacheStatus: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "dispatch",
					Name:      "responses_total",
					Help:      "Total number of dispatched responses by asset kind and cache status",
				},
				[]string{"kind", "cache_status"},
			),
			storeErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "dispatch",
					Name:      "store_errors_total",
					Help:      "Total number of cache store failures treated as misses",
				},
				[]string{"operation"},
			),
			backgroundTasks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "dispatch",
					Name:      "background_tasks_total",
					Help:      "Total number of background regeneration tasks",
				},
				[]string{"task", "result"},
			),
			backgroundInflight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: "avaroute",
					Subsystem: "dispatch",
					Name:      "background_tasks_inflight",
					Help:      "Number of background tasks currently running",
				},
			),
		}
	})
	return dispatchMetricsInstance
}

// Collectors returns the dispatch collectors.
func Collectors() []prometheus.Collector {
	m := getDispatchMetrics()
	return []prometheus.Collector{m.cacheStatus, m.storeErrors, m.backgroundTasks, m.backgroundInflight}
}
