package pattern

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type cacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	size      prometheus.Gauge
}

var (
	cacheMetricsInstance *cacheMetrics
	cacheMetricsOnce     sync.Once
)

func getCacheMetrics() *cacheMetrics {
	cacheMetricsOnce.Do(func() {
		cacheMetricsInstance = &cacheMetrics{
			hits: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "pattern",
				Name:      "cache_hits_total",
				Help:      "Total number of compiled pattern cache hits",
			}),
			misses: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "pattern",
				Name:      "cache_misses_total",
				Help:      "Total number of compiled pattern cache misses",
			}),
			evictions: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "pattern",
				Name:      "cache_evictions_total",
				Help:      "Total number of compiled pattern cache evictions",
			}),
			size: promauto.NewGauge(prometheus.GaugeOpts{
				Namespace: "avaroute",
				Subsystem: "pattern",
				Name:      "cache_size",
				Help:      "Current number of compiled patterns in the cache",
			}),
		}
	})
	return cacheMetricsInstance
}

// Collectors returns the pattern cache collectors for registration on a
// custom registry.
func Collectors() []prometheus.Collector {
	m := getCacheMetrics()
	return []prometheus.Collector{m.hits, m.misses, m.evictions, m.size}
}
