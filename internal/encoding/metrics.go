package encoding

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	negotiations *prometheus.CounterVec
}

var (
	metricsInstance *metrics
	metricsOnce     sync.Once
)

func getMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInstance = &metrics{
			negotiations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "encoding",
					Name:      "negotiations_total",
					Help:      "Total number of content type negotiations",
				},
				[]string{"content_type", "result"},
			),
		}
	})
	return metricsInstance
}

// Collectors returns the encoding collectors.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{getMetrics().negotiations}
}
