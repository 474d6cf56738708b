package proxy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// proxyMetrics contains Prometheus metrics for proxy operations.
type proxyMetrics struct {
	errorsTotal      *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
}

var (
	proxyMetricsInstance *proxyMetrics
	proxyMetricsOnce     sync.Once
)

func getProxyMetrics() *proxyMetrics {
	proxyMetricsOnce.Do(func() {
		proxyMetricsInstance = &proxyMetrics{
			errorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "proxy",
					Name:      "errors_total",
					Help:      "Total number of proxy errors",
				},
				[]string{"error_type"},
			),
			upstreamDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "avaroute",
					Subsystem: "proxy",
					Name:      "upstream_duration_seconds",
					Help:      "Time to first byte of proxied upstream requests",
					Buckets: []float64{
						.001, .005, .01, .025,
						.05, .1, .25, .5,
						1, 2.5, 5, 10,
					},
				},
				[]string{"host"},
			),
		}
	})
	return proxyMetricsInstance
}

// Collectors returns the proxy collectors.
func Collectors() []prometheus.Collector {
	m := getProxyMetrics()
	return []prometheus.Collector{m.errorsTotal, m.upstreamDuration}
}
