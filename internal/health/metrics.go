package health

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type healthMetrics struct {
	probes        *prometheus.CounterVec
	checkStatus   *prometheus.GaugeVec
	checkDuration *prometheus.HistogramVec
}

var (
	healthMetricsInstance *healthMetrics
	healthMetricsOnce     sync.Once
)

func getHealthMetrics() *healthMetrics {
	healthMetricsOnce.Do(func() {
		healthMetricsInstance = &healthMetrics{
			probes: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "health",
				Name:      "probes_total",
				Help:      "Total number of probe requests by type",
			}, []string{"type"}),
			checkStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "avaroute",
				Subsystem: "health",
				Name:      "check_status",
				Help:      "Last readiness check result (1=healthy, 0=failing)",
			}, []string{"check"}),
			checkDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "avaroute",
				Subsystem: "health",
				Name:      "check_duration_seconds",
				Help:      "Readiness check duration in seconds",
				Buckets:   prometheus.DefBuckets,
			}, []string{"check"}),
		}
	})
	return healthMetricsInstance
}

// Collectors returns the health collectors for registration with a custom
// registry.
func Collectors() []prometheus.Collector {
	m := getHealthMetrics()
	return []prometheus.Collector{m.probes, m.checkStatus, m.checkDuration}
}
