package assets

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type blobMetrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

var (
	blobMetricsInstance *blobMetrics
	blobMetricsOnce     sync.Once
)

func getBlobMetrics() *blobMetrics {
	blobMetricsOnce.Do(func() {
		blobMetricsInstance = &blobMetrics{
			duration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "avaroute",
					Subsystem: "assets",
					Name:      "blob_fetch_duration_seconds",
					Help:      "Duration of static blob fetches",
					Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
				},
				[]string{"store"},
			),
			errors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "assets",
					Name:      "blob_fetch_errors_total",
					Help:      "Total number of failed static blob fetches",
				},
				[]string{"store", "result"},
			),
		}
	})
	return blobMetricsInstance
}

// Collectors returns the asset collectors for registration on a custom
// registry.
func Collectors() []prometheus.Collector {
	m := getBlobMetrics()
	return []prometheus.Collector{m.duration, m.errors}
}
