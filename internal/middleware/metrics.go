package middleware

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type middlewareMetrics struct {
	rateLimitRejected prometheus.Counter
	bodyLimitRejected prometheus.Counter
	panicsRecovered   prometheus.Counter
}

var (
	mwMetrics     *middlewareMetrics
	mwMetricsOnce sync.Once
)

func getMiddlewareMetrics() *middlewareMetrics {
	mwMetricsOnce.Do(func() {
		mwMetrics = &middlewareMetrics{
			rateLimitRejected: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "middleware",
				Name:      "rate_limit_rejected_total",
				Help:      "Total number of requests rejected by the rate limiter",
			}),
			bodyLimitRejected: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "middleware",
				Name:      "body_limit_rejected_total",
				Help:      "Total number of requests rejected for an oversized body",
			}),
			panicsRecovered: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "middleware",
				Name:      "panics_recovered_total",
				Help:      "Total number of handler panics recovered",
			}),
		}
	})
	return mwMetrics
}

// Collectors returns the middleware collectors for registration with a
// custom registry.
func Collectors() []prometheus.Collector {
	m := getMiddlewareMetrics()
	return []prometheus.Collector{m.rateLimitRejected, m.bodyLimitRejected, m.panicsRecovered}
}
