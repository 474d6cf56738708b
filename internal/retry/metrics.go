package retry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds retry counters.
type Metrics struct {
	attemptsTotal *prometheus.CounterVec
	successTotal  *prometheus.CounterVec
	failureTotal  *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton retry metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			attemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "retry",
				Name:      "attempts_total",
				Help:      "Total number of retry attempts",
			}, []string{"operation"}),
			successTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "retry",
				Name:      "success_total",
				Help:      "Total number of operations that succeeded after retrying",
			}, []string{"operation"}),
			failureTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "avaroute",
				Subsystem: "retry",
				Name:      "failure_total",
				Help:      "Total number of operations that exhausted all retries",
			}, []string{"operation"}),
		}
	})
	return metricsInstance
}

// MustRegister registers the retry collectors with registry.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.attemptsTotal, m.successTotal, m.failureTotal)
}

func recordAttempt(op string) {
	if op != "" {
		GetMetrics().attemptsTotal.WithLabelValues(op).Inc()
	}
}

func recordSuccess(op string) {
	if op != "" {
		GetMetrics().successTotal.WithLabelValues(op).Inc()
	}
}

func recordFailure(op string) {
	if op != "" {
		GetMetrics().failureTotal.WithLabelValues(op).Inc()
	}
}
