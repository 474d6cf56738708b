package circuitbreaker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const tracerName = "avaroute/circuitbreaker"

type metrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

var (
	metricsInstance *metrics
	metricsOnce     sync.Once
)

func getMetrics() *metrics {
	metricsOnce.Do(func() {
		metricsInstance = &metrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "avaroute",
					Subsystem: "circuit_breaker",
					Name:      "state",
					Help:      "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
				},
				[]string{"function"},
			),
			transitions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "circuit_breaker",
					Name:      "transitions_total",
					Help:      "Total number of circuit breaker state transitions",
				},
				[]string{"function", "from", "to"},
			),
			rejected: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "avaroute",
					Subsystem: "circuit_breaker",
					Name:      "rejected_total",
					Help:      "Total number of calls rejected by an open circuit",
				},
				[]string{"function"},
			),
		}
	})
	return metricsInstance
}

// Collectors returns the circuit breaker collectors.
func Collectors() []prometheus.Collector {
	m := getMetrics()
	return []prometheus.Collector{m.state, m.transitions, m.rejected}
}
