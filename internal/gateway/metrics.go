package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	gwForwardLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "riskgate",
		Subsystem: "gateway",
		Name:      "forward_latency_seconds",
		Help:      "Downstream call latency in seconds by service.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"service"})

	gwForwardFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskgate",
		Subsystem: "gateway",
		Name:      "forward_failures_total",
		Help:      "Total downstream failures answered with 503, by service and reason.",
	}, []string{"service", "reason"}) // "timeout", "connection", "circuit_open", "cancelled"

	gwBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskgate",
		Subsystem: "gateway",
		Name:      "blocked_total",
		Help:      "Total requests blocked before forwarding, by endpoint pattern.",
	}, []string{"endpoint"})

	gwPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riskgate",
		Subsystem: "gateway",
		Name:      "dispatch_panics_total",
		Help:      "Total panics recovered inside the dispatcher.",
	})
)

func init() {
	prometheus.MustRegister(
		gwForwardLatency,
		gwForwardFailures,
		gwBlocked,
		gwPanics,
	)
}
