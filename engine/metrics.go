package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// --- Metrics ---

// Metrics holds all the Prometheus metrics for the engine.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	pools             prometheus.Gauge
}

// NewMetrics creates and registers the metrics for the engine.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_operations_total",
			Help: "Total number of public engine operations, labeled by operation and result.",
		}, []string{"operation", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_operation_duration_seconds",
			Help:    "Time taken to execute a public engine operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		pools: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_pools",
			Help: "Number of pools held by the registry.",
		}),
	}
	reg.MustRegister(m.operationsTotal, m.operationDuration, m.pools)
	return m
}
