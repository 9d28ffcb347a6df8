// Package metrics exposes key pool operation counters and pool gauges for Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

// Operation outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeEmpty    = "no_active_keys"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder records pool operations and the pool's shape after each of them.
type Recorder interface {
	RecordOperation(operation, outcome string)
	ObservePool(stats keypool.Stats)
}

// PoolMetrics implements Recorder on a private Prometheus registry.
type PoolMetrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	keys       *prometheus.GaugeVec
}

// NewPoolMetrics registers the collectors under namespace.
func NewPoolMetrics(namespace string) *PoolMetrics {
	m := &PoolMetrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of key pool operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		keys: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "keys",
				Help:      "Number of keys in the pool by state",
			},
			[]string{"state"},
		),
	}
	m.registry.MustRegister(m.operations, m.keys)
	return m
}

// RecordOperation increments the operation counter.
func (m *PoolMetrics) RecordOperation(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObservePool sets the pool gauges from stats.
func (m *PoolMetrics) ObservePool(stats keypool.Stats) {
	m.keys.WithLabelValues("total").Set(float64(stats.Total))
	m.keys.WithLabelValues("active").Set(float64(stats.Active))
	m.keys.WithLabelValues("exhausted").Set(float64(stats.Exhausted))
	m.keys.WithLabelValues("unused").Set(float64(stats.Unused))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PoolMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *PoolMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// NoOp is a Recorder that drops everything, used when metrics are disabled.
type NoOp struct{}

func (NoOp) RecordOperation(operation, outcome string) {}

func (NoOp) ObservePool(stats keypool.Stats) {}
