// Package metrics holds the Prometheus collectors for list access.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the list client and repository cache.
type Metrics struct {
	// List operations by op and outcome
	Operations *prometheus.CounterVec

	// Failed attempts that were retried
	Retries prometheus.Counter

	// Snapshot lookups by collection and result (hit, shared, miss, bypass)
	CacheLookups *prometheus.CounterVec

	// Latency of list operations including retries
	OperationLatency *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics registered on the default registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates a Metrics instance registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heron_list_operations_total",
			Help: "Total list operations by operation and outcome",
		}, []string{"op", "outcome"}),

		Retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "heron_list_retries_total",
			Help: "Total retried list operation attempts",
		}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "heron_repository_cache_total",
			Help: "Collection snapshot lookups by collection and result",
		}, []string{"collection", "result"}),

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "heron_list_operation_duration_seconds",
			Help:    "Duration of list operations including retries",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op"}),
	}
}

// ObserveOperation records one finished list operation.
func (m *Metrics) ObserveOperation(op string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationLatency.WithLabelValues(op).Observe(d.Seconds())
}

// IncrementRetries counts one retried attempt.
func (m *Metrics) IncrementRetries() {
	if m != nil {
		m.Retries.Inc()
	}
}

// ObserveCache records a snapshot lookup result.
func (m *Metrics) ObserveCache(collection, result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(collection, result).Inc()
	}
}
