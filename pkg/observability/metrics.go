// Package observability provides Prometheus metrics for pgdial.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for pgdial. A nil *Metrics is valid
// and records nothing, so instrumentation call sites need no guards.
type Metrics struct {
	// Counters
	ConnectsTotal     *prometheus.CounterVec
	QueriesTotal      *prometheus.CounterVec
	PoolAcquiresTotal *prometheus.CounterVec

	// Gauges
	PoolConnectionsIdle  *prometheus.GaugeVec
	PoolConnectionsInUse *prometheus.GaugeVec

	// Histograms
	ConnectDuration     *prometheus.HistogramVec
	QueryDuration       *prometheus.HistogramVec
	PoolAcquireDuration *prometheus.HistogramVec
}

// DefaultMetrics creates a Metrics instance registered on the default
// Prometheus registerer.
func DefaultMetrics() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// NewMetrics creates a Metrics instance registered on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgdial_connects_total",
				Help: "Total number of connection handshakes attempted",
			},
			[]string{"database", "status"},
		),
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgdial_queries_total",
				Help: "Total number of queries executed",
			},
			[]string{"database", "query_type", "status"},
		),
		PoolAcquiresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgdial_pool_acquires_total",
				Help: "Total number of pool checkout attempts",
			},
			[]string{"database", "status"},
		),

		PoolConnectionsIdle: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgdial_pool_connections_idle",
				Help: "Idle connections held by the pool",
			},
			[]string{"database"},
		),
		PoolConnectionsInUse: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgdial_pool_connections_in_use",
				Help: "Connections currently checked out of the pool",
			},
			[]string{"database"},
		),

		ConnectDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgdial_connect_duration_seconds",
				Help:    "Handshake duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"database"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgdial_query_duration_seconds",
				Help:    "Query execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"database", "query_type"},
		),
		PoolAcquireDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgdial_pool_acquire_duration_seconds",
				Help:    "Time to check a connection out of the pool in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // 0.1ms to ~3.2s
			},
			[]string{"database"},
		),
	}
}

// RecordConnect records one handshake attempt.
func (m *Metrics) RecordConnect(database string, durationSeconds float64, success bool) {
	if m == nil {
		return
	}
	m.ConnectsTotal.WithLabelValues(database, statusLabel(success)).Inc()
	m.ConnectDuration.WithLabelValues(database).Observe(durationSeconds)
}

// RecordQuery records one query execution.
func (m *Metrics) RecordQuery(database, queryType string, durationSeconds float64, success bool) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(database, queryType, statusLabel(success)).Inc()
	m.QueryDuration.WithLabelValues(database, queryType).Observe(durationSeconds)
}

// RecordPoolAcquire records one pool checkout attempt.
func (m *Metrics) RecordPoolAcquire(database string, durationSeconds float64, success bool) {
	if m == nil {
		return
	}
	m.PoolAcquiresTotal.WithLabelValues(database, statusLabel(success)).Inc()
	m.PoolAcquireDuration.WithLabelValues(database).Observe(durationSeconds)
}

// UpdatePoolStats updates the pool size gauges.
func (m *Metrics) UpdatePoolStats(database string, idle, inUse int) {
	if m == nil {
		return
	}
	m.PoolConnectionsIdle.WithLabelValues(database).Set(float64(idle))
	m.PoolConnectionsInUse.WithLabelValues(database).Set(float64(inUse))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
