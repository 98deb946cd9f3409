// Package instrumentation holds the Prometheus metrics for streamd.
// All record methods are nil-safe so tests can pass a nil *Metrics.
package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsTotal     *prometheus.CounterVec
	DroppedTotal    *prometheus.CounterVec
	ReconnectsTotal prometheus.Counter
	ReconcileTotal  prometheus.Counter
	BackfillErrors  prometheus.Counter
	QueryMisses     *prometheus.CounterVec
	WriteLatencyMs  prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpulse_events_total",
			Help: "Normalized market events processed, by event type",
		}, []string{"type"}),

		DroppedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpulse_events_dropped_total",
			Help: "Events dropped, by stage (decode, queue, route)",
		}, []string{"stage"}),

		ReconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stockpulse_feed_reconnects_total",
			Help: "Upstream feed reconnection attempts",
		}),

		ReconcileTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stockpulse_reconcile_passes_total",
			Help: "Watch-set reconcile passes executed",
		}),

		BackfillErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stockpulse_backfill_errors_total",
			Help: "Historical backfill attempts that failed",
		}),

		QueryMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stockpulse_query_misses_total",
			Help: "Read-path results degraded to empty, by cause (no_data, error)",
		}, []string{"cause"}),

		WriteLatencyMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stockpulse_sink_write_latency_ms",
			Help:    "Latency of time-series sink writes in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
	}
}

func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) RecordDrop(stage string) {
	if m == nil {
		return
	}
	m.DroppedTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.ReconnectsTotal.Inc()
}

func (m *Metrics) RecordReconcile() {
	if m == nil {
		return
	}
	m.ReconcileTotal.Inc()
}

func (m *Metrics) RecordBackfillError() {
	if m == nil {
		return
	}
	m.BackfillErrors.Inc()
}

func (m *Metrics) RecordQueryMiss(cause string) {
	if m == nil {
		return
	}
	m.QueryMisses.WithLabelValues(cause).Inc()
}

func (m *Metrics) ObserveWriteLatency(ms float64) {
	if m == nil {
		return
	}
	m.WriteLatencyMs.Observe(ms)
}
