// Package metrics exposes Prometheus instrumentation for the agent and the
// receiver.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters shared between the capture pipeline, the batch
// sender and the receiver. A single instance is created at startup and passed
// to the components that record into it.
type Metrics struct {
	EventsCaptured prometheus.Counter
	EventsRedacted prometheus.Counter
	EventsDropped  prometheus.Counter
	EventsSent     prometheus.Counter

	BatchesDelivered prometheus.Counter
	BatchesFailed    prometheus.Counter
	PendingBatches   prometheus.Gauge
	BacklogDepth     prometheus.Gauge

	EventsIngested prometheus.Counter
}

// New registers the inputtrace metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsCaptured: factory.NewCounter(prometheus.CounterOpts{
			Name: "inputtrace_events_captured_total",
			Help: "Normalized input events produced by the capture pipeline.",
		}),
		EventsRedacted: factory.NewCounter(prometheus.CounterOpts{
			Name: "inputtrace_events_redacted_total",
			Help: "Events whose sensitive fields were redacted.",
		}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "inputtrace_events_dropped_total",
			Help: "Events evicted from the delivery backlog or rejected as malformed.",
		}),
		EventsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "inputtrace_events_sent_total",
			Help: "Events delivered to the receiver.",
		}),
		BatchesDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "inputtrace_batches_delivered_total",
			Help: "Batches acknowledged by the receiver.",
		}),
		BatchesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "inputtrace_batches_failed_total",
			Help: "Batch delivery attempts that failed.",
		}),
		PendingBatches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "inputtrace_pending_batches",
			Help: "Batches currently waiting in the pending cache.",
		}),
		BacklogDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "inputtrace_backlog_depth",
			Help: "Captured events waiting for the next delivery cycle.",
		}),
		EventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "inputtrace_events_ingested_total",
			Help: "Events stored by the receiver.",
		}),
	}
}

// NewDefault registers the metrics on the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
