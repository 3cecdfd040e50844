// Package metrics registers the Prometheus collectors exposed on /metrics.
// All Record* methods are safe on a nil *Metrics so tests and tools can skip wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Dispatch metrics
	UpdatesTotal           *prometheus.CounterVec
	HandlerDurationSeconds *prometheus.HistogramVec
	HandlersInflight       prometheus.Gauge
	IngestQueueDepth       prometheus.Gauge

	// Ingress metrics
	WebhookDecodeErrorsTotal prometheus.Counter

	// Query API metrics
	QueryRequestsTotal   *prometheus.CounterVec
	QueryDurationSeconds *prometheus.HistogramVec

	// Telemetry metrics
	TelemetryEventsTotal *prometheus.CounterVec

	// Outbound Telegram metrics
	MessagesSentTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		UpdatesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitarabot_updates_total",
				Help: "Total number of processed updates by kind and status",
			},
			[]string{"kind", "status"}, // status: ok, fail, skip, dropped
		),

		HandlerDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pitarabot_handler_duration_seconds",
				Help:    "Handler duration in seconds by handler name",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"handler"},
		),

		HandlersInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "pitarabot_handlers_inflight",
			Help: "Number of update handlers currently running",
		}),

		IngestQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "pitarabot_ingest_queue_depth",
			Help: "Number of updates waiting in the ingestion queue",
		}),

		WebhookDecodeErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "pitarabot_webhook_decode_errors_total",
			Help: "Total number of webhook bodies that failed to decode",
		}),

		QueryRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitarabot_query_requests_total",
				Help: "Total number of query API calls by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"}, // outcome: ok, transport, http_status, malformed_response
		),

		QueryDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pitarabot_query_duration_seconds",
				Help:    "Query API call duration in seconds by endpoint",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"endpoint"}, // endpoint: story, activity
		),

		TelemetryEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitarabot_telemetry_events_total",
				Help: "Total number of feedback telemetry events by delivery status",
			},
			[]string{"status"}, // status: ok, fail, dropped
		),

		MessagesSentTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitarabot_messages_sent_total",
				Help: "Total number of outbound Telegram calls by kind",
			},
			[]string{"kind"}, // kind: text, voice, edit, answer
		),
	}
}

// RecordUpdate counts one routed update.
func (m *Metrics) RecordUpdate(kind, status string) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(kind, status).Inc()
}

// RecordHandler observes handler duration in seconds.
func (m *Metrics) RecordHandler(handler string, seconds float64) {
	if m == nil {
		return
	}
	m.HandlerDurationSeconds.WithLabelValues(handler).Observe(seconds)
}

// HandlerStarted increments the inflight gauge.
func (m *Metrics) HandlerStarted() {
	if m == nil {
		return
	}
	m.HandlersInflight.Inc()
}

// HandlerFinished decrements the inflight gauge.
func (m *Metrics) HandlerFinished() {
	if m == nil {
		return
	}
	m.HandlersInflight.Dec()
}

// SetQueueDepth reports the current ingestion queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.IngestQueueDepth.Set(float64(n))
}

// RecordDecodeError counts an undecodable webhook body.
func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.WebhookDecodeErrorsTotal.Inc()
}

// RecordQuery counts a query API call and observes its duration.
func (m *Metrics) RecordQuery(endpoint, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.QueryRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.QueryDurationSeconds.WithLabelValues(endpoint).Observe(seconds)
}

// RecordTelemetry counts a telemetry event outcome.
func (m *Metrics) RecordTelemetry(status string) {
	if m == nil {
		return
	}
	m.TelemetryEventsTotal.WithLabelValues(status).Inc()
}

// RecordSent counts an outbound Telegram call.
func (m *Metrics) RecordSent(kind string) {
	if m == nil {
		return
	}
	m.MessagesSentTotal.WithLabelValues(kind).Inc()
}
