// Package metrics provides the core's Prometheus collectors, grounded on
// the teacher's single-struct-of-collectors pattern.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the core exposes.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	ErrorsTotal *prometheus.CounterVec

	SpansIngestedTotal  *prometheus.CounterVec
	SpansRejectedTotal  *prometheus.CounterVec
	QueueDepth          prometheus.Gauge
	DeadLetterTotal     prometheus.Counter
	WorkerBusyCount     prometheus.Gauge
	WorkerEnrichedTotal prometheus.Counter

	AnomalyAlertsTotal *prometheus.CounterVec

	StoreQueryDuration *prometheus.HistogramVec
}

// New builds a Metrics instance registered against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry builds a Metrics instance registered against registerer,
// or left unregistered when registerer is nil (used in tests).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracecore_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracecore_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracecore_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracecore_errors_total",
				Help: "Total number of errors by code.",
			},
			[]string{"code"},
		),
		SpansIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracecore_spans_ingested_total",
				Help: "Total number of spans accepted by the receiver.",
			},
			[]string{"customer_id"},
		),
		SpansRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracecore_spans_rejected_total",
				Help: "Total number of spans rejected by the receiver, by reason code.",
			},
			[]string{"code"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracecore_queue_depth",
				Help: "Current depth of the ingest queue.",
			},
		),
		DeadLetterTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tracecore_dead_letter_total",
				Help: "Total number of batches moved to the dead-letter sink.",
			},
		),
		WorkerBusyCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracecore_worker_busy",
				Help: "Current number of workers processing a batch.",
			},
		),
		WorkerEnrichedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tracecore_worker_spans_enriched_total",
				Help: "Total number of spans that completed the enrichment pipeline.",
			},
		),
		AnomalyAlertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracecore_anomaly_alerts_total",
				Help: "Total number of alerts raised, by type and severity.",
			},
			[]string{"alert_type", "severity"},
		),
		StoreQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracecore_store_query_duration_seconds",
				Help:    "Store query duration in seconds, by operation.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.ErrorsTotal,
			m.SpansIngestedTotal,
			m.SpansRejectedTotal,
			m.QueueDepth,
			m.DeadLetterTotal,
			m.WorkerBusyCount,
			m.WorkerEnrichedTotal,
			m.AnomalyAlertsTotal,
			m.StoreQueryDuration,
		)
	}

	return m
}

func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) RecordError(code string) {
	m.ErrorsTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordIngested(customerID string, n int) {
	m.SpansIngestedTotal.WithLabelValues(customerID).Add(float64(n))
}

func (m *Metrics) RecordRejected(code string) {
	m.SpansRejectedTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) RecordAlert(alertType, severity string) {
	m.AnomalyAlertsTotal.WithLabelValues(alertType, severity).Inc()
}

func (m *Metrics) RecordStoreQuery(operation string, duration time.Duration) {
	m.StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
