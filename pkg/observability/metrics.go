// Package observability provides Prometheus metrics and the event
// broadcaster that feeds the SSE stream.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/surreyclinic/intake/pkg/domain"
)

// Metrics holds all Prometheus metrics for the intake service.
type Metrics struct {
	registry *prometheus.Registry

	TurnsTotal         prometheus.Counter
	SessionsActive     prometheus.Gauge
	SessionsTotal      *prometheus.CounterVec
	EscalationsTotal   prometheus.Counter
	ExtractionDuration prometheus.Histogram
	ExtractionErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all metrics registered on a
// private registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "intake"
	}

	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Total caller utterances processed",
	})

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of sessions currently in progress",
	})

	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total sessions by final status",
	}, []string{"status"})

	escalationsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escalations_total",
		Help:      "Total sessions escalated to staff",
	})

	extractionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "extraction_duration_seconds",
		Help:      "Extraction adapter call duration in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	})

	extractionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extraction_errors_total",
		Help:      "Extraction adapter failures",
	}, []string{"kind"})

	registry.MustRegister(
		turnsTotal,
		sessionsActive,
		sessionsTotal,
		escalationsTotal,
		extractionDuration,
		extractionErrors,
	)

	return &Metrics{
		registry:           registry,
		TurnsTotal:         turnsTotal,
		SessionsActive:     sessionsActive,
		SessionsTotal:      sessionsTotal,
		EscalationsTotal:   escalationsTotal,
		ExtractionDuration: extractionDuration,
		ExtractionErrors:   extractionErrors,
	}
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a new session.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session reaching a final status.
func (m *Metrics) RecordSessionEnd(status domain.Status) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(string(status)).Inc()
}

// RecordTurn records one processed utterance.
func (m *Metrics) RecordTurn() {
	m.TurnsTotal.Inc()
}

// RecordExtraction records one extraction adapter call.
func (m *Metrics) RecordExtraction(ev *domain.ExtractionEvent) {
	m.ExtractionDuration.Observe(ev.Duration.Seconds())
	if ev.TimedOut {
		m.ExtractionErrors.WithLabelValues("timeout").Inc()
	} else if ev.Err != nil {
		m.ExtractionErrors.WithLabelValues("error").Inc()
	}
}

// Hooks exposes the metrics as engine lifecycle hooks so the flow engine and
// orchestrator report without depending on this package. Session accounting
// rides the orchestrator hooks, so every transport (HTTP, websocket, MCP)
// counts the same way.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStaffAlert: func(context.Context, *domain.Event) {
			m.EscalationsTotal.Inc()
		},
		OnExtraction: func(_ context.Context, ev *domain.ExtractionEvent) {
			m.RecordExtraction(ev)
		},
		OnSessionStart: func(context.Context, *domain.Session) {
			m.RecordSessionStart()
		},
		OnTurn: func(context.Context, *domain.Session) {
			m.RecordTurn()
		},
		OnSessionEnd: func(_ context.Context, sess *domain.Session) {
			m.RecordSessionEnd(sess.Status)
		},
	}
}
