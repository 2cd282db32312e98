// Package metrics holds the Prometheus metrics for the vigil gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	ModeTransitionsTotal *prometheus.CounterVec
	SignalsTotal         *prometheus.CounterVec
	WatchdogFiredTotal   prometheus.Counter
	EscalationsTotal     *prometheus.CounterVec

	AudioBytesTotal *prometheus.CounterVec

	CollaboratorErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vigil"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of active sessions",
	})

	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total number of sessions by kind and final status",
	}, []string{"kind", "status"})

	sessionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_duration_seconds",
		Help:      "Session duration in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	modeTransitionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mode_transitions_total",
		Help:      "Total crisis mode transitions",
	}, []string{"from", "to"})

	signalsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_total",
		Help:      "Total control signals raised",
	}, []string{"signal"})

	watchdogFiredTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "watchdog_fired_total",
		Help:      "Total silence watchdog expirations",
	})

	escalationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "escalations_total",
		Help:      "Total escalation episodes by trigger reason",
	}, []string{"reason"})

	audioBytesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audio_bytes_total",
		Help:      "Total audio bytes processed",
	}, []string{"direction"})

	collaboratorErrorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collaborator_errors_total",
		Help:      "Total collaborator failures",
	}, []string{"collaborator", "error_type"})

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		modeTransitionsTotal,
		signalsTotal,
		watchdogFiredTotal,
		escalationsTotal,
		audioBytesTotal,
		collaboratorErrorsTotal,
	)

	return &Metrics{
		registry:                registry,
		SessionsActive:          sessionsActive,
		SessionsTotal:           sessionsTotal,
		SessionDuration:         sessionDuration,
		ModeTransitionsTotal:    modeTransitionsTotal,
		SignalsTotal:            signalsTotal,
		WatchdogFiredTotal:      watchdogFiredTotal,
		EscalationsTotal:        escalationsTotal,
		AudioBytesTotal:         audioBytesTotal,
		CollaboratorErrorsTotal: collaboratorErrorsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a session opening.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session closing with its final status.
func (m *Metrics) RecordSessionEnd(kind, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(kind, status).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordModeTransition records one mode change.
func (m *Metrics) RecordModeTransition(from, to string) {
	if m == nil {
		return
	}
	m.ModeTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordSignal records one control signal.
func (m *Metrics) RecordSignal(signal string) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(signal).Inc()
}

// RecordWatchdogFired records one watchdog expiration.
func (m *Metrics) RecordWatchdogFired() {
	if m == nil {
		return
	}
	m.WatchdogFiredTotal.Inc()
}

// RecordEscalation records one dispatched escalation episode.
func (m *Metrics) RecordEscalation(reason string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(reason).Inc()
}

// RecordAudio records audio bytes by direction.
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if m == nil {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
}

// RecordCollaboratorError records one collaborator failure.
func (m *Metrics) RecordCollaboratorError(collaborator, errorType string) {
	if m == nil {
		return
	}
	m.CollaboratorErrorsTotal.WithLabelValues(collaborator, errorType).Inc()
}
