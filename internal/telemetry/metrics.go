// Package telemetry provides Prometheus instrumentation for jpdict.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "jpdict"

// Metrics holds the instruments shared by the orchestrator's components.
type Metrics struct {
	reports        *prometheus.CounterVec
	updateAttempts *prometheus.CounterVec
	openAttempts   *prometheus.CounterVec
	listeners      prometheus.Gauge
	emissions      prometheus.Counter
}

// NewMetrics creates the instruments and registers them with reg.
// If reg is nil, it returns nil (no-op metrics).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports sent to the error sink, by severity.",
		}, []string{"severity"}),
		updateAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_attempts_total",
			Help:      "Data update attempts, by result.",
		}, []string{"result"}),
		openAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_open_attempts_total",
			Help:      "Database open attempts, by result.",
		}, []string{"result"}),
		listeners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listeners",
			Help:      "Currently registered listener channels.",
		}),
		emissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_emissions_total",
			Help:      "Database state snapshots multicast to listeners.",
		}),
	}

	for _, c := range []prometheus.Collector{m.reports, m.updateAttempts, m.openAttempts, m.listeners, m.emissions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordReport counts one report of the given severity.
func (m *Metrics) RecordReport(severity string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(severity).Inc()
}

// RecordUpdateAttempt counts one update attempt outcome.
func (m *Metrics) RecordUpdateAttempt(result string) {
	if m == nil {
		return
	}
	m.updateAttempts.WithLabelValues(result).Inc()
}

// RecordOpenAttempt counts one database open attempt.
func (m *Metrics) RecordOpenAttempt(success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.openAttempts.WithLabelValues(result).Inc()
}

// SetListeners records the size of the listener registry.
func (m *Metrics) SetListeners(n int) {
	if m == nil {
		return
	}
	m.listeners.Set(float64(n))
}

// RecordEmission counts one multicast snapshot.
func (m *Metrics) RecordEmission() {
	if m == nil {
		return
	}
	m.emissions.Inc()
}
