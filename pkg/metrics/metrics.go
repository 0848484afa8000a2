// Package metrics exposes Prometheus instruments for group creation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics exposes counters/histograms for group creation runs.
type RunMetrics struct {
	runsTotal     *prometheus.CounterVec
	contactsTotal *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	failedAt      *prometheus.CounterVec
}

func NewRunMetrics(reg prometheus.Registerer) *RunMetrics {
	m := &RunMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wagroup",
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total group creation runs by final status",
		}, []string{"status"}),
		contactsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wagroup",
			Subsystem: "contacts",
			Name:      "total",
			Help:      "Contacts processed by outcome",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wagroup",
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Wall time of group creation runs, login wait included",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"status"}),
		failedAt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wagroup",
			Subsystem: "runs",
			Name:      "failed_state_total",
			Help:      "Failed runs by the last state reached",
		}, []string{"state"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.contactsTotal, m.runDuration, m.failedAt)
	return m
}

func (m *RunMetrics) ObserveRun(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (m *RunMetrics) ObserveContact(outcome string) {
	if m == nil {
		return
	}
	m.contactsTotal.WithLabelValues(outcome).Inc()
}

func (m *RunMetrics) ObserveFailure(state string) {
	if m == nil {
		return
	}
	m.failedAt.WithLabelValues(state).Inc()
}
