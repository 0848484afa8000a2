package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRunMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRunMetrics(reg)

	m.ObserveRun("success", 42*time.Second)
	m.ObserveRun("failed", time.Second)
	m.ObserveRun("success", time.Minute)
	m.ObserveContact("added")
	m.ObserveContact("skipped")
	m.ObserveContact("added")
	m.ObserveFailure("menu_opened")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.contactsTotal.WithLabelValues("added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failedAt.WithLabelValues("menu_opened")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.runDuration))
}

func TestRunMetricsDoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRunMetrics(reg)
	assert.Panics(t, func() { NewRunMetrics(reg) })
}

func TestRunMetricsNilSafe(t *testing.T) {
	var m *RunMetrics
	m.ObserveRun("success", time.Second)
	m.ObserveContact("added")
	m.ObserveFailure("none")
}
