package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_NilRegistererIsNoOp(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	assert.NotPanics(t, func() {
		m.RecordReport("error")
		m.RecordUpdateAttempt("success")
		m.RecordOpenAttempt(true)
		m.SetListeners(3)
		m.RecordEmission()
	})
}

func TestMetrics_Records(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.RecordReport("warning")
	m.RecordReport("warning")
	m.RecordUpdateAttempt("transient")
	m.RecordOpenAttempt(false)
	m.SetListeners(2)
	m.RecordEmission()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reports.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.updateAttempts.WithLabelValues("transient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.openAttempts.WithLabelValues("failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.listeners))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.emissions))
}

func TestNewMetrics_DoubleRegistrationFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}
