package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Lifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SessionCreated()
	m.SessionCreated()
	m.SessionCreated()
	m.SessionsRemoved(ReasonLogout, 1)
	m.SessionsRemoved(ReasonExpired, 1)
	m.SessionsRemoved(ReasonExpired, 0)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.created))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.removed.WithLabelValues(ReasonLogout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.removed.WithLabelValues(ReasonExpired)))

	m.SetActive(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.active))
}

func TestMetrics_ObserveSweep(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSweep(time.Millisecond, nil)
	m.ObserveSweep(time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sweepErrors))
	n, err := testutil.GatherAndCount(reg, "sessiond_sweep_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionCreated()
	m.SessionsRemoved(ReasonLogout, 1)
	m.SetActive(1)
	m.ObserveSweep(time.Second, nil)
}
