package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("audit:retry").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("audit:retry").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:retry", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("audit:retry", "failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestAddReplayedIgnoresEmpty(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddReplayed("history", 3)
	m.AddReplayed("history", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.replayed.WithLabelValues("history")))

	m.ObserveExhausted("audit:retry")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exhausted.WithLabelValues("audit:retry")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.AddReplayed("entries", 1)
	m.ObserveExhausted("audit:retry")
	assert.NoError(t, m.Track("x").End(nil))
}
