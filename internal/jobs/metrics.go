// Package jobmetrics instruments the background worker.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the worker collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	replayed  *prometheus.CounterVec
	exhausted *prometheus.CounterVec
}

// NewMetrics registers the worker collectors on registerer, falling back to
// the default registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Job executions by task type and status.",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Job execution time in seconds.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 30},
		}, []string{"job"}),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_audit_replayed_rows_total",
			Help: "Audit rows written by the retry job, by kind.",
		}, []string{"kind"}),
		exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_exhausted_total",
			Help: "Tasks that failed their final retry and were archived.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.replayed, m.exhausted)
	return m
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run outcome and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddReplayed counts audit rows written by a retry run. kind is "history"
// or "entries".
func (m *Metrics) AddReplayed(kind string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.replayed.WithLabelValues(kind).Add(float64(count))
}

// ObserveExhausted counts a task that will not be retried again.
func (m *Metrics) ObserveExhausted(job string) {
	if m == nil {
		return
	}
	m.exhausted.WithLabelValues(job).Inc()
}
