package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors shared by every background job. All methods
// are safe on a nil receiver so jobs can run uninstrumented in tests.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	items       *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewMetrics registers the job collectors on reg, or on the default
// registerer when reg is nil. Registering twice on the same registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gemledger_jobs_total",
			Help: "Job executions by task type and status.",
		}, []string{"job", "status"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gemledger_jobs_failures_total",
			Help: "Job executions that returned an error.",
		}, []string{"job"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gemledger_job_duration_seconds",
			Help:    "Wall time of job executions.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		items: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gemledger_job_items_total",
			Help: "Rows changed by job executions.",
		}, []string{"job"}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gemledger_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful execution per job.",
		}, []string{"job"}),
	}
}

// Tracker times one job execution.
type Tracker struct {
	m     *Metrics
	job   string
	start time.Time
}

// Track starts timing job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{m: m, job: job, start: time.Now()}
}

// End records the outcome of the execution and returns err unchanged, so it
// can be used as `defer func() { err = tracker.End(err) }()`.
func (t *Tracker) End(err error) error {
	if t == nil || t.m == nil || t.job == "" {
		return err
	}
	t.m.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	if err != nil {
		t.m.runs.WithLabelValues(t.job, "failure").Inc()
		t.m.failures.WithLabelValues(t.job).Inc()
		return err
	}
	t.m.runs.WithLabelValues(t.job, "success").Inc()
	t.m.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	return nil
}

// AddProcessed counts rows a job changed, such as invoices flipped to
// overdue or idempotency keys purged.
func (m *Metrics) AddProcessed(job string, count int64) {
	if m == nil || job == "" || count <= 0 {
		return
	}
	m.items.WithLabelValues(job).Add(float64(count))
}
