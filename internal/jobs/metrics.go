package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for queued and scheduled jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	parked    *prometheus.CounterVec
	stuck     prometheus.Gauge
	anomalies *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job type.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// Parked counts a job that exhausted its retry ceiling.
func (m *Metrics) Parked(job string) {
	if m == nil {
		return
	}
	m.parked.WithLabelValues(job).Inc()
}

// SetStuck reports how many jobs sit in processing past the threshold.
func (m *Metrics) SetStuck(count int) {
	if m == nil {
		return
	}
	m.stuck.Set(float64(count))
}

// AddAnomalies increments the ledger anomaly counter for a kind and hotel.
func (m *Metrics) AddAnomalies(kind string, hotelID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	hotel := "0"
	if hotelID > 0 {
		hotel = formatInt(hotelID)
	}
	m.anomalies.WithLabelValues(kind, hotel).Add(float64(count))
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_jobs_total",
		Help: "Total job executions partitioned by job type and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "folio_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	parked := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_jobs_parked_total",
		Help: "Jobs left in failed state after reaching their retry ceiling.",
	}, []string{"job"})
	stuck := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "folio_jobs_stuck",
		Help: "Jobs in processing for longer than the stuck threshold.",
	})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_ledger_anomalies_total",
		Help: "Ledger consistency violations detected by the integrity scan.",
	}, []string{"kind", "hotel"})
	registerer.MustRegister(runs, failures, duration, parked, stuck, anomalies)
	return &Metrics{runs: runs, failures: failures, duration: duration, parked: parked, stuck: stuck, anomalies: anomalies}
}
