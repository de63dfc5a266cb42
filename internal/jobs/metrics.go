package jobmetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	anomalies   *prometheus.CounterVec
	corrections *prometheus.CounterVec
}

// NewMetrics registers the job metrics against registerer. A nil registerer
// gets a private registry, which keeps repeated construction in tests safe.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
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

// AddAnomalies increments the ledger anomaly counter for a company.
func (m *Metrics) AddAnomalies(kind string, companyID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.anomalies.WithLabelValues(kind, strconv.FormatInt(max(companyID, 0), 10)).Add(float64(count))
}

// AddCorrections counts stock balances rewritten by a rebuild.
func (m *Metrics) AddCorrections(companyID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.corrections.WithLabelValues(strconv.FormatInt(companyID, 10)).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitebooks_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitebooks_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitebooks_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitebooks_ledger_anomalies_total",
		Help: "Ledger integrity anomalies by kind and company.",
	}, []string{"kind", "company"})
	corrections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sitebooks_stock_balances_corrected_total",
		Help: "Stock balances rewritten by the rebuild job because they drifted from the movement journal.",
	}, []string{"company"})
	registerer.MustRegister(runs, failures, duration, anomalies, corrections)
	return &Metrics{runs: runs, failures: failures, duration: duration, anomalies: anomalies, corrections: corrections}
}
