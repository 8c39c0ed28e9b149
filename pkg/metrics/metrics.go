// Package metrics holds the prometheus collectors for fetch and cycle
// activity. All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "adghruletool"

// DefaultBuckets are latency buckets in seconds, sized for list downloads.
var DefaultBuckets = []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60} //nolint: gochecknoglobals

// Metrics groups the collectors registered on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	fetchAttempts  *prometheus.CounterVec
	fetchFailures  *prometheus.CounterVec
	fetchBytes     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	rulesAppended  prometheus.Counter
	cycles         prometheus.Counter
	cycleDuration  prometheus.Gauge
	lastCycle      prometheus.Gauge
	cleanupRemoved prometheus.Counter
	cleanupErrors  prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "HTTP attempts made per source, including retries.",
		}, []string{"source"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Sources that failed after exhausting all attempts.",
		}, []string{"source"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Bytes written to temporary artifacts by successful fetches.",
		}, []string{"source"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of a fetch including retries.",
			Buckets:   DefaultBuckets,
		}, []string{"source"}),
		rulesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_appended_total",
			Help:      "Rules appended to the output artifact.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed fetch cycles.",
		}),
		cycleDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_duration_seconds",
			Help:      "Duration of the most recent fetch cycle.",
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time the most recent fetch cycle finished.",
		}),
		cleanupRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_removed_lines_total",
			Help:      "Output lines removed by the exclusion marker cleanup.",
		}),
		cleanupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_errors_total",
			Help:      "Cleanup passes that failed.",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetchAttempts,
		m.fetchFailures,
		m.fetchBytes,
		m.fetchDuration,
		m.rulesAppended,
		m.cycles,
		m.cycleDuration,
		m.lastCycle,
		m.cleanupRemoved,
		m.cleanupErrors,
	)
	return m
}

// FetchAttempt counts one HTTP attempt against source.
func (m *Metrics) FetchAttempt(source string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(source).Inc()
}

// FetchDone records the outcome of a complete fetch.
func (m *Metrics) FetchDone(source string, bytes int64, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchDuration.WithLabelValues(source).Observe(took.Seconds())
	if err != nil {
		m.fetchFailures.WithLabelValues(source).Inc()
		return
	}
	m.fetchBytes.WithLabelValues(source).Add(float64(bytes))
}

// RulesAppended adds n to the appended rule counter.
func (m *Metrics) RulesAppended(n int) {
	if m == nil {
		return
	}
	m.rulesAppended.Add(float64(n))
}

// CycleDone records a finished cycle.
func (m *Metrics) CycleDone(finished time.Time, took time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Set(took.Seconds())
	m.lastCycle.Set(float64(finished.Unix()))
}

// CleanupDone records a cleanup pass.
func (m *Metrics) CleanupDone(removed int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.cleanupErrors.Inc()
		return
	}
	m.cleanupRemoved.Add(float64(removed))
}
