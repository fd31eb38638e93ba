package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the keyword research service.
// Metrics are organized by subsystem: runs, the analytics API client, job
// polling, the candidate pipeline, the suggestion cache and lifecycle events.
//
// Metrics satisfies the observer interfaces of the keyso, jobs, pipeline,
// cache and events packages, so those packages record measurements without
// importing this one.
type Metrics struct {
	// RunsStarted counts runs that began executing, labeled by mode.
	RunsStarted *prometheus.CounterVec

	// RunsCompleted counts runs that finished successfully.
	RunsCompleted prometheus.Counter

	// RunsFailed counts failed runs, labeled by failure kind.
	RunsFailed *prometheus.CounterVec

	// RunDuration observes end-to-end run duration in seconds.
	RunDuration prometheus.Histogram

	// APIRequests counts physical requests to the analytics API, labeled by
	// endpoint and status code ("0" for transport faults).
	APIRequests *prometheus.CounterVec

	// APIRequestDuration observes physical request duration in seconds.
	APIRequestDuration *prometheus.HistogramVec

	// APIRetries counts retries by reason: accepted, quota, server, transport.
	APIRetries *prometheus.CounterVec

	// LimiterWait observes time spent blocked in the client-side rate limiter.
	LimiterWait prometheus.Histogram

	// JobPolls counts job state polls, labeled by observed state.
	JobPolls *prometheus.CounterVec

	// JobWait observes how long AwaitCompletion ran, labeled by outcome.
	JobWait *prometheus.HistogramVec

	// PagesFetched counts result pages downloaded.
	PagesFetched prometheus.Counter

	// PageSize observes the number of items per fetched page.
	PageSize prometheus.Histogram

	// Candidates counts candidates per pipeline stage.
	Candidates *prometheus.CounterVec

	// CacheLookups counts suggestion cache lookups, labeled hit or miss.
	CacheLookups *prometheus.CounterVec

	// EventsPublished counts lifecycle events written, labeled by event type.
	EventsPublished *prometheus.CounterVec

	// EventsFailed counts lifecycle events that could not be written.
	EventsFailed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the metrics with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Runs
		RunsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of keyword runs started by mode",
		}, []string{"mode"}),
		RunsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of keyword runs completed successfully",
		}),
		RunsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_failed_total",
			Help:      "Total number of keyword runs that failed by failure kind",
		}, []string{"kind"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of keyword runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		}),

		// Analytics API
		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of requests to the analytics API by endpoint and status",
		}, []string{"endpoint", "status"}),
		APIRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Duration of requests to the analytics API in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		APIRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Total number of analytics API retries by reason",
		}, []string{"reason"}),
		LimiterWait: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_limiter_wait_seconds",
			Help:      "Time spent waiting for the client-side rate limiter in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10},
		}),

		// Jobs
		JobPolls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_polls_total",
			Help:      "Total number of expansion job state polls by observed state",
		}, []string{"state"}),
		JobWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_wait_seconds",
			Help:      "Time spent waiting for expansion jobs in seconds by outcome",
			Buckets:   []float64{1, 3, 6, 12, 30, 60, 120, 300},
		}, []string{"outcome"}),
		PagesFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Total number of expansion result pages fetched",
		}),
		PageSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_items",
			Help:      "Number of items per fetched result page",
			Buckets:   []float64{0, 10, 25, 50, 75, 100},
		}),

		// Pipeline
		Candidates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Total number of keyword candidates by pipeline stage",
		}, []string{"stage"}),

		// Cache
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "suggestion_cache_lookups_total",
			Help:      "Total number of suggestion cache lookups by result",
		}, []string{"result"}),

		// Events
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of run lifecycle events published by type",
		}, []string{"type"}),
		EventsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of run lifecycle events that failed to publish by type",
		}, []string{"type"}),
	}
}

// RecordRunStarted records that a run has started.
func (m *Metrics) RecordRunStarted(mode string) {
	m.RunsStarted.WithLabelValues(mode).Inc()
}

// RecordRunCompleted records that a run has completed.
func (m *Metrics) RecordRunCompleted(d time.Duration) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(d.Seconds())
}

// RecordRunFailed records that a run has failed.
func (m *Metrics) RecordRunFailed(kind string, d time.Duration) {
	m.RunsFailed.WithLabelValues(kind).Inc()
	m.RunDuration.Observe(d.Seconds())
}

// ObserveAPIRequest records one physical request.
func (m *Metrics) ObserveAPIRequest(endpoint string, status int, d time.Duration) {
	m.APIRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveAPIRetry records a retry.
func (m *Metrics) ObserveAPIRetry(reason string) {
	m.APIRetries.WithLabelValues(reason).Inc()
}

// ObserveLimiterWait records time blocked in the rate limiter.
func (m *Metrics) ObserveLimiterWait(d time.Duration) {
	m.LimiterWait.Observe(d.Seconds())
}

// ObserveJobPoll records one job state poll.
func (m *Metrics) ObserveJobPoll(state string) {
	m.JobPolls.WithLabelValues(state).Inc()
}

// ObserveJobWait records how a job wait ended.
func (m *Metrics) ObserveJobWait(outcome string, d time.Duration) {
	m.JobWait.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObservePageFetched records one result page.
func (m *Metrics) ObservePageFetched(items int) {
	m.PagesFetched.Inc()
	m.PageSize.Observe(float64(items))
}

// ObserveCandidates records candidate counts for a pipeline stage.
func (m *Metrics) ObserveCandidates(stage string, n int) {
	m.Candidates.WithLabelValues(stage).Add(float64(n))
}

// ObserveCacheLookup records a suggestion cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveEventPublished records the outcome of publishing one event.
func (m *Metrics) ObserveEventPublished(eventType string, err error) {
	if err != nil {
		m.EventsFailed.WithLabelValues(eventType).Inc()
		return
	}
	m.EventsPublished.WithLabelValues(eventType).Inc()
}
