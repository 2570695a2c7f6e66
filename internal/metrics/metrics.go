// Package metrics exposes Prometheus collectors for the validation service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	verdictsTotal              *prometheus.CounterVec
	itemDurationSeconds        *prometheus.HistogramVec
	jobsTotal                  *prometheus.CounterVec
	governorInUse              prometheus.Gauge
	governorAvailable          prometheus.Gauge
	admissionQueueDepth        prometheus.Gauge
	dnsLookupsTotal            *prometheus.CounterVec
	smtpProbesTotal            *prometheus.CounterVec
	cacheRequestsTotal         *prometheus.CounterVec
	cacheEvictionsTotal        prometheus.Counter
	batchTimeoutsTotal         *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	httpInFlight               prometheus.Gauge
	httpResponseBytes          *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		verdictsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_verdicts_total",
				Help: "Verdicts produced, labeled by kind, validity and reason.",
			},
			[]string{"kind", "valid", "reason"},
		)

		itemDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "validator_item_duration_seconds",
				Help:    "Wall time spent validating a single item.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"kind"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_jobs_total",
				Help: "Jobs finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		governorInUse = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "validator_governor_in_use",
				Help: "Job slots currently held.",
			},
		)

		governorAvailable = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "validator_governor_available",
				Help: "Job slots currently free (capacity minus in use).",
			},
		)

		admissionQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "validator_admission_queue_depth",
				Help: "Jobs accepted but not yet picked up by a runner.",
			},
		)

		dnsLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_dns_lookups_total",
				Help: "DNS queries issued, labeled by record type and outcome.",
			},
			[]string{"type", "outcome"},
		)

		smtpProbesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_smtp_probes_total",
				Help: "SMTP probes, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		cacheRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_cache_requests_total",
				Help: "Result cache lookups, labeled by hit or miss.",
			},
			[]string{"result"},
		)

		cacheEvictionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "validator_cache_evictions_total",
				Help: "Entries removed by capacity eviction.",
			},
		)

		batchTimeoutsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validator_batch_timeouts_total",
				Help: "Items that received a synthetic timeout verdict because their batch deadline passed.",
			},
			[]string{"kind"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "validator_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"scope"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		httpInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "HTTP requests currently being served.",
			},
		)

		httpResponseBytes = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "Response body sizes, labeled by route. Results pages dominate the upper buckets.",
				Buckets: prometheus.ExponentialBuckets(128, 4, 9),
			},
			[]string{"route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveVerdict records one verdict and its latency.
func ObserveVerdict(kind string, valid bool, reason string, elapsed time.Duration) {
	Init()
	verdictsTotal.WithLabelValues(kind, strconv.FormatBool(valid), reason).Inc()
	itemDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveJob increments the job counter for the given terminal status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// SetGovernor publishes the governor occupancy.
func SetGovernor(inUse, available int) {
	Init()
	governorInUse.Set(float64(inUse))
	governorAvailable.Set(float64(available))
}

// SetAdmissionQueueDepth publishes the number of queued jobs.
func SetAdmissionQueueDepth(depth int) {
	Init()
	admissionQueueDepth.Set(float64(depth))
}

// ObserveDNSLookup counts a DNS query by record type and outcome.
func ObserveDNSLookup(recordType, outcome string) {
	Init()
	dnsLookupsTotal.WithLabelValues(recordType, outcome).Inc()
}

// ObserveSMTPProbe counts an SMTP probe outcome.
func ObserveSMTPProbe(outcome string) {
	Init()
	smtpProbesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCache counts a cache lookup.
func ObserveCache(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequestsTotal.WithLabelValues(result).Inc()
}

// ObserveCacheEvictions adds n evicted entries.
func ObserveCacheEvictions(n int) {
	Init()
	cacheEvictionsTotal.Add(float64(n))
}

// ObserveBatchTimeouts adds n items that missed their batch deadline.
func ObserveBatchTimeouts(kind string, n int) {
	Init()
	batchTimeoutsTotal.WithLabelValues(kind).Add(float64(n))
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(scope string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(scope).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
