// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/article-harvester/internal/domain"
)

var (
	fetchOutcomesTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	escalationsTotal           *prometheus.CounterVec
	renderDurationSeconds      *prometheus.HistogramVec
	renderColdStartSeconds     prometheus.Histogram
	rateLimitDelaySeconds      *prometheus.HistogramVec
	documentsTotal             *prometheus.CounterVec
	activeWorkers              *prometheus.GaugeVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_outcomes_total",
				Help: "Fetch attempts, labeled by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetch_bytes_total",
				Help: "Bytes of content accepted, labeled by tier.",
			},
			[]string{"tier"},
		)

		escalationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_escalations_total",
				Help: "Items routed from the HTTP tier to the render tier, labeled by reason.",
			},
			[]string{"reason"},
		)

		renderDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_render_duration_seconds",
				Help:    "Histogram of render fetch latencies, labeled by result.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"result"},
		)

		renderColdStartSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_render_cold_start_seconds",
				Help:    "Histogram of browser session start-up times.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10},
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of per-domain rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_documents_total",
				Help: "Documents produced, labeled by tier and whether a placeholder was emitted.",
			},
			[]string{"tier", "placeholder"},
		)

		activeWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "harvester_active_workers",
				Help: "Number of workers currently processing an item, labeled by stage.",
			},
			[]string{"stage"},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt for a tier.
func ObserveFetch(tier, outcome string, bytesFetched int) {
	Init()
	fetchOutcomesTotal.WithLabelValues(tier, outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(tier).Add(float64(bytesFetched))
	}
}

// ObserveEscalation counts an HTTP to render escalation.
func ObserveEscalation(reason string) {
	Init()
	escalationsTotal.WithLabelValues(reason).Inc()
}

// ObserveRender records the latency of one render fetch.
func ObserveRender(result string, duration time.Duration) {
	Init()
	renderDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveColdStart records how long a browser session took to start.
func ObserveColdStart(duration time.Duration) {
	Init()
	renderColdStartSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domainName string, duration time.Duration) {
	Init()
	if domainName == "" {
		domainName = domain.Unknown
	}
	rateLimitDelaySeconds.WithLabelValues(domainName).Observe(duration.Seconds())
}

// ObserveDocument counts an emitted document.
func ObserveDocument(tier string, placeholder bool) {
	Init()
	if tier == "" {
		tier = "none"
	}
	documentsTotal.WithLabelValues(tier, strconv.FormatBool(placeholder)).Inc()
}

// IncActiveWorkers increments the active workers gauge for a stage.
func IncActiveWorkers(stage string) {
	Init()
	activeWorkers.WithLabelValues(stage).Inc()
}

// DecActiveWorkers decrements the active workers gauge for a stage.
func DecActiveWorkers(stage string) {
	Init()
	activeWorkers.WithLabelValues(stage).Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
