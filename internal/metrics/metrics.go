// Package metrics owns the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blogwriter",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled, by method and status.",
		},
		[]string{"method", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blogwriter",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method"},
	)

	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blogwriter",
			Name:      "upstream_requests_total",
			Help:      "Calls to third-party services, by service and outcome.",
		},
		[]string{"service", "outcome"},
	)

	keywordCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blogwriter",
			Name:      "keyword_cache_lookups_total",
			Help:      "Keyword cache lookups, by hit or miss.",
		},
		[]string{"result"},
	)

	generationJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blogwriter",
			Name:      "generation_jobs_total",
			Help:      "Blog generation requests, by sync or async mode.",
		},
		[]string{"mode"},
	)

	publishAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blogwriter",
			Name:      "publish_attempts_total",
			Help:      "CMS publish attempts, by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		upstreamRequests,
		keywordCacheLookups,
		generationJobs,
		publishAttempts,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func ObserveHTTP(method string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Upstream records one outbound call. A nil err counts as "ok".
func Upstream(service string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamRequests.WithLabelValues(service, outcome).Inc()
}

func KeywordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	keywordCacheLookups.WithLabelValues(result).Inc()
}

func GenerationJob(async bool) {
	mode := "sync"
	if async {
		mode = "async"
	}
	generationJobs.WithLabelValues(mode).Inc()
}

func PublishAttempt(platform string, err error) {
	outcome := "published"
	if err != nil {
		outcome = "failed"
	}
	publishAttempts.WithLabelValues(platform, outcome).Inc()
}
