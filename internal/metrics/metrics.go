// Package metrics exposes Prometheus collectors for the discovery service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	discoveryRunsTotal      *prometheus.CounterVec
	profilesDiscoveredTotal prometheus.Counter
	postsValidatedTotal     *prometheus.CounterVec
	crawlsTotal             *prometheus.CounterVec
	pacingDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDurationSecs *prometheus.HistogramVec
	cacheProfilesGauge      prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		discoveryRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tafuta_discovery_runs_total",
				Help: "Total discovery runs, labeled by exploration mode.",
			},
			[]string{"mode"},
		)

		profilesDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tafuta_profiles_discovered_total",
				Help: "Total newly discovered profiles merged into the cache.",
			},
		)

		postsValidatedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tafuta_posts_validated_total",
				Help: "Total validator decisions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tafuta_crawls_total",
				Help: "Total crawl calls, labeled by trigger.",
			},
			[]string{"trigger"},
		)

		pacingDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tafuta_pacing_delay_seconds",
				Help:    "Histogram of delays introduced by the pacing limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2},
			},
			[]string{"class"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tafuta_http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecs = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tafuta_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		cacheProfilesGauge = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "tafuta_cache_profiles",
				Help: "Number of profiles in the discovery cache after the last run.",
			},
		)
	})
}

// ObserveDiscoveryRun records one finished discovery run.
func ObserveDiscoveryRun(mode string, newProfiles, cacheSize int) {
	if discoveryRunsTotal == nil {
		return
	}
	discoveryRunsTotal.WithLabelValues(mode).Inc()
	profilesDiscoveredTotal.Add(float64(newProfiles))
	cacheProfilesGauge.Set(float64(cacheSize))
}

// ObserveValidation records one validator decision.
func ObserveValidation(isSwahili bool) {
	if postsValidatedTotal == nil {
		return
	}
	outcome := "rejected"
	if isSwahili {
		outcome = "accepted"
	}
	postsValidatedTotal.WithLabelValues(outcome).Inc()
}

// ObserveCrawl records one crawl call.
func ObserveCrawl(trigger string) {
	if crawlsTotal == nil {
		return
	}
	crawlsTotal.WithLabelValues(trigger).Inc()
}

// ObservePacingDelay records a delay introduced by the pacing limiter.
func ObservePacingDelay(class string, delay time.Duration) {
	if pacingDelaySeconds == nil {
		return
	}
	pacingDelaySeconds.WithLabelValues(class).Observe(delay.Seconds())
}

// ObserveHTTPRequest records one handled HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, httpCode(code)).Inc()
	httpRequestDurationSecs.WithLabelValues(method, route).Observe(duration.Seconds())
}

func httpCode(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
