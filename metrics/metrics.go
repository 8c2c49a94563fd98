// Package metrics provides Prometheus metrics for identity-hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenExchangesTotal counts upstream client-credentials exchanges.
	TokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "identityhub",
			Name:      "token_exchanges_total",
			Help:      "Total number of upstream token exchanges",
		},
		[]string{"status"},
	)

	// TokenCacheHitsTotal counts token requests served from the cache.
	TokenCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "identityhub",
			Name:      "token_cache_hits_total",
			Help:      "Total number of token requests served from the cache",
		},
	)

	// UpstreamRequestsTotal counts management API calls by method and status code.
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "identityhub",
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream management API requests",
		},
		[]string{"method", "code"},
	)

	// RateLimitedTotal counts requests rejected by the per-IP limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "identityhub",
			Name:      "rate_limited_requests_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)

	// ExportRunsTotal counts export runs by outcome.
	ExportRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "identityhub",
			Name:      "export_runs_total",
			Help:      "Total number of bulk user export runs",
		},
		[]string{"outcome"},
	)

	// ExportDuration measures export runs end to end.
	ExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "identityhub",
			Name:      "export_duration_seconds",
			Help:      "Duration of bulk user export runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300},
		},
	)

	// ExportedUsers observes the size of each downloaded directory.
	ExportedUsers = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "identityhub",
			Name:      "exported_users",
			Help:      "Number of users in each downloaded export",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		},
	)
)

// RecordExport records the outcome and duration of an export run.
func RecordExport(outcome string, seconds float64) {
	ExportRunsTotal.WithLabelValues(outcome).Inc()
	ExportDuration.Observe(seconds)
}
