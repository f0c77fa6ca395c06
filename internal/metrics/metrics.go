// Package metrics Prometheus监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 比价指标
	Comparisons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiroutex_comparisons_total",
			Help: "Total number of fee comparisons",
		},
		[]string{"kind", "status"},
	)

	ComparisonDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multiroutex_comparison_duration_seconds",
			Help:    "Fee comparison duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 12},
		},
		[]string{"kind"},
	)

	// 聚合器指标
	ProviderQuotes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiroutex_provider_quotes_total",
			Help: "Provider quotes by outcome (live, fallback, failed)",
		},
		[]string{"provider", "outcome"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multiroutex_provider_latency_seconds",
			Help:    "Provider quote latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// 缓存指标
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "multiroutex_cache_hits_total",
		Help: "Total number of comparison cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "multiroutex_cache_misses_total",
		Help: "Total number of comparison cache misses",
	})

	// HTTP指标
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multiroutex_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multiroutex_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// KindSwap / KindBridge 比价类型标签
const (
	KindSwap   = "swap"
	KindBridge = "bridge"
)

// Kind 返回比价类型标签
func Kind(bridge bool) string {
	if bridge {
		return KindBridge
	}
	return KindSwap
}
