package metrics

import "github.com/prometheus/client_golang/prometheus"

// Embedding purposes: profiles are embedded on upsert, queries on every chat search.
const (
	PurposeProfile = "profile"
	PurposeQuery   = "query"
)

// Embedding Prometheus metrics, labelled by purpose so indexing load and
// request-path latency can be told apart.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchdex",
			Name:      "embedding_requests_total",
			Help:      "Embedding provider calls by purpose and outcome",
		},
		[]string{"provider", "model", "purpose", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "matchdex",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding provider latency in seconds",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider", "purpose"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchdex",
			Name:      "embedding_tokens_total",
			Help:      "Embedding tokens billed by the provider",
		},
		[]string{"provider", "model", "purpose"},
	)

	EmbeddingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchdex",
			Name:      "embedding_errors_total",
			Help:      "Embedding provider failures by kind",
		},
		[]string{"provider", "purpose", "error_type"},
	)

	EmbeddingBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "matchdex",
			Name:      "embedding_budget_tokens_remaining",
			Help:      "Remaining embedding token budget",
		},
		[]string{"provider", "period"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "matchdex",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by purpose and result",
		},
		[]string{"purpose", "result"},
	)
)

var embMetricsRegistered bool

// RegisterEmbeddingMetrics registers the embedding metrics. Safe to call more than once.
func RegisterEmbeddingMetrics() {
	if embMetricsRegistered {
		return
	}
	prometheus.MustRegister(
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		EmbeddingTokensTotal,
		EmbeddingErrorsTotal,
		EmbeddingBudgetTokensRemaining,
		EmbeddingCacheTotal,
	)
	embMetricsRegistered = true
}

// EmbeddingCacheCounter returns the cache counter bound to one purpose, leaving the "result" label.
func EmbeddingCacheCounter(purpose string) *prometheus.CounterVec {
	return EmbeddingCacheTotal.MustCurryWith(prometheus.Labels{"purpose": purpose})
}
