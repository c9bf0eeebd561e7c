package metrics

import "github.com/prometheus/client_golang/prometheus"

// Encoder Prometheus metrics.
var (
	EncodingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "encoding_requests_total",
			Help:      "Total number of encoding requests",
		},
		[]string{"provider", "model", "side", "status"},
	)

	EncodingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "needle",
			Name:      "encoding_request_duration_seconds",
			Help:      "Encoding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model", "side"},
	)

	EncodingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "encoding_tokens_total",
			Help:      "Total encoding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EncodingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "encoding_errors_total",
			Help:      "Total encoding errors",
		},
		[]string{"provider", "model", "error_type"},
	)

	EncodingBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "needle",
			Name:      "encoding_budget_tokens_remaining",
			Help:      "Remaining token budget",
		},
		[]string{"provider", "period"},
	)

	EncodingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "encoding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var encodingRegistered bool

// RegisterEncodingMetrics registers encoder metrics. Must be called once from main.
func RegisterEncodingMetrics() {
	if encodingRegistered {
		return
	}
	prometheus.MustRegister(EncodingRequestsTotal)
	prometheus.MustRegister(EncodingRequestDuration)
	prometheus.MustRegister(EncodingTokensTotal)
	prometheus.MustRegister(EncodingErrorsTotal)
	prometheus.MustRegister(EncodingBudgetTokensRemaining)
	prometheus.MustRegister(EncodingCacheTotal)
	encodingRegistered = true
}
