package metrics

import "github.com/prometheus/client_golang/prometheus"

// Reader and pipeline Prometheus metrics.
var (
	ReaderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "reader_requests_total",
			Help:      "Total number of reader invocations",
		},
		[]string{"provider", "model", "status"},
	)

	ReaderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "needle",
			Name:      "reader_request_duration_seconds",
			Help:      "Reader invocation duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	PipelinePassagesRetrieved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "needle",
			Name:      "pipeline_passages_retrieved",
			Help:      "Passages retrieved per question",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	PipelinePassageFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "pipeline_passage_failures_total",
			Help:      "Passages skipped because the reader failed on them",
		},
	)

	PipelineAnswersReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "needle",
			Name:      "pipeline_answers_returned",
			Help:      "Answers returned per question after ranking",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
)

var pipelineRegistered bool

// RegisterPipelineMetrics registers reader and pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineRegistered {
		return
	}
	prometheus.MustRegister(ReaderRequestsTotal)
	prometheus.MustRegister(ReaderRequestDuration)
	prometheus.MustRegister(PipelinePassagesRetrieved)
	prometheus.MustRegister(PipelinePassageFailures)
	prometheus.MustRegister(PipelineAnswersReturned)
	pipelineRegistered = true
}
