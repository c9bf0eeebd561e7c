package needle

import (
	"go.uber.org/zap"

	"github.com/haytools/needle/internal/index"
)

// Metric selects the similarity metric of the vector index. For every
// metric a higher score means a closer match.
type Metric string

const (
	// MetricDotProduct scores by inner product. The default.
	MetricDotProduct Metric = Metric(index.DotProduct)
	// MetricCosine scores by cosine similarity.
	MetricCosine Metric = Metric(index.Cosine)
	// MetricEuclidean scores by negated squared L2 distance.
	MetricEuclidean Metric = Metric(index.Euclidean)
)

// Retrieval selects the retrieval backend used by Retrieve and Ask.
type Retrieval string

const (
	// RetrievalDense retrieves by vector similarity. The default.
	RetrievalDense Retrieval = "dense"
	// RetrievalLexical retrieves by BM25 term matching; no encoder calls.
	RetrievalLexical Retrieval = "lexical"
	// RetrievalHybrid fuses dense and lexical rankings via reciprocal rank
	// fusion.
	RetrievalHybrid Retrieval = "hybrid"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	metric           Metric
	retrieval        Retrieval
	reader           Reader
	logger           *zap.Logger
	maxParallelReads int
}

// WithMetric sets the index similarity metric. The metric is fixed for the
// lifetime of the client.
func WithMetric(m Metric) Option {
	return func(c *clientConfig) { c.metric = m }
}

// WithRetrieval selects the retrieval backend.
func WithRetrieval(r Retrieval) Option {
	return func(c *clientConfig) { c.retrieval = r }
}

// WithReader installs the reading stage. Without a reader, Ask returns an
// error; Retrieve still works.
func WithReader(r Reader) Option {
	return func(c *clientConfig) { c.reader = r }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}

// WithMaxParallelReads caps concurrent reader calls during Ask.
func WithMaxParallelReads(n int) Option {
	return func(c *clientConfig) { c.maxParallelReads = n }
}
