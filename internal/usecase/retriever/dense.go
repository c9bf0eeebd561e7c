package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/haytools/needle/internal/docstore"
	"github.com/haytools/needle/internal/domain"
)

// Dense retrieves by vector similarity: it encodes the query and delegates
// the nearest-neighbor lookup to the document store.
type Dense struct {
	queryEnc   domain.QueryEncoder
	passageEnc domain.PassageEncoder
	store      VectorSearcher
	filters    domain.Filters
	embedBatch int
	logger     *zap.Logger
}

// NewDense creates a dense retriever over the given store and dual encoder.
func NewDense(enc domain.Encoder, store VectorSearcher, logger *zap.Logger) *Dense {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dense{queryEnc: enc, passageEnc: enc, store: store, logger: logger}
}

// WithFilters restricts retrieval to documents matching the metadata filter.
func (d *Dense) WithFilters(filters domain.Filters) *Dense {
	d.filters = filters
	return d
}

// WithEmbedBatchSize sets the configured default batch size for embedding
// passes. Per-call options still win.
func (d *Dense) WithEmbedBatchSize(n int) *Dense {
	d.embedBatch = n
	return d
}

// Retrieve encodes the query and returns the store's topK results in
// descending similarity order.
func (d *Dense) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredDocument, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d: %w", topK, domain.ErrInvalidArgument)
	}

	res, err := d.queryEnc.EncodeQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	docs, err := d.store.QueryByEmbedding(ctx, res.Embedding, topK, d.filters)
	if err != nil {
		return nil, fmt.Errorf("query by embedding: %w", err)
	}
	return docs, nil
}

// UpdateEmbeddings re-encodes the corpus with the passage encoder and
// repopulates the vector index. This is the only coupling between the
// retriever and the store's embedding lifecycle.
func (d *Dense) UpdateEmbeddings(ctx context.Context, opts ...docstore.EmbedOption) (docstore.EmbedReport, error) {
	if d.embedBatch > 0 {
		opts = append([]docstore.EmbedOption{docstore.WithBatchSize(d.embedBatch)}, opts...)
	}
	report, err := d.store.UpdateEmbeddings(ctx, d.passageEnc, opts...)
	if err != nil {
		return report, fmt.Errorf("update embeddings: %w", err)
	}
	if len(report.Failed) > 0 {
		d.logger.Warn("Some documents failed to embed", zap.Int("failed", len(report.Failed)))
	}
	return report, nil
}
