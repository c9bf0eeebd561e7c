// Package retriever pulls candidate passages for a question. Three backends
// share one call shape: dense (vector similarity), lexical (BM25), and
// hybrid (reciprocal rank fusion of both).
package retriever

import (
	"context"
	"iter"

	"github.com/haytools/needle/internal/docstore"
	"github.com/haytools/needle/internal/domain"
)

// Retriever returns the topK most relevant documents for a query, best
// first. An empty or not-yet-embedded corpus yields an empty result, never
// an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredDocument, error)
}

// VectorSearcher is the document-store contract dense retrieval consumes.
type VectorSearcher interface {
	QueryByEmbedding(ctx context.Context, vec []float32, topK int, filters domain.Filters) ([]domain.ScoredDocument, error)
	UpdateEmbeddings(ctx context.Context, enc domain.PassageEncoder, opts ...docstore.EmbedOption) (docstore.EmbedReport, error)
}

// DocumentSource is the corpus iteration contract lexical retrieval consumes.
type DocumentSource interface {
	All(filters ...domain.Filters) iter.Seq[domain.Document]
}
