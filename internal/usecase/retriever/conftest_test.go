package retriever

import (
	"context"
	"iter"

	"github.com/haytools/needle/internal/docstore"
	"github.com/haytools/needle/internal/domain"
)

// --- Mocks ---

type mockEncoder struct {
	queryVec   []float32
	queryErr   error
	queryCalls int
	lastQuery  string
}

func (m *mockEncoder) EncodeQuery(_ context.Context, text string) (domain.EncodingResult, error) {
	m.queryCalls++
	m.lastQuery = text
	if m.queryErr != nil {
		return domain.EncodingResult{}, m.queryErr
	}
	return domain.EncodingResult{Embedding: m.queryVec}, nil
}

func (m *mockEncoder) EncodePassages(_ context.Context, texts []string) (domain.BatchEncodingResult, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.queryVec
	}
	return domain.BatchEncodingResult{Embeddings: out}, nil
}

func (m *mockEncoder) Dimension() int { return len(m.queryVec) }

type mockSearcher struct {
	results     []domain.ScoredDocument
	err         error
	lastVec     []float32
	lastTopK    int
	lastFilters domain.Filters

	report    docstore.EmbedReport
	updateErr error
	lastEmbed docstore.EmbedOptions
}

func (m *mockSearcher) QueryByEmbedding(
	_ context.Context, vec []float32, topK int, filters domain.Filters,
) ([]domain.ScoredDocument, error) {
	m.lastVec = vec
	m.lastTopK = topK
	m.lastFilters = filters
	return m.results, m.err
}

func (m *mockSearcher) UpdateEmbeddings(
	_ context.Context, _ domain.PassageEncoder, opts ...docstore.EmbedOption,
) (docstore.EmbedReport, error) {
	m.lastEmbed = docstore.EmbedOptions{}
	for _, opt := range opts {
		opt(&m.lastEmbed)
	}
	return m.report, m.updateErr
}

// mockSource serves a fixed document list as an iter.Seq.
type mockSource struct {
	docs []domain.Document
}

func (m *mockSource) All(filters ...domain.Filters) iter.Seq[domain.Document] {
	var filter domain.Filters
	if len(filters) > 0 {
		filter = filters[0]
	}
	return func(yield func(domain.Document) bool) {
		for _, d := range m.docs {
			if !filter.Match(d.Meta) {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// stubRetriever returns canned results for hybrid tests.
type stubRetriever struct {
	results []domain.ScoredDocument
	err     error
	calls   int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ string, _ int) ([]domain.ScoredDocument, error) {
	s.calls++
	return s.results, s.err
}

func doc(id, text string) domain.Document {
	return domain.Document{ID: id, Text: text}
}

func scoredDoc(id string, score float64) domain.ScoredDocument {
	return domain.ScoredDocument{Document: domain.Document{ID: id}, Score: score}
}
