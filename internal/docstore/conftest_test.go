package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/index"
)

// --- Mocks ---

// stubEncoder returns deterministic vectors derived from text length. A
// batch containing a text from failTexts fails as a whole; single-text
// retries fail only for that text, exercising the fallback path.
type stubEncoder struct {
	dim         int
	failTexts   map[string]bool
	vecFor      func(text string) []float32
	batchCalls  int
	singleCalls int
	encoded     []string
}

func newStubEncoder(dim int) *stubEncoder {
	return &stubEncoder{dim: dim, failTexts: map[string]bool{}}
}

func (e *stubEncoder) vector(text string) []float32 {
	if e.vecFor != nil {
		return e.vecFor(text)
	}
	vec := make([]float32, e.dim)
	vec[0] = float32(len(text))
	if e.dim > 1 {
		vec[1] = 1
	}
	return vec
}

func (e *stubEncoder) EncodePassages(_ context.Context, texts []string) (domain.BatchEncodingResult, error) {
	if len(texts) == 1 {
		e.singleCalls++
		if e.failTexts[texts[0]] {
			return domain.BatchEncodingResult{}, fmt.Errorf("provider rejected passage")
		}
		e.encoded = append(e.encoded, texts[0])
		return domain.BatchEncodingResult{Embeddings: [][]float32{e.vector(texts[0])}}, nil
	}

	e.batchCalls++
	for _, t := range texts {
		if e.failTexts[t] {
			return domain.BatchEncodingResult{}, errors.New("batch contains a bad passage")
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
		e.encoded = append(e.encoded, t)
	}
	return domain.BatchEncodingResult{Embeddings: out}, nil
}

func mustStore(t *testing.T, dim int) *Store {
	t.Helper()
	s, err := New(dim, index.DotProduct, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func mustWrite(t *testing.T, s *Store, docs ...domain.Document) {
	t.Helper()
	if err := s.WriteDocuments(context.Background(), docs); err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}
}

func mustEmbed(t *testing.T, s *Store, enc domain.PassageEncoder) EmbedReport {
	t.Helper()
	report, err := s.UpdateEmbeddings(context.Background(), enc)
	if err != nil {
		t.Fatalf("UpdateEmbeddings: %v", err)
	}
	return report
}
