package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/haytools/needle/internal/domain"
)

func TestFuseRRF_OverlapWins(t *testing.T) {
	dense := []domain.ScoredDocument{
		scoredDoc("a", 0.9),
		scoredDoc("b", 0.8),
	}
	lexical := []domain.ScoredDocument{
		scoredDoc("b", 5.0),
		scoredDoc("c", 4.0),
	}

	fused := fuseRRF(dense, lexical, 3)
	if len(fused) != 3 {
		t.Fatalf("got %d results, want 3", len(fused))
	}
	// b appears in both rankings; its reciprocal-rank contributions sum.
	if fused[0].Document.ID != "b" {
		t.Errorf("top = %s, want b", fused[0].Document.ID)
	}
	wantB := 1.0/float64(rrfK+2) + 1.0/float64(rrfK+1)
	if diff := fused[0].Score - wantB; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("b score = %v, want %v", fused[0].Score, wantB)
	}
}

func TestFuseRRF_TieKeepsDenseFirst(t *testing.T) {
	// a only in dense at rank 1, c only in lexical at rank 1: equal RRF
	// scores, dense order wins the tie.
	fused := fuseRRF(
		[]domain.ScoredDocument{scoredDoc("a", 0.9)},
		[]domain.ScoredDocument{scoredDoc("c", 3.0)},
		2,
	)
	if len(fused) != 2 || fused[0].Document.ID != "a" || fused[1].Document.ID != "c" {
		t.Errorf("fused = %+v, want [a c]", fused)
	}
}

func TestFuseRRF_KeepsDenseDocumentOnOverlap(t *testing.T) {
	withVec := domain.ScoredDocument{
		Document: domain.Document{ID: "x", Text: "dense copy", Embedding: []float32{1}},
		Score:    0.9,
	}
	lexCopy := domain.ScoredDocument{
		Document: domain.Document{ID: "x", Text: "lexical copy"},
		Score:    2.0,
	}

	fused := fuseRRF([]domain.ScoredDocument{withVec}, []domain.ScoredDocument{lexCopy}, 1)
	if fused[0].Document.Text != "dense copy" || !fused[0].Document.HasEmbedding() {
		t.Errorf("fused doc = %+v, want the dense copy kept", fused[0])
	}
}

func TestFuseRRF_TopKTruncation(t *testing.T) {
	dense := []domain.ScoredDocument{scoredDoc("a", 1), scoredDoc("b", 0.9), scoredDoc("c", 0.8)}
	fused := fuseRRF(dense, nil, 2)
	if len(fused) != 2 {
		t.Errorf("got %d, want 2", len(fused))
	}
}

func TestHybrid_FusesBothBackends(t *testing.T) {
	dense := &stubRetriever{results: []domain.ScoredDocument{scoredDoc("a", 0.9), scoredDoc("b", 0.8)}}
	lexical := &stubRetriever{results: []domain.ScoredDocument{scoredDoc("b", 4.0)}}
	h := NewHybrid(dense, lexical)

	docs, err := h.Retrieve(context.Background(), "q", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if dense.calls != 1 || lexical.calls != 1 {
		t.Errorf("calls dense=%d lexical=%d, want 1/1", dense.calls, lexical.calls)
	}
	if len(docs) != 2 || docs[0].Document.ID != "b" {
		t.Errorf("docs = %+v, want b fused on top", docs)
	}
}

func TestHybrid_BackendErrorPropagates(t *testing.T) {
	boom := errors.New("dense down")
	h := NewHybrid(&stubRetriever{err: boom}, &stubRetriever{})

	_, err := h.Retrieve(context.Background(), "q", 3)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want dense error", err)
	}
}

func TestHybrid_Validation(t *testing.T) {
	h := NewHybrid(&stubRetriever{}, &stubRetriever{})
	if _, err := h.Retrieve(context.Background(), "q", 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}
