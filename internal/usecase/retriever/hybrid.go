package retriever

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/haytools/needle/internal/domain"
)

// Hybrid runs dense and lexical retrieval in parallel and fuses the two
// rankings via Reciprocal Rank Fusion.
type Hybrid struct {
	dense   Retriever
	lexical Retriever
}

// NewHybrid creates a hybrid retriever from a dense and a lexical backend.
func NewHybrid(dense, lexical Retriever) *Hybrid {
	return &Hybrid{dense: dense, lexical: lexical}
}

// Retrieve fans out to both backends, joins, and fuses.
func (h *Hybrid) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredDocument, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d: %w", topK, domain.ErrInvalidArgument)
	}

	var denseRes, lexRes []domain.ScoredDocument

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		denseRes, err = h.dense.Retrieve(gctx, query, topK)
		if err != nil {
			return fmt.Errorf("dense retrieve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		lexRes, err = h.lexical.Retrieve(gctx, query, topK)
		if err != nil {
			return fmt.Errorf("lexical retrieve: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return fuseRRF(denseRes, lexRes, topK), nil
}
