package encoding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/haytools/needle/internal/domain"
)

// DefaultMaxAPIBatchSize — максимальный размер батча для одного API-запроса.
const DefaultMaxAPIBatchSize = 256

// Batcher splits large passage batches into API-sized chunks and optionally
// encodes chunks on parallel shards. Output vectors are written back by input
// position, never by arrival order, so a reordering shard cannot silently
// mis-assign a vector. Correctness is independent of chunk size: this is a
// performance layer only.
type Batcher struct {
	inner    domain.Encoder
	maxBatch int
	shards   int
}

// NewBatcher wraps an encoder with chunking. shards <= 1 keeps encoding
// sequential.
func NewBatcher(inner domain.Encoder, maxBatch, shards int) *Batcher {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxAPIBatchSize
	}
	if shards <= 0 {
		shards = 1
	}
	return &Batcher{inner: inner, maxBatch: maxBatch, shards: shards}
}

// EncodeQuery delegates unchanged; queries are single texts.
func (b *Batcher) EncodeQuery(ctx context.Context, text string) (domain.EncodingResult, error) {
	res, err := b.inner.EncodeQuery(ctx, text)
	if err != nil {
		return domain.EncodingResult{}, fmt.Errorf("encode query: %w", err)
	}
	return res, nil
}

// EncodePassages chunks texts, encodes every chunk, and reassembles the
// vectors in input order.
func (b *Batcher) EncodePassages(ctx context.Context, texts []string) (domain.BatchEncodingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEncodingResult{}, nil
	}
	if len(texts) <= b.maxBatch {
		res, err := b.inner.EncodePassages(ctx, texts)
		if err != nil {
			return domain.BatchEncodingResult{}, fmt.Errorf("encode passages: %w", err)
		}
		return res, nil
	}

	out := domain.BatchEncodingResult{Embeddings: make([][]float32, len(texts))}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.shards)

	for start := 0; start < len(texts); start += b.maxBatch {
		end := min(start+b.maxBatch, len(texts))
		g.Go(func() error {
			res, err := b.inner.EncodePassages(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("encode passages [%d:%d]: %w", start, end, err)
			}
			if len(res.Embeddings) != end-start {
				return fmt.Errorf("encoder returned %d vectors for %d passages: %w",
					len(res.Embeddings), end-start, domain.ErrEncodingFailure)
			}
			mu.Lock()
			copy(out.Embeddings[start:end], res.Embeddings)
			out.PromptTokens += res.PromptTokens
			out.TotalTokens += res.TotalTokens
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.BatchEncodingResult{}, err
	}
	return out, nil
}

// Dimension returns the inner encoder's declared output dimension.
func (b *Batcher) Dimension() int { return b.inner.Dimension() }
