package docstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/haytools/needle/internal/domain"
)

// DefaultEmbedBatchSize is the number of passages sent to the encoder per call.
const DefaultEmbedBatchSize = 32

// EmbedOptions controls an UpdateEmbeddings pass.
type EmbedOptions struct {
	// BatchSize is the number of passages per encoder call.
	BatchSize int
	// Progress, when set, is invoked after each batch with processed and
	// total counts. Observability only; has no effect on correctness.
	Progress func(done, total int)
}

// EmbedOption mutates EmbedOptions.
type EmbedOption func(*EmbedOptions)

// WithBatchSize overrides the encoder batch size.
func WithBatchSize(n int) EmbedOption {
	return func(o *EmbedOptions) { o.BatchSize = n }
}

// WithProgress installs a progress callback.
func WithProgress(fn func(done, total int)) EmbedOption {
	return func(o *EmbedOptions) { o.Progress = fn }
}

// FailedDocument records a document whose encoding failed, for retry.
type FailedDocument struct {
	ID  string
	Err error
}

// EmbedReport summarizes an UpdateEmbeddings pass.
type EmbedReport struct {
	// Encoded is the number of documents embedded during this pass.
	Encoded int
	// Unchanged is the number of documents that already had a current embedding.
	Unchanged int
	// Failed lists documents whose encoding failed; they stay pending and are
	// retried on the next pass.
	Failed []FailedDocument
}

// UpdateEmbeddings encodes every document that needs an embedding and
// rebuilds the vector index. It is idempotent: a second pass with no
// intervening writes leaves the index contents identical. Documents written
// after a prior pass are encoded without re-encoding unchanged ones.
//
// A single document's encode failure is recorded in the report, not fatal to
// the pass. An encoder whose output dimension disagrees with the index is
// fatal: writing such vectors would corrupt every subsequent search.
//
// Encoding runs outside the store lock; the vector swap holds it exclusively,
// so no document is ever visible with a half-written embedding. The pass is
// cancellable at batch boundaries.
func (s *Store) UpdateEmbeddings(
	ctx context.Context, enc domain.PassageEncoder, opts ...EmbedOption,
) (EmbedReport, error) {
	o := EmbedOptions{BatchSize: DefaultEmbedBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultEmbedBatchSize
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	pending := s.snapshotPending()
	total := len(pending)

	var report EmbedReport
	vectors := make(map[string][]float32, total)
	texts := make(map[string]string, total)

	for start := 0; start < total; start += o.BatchSize {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("update embeddings canceled: %w", err)
		}

		end := min(start+o.BatchSize, total)
		batch := pending[start:end]

		if err := s.encodeBatch(ctx, enc, batch, vectors, &report); err != nil {
			return report, err
		}
		for _, d := range batch {
			texts[d.ID] = d.Text
		}

		if o.Progress != nil {
			o.Progress(end, total)
		}
	}

	encoded, unchanged, err := s.swap(vectors, texts)
	if err != nil {
		return report, err
	}
	report.Encoded = encoded
	report.Unchanged = unchanged

	s.logger.Info("Updated embeddings",
		zap.Int("encoded", report.Encoded),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// pendingDoc is the (id, text) snapshot taken before encoding starts.
type pendingDoc struct {
	ID   string
	Text string
}

func (s *Store) snapshotPending() []pendingDoc {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]pendingDoc, 0, len(s.stale))
	for _, id := range s.order {
		if _, ok := s.stale[id]; !ok {
			continue
		}
		pending = append(pending, pendingDoc{ID: id, Text: s.docs[id].Text})
	}
	return pending
}

// encodeBatch encodes one batch, falling back to per-document calls when the
// batch call fails so a single bad passage cannot abort its neighbors.
func (s *Store) encodeBatch(
	ctx context.Context, enc domain.PassageEncoder,
	batch []pendingDoc, vectors map[string][]float32, report *EmbedReport,
) error {
	texts := make([]string, len(batch))
	for i, d := range batch {
		texts[i] = d.Text
	}

	res, err := enc.EncodePassages(ctx, texts)
	if err == nil {
		if len(res.Embeddings) != len(batch) {
			return fmt.Errorf("encoder returned %d vectors for %d passages: %w",
				len(res.Embeddings), len(batch), domain.ErrEncodingFailure)
		}
		for i, vec := range res.Embeddings {
			if len(vec) != s.idx.Dimension() {
				return fmt.Errorf("passage %q: %w", batch[i].ID,
					domain.NewDimensionError(len(vec), s.idx.Dimension()))
			}
			vectors[batch[i].ID] = vec
		}
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("update embeddings canceled: %w", ctxErr)
	}

	s.logger.Warn("Batch encode failed, retrying per document",
		zap.Int("batch_size", len(batch)), zap.Error(err))

	for _, d := range batch {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("update embeddings canceled: %w", ctxErr)
		}
		res, err := enc.EncodePassages(ctx, []string{d.Text})
		if err != nil {
			report.Failed = append(report.Failed, FailedDocument{
				ID:  d.ID,
				Err: fmt.Errorf("%w: %w", domain.ErrEncodingFailure, err),
			})
			continue
		}
		if len(res.Embeddings) != 1 {
			report.Failed = append(report.Failed, FailedDocument{
				ID:  d.ID,
				Err: fmt.Errorf("encoder returned %d vectors for one passage: %w", len(res.Embeddings), domain.ErrEncodingFailure),
			})
			continue
		}
		vec := res.Embeddings[0]
		if len(vec) != s.idx.Dimension() {
			return fmt.Errorf("passage %q: %w", d.ID,
				domain.NewDimensionError(len(vec), s.idx.Dimension()))
		}
		vectors[d.ID] = vec
	}
	return nil
}

// swap applies freshly computed vectors and rebuilds the index from every
// embedded document, under the exclusive lock.
func (s *Store) swap(vectors map[string][]float32, snapshotTexts map[string]string) (encoded, unchanged int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, vec := range vectors {
		doc, ok := s.docs[id]
		if !ok {
			continue // deleted while encoding
		}
		// Overwritten while encoding: the vector belongs to stale text.
		// Leave the document pending for the next pass.
		if doc.Text != snapshotTexts[id] {
			continue
		}
		doc.Embedding = vec
		delete(s.stale, id)
		encoded++
	}

	ids := make([]string, 0, len(s.docs))
	vecs := make([][]float32, 0, len(s.docs))
	for _, id := range s.order {
		doc := s.docs[id]
		if !doc.HasEmbedding() {
			continue
		}
		ids = append(ids, id)
		vecs = append(vecs, doc.Embedding)
	}
	unchanged = len(ids) - encoded

	if err := s.idx.Rebuild(ids, vecs); err != nil {
		return 0, 0, fmt.Errorf("rebuild index: %w", err)
	}
	return encoded, unchanged, nil
}
