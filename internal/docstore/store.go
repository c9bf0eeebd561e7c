// Package docstore keeps document text and metadata alongside a vector index
// over their embeddings. The store is the single owner of the index: all
// similarity search goes through QueryByEmbedding, and UpdateEmbeddings is
// the only synchronization point between text and vectors.
package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"iter"
	"sync"

	"go.uber.org/zap"

	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/index"
)

// Store is an in-memory document store with dense retrieval.
// Writers (WriteDocuments, UpdateEmbeddings) serialize on the store mutex.
type Store struct {
	// updateMu serializes whole UpdateEmbeddings passes with each other;
	// mu guards document and index state for the short critical sections.
	updateMu sync.Mutex

	mu    sync.RWMutex
	docs  map[string]*domain.Document
	order []string
	stale map[string]struct{}
	idx   *index.Flat

	logger *zap.Logger
}

// New creates a store whose index uses the given dimension and metric.
func New(dim int, metric index.Metric, logger *zap.Logger) (*Store, error) {
	idx, err := index.NewFlat(dim, metric)
	if err != nil {
		return nil, fmt.Errorf("create index: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		docs:   make(map[string]*domain.Document),
		stale:  make(map[string]struct{}),
		idx:    idx,
		logger: logger,
	}, nil
}

// Dimension returns the configured embedding dimension.
func (s *Store) Dimension() int { return s.idx.Dimension() }

// WriteOptions controls WriteDocuments behavior.
type WriteOptions struct {
	// FailOnDuplicate rejects a batch containing an id that already exists
	// instead of the default last-write-wins overwrite.
	FailOnDuplicate bool
}

// WriteOption mutates WriteOptions.
type WriteOption func(*WriteOptions)

// FailOnDuplicate enables duplicate-id rejection for one write.
func FailOnDuplicate() WriteOption {
	return func(o *WriteOptions) { o.FailOnDuplicate = true }
}

// WriteDocuments stores a batch of documents. Documents without an id get a
// content-derived one. Duplicate ids overwrite prior content unless
// FailOnDuplicate is set. Written documents are marked as needing embedding.
func (s *Store) WriteDocuments(ctx context.Context, docs []domain.Document, opts ...WriteOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var o WriteOptions
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if o.FailOnDuplicate {
		seen := make(map[string]struct{}, len(docs))
		for i := range docs {
			id := docs[i].ID
			if id == "" {
				id = contentID(docs[i].Text)
			}
			if _, ok := s.docs[id]; ok {
				return fmt.Errorf("document %q: %w", id, domain.ErrAlreadyExists)
			}
			if _, ok := seen[id]; ok {
				return fmt.Errorf("document %q duplicated in batch: %w", id, domain.ErrAlreadyExists)
			}
			seen[id] = struct{}{}
		}
	}

	for i := range docs {
		doc := docs[i].Clone()
		if doc.ID == "" {
			doc.ID = contentID(doc.Text)
		}
		// Embeddings never survive a write: the next UpdateEmbeddings pass
		// owns vector state.
		doc.Embedding = nil

		if _, exists := s.docs[doc.ID]; !exists {
			s.order = append(s.order, doc.ID)
		} else {
			s.idx.Remove(doc.ID)
		}
		s.docs[doc.ID] = &doc
		s.stale[doc.ID] = struct{}{}
	}

	s.logger.Debug("Wrote documents", zap.Int("count", len(docs)), zap.Int("total", len(s.docs)))
	return nil
}

// GetByID returns a copy of the document, or domain.ErrDocumentNotFound.
func (s *Store) GetByID(_ context.Context, id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("document %q: %w", id, domain.ErrDocumentNotFound)
	}
	return doc.Clone(), nil
}

// Count returns the number of stored documents.
func (s *Store) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// All returns a restartable sequence over a snapshot of the current
// documents, in insertion order. Each call observes the state at call time;
// mutation during iteration cannot invalidate the sequence.
func (s *Store) All(filters ...domain.Filters) iter.Seq[domain.Document] {
	var filter domain.Filters
	if len(filters) > 0 {
		filter = filters[0]
	}

	s.mu.RLock()
	snapshot := make([]domain.Document, 0, len(s.order))
	for _, id := range s.order {
		doc := s.docs[id]
		if !filter.Match(doc.Meta) {
			continue
		}
		snapshot = append(snapshot, doc.Clone())
	}
	s.mu.RUnlock()

	return func(yield func(domain.Document) bool) {
		for _, doc := range snapshot {
			if !yield(doc) {
				return
			}
		}
	}
}

// QueryByEmbedding returns the topK documents most similar to vec, in the
// index's descending-similarity order. Documents lacking an embedding do not
// participate. Querying before any embedding pass yields an empty result,
// not an error. The returned set always satisfies the filter.
func (s *Store) QueryByEmbedding(
	ctx context.Context, vec []float32, topK int, filters domain.Filters,
) ([]domain.ScoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d: %w", topK, domain.ErrInvalidArgument)
	}
	if s.idx.Len() == 0 {
		if len(vec) != s.idx.Dimension() {
			return nil, domain.NewDimensionError(len(vec), s.idx.Dimension())
		}
		return nil, nil
	}

	// The index is exact, so a filtered query scans everything and truncates
	// after the predicate: the result always satisfies the filter.
	k := topK
	if !filters.IsEmpty() {
		k = s.idx.Len()
	}

	hits, err := s.idx.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ScoredDocument, 0, topK)
	for _, h := range hits {
		doc, ok := s.docs[h.ID]
		if !ok {
			continue
		}
		if !filters.Match(doc.Meta) {
			continue
		}
		out = append(out, domain.ScoredDocument{Document: doc.Clone(), Score: h.Score})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// contentID derives a stable id from document text.
func contentID(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
