// Package index provides an exact nearest-neighbor index over fixed-dimension
// float32 vectors. The index is owned by the document store; pipeline-level
// code never queries it directly.
package index

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/haytools/needle/internal/domain"
)

// Metric is the similarity metric, declared once at construction. Mixing
// metrics over the lifetime of an index silently corrupts ranking, so there
// is no setter.
type Metric string

const (
	// DotProduct scores by inner product.
	DotProduct Metric = "dot_product"
	// Cosine scores by cosine similarity.
	Cosine Metric = "cosine"
	// Euclidean scores by negated squared L2 distance, so higher is closer.
	Euclidean Metric = "euclidean"
)

func (m Metric) valid() bool {
	switch m {
	case DotProduct, Cosine, Euclidean:
		return true
	}
	return false
}

// Hit is a single search result: document id plus similarity score
// (higher is closer, for every metric).
type Hit struct {
	ID    string
	Score float64
}

// Flat is an exact (brute-force) vector index. Thread-safe.
type Flat struct {
	mu     sync.RWMutex
	metric Metric
	dim    int
	ids    []string
	pos    map[string]int
	vecs   [][]float32
	norms  []float64
}

// NewFlat creates an empty index for the given dimension and metric.
func NewFlat(dim int, metric Metric) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index: dimension must be positive, got %d", dim)
	}
	if !metric.valid() {
		return nil, fmt.Errorf("index: unknown metric %q", metric)
	}
	return &Flat{
		metric: metric,
		dim:    dim,
		pos:    make(map[string]int),
	}, nil
}

// Dimension returns the configured vector dimension.
func (f *Flat) Dimension() int { return f.dim }

// Metric returns the similarity metric declared at construction.
func (f *Flat) Metric() Metric { return f.metric }

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Add inserts or replaces the vector for id. One entry per id: re-adding the
// same id replaces the prior vector.
func (f *Flat) Add(id string, vec []float32) error {
	if len(vec) != f.dim {
		return domain.NewDimensionError(len(vec), f.dim)
	}
	stored := append([]float32(nil), vec...)

	f.mu.Lock()
	defer f.mu.Unlock()

	if i, ok := f.pos[id]; ok {
		f.vecs[i] = stored
		f.norms[i] = norm(stored)
		return nil
	}
	f.pos[id] = len(f.ids)
	f.ids = append(f.ids, id)
	f.vecs = append(f.vecs, stored)
	f.norms = append(f.norms, norm(stored))
	return nil
}

// Remove deletes the entry for id. No-op when absent.
func (f *Flat) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i, ok := f.pos[id]
	if !ok {
		return
	}
	last := len(f.ids) - 1
	if i != last {
		f.ids[i] = f.ids[last]
		f.vecs[i] = f.vecs[last]
		f.norms[i] = f.norms[last]
		f.pos[f.ids[i]] = i
	}
	f.ids = f.ids[:last]
	f.vecs = f.vecs[:last]
	f.norms = f.norms[:last]
	delete(f.pos, id)
}

// Rebuild replaces the entire index contents in one pass. Later duplicates of
// the same id win. Fails without side effects on any dimension mismatch.
func (f *Flat) Rebuild(ids []string, vecs [][]float32) error {
	if len(ids) != len(vecs) {
		return fmt.Errorf("index: ids and vectors length mismatch: %d != %d", len(ids), len(vecs))
	}
	for _, v := range vecs {
		if len(v) != f.dim {
			return domain.NewDimensionError(len(v), f.dim)
		}
	}

	pos := make(map[string]int, len(ids))
	newIDs := make([]string, 0, len(ids))
	newVecs := make([][]float32, 0, len(ids))
	newNorms := make([]float64, 0, len(ids))
	for i, id := range ids {
		stored := append([]float32(nil), vecs[i]...)
		if j, ok := pos[id]; ok {
			newVecs[j] = stored
			newNorms[j] = norm(stored)
			continue
		}
		pos[id] = len(newIDs)
		newIDs = append(newIDs, id)
		newVecs = append(newVecs, stored)
		newNorms = append(newNorms, norm(stored))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids, f.vecs, f.norms, f.pos = newIDs, newVecs, newNorms, pos
	return nil
}

// Search returns the k closest entries ordered by descending similarity.
// k greater than the number of stored vectors returns all of them.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, domain.NewDimensionError(len(query), f.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("index: k must be positive, got %d: %w", k, domain.ErrInvalidArgument)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if len(f.ids) == 0 {
		return nil, nil
	}

	qn := norm(query)
	hits := make([]Hit, 0, len(f.ids))
	for i := range f.vecs {
		s, ok := f.score(query, qn, i)
		if !ok {
			continue
		}
		hits = append(hits, Hit{ID: f.ids[i], Score: s})
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k:k], nil
}

func (f *Flat) score(query []float32, queryNorm float64, i int) (float64, bool) {
	switch f.metric {
	case Cosine:
		if queryNorm == 0 || f.norms[i] == 0 {
			return 0, false
		}
		s := dot(query, f.vecs[i]) / (queryNorm * f.norms[i])
		if math.IsNaN(s) {
			return 0, false
		}
		return s, true
	case Euclidean:
		return -squaredL2(query, f.vecs[i]), true
	default:
		return dot(query, f.vecs[i]), true
	}
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func squaredL2(a, b []float32) float64 {
	var s float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		s += d * d
	}
	return s
}

func norm(v []float32) float64 { return math.Sqrt(dot(v, v)) }
