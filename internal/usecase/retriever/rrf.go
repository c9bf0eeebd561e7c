package retriever

import (
	"sort"

	"github.com/haytools/needle/internal/domain"
)

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

// fuseRRF merges dense and lexical rankings via Reciprocal Rank Fusion:
// score(d) = sum of 1/(k + rank_i(d)) for each ranking where d appears.
// When a document appears in both lists, the dense result's document is kept
// (it may carry the embedding).
func fuseRRF(dense, lexical []domain.ScoredDocument, topK int) []domain.ScoredDocument {
	type scored struct {
		doc   domain.Document
		score float64
		order int
	}

	merged := make(map[string]*scored, len(dense)+len(lexical))

	for rank, r := range dense {
		merged[r.Document.ID] = &scored{
			doc:   r.Document,
			score: 1.0 / float64(rrfK+rank+1),
			order: rank,
		}
	}

	for rank, r := range lexical {
		s := 1.0 / float64(rrfK+rank+1)
		if existing, ok := merged[r.Document.ID]; ok {
			existing.score += s
			continue
		}
		merged[r.Document.ID] = &scored{
			doc:   r.Document,
			score: s,
			order: len(dense) + rank,
		}
	}

	entries := make([]*scored, 0, len(merged))
	for _, s := range merged {
		entries = append(entries, s)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].order < entries[j].order
	})

	if topK > len(entries) {
		topK = len(entries)
	}
	out := make([]domain.ScoredDocument, 0, topK)
	for _, e := range entries[:topK] {
		out = append(out, domain.ScoredDocument{Document: e.doc, Score: e.score})
	}
	return out
}
