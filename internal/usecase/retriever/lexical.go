package retriever

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/haytools/needle/internal/domain"
)

// BM25 constants, standard Robertson/Walker values.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// Lexical retrieves by BM25 term matching over the corpus text. It scans the
// store on every call, which is fine for the corpus sizes this service
// targets; retrieval results never depend on embedding state.
type Lexical struct {
	source  DocumentSource
	filters domain.Filters
}

// NewLexical creates a lexical retriever over the document source.
func NewLexical(source DocumentSource) *Lexical {
	return &Lexical{source: source}
}

// WithFilters restricts retrieval to documents matching the metadata filter.
func (l *Lexical) WithFilters(filters domain.Filters) *Lexical {
	l.filters = filters
	return l
}

// Retrieve scores every document against the query terms and returns the
// topK best, descending. Ties keep corpus order.
func (l *Lexical) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredDocument, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d: %w", topK, domain.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	type indexed struct {
		doc   domain.Document
		terms map[string]int
		len   int
	}

	var corpus []indexed
	df := make(map[string]int)
	var totalLen int
	for doc := range l.source.All(l.filters) {
		terms := termCounts(tokenize(doc.Text))
		docLen := 0
		for _, n := range terms {
			docLen += n
		}
		for term := range terms {
			df[term]++
		}
		totalLen += docLen
		corpus = append(corpus, indexed{doc: doc, terms: terms, len: docLen})
	}
	if len(corpus) == 0 {
		return nil, nil
	}
	avgLen := float64(totalLen) / float64(len(corpus))

	scored := make([]domain.ScoredDocument, 0, len(corpus))
	for _, d := range corpus {
		var score float64
		for _, term := range queryTerms {
			tf := float64(d.terms[term])
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (float64(len(corpus))-float64(df[term])+0.5)/(float64(df[term])+0.5))
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*float64(d.len)/avgLen))
		}
		if score <= 0 {
			continue
		}
		scored = append(scored, domain.ScoredDocument{Document: d.doc, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK:topK], nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func termCounts(terms []string) map[string]int {
	counts := make(map[string]int, len(terms))
	for _, t := range terms {
		counts[t]++
	}
	return counts
}
