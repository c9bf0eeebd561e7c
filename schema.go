package needle

import (
	"github.com/haytools/needle/internal/docstore"
	"github.com/haytools/needle/internal/domain"
)

// Document is a unit of corpus text plus optional metadata.
// An empty ID is filled with a content-derived identifier on write.
type Document struct {
	ID   string
	Text string
	Meta map[string]string
}

// ScoredDocument is a retrieval result: a document plus its similarity score
// (higher is closer, regardless of metric).
type ScoredDocument struct {
	Document
	Score float64
}

// NoAnswerOffset marks an answer that asserts the passage holds no answer.
const NoAnswerOffset = -1

// Answer is a ranked answer span produced by the reading stage.
type Answer struct {
	// Text is the verbatim span. Empty for a no-answer prediction.
	Text string
	// Context is the span's surrounding passage text.
	Context string
	// Score is the reader's confidence in [0, 1].
	Score float64
	// DocumentID identifies the source passage.
	DocumentID string
	// Offset is the byte offset of Text within the passage, or NoAnswerOffset.
	Offset int
	// Rank of the source passage in retrieval order, starting at 1.
	Rank int
}

// IsNoAnswer reports whether this is a no-answer prediction.
func (a Answer) IsNoAnswer() bool {
	return a.Offset == NoAnswerOffset && a.Text == ""
}

// Filters restrict an operation to documents whose metadata matches every
// key exactly.
type Filters map[string]string

// FailedDocument records a document whose encoding failed during an
// embedding pass.
type FailedDocument struct {
	ID  string
	Err error
}

// EmbedReport summarizes an UpdateEmbeddings pass.
type EmbedReport struct {
	Encoded   int
	Unchanged int
	Failed    []FailedDocument
}

func toDomainDocuments(docs []Document) []domain.Document {
	out := make([]domain.Document, len(docs))
	for i, d := range docs {
		out[i] = domain.Document{ID: d.ID, Text: d.Text, Meta: d.Meta}
	}
	return out
}

func fromDomainDocument(d domain.Document) Document {
	return Document{ID: d.ID, Text: d.Text, Meta: d.Meta}
}

func fromScoredDocuments(docs []domain.ScoredDocument) []ScoredDocument {
	out := make([]ScoredDocument, len(docs))
	for i, d := range docs {
		out[i] = ScoredDocument{Document: fromDomainDocument(d.Document), Score: d.Score}
	}
	return out
}

func fromDomainAnswers(answers []domain.Answer) []Answer {
	out := make([]Answer, len(answers))
	for i, a := range answers {
		out[i] = Answer{
			Text:       a.Text,
			Context:    a.Context,
			Score:      a.Score,
			DocumentID: a.DocumentID,
			Offset:     a.Offset,
			Rank:       a.Rank,
		}
	}
	return out
}

func fromEmbedReport(r docstore.EmbedReport) EmbedReport {
	out := EmbedReport{Encoded: r.Encoded, Unchanged: r.Unchanged}
	for _, f := range r.Failed {
		out.Failed = append(out.Failed, FailedDocument{ID: f.ID, Err: f.Err})
	}
	return out
}
