package finder

import (
	"context"

	"github.com/haytools/needle/internal/domain"
)

// Retriever pulls candidate passages for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredDocument, error)
}

// Reader extracts answer candidates from one passage.
type Reader interface {
	Predict(ctx context.Context, question, passage string, maxAnswers int) ([]domain.Answer, error)
}
