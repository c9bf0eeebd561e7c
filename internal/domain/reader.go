package domain

import "context"

// Reader extracts answer spans from a passage for a question.
// Candidates are returned in descending confidence order and may include the
// "no answer" sentinel (see NoAnswer). The pipeline treats this as an opaque
// scoring oracle.
type Reader interface {
	Predict(ctx context.Context, question, passage string, maxAnswers int) ([]Answer, error)
}
