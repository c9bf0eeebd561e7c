package domain

// NoAnswerOffset marks an answer candidate that contains no span.
const NoAnswerOffset = -1

// Answer is one candidate produced by a reader for a (question, passage) pair.
// Scores are comparable within one reader invocation batch; higher is more confident.
type Answer struct {
	Text       string
	Context    string
	Score      float64
	DocumentID string
	Offset     int
	Rank       int
}

// IsNoAnswer reports whether the candidate is the "no answer" sentinel.
func (a *Answer) IsNoAnswer() bool { return a.Text == "" && a.Offset == NoAnswerOffset }

// NoAnswer builds the sentinel candidate with the reader's floor confidence.
func NoAnswer(score float64) Answer {
	return Answer{Offset: NoAnswerOffset, Score: score}
}
