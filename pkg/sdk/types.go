package sdk

import "fmt"

// Document is a unit of corpus text plus optional metadata.
type Document struct {
	ID   string            `json:"id,omitempty"`
	Text string            `json:"text"`
	Meta map[string]string `json:"meta,omitempty"`
}

// SearchHit is one retrieval result.
type SearchHit struct {
	ID    string            `json:"id"`
	Text  string            `json:"text"`
	Meta  map[string]string `json:"meta,omitempty"`
	Score float64           `json:"score"`
}

// AskOptions are the per-question pipeline parameters. Zero values use
// server defaults.
type AskOptions struct {
	TopKRetriever int
	TopKReader    int
	MaxAnswers    int
}

// Answer is one ranked answer span.
type Answer struct {
	Answer     string  `json:"answer"`
	Context    string  `json:"context,omitempty"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"document_id"`
	Offset     int     `json:"offset"`
	NoAnswer   bool    `json:"no_answer,omitempty"`
}

// EmbedReport summarizes an embedding pass.
type EmbedReport struct {
	Encoded   int      `json:"encoded"`
	Unchanged int      `json:"unchanged"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

// HealthReport is the server health summary.
type HealthReport struct {
	Status    string            `json:"status"`
	Documents int               `json:"documents"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("needle api: %d %s: %s", e.Status, e.Code, e.Message)
}

// --- wire types ---

type writeDocumentsRequest struct {
	Documents       []Document `json:"documents"`
	FailOnDuplicate bool       `json:"fail_on_duplicate,omitempty"`
}

type writeDocumentsResponse struct {
	Written int `json:"written"`
}

type updateEmbeddingsRequest struct {
	BatchSize int `json:"batch_size,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type searchResponse struct {
	Results []SearchHit `json:"results"`
}

type askRequest struct {
	Question      string `json:"question"`
	TopKRetriever int    `json:"top_k_retriever,omitempty"`
	TopKReader    int    `json:"top_k_reader,omitempty"`
	MaxAnswers    int    `json:"max_answers,omitempty"`
}

type askResponse struct {
	Question string   `json:"question"`
	Answers  []Answer `json:"answers"`
}
