package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haytools/needle/internal/docstore"
	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/usecase/finder"
	"github.com/haytools/needle/internal/usecase/health"
)

// --- wire types ---

type documentPayload struct {
	ID   string            `json:"id,omitempty"`
	Text string            `json:"text"`
	Meta map[string]string `json:"meta,omitempty"`
}

type writeDocumentsRequest struct {
	Documents       []documentPayload `json:"documents"`
	FailOnDuplicate bool              `json:"fail_on_duplicate,omitempty"`
}

type writeDocumentsResponse struct {
	Written int `json:"written"`
}

type updateEmbeddingsRequest struct {
	BatchSize int `json:"batch_size,omitempty"`
}

type updateEmbeddingsResponse struct {
	Encoded   int      `json:"encoded"`
	Unchanged int      `json:"unchanged"`
	FailedIDs []string `json:"failed_ids,omitempty"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type searchHit struct {
	ID    string            `json:"id"`
	Text  string            `json:"text"`
	Meta  map[string]string `json:"meta,omitempty"`
	Score float64           `json:"score"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
}

type askRequest struct {
	Question      string `json:"question"`
	TopKRetriever int    `json:"top_k_retriever,omitempty"`
	TopKReader    int    `json:"top_k_reader,omitempty"`
	MaxAnswers    int    `json:"max_answers,omitempty"`
}

type answerPayload struct {
	Answer     string  `json:"answer"`
	Context    string  `json:"context,omitempty"`
	Score      float64 `json:"score"`
	DocumentID string  `json:"document_id"`
	Offset     int     `json:"offset"`
	NoAnswer   bool    `json:"no_answer,omitempty"`
}

type askResponse struct {
	Question string          `json:"question"`
	Answers  []answerPayload `json:"answers"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Documents int               `json:"documents"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Defaults for optional ask parameters, matching the library facade.
const (
	defaultTopKRetriever = 10
	defaultTopKReader    = 3
	defaultSearchTopK    = 10
)

// --- handlers ---

func (s *Server) handleWriteDocuments(w http.ResponseWriter, r *http.Request) {
	var req writeDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "documents must not be empty")
		return
	}

	docs := make([]domain.Document, len(req.Documents))
	for i, p := range req.Documents {
		docs[i] = domain.Document{ID: p.ID, Text: p.Text, Meta: p.Meta}
	}

	var opts []docstore.WriteOption
	if req.FailOnDuplicate {
		opts = append(opts, docstore.FailOnDuplicate())
	}

	if err := s.store.WriteDocuments(r.Context(), docs, opts...); err != nil {
		s.respondError(w, err, "failed to write documents")
		return
	}
	writeJSON(w, http.StatusCreated, writeDocumentsResponse{Written: len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	doc, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.respondError(w, err, "failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, documentPayload{ID: doc.ID, Text: doc.Text, Meta: doc.Meta})
}

func (s *Server) handleUpdateEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req updateEmbeddingsRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
			return
		}
	}

	var opts []docstore.EmbedOption
	if req.BatchSize > 0 {
		opts = append(opts, docstore.WithBatchSize(req.BatchSize))
	}

	report, err := s.updater.UpdateEmbeddings(r.Context(), opts...)
	if err != nil {
		s.respondError(w, err, "failed to update embeddings")
		return
	}

	resp := updateEmbeddingsResponse{Encoded: report.Encoded, Unchanged: report.Unchanged}
	for _, f := range report.Failed {
		resp.FailedIDs = append(resp.FailedIDs, f.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "query must not be empty")
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultSearchTopK
	}

	results, err := s.retriever.Retrieve(r.Context(), req.Query, req.TopK)
	if err != nil {
		s.respondError(w, err, "failed to search")
		return
	}

	resp := searchResponse{Results: make([]searchHit, 0, len(results))}
	for _, sd := range results {
		resp.Results = append(resp.Results, searchHit{
			ID:    sd.Document.ID,
			Text:  sd.Document.Text,
			Meta:  sd.Document.Meta,
			Score: sd.Score,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "question must not be empty")
		return
	}
	if req.TopKRetriever <= 0 {
		req.TopKRetriever = defaultTopKRetriever
	}
	if req.TopKReader <= 0 {
		req.TopKReader = defaultTopKReader
	}

	answers, err := s.finder.GetAnswers(r.Context(), req.Question, finder.Options{
		TopKRetriever: req.TopKRetriever,
		TopKReader:    req.TopKReader,
		MaxAnswers:    req.MaxAnswers,
	})
	if err != nil {
		s.respondError(w, err, "failed to answer question")
		return
	}

	resp := askResponse{Question: req.Question, Answers: make([]answerPayload, 0, len(answers))}
	for i := range answers {
		a := &answers[i]
		resp.Answers = append(resp.Answers, answerPayload{
			Answer:     a.Text,
			Context:    a.Context,
			Score:      a.Score,
			DocumentID: a.DocumentID,
			Offset:     a.Offset,
			NoAnswer:   a.IsNoAnswer(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	resp := healthResponse{
		Status:    string(report.Status),
		Documents: report.Documents,
		Checks:    make(map[string]string, len(report.Checks)),
	}
	for name, result := range report.Checks {
		resp.Checks[name] = string(result)
	}

	status := http.StatusOK
	if report.Status != health.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
