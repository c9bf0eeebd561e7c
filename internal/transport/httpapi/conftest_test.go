package httpapi

// Shared fixtures and mocks for the HTTP API tests.

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haytools/needle/internal/docstore"
	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/usecase/finder"
	"github.com/haytools/needle/internal/usecase/health"
)

type mockStore struct {
	written   []domain.Document
	writeOpts docstore.WriteOptions
	writeErr  error
	docs      map[string]domain.Document
	getErr    error
	documents int
}

func (m *mockStore) WriteDocuments(_ context.Context, docs []domain.Document, opts ...docstore.WriteOption) error {
	for _, opt := range opts {
		opt(&m.writeOpts)
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.written = append(m.written, docs...)
	return nil
}

func (m *mockStore) GetByID(_ context.Context, id string) (domain.Document, error) {
	if m.getErr != nil {
		return domain.Document{}, m.getErr
	}
	doc, ok := m.docs[id]
	if !ok {
		return domain.Document{}, domain.ErrDocumentNotFound
	}
	return doc, nil
}

func (m *mockStore) Count(context.Context) int { return m.documents }

type mockRetriever struct {
	results   []domain.ScoredDocument
	err       error
	lastQuery string
	lastTopK  int
}

func (m *mockRetriever) Retrieve(_ context.Context, query string, topK int) ([]domain.ScoredDocument, error) {
	m.lastQuery = query
	m.lastTopK = topK
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

type mockUpdater struct {
	report   docstore.EmbedReport
	err      error
	lastOpts docstore.EmbedOptions
	calls    int
}

func (m *mockUpdater) UpdateEmbeddings(_ context.Context, opts ...docstore.EmbedOption) (docstore.EmbedReport, error) {
	m.calls++
	for _, opt := range opts {
		opt(&m.lastOpts)
	}
	if m.err != nil {
		return docstore.EmbedReport{}, m.err
	}
	return m.report, nil
}

type mockFinder struct {
	answers      []domain.Answer
	err          error
	lastQuestion string
	lastOpts     finder.Options
}

func (m *mockFinder) GetAnswers(_ context.Context, question string, opts finder.Options) ([]domain.Answer, error) {
	m.lastQuestion = question
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	return m.answers, nil
}

type mockHealth struct {
	report health.Report
}

func (m *mockHealth) Check(context.Context) health.Report { return m.report }

// testServer bundles a router over fresh mocks.
type testServer struct {
	store     *mockStore
	retriever *mockRetriever
	updater   *mockUpdater
	finder    *mockFinder
	health    *mockHealth
	handler   http.Handler
}

func newTestServer(t *testing.T, apiKeys ...string) *testServer {
	t.Helper()
	ts := &testServer{
		store:     &mockStore{docs: map[string]domain.Document{}},
		retriever: &mockRetriever{},
		updater:   &mockUpdater{},
		finder:    &mockFinder{},
		health:    &mockHealth{report: health.Report{Status: health.Healthy}},
	}
	srv := NewServer(ts.store, ts.retriever, ts.updater, ts.finder, ts.health, nil)
	ts.handler = srv.Router(apiKeys)
	return ts
}

// do sends a request through the router and decodes the JSON response into out
// (skipped when out is nil).
func (ts *testServer) do(t *testing.T, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&e); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return e
}
