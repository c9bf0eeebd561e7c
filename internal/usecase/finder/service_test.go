package finder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/haytools/needle/internal/domain"
)

// --- Mocks ---

type mockRetriever struct {
	results  []domain.ScoredDocument
	err      error
	lastTopK int
}

func (m *mockRetriever) Retrieve(_ context.Context, _ string, topK int) ([]domain.ScoredDocument, error) {
	m.lastTopK = topK
	return m.results, m.err
}

// mockReader maps passage text to canned answers or a per-passage error.
type mockReader struct {
	mu       sync.Mutex
	answers  map[string][]domain.Answer
	errs     map[string]error
	calls    int
	inFlight int
	maxSeen  int
}

func (m *mockReader) Predict(_ context.Context, _ string, passage string, _ int) ([]domain.Answer, error) {
	m.mu.Lock()
	m.calls++
	m.inFlight++
	if m.inFlight > m.maxSeen {
		m.maxSeen = m.inFlight
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if err := m.errs[passage]; err != nil {
		return nil, err
	}
	return m.answers[passage], nil
}

func passages(texts ...string) []domain.ScoredDocument {
	out := make([]domain.ScoredDocument, len(texts))
	for i, text := range texts {
		out[i] = domain.ScoredDocument{
			Document: domain.Document{ID: text + "-id", Text: text},
			Score:    1 - float64(i)*0.1,
		}
	}
	return out
}

func TestGetAnswers_MergesAndRanks(t *testing.T) {
	retr := &mockRetriever{results: passages("p1", "p2")}
	reader := &mockReader{answers: map[string][]domain.Answer{
		"p1": {{Text: "weak", Score: 0.3, Offset: 0}},
		"p2": {{Text: "strong", Score: 0.9, Offset: 5}},
	}}
	svc := New(retr, reader, nil)

	answers, err := svc.GetAnswers(context.Background(), "q", Options{TopKRetriever: 2, TopKReader: 1})
	if err != nil {
		t.Fatalf("GetAnswers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("got %d answers, want 2", len(answers))
	}
	if answers[0].Text != "strong" || answers[1].Text != "weak" {
		t.Errorf("order = [%s %s], want [strong weak]", answers[0].Text, answers[1].Text)
	}
	if answers[0].DocumentID != "p2-id" || answers[0].Rank != 2 {
		t.Errorf("tagging = %+v, want source p2-id rank 2", answers[0])
	}
	if retr.lastTopK != 2 {
		t.Errorf("retriever topK = %d, want 2", retr.lastTopK)
	}
}

func TestGetAnswers_TieBreakByRetrievalRank(t *testing.T) {
	retr := &mockRetriever{results: passages("first", "second")}
	reader := &mockReader{answers: map[string][]domain.Answer{
		"first":  {{Text: "A", Score: 0.5}},
		"second": {{Text: "B", Score: 0.5}},
	}}
	svc := New(retr, reader, nil)

	answers, err := svc.GetAnswers(context.Background(), "q", Options{TopKRetriever: 2, TopKReader: 1})
	if err != nil {
		t.Fatal(err)
	}
	if answers[0].Text != "A" || answers[1].Text != "B" {
		t.Errorf("tie order = [%s %s], want retrieval order [A B]", answers[0].Text, answers[1].Text)
	}
}

func TestGetAnswers_ReaderFailureIsolated(t *testing.T) {
	retr := &mockRetriever{results: passages("ok", "broken")}
	reader := &mockReader{
		answers: map[string][]domain.Answer{"ok": {{Text: "fine", Score: 0.8}}},
		errs:    map[string]error{"broken": errors.New("provider 500")},
	}
	svc := New(retr, reader, nil)

	answers, err := svc.GetAnswers(context.Background(), "q", Options{TopKRetriever: 2, TopKReader: 1})
	if err != nil {
		t.Fatalf("GetAnswers: %v", err)
	}
	if len(answers) != 1 || answers[0].Text != "fine" {
		t.Errorf("answers = %+v, failing passage must contribute nothing", answers)
	}
}

func TestGetAnswers_ContextErrorAborts(t *testing.T) {
	retr := &mockRetriever{results: passages("p")}
	reader := &mockReader{errs: map[string]error{"p": context.DeadlineExceeded}}
	svc := New(retr, reader, nil)

	_, err := svc.GetAnswers(context.Background(), "q", Options{TopKRetriever: 1, TopKReader: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestGetAnswers_EmptyRetrievalSkipsReader(t *testing.T) {
	retr := &mockRetriever{}
	reader := &mockReader{}
	svc := New(retr, reader, nil)

	answers, err := svc.GetAnswers(context.Background(), "q", Options{TopKRetriever: 5, TopKReader: 2})
	if err != nil {
		t.Fatal(err)
	}
	if answers == nil || len(answers) != 0 {
		t.Errorf("answers = %v, want empty non-nil list", answers)
	}
	if reader.calls != 0 {
		t.Errorf("reader called %d times on empty retrieval", reader.calls)
	}
}

func TestGetAnswers_RetrieverErrorPropagates(t *testing.T) {
	boom := errors.New("index broken")
	svc := New(&mockRetriever{err: boom}, &mockReader{}, nil)

	_, err := svc.GetAnswers(context.Background(), "q", Options{TopKRetriever: 1, TopKReader: 1})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want retriever error", err)
	}
}

func TestGetAnswers_TruncatesPerPassageAndGlobally(t *testing.T) {
	retr := &mockRetriever{results: passages("p1", "p2")}
	reader := &mockReader{answers: map[string][]domain.Answer{
		"p1": {
			{Text: "a1", Score: 0.9},
			{Text: "a2", Score: 0.8},
			{Text: "a3", Score: 0.7},
		},
		"p2": {
			{Text: "b1", Score: 0.85},
			{Text: "b2", Score: 0.6},
		},
	}}
	svc := New(retr, reader, nil)

	answers, err := svc.GetAnswers(context.Background(), "q", Options{
		TopKRetriever: 2,
		TopKReader:    2, // drops a3
		MaxAnswers:    3, // drops b2
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a1", "b1", "a2"}
	if len(answers) != len(want) {
		t.Fatalf("got %d answers, want %d", len(answers), len(want))
	}
	for i, text := range want {
		if answers[i].Text != text {
			t.Errorf("answers[%d] = %s, want %s", i, answers[i].Text, text)
		}
	}
}

func TestGetAnswers_Validation(t *testing.T) {
	svc := New(&mockRetriever{}, &mockReader{}, nil)

	cases := []Options{
		{TopKRetriever: 0, TopKReader: 1},
		{TopKRetriever: 1, TopKReader: 0},
		{TopKRetriever: 1, TopKReader: 1, MaxAnswers: -1},
	}
	for _, opts := range cases {
		if _, err := svc.GetAnswers(context.Background(), "q", opts); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("opts %+v: err = %v, want ErrInvalidArgument", opts, err)
		}
	}
}

func TestGetAnswers_ParallelismBounded(t *testing.T) {
	texts := make([]string, 16)
	answers := make(map[string][]domain.Answer, 16)
	for i := range texts {
		texts[i] = string(rune('a' + i))
		answers[texts[i]] = []domain.Answer{{Text: texts[i], Score: 0.5}}
	}
	retr := &mockRetriever{results: passages(texts...)}
	reader := &mockReader{answers: answers}
	svc := New(retr, reader, nil).WithMaxParallelReads(2)

	if _, err := svc.GetAnswers(context.Background(), "q", Options{TopKRetriever: 16, TopKReader: 1}); err != nil {
		t.Fatal(err)
	}
	if reader.calls != 16 {
		t.Errorf("reader calls = %d, want 16", reader.calls)
	}
	if reader.maxSeen > 2 {
		t.Errorf("max concurrent reads = %d, want <= 2", reader.maxSeen)
	}
}

func TestGetAnswers_NoAnswerCandidatesKept(t *testing.T) {
	retr := &mockRetriever{results: passages("p")}
	reader := &mockReader{answers: map[string][]domain.Answer{
		"p": {domain.NoAnswer(0.4)},
	}}
	svc := New(retr, reader, nil)

	answers, err := svc.GetAnswers(context.Background(), "q", Options{TopKRetriever: 1, TopKReader: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(answers) != 1 || !answers[0].IsNoAnswer() {
		t.Errorf("answers = %+v, want the no-answer candidate kept", answers)
	}
	if answers[0].DocumentID != "p-id" {
		t.Errorf("no-answer not tagged with source: %+v", answers[0])
	}
}
