package needle_test

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"testing"

	"github.com/haytools/needle"
)

// hashEncoder is a deterministic bag-of-words encoder: each token hashes
// into one dimension, vectors are L2-normalized. Dot product then ranks by
// token overlap, which is enough for end-to-end tests without a provider.
type hashEncoder struct {
	dim   int
	calls int
}

func (e *hashEncoder) Dimension() int { return e.dim }

func (e *hashEncoder) EncodeQuery(_ context.Context, text string) ([]float32, error) {
	e.calls++
	return e.encode(text), nil
}

func (e *hashEncoder) EncodePassages(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.encode(t)
	}
	return out, nil
}

func (e *hashEncoder) encode(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?")
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec
}

// spanReader extracts a configured answer span when both question and
// passage mention the trigger word; otherwise it predicts no-answer.
type spanReader struct {
	spans map[string]string // trigger word -> answer text
}

func (r *spanReader) Predict(_ context.Context, question, passage string, _ int) ([]needle.Answer, error) {
	for trigger, answer := range r.spans {
		if !strings.Contains(question, trigger) || !strings.Contains(passage, trigger) {
			continue
		}
		off := strings.Index(passage, answer)
		if off < 0 {
			continue
		}
		return []needle.Answer{{Text: answer, Score: 0.9, Offset: off}}, nil
	}
	return []needle.Answer{{Score: 0.1, Offset: needle.NoAnswerOffset}}, nil
}

var capitalDocs = []needle.Document{
	{ID: "fr", Text: "Paris is the capital and most populous city of France."},
	{ID: "de", Text: "Berlin is the capital of Germany and its largest city."},
	{ID: "es", Text: "Madrid is the capital of Spain, known for the Prado museum."},
}

func TestClient_EndToEnd(t *testing.T) {
	enc := &hashEncoder{dim: 64}
	reader := &spanReader{spans: map[string]string{"Germany": "Berlin", "France": "Paris"}}

	client, err := needle.New(enc, needle.WithReader(reader))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := client.WriteDocuments(ctx, capitalDocs); err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}
	if got := client.Count(ctx); got != 3 {
		t.Fatalf("Count = %d, want 3", got)
	}

	report, err := client.UpdateEmbeddings(ctx)
	if err != nil {
		t.Fatalf("UpdateEmbeddings: %v", err)
	}
	if report.Encoded != 3 || len(report.Failed) != 0 {
		t.Fatalf("report = %+v, want 3 encoded", report)
	}

	hits, err := client.Retrieve(ctx, "What is the capital of Germany?", 2)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != "de" {
		t.Errorf("top hit = %q, want de", hits[0].ID)
	}
	if hits[0].Score < hits[1].Score {
		t.Errorf("hits not sorted: %v >= %v expected", hits[0].Score, hits[1].Score)
	}

	answers, err := client.Ask(ctx, "What is the capital of Germany?", needle.AskOptions{
		TopKRetriever: 3,
		TopKReader:    1,
	})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(answers) == 0 {
		t.Fatal("no answers")
	}
	best := answers[0]
	if best.Text != "Berlin" || best.DocumentID != "de" {
		t.Errorf("best answer = %+v, want Berlin from de", best)
	}
	if best.Offset != strings.Index(capitalDocs[1].Text, "Berlin") {
		t.Errorf("Offset = %d, want index of Berlin", best.Offset)
	}
	if best.Rank != 1 {
		t.Errorf("Rank = %d, want 1", best.Rank)
	}
}

func TestClient_RetrieveSmallerKIsPrefix(t *testing.T) {
	client, err := needle.New(&hashEncoder{dim: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := client.WriteDocuments(ctx, capitalDocs); err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}
	if _, err := client.UpdateEmbeddings(ctx); err != nil {
		t.Fatalf("UpdateEmbeddings: %v", err)
	}

	const query = "What is the capital of Germany?"
	full, err := client.Retrieve(ctx, query, 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(full) != 3 {
		t.Fatalf("got %d hits, want 3", len(full))
	}

	// Asking for fewer results returns the head of the larger ranking,
	// never a different selection.
	for k := 1; k < 3; k++ {
		hits, err := client.Retrieve(ctx, query, k)
		if err != nil {
			t.Fatalf("Retrieve k=%d: %v", k, err)
		}
		if len(hits) != k {
			t.Fatalf("k=%d: got %d hits", k, len(hits))
		}
		for i := range hits {
			if hits[i].ID != full[i].ID {
				t.Errorf("k=%d: hits[%d] = %s, want %s", k, i, hits[i].ID, full[i].ID)
			}
		}
	}
}

func TestClient_UpdateEmbeddingsIdempotent(t *testing.T) {
	enc := &hashEncoder{dim: 32}
	client, err := needle.New(enc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := client.WriteDocuments(ctx, capitalDocs); err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}
	if _, err := client.UpdateEmbeddings(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	report, err := client.UpdateEmbeddings(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if report.Encoded != 0 || report.Unchanged != 3 {
		t.Errorf("second pass report = %+v, want all unchanged", report)
	}
}

func TestClient_RetrieveBeforeEmbeddings(t *testing.T) {
	client, err := needle.New(&hashEncoder{dim: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := client.WriteDocuments(ctx, capitalDocs); err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}

	hits, err := client.Retrieve(ctx, "anything", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("got %d hits before embedding pass, want 0", len(hits))
	}
}

func TestClient_AskWithoutReader(t *testing.T) {
	client, err := needle.New(&hashEncoder{dim: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Ask(context.Background(), "q", needle.AskOptions{TopKRetriever: 1, TopKReader: 1})
	if err == nil {
		t.Fatal("expected error without reader")
	}
}

func TestClient_FailOnDuplicate(t *testing.T) {
	client, err := needle.New(&hashEncoder{dim: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := client.WriteDocuments(ctx, capitalDocs); err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}
	err = client.WriteDocuments(ctx, capitalDocs[:1], needle.FailOnDuplicate())
	if err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestClient_LexicalRetrieval(t *testing.T) {
	enc := &hashEncoder{dim: 16}
	client, err := needle.New(enc, needle.WithRetrieval(needle.RetrievalLexical))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := client.WriteDocuments(ctx, capitalDocs); err != nil {
		t.Fatalf("WriteDocuments: %v", err)
	}

	// Lexical retrieval needs no embedding pass and no encoder calls.
	before := enc.calls
	hits, err := client.Retrieve(ctx, "Prado museum", 1)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "es" {
		t.Fatalf("hits = %+v, want es", hits)
	}
	if enc.calls != before {
		t.Errorf("encoder called %d times during lexical retrieval", enc.calls-before)
	}
}

func TestClient_GetDocument_NotFound(t *testing.T) {
	client, err := needle.New(&hashEncoder{dim: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.GetDocument(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected not found error")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestClient_NilEncoder(t *testing.T) {
	if _, err := needle.New(nil); err == nil {
		t.Fatal("expected error for nil encoder")
	}
}

func TestAnswer_IsNoAnswer(t *testing.T) {
	a := needle.Answer{Offset: needle.NoAnswerOffset}
	if !a.IsNoAnswer() {
		t.Error("empty span at NoAnswerOffset must be a no-answer")
	}
	b := needle.Answer{Text: "Berlin", Offset: 4}
	if b.IsNoAnswer() {
		t.Error("real span must not be a no-answer")
	}
}

func TestClient_ErrorsAreWrapped(t *testing.T) {
	client, err := needle.New(&hashEncoder{dim: 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = client.Retrieve(context.Background(), "q", -1)
	if err == nil {
		t.Fatal("expected error for negative topK")
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("unexpected context error: %v", err)
	}
}

func TestClient_SnapshotRoundtrip(t *testing.T) {
	enc := &hashEncoder{dim: 64}
	client, err := needle.New(enc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if err := client.WriteDocuments(ctx, capitalDocs); err != nil {
		t.Fatal(err)
	}
	if _, err := client.UpdateEmbeddings(ctx); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := client.WriteSnapshot(&buf); err != nil {
		t.Fatal(err)
	}

	restored, err := needle.New(&hashEncoder{dim: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := restored.ReadSnapshot(&buf); err != nil {
		t.Fatal(err)
	}

	if got := restored.Count(ctx); got != len(capitalDocs) {
		t.Fatalf("Count = %d, want %d", got, len(capitalDocs))
	}

	// Dense retrieval must work without a new embedding pass.
	hits, err := restored.Retrieve(ctx, "capital of Germany", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != "de" {
		t.Fatalf("hits = %+v", hits)
	}
}
