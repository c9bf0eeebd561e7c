package docstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/haytools/needle/internal/domain"
)

func TestSnapshot_Roundtrip(t *testing.T) {
	src := mustStore(t, 2)
	mustWrite(t, src,
		domain.Document{ID: "a", Text: "aa", Meta: map[string]string{"lang": "en"}},
		domain.Document{ID: "b", Text: "bbbb"},
	)
	mustEmbed(t, src, newStubEncoder(2))
	// One doc written after the pass stays pending across the roundtrip.
	mustWrite(t, src, domain.Document{ID: "c", Text: "cccccc"})

	var buf bytes.Buffer
	if err := src.WriteSnapshot(&buf); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	dst := mustStore(t, 2)
	if err := dst.ReadSnapshot(&buf); err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}

	if got := dst.Count(context.Background()); got != 3 {
		t.Fatalf("Count = %d, want 3", got)
	}
	doc, err := dst.GetByID(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Meta["lang"] != "en" || !doc.HasEmbedding() {
		t.Errorf("doc a = %+v, metadata and embedding must survive", doc)
	}

	// Embedded docs are immediately searchable, ranked as before.
	docs, err := dst.QueryByEmbedding(context.Background(), []float32{1, 0}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].Document.ID != "b" || docs[1].Document.ID != "a" {
		t.Fatalf("query after restore = %v, want [b a]", ids(docs))
	}

	// The pending doc is picked up by the next pass on the restored store.
	report := mustEmbed(t, dst, newStubEncoder(2))
	if report.Encoded != 1 || report.Unchanged != 2 {
		t.Errorf("post-restore report = %+v, want only c encoded", report)
	}
}

func TestSnapshot_FailedRestoreLeavesStoreIntact(t *testing.T) {
	// Snapshot from a dim-3 store cannot restore into a dim-2 one: the index
	// section is rejected and the target must keep its previous contents.
	src := mustStore(t, 3)
	mustWrite(t, src, domain.Document{ID: "x", Text: "xx"})
	mustEmbed(t, src, newStubEncoder(3))

	var buf bytes.Buffer
	if err := src.WriteSnapshot(&buf); err != nil {
		t.Fatal(err)
	}

	dst := mustStore(t, 2)
	mustWrite(t, dst,
		domain.Document{ID: "a", Text: "aa"},
		domain.Document{ID: "b", Text: "bbbb"},
	)
	mustEmbed(t, dst, newStubEncoder(2))

	if err := dst.ReadSnapshot(&buf); err == nil {
		t.Fatal("expected error for mismatched index dimension")
	}

	if got := dst.Count(context.Background()); got != 2 {
		t.Fatalf("Count after failed restore = %d, want 2", got)
	}
	if _, err := dst.GetByID(context.Background(), "x"); err == nil {
		t.Error("snapshot document leaked into store after failed restore")
	}
	docs, err := dst.QueryByEmbedding(context.Background(), []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].Document.ID != "b" {
		t.Fatalf("query after failed restore = %v, want prior [b a]", ids(docs))
	}
}

func TestSnapshot_TruncatedInput(t *testing.T) {
	src := mustStore(t, 2)
	mustWrite(t, src, domain.Document{ID: "a", Text: "aa"})

	var buf bytes.Buffer
	if err := src.WriteSnapshot(&buf); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	dst := mustStore(t, 2)
	if err := dst.ReadSnapshot(bytes.NewReader(data[:len(data)/2])); err == nil {
		t.Error("expected error for truncated snapshot")
	}
}
