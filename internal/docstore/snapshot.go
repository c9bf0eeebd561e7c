package docstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/haytools/needle/internal/domain"
)

// Snapshot layout: two length-prefixed (u64) sections — a JSON document
// array, then the binary index blob. Identifiers are stable across a
// persist/restore cycle.

type snapshotDoc struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Meta      map[string]string `json:"meta,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
	Pending   bool              `json:"pending,omitempty"`
}

// WriteSnapshot serializes the full store state.
func (s *Store) WriteSnapshot(w io.Writer) error {
	s.mu.RLock()
	docs := make([]snapshotDoc, 0, len(s.order))
	for _, id := range s.order {
		d := s.docs[id]
		_, pending := s.stale[id]
		docs = append(docs, snapshotDoc{
			ID:        d.ID,
			Text:      d.Text,
			Meta:      d.Meta,
			Embedding: d.Embedding,
			Pending:   pending,
		})
	}
	s.mu.RUnlock()

	docBytes, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	idxBytes, err := s.idx.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}

	for _, section := range [][]byte{docBytes, idxBytes} {
		if err := binary.Write(w, binary.LittleEndian, uint64(len(section))); err != nil {
			return fmt.Errorf("write section length: %w", err)
		}
		if _, err := w.Write(section); err != nil {
			return fmt.Errorf("write section: %w", err)
		}
	}
	return nil
}

// ReadSnapshot replaces the store contents with a previously written snapshot.
func (s *Store) ReadSnapshot(r io.Reader) error {
	docBytes, err := readSection(r)
	if err != nil {
		return err
	}
	idxBytes, err := readSection(r)
	if err != nil {
		return err
	}

	var docs []snapshotDoc
	if err := json.Unmarshal(docBytes, &docs); err != nil {
		return fmt.Errorf("unmarshal documents: %w", err)
	}

	byID := make(map[string]*domain.Document, len(docs))
	order := make([]string, 0, len(docs))
	stale := make(map[string]struct{})
	for _, d := range docs {
		doc := domain.Document{ID: d.ID, Text: d.Text, Meta: d.Meta, Embedding: d.Embedding}
		byID[d.ID] = &doc
		order = append(order, d.ID)
		if d.Pending {
			stale[d.ID] = struct{}{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Restore the index before touching document state: UnmarshalBinary is
	// all-or-nothing, so a bad snapshot leaves the store exactly as it was.
	if err := s.idx.UnmarshalBinary(idxBytes); err != nil {
		return fmt.Errorf("restore index: %w", err)
	}
	s.docs = byID
	s.order = order
	s.stale = stale
	return nil
}

func readSection(r io.Reader) ([]byte, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read section length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read section: %w", err)
	}
	return buf, nil
}
