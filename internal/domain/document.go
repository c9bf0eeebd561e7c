package domain

// Document is a unit of retrievable text with optional metadata and embedding.
type Document struct {
	ID        string
	Text      string
	Meta      map[string]string
	Embedding []float32
}

// HasEmbedding reports whether the document carries an embedding vector.
func (d *Document) HasEmbedding() bool { return len(d.Embedding) > 0 }

// Clone returns a deep copy so callers cannot mutate store-owned state.
func (d *Document) Clone() Document {
	out := Document{ID: d.ID, Text: d.Text}
	if d.Meta != nil {
		out.Meta = make(map[string]string, len(d.Meta))
		for k, v := range d.Meta {
			out.Meta[k] = v
		}
	}
	if d.Embedding != nil {
		out.Embedding = append([]float32(nil), d.Embedding...)
	}
	return out
}

// ScoredDocument is a document paired with a retrieval similarity score.
type ScoredDocument struct {
	Document Document
	Score    float64
}
