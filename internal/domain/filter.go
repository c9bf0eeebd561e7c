package domain

// Filters is an exact-match predicate over document metadata.
// Every key/value pair must match for a document to pass.
type Filters map[string]string

// IsEmpty reports whether the filter restricts nothing.
func (f Filters) IsEmpty() bool { return len(f) == 0 }

// Match reports whether the metadata satisfies every filter pair.
func (f Filters) Match(meta map[string]string) bool {
	for k, want := range f {
		if got, ok := meta[k]; !ok || got != want {
			return false
		}
	}
	return true
}
