// Package budget adapts the raw key-value store into the typed counter
// interface the budget tracker consumes.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/haytools/needle/internal/db"
)

// kv is the consumer interface for budget persistence.
type kv interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
}

// Store persists budget counters in a key-value store.
type Store struct {
	kv kv
}

// New creates a budget counter store.
func New(kv kv) *Store {
	return &Store{kv: kv}
}

// IncrBy atomically increments a counter.
func (s *Store) IncrBy(ctx context.Context, key string, val int64) error {
	if err := s.kv.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("incr budget counter: %w", err)
	}
	return nil
}

// GetInt64 reads a counter; a missing key reads as zero.
func (s *Store) GetInt64(ctx context.Context, key string) (int64, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get budget counter: %w", err)
	}
	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse budget counter %q: %w", data, err)
	}
	return val, nil
}
