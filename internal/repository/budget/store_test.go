package budget

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/haytools/needle/internal/db"
)

type fakeKV struct {
	counters map[string]int64
	getErr   error
	incrErr  error
}

func newFakeKV() *fakeKV {
	return &fakeKV{counters: map[string]int64{}}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.counters[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return []byte(strconv.FormatInt(v, 10)), nil
}

func (f *fakeKV) IncrBy(_ context.Context, key string, val int64) error {
	if f.incrErr != nil {
		return f.incrErr
	}
	f.counters[key] += val
	return nil
}

func TestStore_MissingKeyReadsZero(t *testing.T) {
	s := New(newFakeKV())

	got, err := s.GetInt64(context.Background(), "budget:absent")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Errorf("GetInt64 = %d, want 0 for a missing key", got)
	}
}

func TestStore_IncrAndGet(t *testing.T) {
	s := New(newFakeKV())
	ctx := context.Background()

	if err := s.IncrBy(ctx, "budget:daily", 100); err != nil {
		t.Fatal(err)
	}
	if err := s.IncrBy(ctx, "budget:daily", 42); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetInt64(ctx, "budget:daily")
	if err != nil {
		t.Fatal(err)
	}
	if got != 142 {
		t.Errorf("GetInt64 = %d, want 142", got)
	}
}

func TestStore_CorruptCounter(t *testing.T) {
	s := New(brokenKV{})

	if _, err := s.GetInt64(context.Background(), "budget:daily"); err == nil {
		t.Error("GetInt64 = nil error for a non-numeric counter")
	}
}

// brokenKV returns a value strconv cannot parse.
type brokenKV struct{}

func (brokenKV) Get(context.Context, string) ([]byte, error) { return []byte("not-a-number"), nil }
func (brokenKV) IncrBy(context.Context, string, int64) error { return nil }

func TestStore_ErrorsPropagate(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("connection reset")
	kv.incrErr = errors.New("connection reset")
	s := New(kv)
	ctx := context.Background()

	if _, err := s.GetInt64(ctx, "k"); err == nil {
		t.Error("GetInt64 must propagate store errors")
	}
	if err := s.IncrBy(ctx, "k", 1); err == nil {
		t.Error("IncrBy must propagate store errors")
	}
}
