package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrAlreadyExists signals a duplicate document id when duplicate rejection was requested.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDimensionMismatch signals a vector whose length disagrees with the configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrEncodingFailure signals an encoder capability failure.
	ErrEncodingFailure = errors.New("encoding failure")
	// ErrReaderFailure signals a reader capability failure on one passage.
	ErrReaderFailure = errors.New("reader failure")
	// ErrEncodingQuotaExceeded signals an exhausted encoding token budget.
	ErrEncodingQuotaExceeded = errors.New("encoding quota exceeded")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidArgument signals a malformed request parameter.
	ErrInvalidArgument = errors.New("invalid argument")
)

// DimensionError wraps ErrDimensionMismatch with the offending lengths.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("%s: got %d, want %d", ErrDimensionMismatch.Error(), e.Got, e.Want)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionError creates a dimension mismatch error.
func NewDimensionError(got, want int) error {
	return &DimensionError{Got: got, Want: want}
}
