package domain

import (
	"context"
	"fmt"
)

// QueryEncoder maps a query text into the shared vector space.
type QueryEncoder interface {
	EncodeQuery(ctx context.Context, text string) (EncodingResult, error)
}

// PassageEncoder maps a batch of passage texts into the shared vector space.
// Encoding a text alone or as part of a batch must yield the same vector.
type PassageEncoder interface {
	EncodePassages(ctx context.Context, texts []string) (BatchEncodingResult, error)
}

// Encoder is a dual encoder: both halves plus the declared output dimension
// that the vector index must agree on.
type Encoder interface {
	QueryEncoder
	PassageEncoder
	Dimension() int
}

// HealthChecker verifies encoder provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EncodingResult carries one embedding vector and token usage through the decorator chain.
type EncodingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEncodingResult carries multiple embedding vectors and aggregate token usage.
// Embeddings[i] corresponds to the i-th input text.
type BatchEncodingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// InstructionEncoder prepends instruction text before encoding. Dual-encoder
// models often expect different instructions for queries and passages.
type InstructionEncoder struct {
	inner              Encoder
	queryInstruction   string
	passageInstruction string
}

// NewInstructionEncoder creates a decorator with per-side instructions.
// Empty instructions are pass-through.
func NewInstructionEncoder(inner Encoder, queryInstruction, passageInstruction string) *InstructionEncoder {
	return &InstructionEncoder{
		inner:              inner,
		queryInstruction:   queryInstruction,
		passageInstruction: passageInstruction,
	}
}

// EncodeQuery prepends the query instruction and delegates.
func (e *InstructionEncoder) EncodeQuery(ctx context.Context, text string) (EncodingResult, error) {
	result, err := e.inner.EncodeQuery(ctx, e.queryInstruction+text)
	if err != nil {
		return EncodingResult{}, fmt.Errorf("instruction encode query: %w", err)
	}
	return result, nil
}

// EncodePassages prepends the passage instruction to each text and delegates.
func (e *InstructionEncoder) EncodePassages(ctx context.Context, texts []string) (BatchEncodingResult, error) {
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = e.passageInstruction + t
	}

	result, err := e.inner.EncodePassages(ctx, prefixed)
	if err != nil {
		return BatchEncodingResult{}, fmt.Errorf("instruction encode passages: %w", err)
	}
	return result, nil
}

// Dimension returns the inner encoder's declared output dimension.
func (e *InstructionEncoder) Dimension() int { return e.inner.Dimension() }
