// Package openai provides the encoder and reader capabilities over any
// OpenAI-compatible API.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/metrics"
)

// DefaultMaxInputRunes bounds encoder input length when the config leaves it unset.
const DefaultMaxInputRunes = 8192

// Encoder is a dual encoder over an OpenAI-compatible embeddings API.
// Queries and passages may use separately parameterized models mapping into
// one shared vector space.
type Encoder struct {
	client        *openai.Client
	queryModel    openai.EmbeddingModel
	passageModel  openai.EmbeddingModel
	dimensions    int
	maxInputRunes int
	user          string
	provider      string
	logger        *zap.Logger
}

// EncoderConfig holds the embedding provider settings.
type EncoderConfig struct {
	APIKey  string
	BaseURL string
	// QueryModel encodes questions; PassageModel encodes corpus text.
	// An empty PassageModel falls back to QueryModel (single-model setups).
	QueryModel   string
	PassageModel string
	// Dimensions is the declared output dimension the vector index must agree on.
	Dimensions int
	// MaxInputRunes is the deterministic head-truncation budget.
	MaxInputRunes int
	User          string
	Provider      string
	Logger        *zap.Logger
}

// NewEncoder creates an OpenAI-compatible dual encoder.
func NewEncoder(cfg *EncoderConfig) *Encoder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	passageModel := cfg.PassageModel
	if passageModel == "" {
		passageModel = cfg.QueryModel
	}
	maxRunes := cfg.MaxInputRunes
	if maxRunes <= 0 {
		maxRunes = DefaultMaxInputRunes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Encoder{
		client:        openai.NewClientWithConfig(clientCfg),
		queryModel:    openai.EmbeddingModel(cfg.QueryModel),
		passageModel:  openai.EmbeddingModel(passageModel),
		dimensions:    cfg.Dimensions,
		maxInputRunes: maxRunes,
		user:          cfg.User,
		provider:      cfg.Provider,
		logger:        logger,
	}
}

// Dimension returns the declared embedding dimension.
func (e *Encoder) Dimension() int { return e.dimensions }

// EncodeQuery implements domain.QueryEncoder.
func (e *Encoder) EncodeQuery(ctx context.Context, text string) (domain.EncodingResult, error) {
	res, err := e.encode(ctx, e.queryModel, "query", []string{text})
	if err != nil {
		return domain.EncodingResult{}, err
	}
	return domain.EncodingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// EncodePassages implements domain.PassageEncoder. One API request per call;
// batch splitting belongs to the encoding.Batcher layer.
func (e *Encoder) EncodePassages(ctx context.Context, texts []string) (domain.BatchEncodingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEncodingResult{}, nil
	}
	return e.encode(ctx, e.passageModel, "passage", texts)
}

func (e *Encoder) encode(
	ctx context.Context, model openai.EmbeddingModel, side string, texts []string,
) (domain.BatchEncodingResult, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = e.truncate(t)
	}

	req := openai.EmbeddingRequest{
		Input:          input,
		Model:          model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           e.user,
	}
	if e.dimensions > 0 {
		req.Dimensions = e.dimensions
	}

	start := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.EncodingRequestsTotal.WithLabelValues(e.provider, string(model), side, "error").Inc()
		metrics.EncodingErrorsTotal.WithLabelValues(e.provider, string(model), "api_error").Inc()
		return domain.BatchEncodingResult{}, parseAPIError(err, "encoding", domain.ErrEncodingFailure)
	}
	if len(resp.Data) != len(input) {
		metrics.EncodingRequestsTotal.WithLabelValues(e.provider, string(model), side, "error").Inc()
		metrics.EncodingErrorsTotal.WithLabelValues(e.provider, string(model), "short_response").Inc()
		return domain.BatchEncodingResult{}, fmt.Errorf(
			"embedding response has %d vectors for %d inputs: %w",
			len(resp.Data), len(input), domain.ErrEncodingFailure)
	}

	metrics.EncodingRequestsTotal.WithLabelValues(e.provider, string(model), side, "success").Inc()
	metrics.EncodingRequestDuration.WithLabelValues(e.provider, string(model), side).Observe(duration.Seconds())

	out := domain.BatchEncodingResult{
		Embeddings:   make([][]float32, len(resp.Data)),
		PromptTokens: resp.Usage.PromptTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	// The API may reorder data entries; Index re-associates each vector with
	// its input position.
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out.Embeddings) {
			return domain.BatchEncodingResult{}, fmt.Errorf(
				"embedding response index %d out of range: %w", d.Index, domain.ErrEncodingFailure)
		}
		out.Embeddings[d.Index] = d.Embedding
	}

	if out.TotalTokens > 0 {
		metrics.EncodingTokensTotal.WithLabelValues(e.provider, string(model), "prompt").
			Add(float64(out.PromptTokens))
		metrics.EncodingTokensTotal.WithLabelValues(e.provider, string(model), "total").
			Add(float64(out.TotalTokens))
	}
	return out, nil
}

// truncate head-truncates to the rune budget. Deterministic: the same text
// always produces the same input, alone or in a batch.
func (e *Encoder) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= e.maxInputRunes {
		return text
	}
	return string(runes[:e.maxInputRunes])
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Encoder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with the given sentinel for correct status mapping.
func parseAPIError(err error, kind string, wrap error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, reqErr.HTTPStatusCode, detail, sentinelFor(reqErr.HTTPStatusCode, wrap))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s API error %d: %s: %w",
			kind, apiErr.HTTPStatusCode, apiErr.Message, sentinelFor(apiErr.HTTPStatusCode, wrap))
	}

	return fmt.Errorf("%s request failed: %w", kind, wrap)
}

// sentinelFor maps provider rate limits to their own sentinel; any other
// status keeps the caller's default.
func sentinelFor(status int, wrap error) error {
	if status == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return wrap
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
