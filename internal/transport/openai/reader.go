package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/metrics"
)

// contextRadius is the number of bytes kept around a span in Answer.Context.
const contextRadius = 100

// readerSystemPrompt constrains the model to extractive answers only.
const readerSystemPrompt = `You are an extractive question answering engine.
Given a question and a passage, return up to %d answer spans copied VERBATIM from the passage.
Respond with a JSON array only, no prose: [{"answer": "<exact substring of the passage>", "score": <confidence 0.0-1.0>}].
Return [] when the passage does not answer the question. Never paraphrase.`

// Reader extracts answer spans via an OpenAI-compatible chat completions API.
// Spans the model invents (not substrings of the passage) are discarded, so
// every returned candidate back-references a real passage offset.
type Reader struct {
	client   *openai.Client
	model    string
	user     string
	provider string
	logger   *zap.Logger
}

// ReaderConfig holds the reader provider settings.
type ReaderConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	User     string
	Provider string
	Logger   *zap.Logger
}

// NewReader creates a chat-completion-backed extractive reader.
func NewReader(cfg *ReaderConfig) *Reader {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		user:     cfg.User,
		provider: cfg.Provider,
		logger:   logger,
	}
}

// Predict implements domain.Reader.
func (r *Reader) Predict(ctx context.Context, question, passage string, maxAnswers int) ([]domain.Answer, error) {
	if maxAnswers <= 0 {
		return nil, fmt.Errorf("maxAnswers must be positive, got %d: %w", maxAnswers, domain.ErrInvalidArgument)
	}

	req := openai.ChatCompletionRequest{
		Model:       r.model,
		Temperature: 0,
		User:        r.user,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(readerSystemPrompt, maxAnswers),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Question: %s\n\nPassage:\n%s", question, passage),
			},
		},
	}

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		metrics.ReaderRequestsTotal.WithLabelValues(r.provider, r.model, "error").Inc()
		return nil, parseAPIError(err, "reader", domain.ErrReaderFailure)
	}
	if len(resp.Choices) == 0 {
		metrics.ReaderRequestsTotal.WithLabelValues(r.provider, r.model, "error").Inc()
		return nil, fmt.Errorf("empty reader response: %w", domain.ErrReaderFailure)
	}

	metrics.ReaderRequestsTotal.WithLabelValues(r.provider, r.model, "success").Inc()
	metrics.ReaderRequestDuration.WithLabelValues(r.provider, r.model).Observe(duration.Seconds())

	answers, err := r.parseAnswers(resp.Choices[0].Message.Content, passage, maxAnswers)
	if err != nil {
		return nil, err
	}
	return answers, nil
}

type rawSpan struct {
	Answer string  `json:"answer"`
	Score  float64 `json:"score"`
}

// parseAnswers validates model output against the passage and builds
// candidates with real offsets and context windows.
func (r *Reader) parseAnswers(content, passage string, maxAnswers int) ([]domain.Answer, error) {
	var spans []rawSpan
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &spans); err != nil {
		return nil, fmt.Errorf("malformed reader output: %w: %w", err, domain.ErrReaderFailure)
	}

	answers := make([]domain.Answer, 0, len(spans))
	for _, s := range spans {
		if s.Answer == "" {
			continue
		}
		offset := strings.Index(passage, s.Answer)
		if offset < 0 {
			r.logger.Debug("Discarding non-extractive span", zap.String("span", s.Answer))
			continue
		}
		answers = append(answers, domain.Answer{
			Text:    s.Answer,
			Context: contextWindow(passage, offset, len(s.Answer)),
			Score:   clampScore(s.Score),
			Offset:  offset,
		})
	}

	if len(answers) == 0 {
		// Distinguishable sentinel: the passage holds no answer.
		return []domain.Answer{domain.NoAnswer(0)}, nil
	}

	sort.SliceStable(answers, func(i, j int) bool { return answers[i].Score > answers[j].Score })
	if len(answers) > maxAnswers {
		answers = answers[:maxAnswers]
	}
	return answers, nil
}

// stripCodeFence unwraps ```json ... ``` fenced output some models emit.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// contextWindow returns the span plus up to contextRadius bytes either side,
// widened to the nearest rune boundary.
func contextWindow(passage string, offset, length int) string {
	left := max(offset-contextRadius, 0)
	for left > 0 && !utf8.RuneStart(passage[left]) {
		left--
	}
	right := min(offset+length+contextRadius, len(passage))
	for right < len(passage) && !utf8.RuneStart(passage[right]) {
		right++
	}
	return passage[left:right]
}
