// Package encoding holds the performance and policy layers around the dual
// encoder: budget enforcement, instrumentation, and batch splitting.
package encoding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/metrics"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// InstrumentedEncoder wraps an Encoder with budget enforcement and logging.
// Transport metrics (requests, duration, tokens) are recorded in
// transport/openai; this layer owns budget tracking and its metrics only.
type InstrumentedEncoder struct {
	inner    domain.Encoder
	provider string
	model    string
	budget   BudgetChecker
	logger   *zap.Logger
}

// NewInstrumentedEncoder wraps an encoder with budget and observability.
func NewInstrumentedEncoder(
	inner domain.Encoder, provider, model string,
	budget BudgetChecker, logger *zap.Logger,
) *InstrumentedEncoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedEncoder{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// EncodeQuery checks budget, delegates, and records usage.
func (p *InstrumentedEncoder) EncodeQuery(ctx context.Context, text string) (domain.EncodingResult, error) {
	if err := p.checkBudget(ctx); err != nil {
		return domain.EncodingResult{}, err
	}

	result, err := p.inner.EncodeQuery(ctx, text)
	if err != nil {
		return domain.EncodingResult{}, fmt.Errorf("encode query: %w", err)
	}

	p.recordUsage(int64(result.TotalTokens))
	return result, nil
}

// EncodePassages checks budget, delegates, and records usage.
func (p *InstrumentedEncoder) EncodePassages(ctx context.Context, texts []string) (domain.BatchEncodingResult, error) {
	if err := p.checkBudget(ctx); err != nil {
		return domain.BatchEncodingResult{}, err
	}

	result, err := p.inner.EncodePassages(ctx, texts)
	if err != nil {
		return domain.BatchEncodingResult{}, fmt.Errorf("encode passages: %w", err)
	}

	p.recordUsage(int64(result.TotalTokens))
	return result, nil
}

// Dimension returns the inner encoder's declared output dimension.
func (p *InstrumentedEncoder) Dimension() int { return p.inner.Dimension() }

func (p *InstrumentedEncoder) checkBudget(ctx context.Context) error {
	if p.budget == nil {
		return nil
	}
	if err := p.budget.Check(ctx); err != nil {
		p.logger.Error("Budget exceeded",
			zap.String("provider", p.provider),
			zap.String("model", p.model),
			zap.Error(err),
		)
		return fmt.Errorf("budget check: %w", err)
	}
	return nil
}

func (p *InstrumentedEncoder) recordUsage(tokens int64) {
	if p.budget == nil || tokens <= 0 {
		return
	}
	p.budget.Record(tokens)
	metrics.EncodingBudgetTokensRemaining.WithLabelValues(p.provider, "daily").
		Set(float64(p.budget.RemainingDaily()))
	metrics.EncodingBudgetTokensRemaining.WithLabelValues(p.provider, "monthly").
		Set(float64(p.budget.RemainingMonthly()))
}
