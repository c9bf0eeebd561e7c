// Package finder composes retrieval and reading into the two-stage answering
// pipeline: broad recall via the retriever bounds the reading cost, then the
// reader supplies span-level precision over each retrieved passage.
package finder

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/metrics"
)

// DefaultMaxParallelReads bounds concurrent reader invocations per question.
const DefaultMaxParallelReads = 4

// Options are the per-question pipeline parameters.
type Options struct {
	// TopKRetriever is the number of passages pulled from the store.
	TopKRetriever int
	// TopKReader is the number of answers kept per passage.
	TopKReader int
	// MaxAnswers caps the final ranked list. Zero means
	// TopKRetriever * TopKReader.
	MaxAnswers int
}

func (o *Options) validate() error {
	if o.TopKRetriever <= 0 {
		return fmt.Errorf("top_k_retriever must be positive, got %d: %w", o.TopKRetriever, domain.ErrInvalidArgument)
	}
	if o.TopKReader <= 0 {
		return fmt.Errorf("top_k_reader must be positive, got %d: %w", o.TopKReader, domain.ErrInvalidArgument)
	}
	if o.MaxAnswers < 0 {
		return fmt.Errorf("max_answers must not be negative, got %d: %w", o.MaxAnswers, domain.ErrInvalidArgument)
	}
	if o.MaxAnswers == 0 {
		o.MaxAnswers = o.TopKRetriever * o.TopKReader
	}
	return nil
}

// Service is the pipeline coordinator.
type Service struct {
	retriever   Retriever
	reader      Reader
	maxParallel int
	logger      *zap.Logger
}

// New creates a finder over a retriever and a reader.
func New(retriever Retriever, reader Reader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		retriever:   retriever,
		reader:      reader,
		maxParallel: DefaultMaxParallelReads,
		logger:      logger,
	}
}

// WithMaxParallelReads overrides the reader fan-out width.
func (s *Service) WithMaxParallelReads(n int) *Service {
	if n > 0 {
		s.maxParallel = n
	}
	return s
}

// GetAnswers runs the full pipeline for one question and returns the ranked
// answer list: candidates from all retrieved passages merged, sorted by
// descending confidence with ties broken by ascending retrieval rank, and
// truncated to MaxAnswers.
//
// A reader failure on one passage contributes zero candidates and never
// aborts the call. An empty retrieval returns an empty list without invoking
// the reader.
func (s *Service) GetAnswers(ctx context.Context, question string, opts Options) ([]domain.Answer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	retrieved, err := s.retriever.Retrieve(ctx, question, opts.TopKRetriever)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	metrics.PipelinePassagesRetrieved.Observe(float64(len(retrieved)))
	if len(retrieved) == 0 {
		return []domain.Answer{}, nil
	}

	// Fan out one reader invocation per passage, join, then rank globally.
	perPassage := make([][]domain.Answer, len(retrieved))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for rank, sd := range retrieved {
		g.Go(func() error {
			candidates, err := s.reader.Predict(gctx, question, sd.Document.Text, opts.TopKReader)
			if err != nil {
				// Контекстные ошибки фатальны, всё остальное — ноль кандидатов с этого пассажа.
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("read passage %q: %w", sd.Document.ID, err)
				}
				metrics.PipelinePassageFailures.Inc()
				s.logger.Warn("Reader failed on passage, skipping",
					zap.String("document_id", sd.Document.ID),
					zap.Int("rank", rank),
					zap.Error(err),
				)
				return nil
			}
			if len(candidates) > opts.TopKReader {
				candidates = candidates[:opts.TopKReader]
			}
			for i := range candidates {
				candidates[i].DocumentID = sd.Document.ID
				candidates[i].Rank = rank + 1
			}
			perPassage[rank] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Concatenation in retrieval-rank order plus a stable sort gives the
	// tie-break for free: equal scores keep ascending rank.
	var answers []domain.Answer
	for _, candidates := range perPassage {
		answers = append(answers, candidates...)
	}
	sort.SliceStable(answers, func(i, j int) bool { return answers[i].Score > answers[j].Score })

	if len(answers) > opts.MaxAnswers {
		answers = answers[:opts.MaxAnswers]
	}
	if answers == nil {
		answers = []domain.Answer{}
	}
	metrics.PipelineAnswersReturned.Observe(float64(len(answers)))
	return answers, nil
}
