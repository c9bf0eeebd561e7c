// Package needle is an in-process question answering pipeline: documents go
// in, embeddings index them, and questions come back as ranked answer spans.
// The HTTP service in cmd/needle wraps the same components; this package is
// the library entry point.
package needle

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/haytools/needle/internal/docstore"
	"github.com/haytools/needle/internal/domain"
	"github.com/haytools/needle/internal/index"
	finderuc "github.com/haytools/needle/internal/usecase/finder"
	retrieveruc "github.com/haytools/needle/internal/usecase/retriever"
)

// Encoder produces fixed-dimension embeddings: one model view for queries,
// one for passages. Both sides must emit vectors of Dimension() length.
type Encoder interface {
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
	EncodePassages(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Reader extracts answer spans from a single passage. Offsets refer to byte
// positions within the passage; a no-answer prediction carries
// NoAnswerOffset.
type Reader interface {
	Predict(ctx context.Context, question, passage string, maxAnswers int) ([]Answer, error)
}

// AskOptions are the per-question pipeline parameters.
type AskOptions struct {
	// TopKRetriever is the number of passages pulled from the store.
	TopKRetriever int
	// TopKReader is the number of answers kept per passage.
	TopKReader int
	// MaxAnswers caps the final ranked list. Zero means
	// TopKRetriever * TopKReader.
	MaxAnswers int
}

// Client is the needle library entry point. All methods are safe for
// concurrent use.
type Client struct {
	store     *docstore.Store
	dense     *retrieveruc.Dense
	retriever retrieveruc.Retriever
	finder    *finderuc.Service
}

// New creates a Client around the given encoder. The index dimension is
// taken from the encoder and is fixed for the lifetime of the client.
func New(encoder Encoder, opts ...Option) (*Client, error) {
	if encoder == nil {
		return nil, errors.New("needle: encoder is required")
	}

	cfg := &clientConfig{
		metric:    MetricDotProduct,
		retrieval: RetrievalDense,
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	store, err := docstore.New(encoder.Dimension(), index.Metric(cfg.metric), cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("needle: %w", err)
	}

	enc := &encoderAdapter{inner: encoder}
	dense := retrieveruc.NewDense(enc, store, cfg.logger)

	var serving retrieveruc.Retriever = dense
	switch cfg.retrieval {
	case RetrievalLexical:
		serving = retrieveruc.NewLexical(store)
	case RetrievalHybrid:
		serving = retrieveruc.NewHybrid(dense, retrieveruc.NewLexical(store))
	case RetrievalDense:
	default:
		return nil, fmt.Errorf("needle: unknown retrieval mode %q", cfg.retrieval)
	}

	c := &Client{store: store, dense: dense, retriever: serving}

	if cfg.reader != nil {
		finder := finderuc.New(serving, &readerAdapter{inner: cfg.reader}, cfg.logger)
		if cfg.maxParallelReads > 0 {
			finder = finder.WithMaxParallelReads(cfg.maxParallelReads)
		}
		c.finder = finder
	}

	return c, nil
}

// WriteOption configures a WriteDocuments call.
type WriteOption = docstore.WriteOption

// FailOnDuplicate makes WriteDocuments return an error when a document id
// already exists, instead of overwriting.
func FailOnDuplicate() WriteOption { return docstore.FailOnDuplicate() }

// WriteDocuments adds documents to the corpus. Existing ids are overwritten
// unless FailOnDuplicate is given; new and overwritten documents need an
// UpdateEmbeddings pass before dense retrieval sees them.
func (c *Client) WriteDocuments(ctx context.Context, docs []Document, opts ...WriteOption) error {
	if err := c.store.WriteDocuments(ctx, toDomainDocuments(docs), opts...); err != nil {
		return fmt.Errorf("needle: %w", err)
	}
	return nil
}

// GetDocument returns a document by id.
func (c *Client) GetDocument(ctx context.Context, id string) (Document, error) {
	d, err := c.store.GetByID(ctx, id)
	if err != nil {
		return Document{}, fmt.Errorf("needle: %w", err)
	}
	return fromDomainDocument(d), nil
}

// Count returns the number of documents in the corpus.
func (c *Client) Count(ctx context.Context) int {
	return c.store.Count(ctx)
}

// UpdateEmbeddings encodes every document that needs an embedding and
// rebuilds the vector index. Idempotent; per-document failures are reported,
// not fatal.
func (c *Client) UpdateEmbeddings(ctx context.Context) (EmbedReport, error) {
	report, err := c.dense.UpdateEmbeddings(ctx)
	if err != nil {
		return fromEmbedReport(report), fmt.Errorf("needle: %w", err)
	}
	return fromEmbedReport(report), nil
}

// Retrieve returns the topK documents most relevant to the query, best
// first. An empty or not-yet-embedded corpus yields an empty result.
func (c *Client) Retrieve(ctx context.Context, query string, topK int) ([]ScoredDocument, error) {
	docs, err := c.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("needle: %w", err)
	}
	return fromScoredDocuments(docs), nil
}

// WriteSnapshot persists the corpus (documents, metadata, embeddings, index)
// to w. Restore with ReadSnapshot; ids are stable across the cycle.
func (c *Client) WriteSnapshot(w io.Writer) error {
	if err := c.store.WriteSnapshot(w); err != nil {
		return fmt.Errorf("needle: %w", err)
	}
	return nil
}

// ReadSnapshot replaces the corpus with a previously written snapshot.
// The snapshot's embedding dimension must match the client's encoder.
func (c *Client) ReadSnapshot(r io.Reader) error {
	if err := c.store.ReadSnapshot(r); err != nil {
		return fmt.Errorf("needle: %w", err)
	}
	return nil
}

// Ask runs the full pipeline: retrieve passages, read each one, and merge
// the candidates into a single ranked answer list.
func (c *Client) Ask(ctx context.Context, question string, opts AskOptions) ([]Answer, error) {
	if c.finder == nil {
		return nil, errors.New("needle: reader not configured (use WithReader)")
	}
	answers, err := c.finder.GetAnswers(ctx, question, finderuc.Options{
		TopKRetriever: opts.TopKRetriever,
		TopKReader:    opts.TopKReader,
		MaxAnswers:    opts.MaxAnswers,
	})
	if err != nil {
		return nil, fmt.Errorf("needle: %w", err)
	}
	return fromDomainAnswers(answers), nil
}

// encoderAdapter wraps the public Encoder to satisfy domain.Encoder.
// Token accounting is a provider concern; library encoders report zero.
type encoderAdapter struct {
	inner Encoder
}

func (a *encoderAdapter) EncodeQuery(ctx context.Context, text string) (domain.EncodingResult, error) {
	vec, err := a.inner.EncodeQuery(ctx, text)
	if err != nil {
		return domain.EncodingResult{}, fmt.Errorf("encode query: %w", err)
	}
	return domain.EncodingResult{Embedding: vec}, nil
}

func (a *encoderAdapter) EncodePassages(ctx context.Context, texts []string) (domain.BatchEncodingResult, error) {
	vecs, err := a.inner.EncodePassages(ctx, texts)
	if err != nil {
		return domain.BatchEncodingResult{}, fmt.Errorf("encode passages: %w", err)
	}
	return domain.BatchEncodingResult{Embeddings: vecs}, nil
}

func (a *encoderAdapter) Dimension() int { return a.inner.Dimension() }

// readerAdapter wraps the public Reader to satisfy the finder contract.
type readerAdapter struct {
	inner Reader
}

func (a *readerAdapter) Predict(
	ctx context.Context, question, passage string, maxAnswers int,
) ([]domain.Answer, error) {
	answers, err := a.inner.Predict(ctx, question, passage, maxAnswers)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Answer, len(answers))
	for i, ans := range answers {
		out[i] = domain.Answer{
			Text:       ans.Text,
			Context:    ans.Context,
			Score:      ans.Score,
			DocumentID: ans.DocumentID,
			Offset:     ans.Offset,
			Rank:       ans.Rank,
		}
	}
	return out, nil
}
