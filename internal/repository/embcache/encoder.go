// Package embcache caches embeddings in a key-value store so repeated texts
// never hit the encoder provider twice.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/haytools/needle/internal/db"
	"github.com/haytools/needle/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// cacheTTL bounds the keyspace: embeddings for texts nobody re-encodes
// within a month get evicted.
const cacheTTL = 30 * 24 * time.Hour

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CachedEncoder caches per-text embeddings around an inner dual encoder.
// Queries and passages share one keyspace: the inner encoder already applied
// any side-specific instruction by the time text reaches the cache key, so
// identical final texts are identical vectors.
type CachedEncoder struct {
	inner      domain.Encoder
	store      store
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Encoder,
	s store,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEncoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEncoder{
		inner:      inner,
		store:      s,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// EncodeQuery returns a cached embedding or calls the inner encoder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEncoder) EncodeQuery(ctx context.Context, text string) (domain.EncodingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("hit")
		return domain.EncodingResult{Embedding: vec}, nil
	}
	c.incCache("miss")

	result, err := c.inner.EncodeQuery(ctx, text)
	if err != nil {
		return domain.EncodingResult{}, fmt.Errorf("encode query: %w", err)
	}

	c.putToCache(ctx, key, result.Embedding)
	return result, nil
}

// EncodePassages serves cached texts from the store and encodes only the
// misses, reassembling by input position.
func (c *CachedEncoder) EncodePassages(ctx context.Context, texts []string) (domain.BatchEncodingResult, error) {
	out := domain.BatchEncodingResult{Embeddings: make([][]float32, len(texts))}

	missTexts := make([]string, 0, len(texts))
	missIdx := make([]int, 0, len(texts))
	for i, text := range texts {
		if vec, ok := c.getFromCache(ctx, c.cacheKey(text)); ok {
			c.incCache("hit")
			out.Embeddings[i] = vec
			continue
		}
		c.incCache("miss")
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	result, err := c.inner.EncodePassages(ctx, missTexts)
	if err != nil {
		return domain.BatchEncodingResult{}, fmt.Errorf("encode passages: %w", err)
	}
	if len(result.Embeddings) != len(missTexts) {
		return domain.BatchEncodingResult{}, fmt.Errorf(
			"encoder returned %d vectors for %d passages: %w",
			len(result.Embeddings), len(missTexts), domain.ErrEncodingFailure)
	}

	for j, vec := range result.Embeddings {
		out.Embeddings[missIdx[j]] = vec
		c.putToCache(ctx, c.cacheKey(missTexts[j]), vec)
	}
	out.PromptTokens = result.PromptTokens
	out.TotalTokens = result.TotalTokens
	return out, nil
}

// Dimension returns the inner encoder's declared output dimension.
func (c *CachedEncoder) Dimension() int { return c.inner.Dimension() }

func (c *CachedEncoder) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEncoder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEncoder) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEncoder) putToCache(ctx context.Context, key string, vec []float32) {
	data := vectorToCacheBytes(vec)
	if err := c.store.SetWithTTL(ctx, key, data, cacheTTL); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
