package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/moodlens/backend/internal/metrics"
	"github.com/moodlens/backend/pkg/logger"
	"github.com/moodlens/backend/pkg/utils"
)

// EmbeddingCache stores vectors keyed by text hash. The redis cache
// client satisfies it.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// Embedder is the embedding surface CachedEmbedder decorates.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// CachedEmbedder wraps an embedder with a cache lookup per text. Cache
// failures are logged and treated as misses; the underlying embedder is
// the source of truth.
type CachedEmbedder struct {
	inner Embedder
	cache EmbeddingCache
	ttl   time.Duration
}

func NewCachedEmbedder(inner Embedder, cache EmbeddingCache, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedEmbedder{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := utils.HashString(text)

	if cached, ok, err := c.cache.GetEmbedding(ctx, hash); err != nil {
		logger.Warn("Embedding cache lookup failed", zap.Error(err))
	} else if ok {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	embedding, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetEmbedding(ctx, hash, embedding, c.ttl); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}

	return embedding, nil
}

// EmbedBatch checks the cache per text and only sends the misses to the
// underlying embedder, preserving input order in the result.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		hash := utils.HashString(text)
		if cached, ok, err := c.cache.GetEmbedding(ctx, hash); err == nil && ok {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			out[i] = cached
			continue
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		embeddings, err := c.inner.EmbedBatch(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for j, embedding := range embeddings {
			i := missIdx[j]
			out[i] = embedding
			if err := c.cache.SetEmbedding(ctx, utils.HashString(texts[i]), embedding, c.ttl); err != nil {
				logger.Warn("Embedding cache write failed", zap.Error(err))
			}
		}
	}

	return out, nil
}
