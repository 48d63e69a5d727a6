// Package index provides an in-memory semantic index over engine
// generated documents. Rebuilds publish a fresh immutable snapshot, so
// searches in flight keep reading a consistent version.
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrEmbeddingUnavailable reports that no embedding function is wired or
// the configured one failed. Callers treat it like any other
// augmentation failure and fall back to rule-based answering.
var ErrEmbeddingUnavailable = errors.New("embedding function unavailable")

// Embedder maps text to a fixed-dimensionality vector. Implementations
// are swappable without touching the rest of the engine.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Match struct {
	Document Document
	Score    float64
}

// snapshot is an immutable build of the index. A rebuild assembles a new
// snapshot off to the side and publishes it atomically.
type snapshot struct {
	version uint64
	docs    []Document
	vectors [][]float32
	norms   []float64
}

type Index struct {
	mu       sync.RWMutex
	embedder Embedder

	current atomic.Pointer[snapshot]
	builds  atomic.Uint64
	logger  *zap.Logger
}

func New(embedder Embedder, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{embedder: embedder, logger: logger}
}

// SetEmbedder swaps the embedding function. The next Rebuild uses it;
// already published snapshots are unaffected.
func (ix *Index) SetEmbedder(e Embedder) {
	ix.mu.Lock()
	ix.embedder = e
	ix.mu.Unlock()
}

func (ix *Index) getEmbedder() Embedder {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.embedder
}

// Rebuild recomputes the whole index from the given documents and swaps
// it in. Full rebuilds are fine at the expected record volumes in the
// thousands; there is no incremental path.
func (ix *Index) Rebuild(ctx context.Context, docs []Document) error {
	embedder := ix.getEmbedder()
	if embedder == nil {
		return ErrEmbeddingUnavailable
	}

	version := ix.builds.Add(1)

	if len(docs) == 0 {
		ix.current.Store(&snapshot{version: version})
		ix.logger.Info("Index rebuilt empty", zap.Uint64("version", version))
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("%w: got %d vectors for %d documents", ErrEmbeddingUnavailable, len(vectors), len(docs))
	}

	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		norms[i] = vectorNorm(v)
	}

	ix.current.Store(&snapshot{
		version: version,
		docs:    docs,
		vectors: vectors,
		norms:   norms,
	})

	ix.logger.Info("Index rebuilt",
		zap.Uint64("version", version),
		zap.Int("documents", len(docs)),
	)

	return nil
}

// Search returns the topK documents most similar to the query. Ties are
// broken by most recent ObservedAt, then by insertion order, so results
// are fully deterministic. An empty index yields an empty result, never
// an error.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	snap := ix.current.Load()
	if snap == nil || len(snap.docs) == 0 {
		return nil, nil
	}

	embedder := ix.getEmbedder()
	if embedder == nil {
		return nil, ErrEmbeddingUnavailable
	}

	queryVec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	queryNorm := vectorNorm(queryVec)

	matches := make([]Match, 0, len(snap.docs))
	for i, doc := range snap.docs {
		matches = append(matches, Match{
			Document: doc,
			Score:    cosine(queryVec, queryNorm, snap.vectors[i], snap.norms[i]),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Document.ObservedAt.Equal(b.Document.ObservedAt) {
			return a.Document.ObservedAt.After(b.Document.ObservedAt)
		}
		return a.Document.Ord < b.Document.Ord
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}

	return matches, nil
}

// Size reports the document count of the current snapshot.
func (ix *Index) Size() int {
	snap := ix.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.docs)
}

// Version reports the published snapshot's build number, zero before the
// first rebuild.
func (ix *Index) Version() uint64 {
	snap := ix.current.Load()
	if snap == nil {
		return 0
	}
	return snap.version
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, normA float64, b []float32, normB float64) float64 {
	if len(a) != len(b) || normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}
