package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/moodlens/backend/internal/answer"
	"github.com/moodlens/backend/internal/index"
	"github.com/moodlens/backend/internal/llm"
	"github.com/moodlens/backend/internal/metrics"
	"github.com/moodlens/backend/internal/stats"
	"github.com/moodlens/backend/internal/storage/models"
	"github.com/moodlens/backend/pkg/config"
	"github.com/moodlens/backend/pkg/utils"
)

// RecordStore is the persistence surface the engine reads from.
type RecordStore interface {
	ListRecords(ctx context.Context, subjectID string, limit int) ([]models.MoodRecord, error)
}

// AnswerCache holds previously produced responses keyed by question hash.
// A nil cache is valid and simply disables caching.
type AnswerCache interface {
	GetAnswer(ctx context.Context, questionHash string, response interface{}) (bool, error)
	SetAnswer(ctx context.Context, questionHash string, response interface{}, ttl time.Duration) error
	InvalidateAnswers(ctx context.Context) error
}

// MetricCounter is the optional persistent-counter surface of the cache.
// Unlike the Prometheus collectors these survive restarts, so the status
// endpoint can report lifetime query totals.
type MetricCounter interface {
	IncrementMetric(ctx context.Context, name string) error
	GetMetric(ctx context.Context, name string) (int64, error)
}

// Augmentor is what a validated LLM credential buys: completions for
// answering and embeddings for the index.
type Augmentor interface {
	answer.Completer
	index.Embedder
}

// QueryResponse is the engine's answer envelope. Query never fails; a
// response is produced from whatever data and capabilities are available.
type QueryResponse struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Source      string   `json:"source"`
	Suggestions []string `json:"suggestions"`
	LatencyMS   int64    `json:"latency_ms"`
}

// Engine composes the statistics aggregator, document index, and the two
// answerers behind one facade.
type Engine struct {
	store     RecordStore
	cache     AnswerCache
	idx       *index.Index
	augmented *answer.AugmentedAnswerer

	recordLimit    int
	trendWindow    time.Duration
	maxSuggestions int
	storeTimeout   time.Duration
	cacheTTL       time.Duration
	logger         *zap.Logger

	// newAugmentor builds a client from a credential. Swappable in tests.
	newAugmentor func(credential string) Augmentor
}

func New(store RecordStore, cache AnswerCache, cfg *config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	idx := index.New(nil, logger)
	rules := answer.NewRuleAnswerer(logger)
	augmented := answer.NewAugmented(rules, &meteredRetriever{idx: idx}, cfg.Engine.TopK, cfg.Engine.MaxAnswerChars, logger)

	storeTimeout := cfg.Engine.StoreTimeout()
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	recordLimit := cfg.Engine.RecordLimit
	if recordLimit <= 0 {
		recordLimit = 1000
	}

	llmCfg := cfg.LLM
	return &Engine{
		store:          store,
		cache:          cache,
		idx:            idx,
		augmented:      augmented,
		recordLimit:    recordLimit,
		trendWindow:    cfg.Engine.TrendWindow(),
		maxSuggestions: cfg.Engine.MaxSuggestions,
		storeTimeout:   storeTimeout,
		cacheTTL:       time.Duration(cfg.Redis.TTLSec) * time.Second,
		logger:         logger,
		newAugmentor: func(credential string) Augmentor {
			return llm.NewClient(credential, llmCfg.Model, llmCfg.EmbeddingModel,
				llmCfg.Temperature, llmCfg.MaxTokens, llmCfg.Timeout())
		},
	}
}

// Query answers a question about the mood data. It degrades instead of
// failing: storage errors yield a no-data answer, augmented failures fall
// back to the rule-based path.
func (e *Engine) Query(ctx context.Context, question, subjectID string) *QueryResponse {
	start := time.Now()

	st := e.Statistics(ctx, subjectID)

	cacheKey := ""
	if e.cache != nil && e.augmented.Configured() {
		cacheKey = utils.HashString(fmt.Sprintf("%s|%s|%d", question, subjectID, e.idx.Version()))
		var cached QueryResponse
		hit, err := e.cache.GetAnswer(ctx, cacheKey, &cached)
		if err != nil {
			e.logger.Warn("answer cache lookup failed", zap.Error(err))
		}
		if hit {
			metrics.CacheHits.WithLabelValues("answer").Inc()
			cached.ID = uuid.New().String()
			cached.LatencyMS = time.Since(start).Milliseconds()
			return &cached
		}
		metrics.CacheMisses.WithLabelValues("answer").Inc()
	}

	res := e.augmented.Answer(ctx, question, st)
	if e.augmented.Configured() && res.Source == answer.SourceRuleBased {
		metrics.FallbackTotal.WithLabelValues("augmented_error").Inc()
	}

	resp := &QueryResponse{
		ID:          uuid.New().String(),
		Question:    question,
		Answer:      res.Answer,
		Source:      res.Source,
		Suggestions: answer.Suggest(st, e.maxSuggestions),
		LatencyMS:   time.Since(start).Milliseconds(),
	}

	metrics.QueryTotal.WithLabelValues(res.Source).Inc()
	metrics.QueryDuration.WithLabelValues(res.Source).Observe(time.Since(start).Seconds())

	if counter, ok := e.cache.(MetricCounter); ok {
		if err := counter.IncrementMetric(ctx, "queries:"+res.Source); err != nil {
			e.logger.Warn("query counter increment failed", zap.Error(err))
		}
	}

	if cacheKey != "" && res.Source == answer.SourceAugmented {
		if err := e.cache.SetAnswer(ctx, cacheKey, resp, e.cacheTTL); err != nil {
			e.logger.Warn("answer cache write failed", zap.Error(err))
		}
	}

	e.logger.Info("question answered",
		zap.String("source", res.Source),
		zap.Int64("latency_ms", resp.LatencyMS))

	return resp
}

// Statistics aggregates the stored records. A storage failure is logged
// and reported as the no-data variant rather than surfaced as an error.
func (e *Engine) Statistics(ctx context.Context, subjectID string) stats.Statistics {
	records, err := e.loadRecords(ctx, subjectID)
	if err != nil {
		e.logger.Warn("loading records failed", zap.Error(err))
		return stats.Statistics{NoData: true}
	}
	return stats.Compute(records, stats.Options{
		SubjectID:   subjectID,
		TrendWindow: e.trendWindow,
	})
}

// Suggestions returns ranked follow-up questions for the current data.
func (e *Engine) Suggestions(ctx context.Context, max int) []string {
	if max <= 0 || max > e.maxSuggestions {
		max = e.maxSuggestions
	}
	st := e.Statistics(ctx, "")
	return answer.Suggest(st, max)
}

// ConfigureAugmentation validates the credential and, on success, enables
// augmented answering and rebuilds the index with the new embedder. An
// invalid credential leaves the engine exactly as it was.
func (e *Engine) ConfigureAugmentation(ctx context.Context, credential string) error {
	if credential == "" {
		return fmt.Errorf("credential is empty")
	}

	client := e.newAugmentor(credential)
	if err := e.augmented.Configure(ctx, client); err != nil {
		return fmt.Errorf("configuring augmentation: %w", err)
	}

	var embedder index.Embedder = client
	if ec, ok := e.cache.(llm.EmbeddingCache); ok {
		embedder = llm.NewCachedEmbedder(client, ec, e.cacheTTL)
	}
	e.idx.SetEmbedder(embedder)

	if err := e.RebuildIndex(ctx); err != nil {
		e.logger.Warn("index rebuild after configure failed", zap.Error(err))
	}

	return nil
}

// Augmented reports whether the augmented answering path is enabled.
func (e *Engine) Augmented() bool {
	return e.augmented.Configured()
}

// QueryCounts returns the lifetime per-source query totals from the
// cache's persistent counters. Without a counting cache it returns nil.
func (e *Engine) QueryCounts(ctx context.Context) map[string]int64 {
	counter, ok := e.cache.(MetricCounter)
	if !ok {
		return nil
	}

	counts := make(map[string]int64, 2)
	for _, source := range []string{answer.SourceRuleBased, answer.SourceAugmented} {
		n, err := counter.GetMetric(ctx, "queries:"+source)
		if err != nil {
			e.logger.Warn("query counter read failed",
				zap.String("source", source), zap.Error(err))
			continue
		}
		counts[source] = n
	}
	return counts
}

// IndexSize returns the document count of the current index snapshot.
func (e *Engine) IndexSize() int {
	return e.idx.Size()
}

// RebuildIndex regenerates all documents from storage and publishes a new
// index snapshot. Cached answers are invalidated afterwards since they may
// describe the replaced snapshot.
func (e *Engine) RebuildIndex(ctx context.Context) error {
	records, err := e.loadRecords(ctx, "")
	if err != nil {
		return fmt.Errorf("loading records for index: %w", err)
	}

	st := stats.Compute(records, stats.Options{TrendWindow: e.trendWindow})
	docs := index.BuildDocuments(records, st)

	if err := e.idx.Rebuild(ctx, docs); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}

	metrics.IndexRebuilds.Inc()
	metrics.IndexDocuments.Set(float64(e.idx.Size()))

	if e.cache != nil {
		if err := e.cache.InvalidateAnswers(ctx); err != nil {
			e.logger.Warn("answer cache invalidation failed", zap.Error(err))
		}
	}

	e.logger.Info("index rebuilt",
		zap.Int("documents", e.idx.Size()),
		zap.Uint64("version", e.idx.Version()))

	return nil
}

func (e *Engine) loadRecords(ctx context.Context, subjectID string) ([]models.MoodRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.store.ListRecords(ctx, subjectID, e.recordLimit)
}

// meteredRetriever records how many documents each retrieval returned.
type meteredRetriever struct {
	idx *index.Index
}

func (m *meteredRetriever) Search(ctx context.Context, query string, topK int) ([]index.Match, error) {
	matches, err := m.idx.Search(ctx, query, topK)
	if err == nil {
		metrics.RetrievalResults.Observe(float64(len(matches)))
	}
	return matches, err
}
