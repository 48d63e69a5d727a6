package insights

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodlens/backend/internal/answer"
	"github.com/moodlens/backend/internal/storage/models"
	"github.com/moodlens/backend/pkg/config"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	records []models.MoodRecord
	err     error
}

func (s *stubStore) ListRecords(_ context.Context, subjectID string, _ int) ([]models.MoodRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	if subjectID == "" {
		return s.records, nil
	}
	var out []models.MoodRecord
	for _, r := range s.records {
		if r.SubjectID == subjectID {
			out = append(out, r)
		}
	}
	return out, nil
}

// stubAugmentor doubles as completer and embedder so one credential
// check covers both capabilities, mirroring the real client.
type stubAugmentor struct {
	completion  string
	completeErr error
	validateErr error
}

func (s *stubAugmentor) Complete(_ context.Context, _, _ string) (string, error) {
	return s.completion, s.completeErr
}

func (s *stubAugmentor) Validate(_ context.Context) error {
	return s.validateErr
}

func (s *stubAugmentor) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 64)
	for _, r := range text {
		vec[int(r)%64]++
	}
	return vec, nil
}

func (s *stubAugmentor) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, _ := s.Embed(ctx, t)
		out = append(out, v)
	}
	return out, nil
}

// countingCache satisfies AnswerCache plus the persistent counters; the
// answer methods behave like an always-miss cache.
type countingCache struct {
	counts map[string]int64
}

func (c *countingCache) GetAnswer(context.Context, string, interface{}) (bool, error) {
	return false, nil
}

func (c *countingCache) SetAnswer(context.Context, string, interface{}, time.Duration) error {
	return nil
}

func (c *countingCache) InvalidateAnswers(context.Context) error {
	return nil
}

func (c *countingCache) IncrementMetric(_ context.Context, name string) error {
	if c.counts == nil {
		c.counts = make(map[string]int64)
	}
	c.counts[name]++
	return nil
}

func (c *countingCache) GetMetric(_ context.Context, name string) (int64, error) {
	return c.counts[name], nil
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			RecordLimit:     100,
			TopK:            5,
			TrendWindowDays: 7,
			MaxSuggestions:  5,
			MaxAnswerChars:  500,
			StoreTimeoutSec: 5,
		},
	}
}

func testRecords() []models.MoodRecord {
	var records []models.MoodRecord
	for i := 0; i < 10; i++ {
		records = append(records, models.MoodRecord{
			ID: int64(i + 1), SubjectID: "alice", SubjectName: "Alice",
			Emotion: "happy", Source: models.SourceAutomatic,
			ObservedAt: baseTime.Add(time.Duration(i) * time.Minute),
		})
	}
	for i := 0; i < 3; i++ {
		records = append(records, models.MoodRecord{
			ID: int64(i + 11), SubjectID: "bob", SubjectName: "Bob",
			Emotion: "sad", Source: models.SourceManual,
			ObservedAt: baseTime.Add(time.Duration(10+i) * time.Minute),
		})
	}
	return records
}

func newTestEngine(store RecordStore, augmentor *stubAugmentor) *Engine {
	e := New(store, nil, testConfig(), nil)
	if augmentor != nil {
		e.newAugmentor = func(string) Augmentor { return augmentor }
	}
	return e
}

func TestQuery_RuleBasedByDefault(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()}, nil)

	resp := e.Query(context.Background(), "what is the most common emotion?", "")

	assert.Equal(t, answer.SourceRuleBased, resp.Source)
	assert.Contains(t, resp.Answer, "most common emotion is 'Happy'")
	assert.NotEmpty(t, resp.ID)
	assert.NotEmpty(t, resp.Suggestions)
}

func TestQuery_EmptyStore(t *testing.T) {
	e := newTestEngine(&stubStore{}, nil)

	resp := e.Query(context.Background(), "how is everyone feeling?", "")

	assert.Equal(t, answer.SourceRuleBased, resp.Source)
	assert.Contains(t, resp.Answer, "No mood records are available yet")
	assert.Empty(t, resp.Suggestions)
}

func TestQuery_StoreFailureStillAnswers(t *testing.T) {
	e := newTestEngine(&stubStore{err: errors.New("disk gone")}, nil)

	resp := e.Query(context.Background(), "what is the mood?", "")

	assert.Equal(t, answer.SourceRuleBased, resp.Source)
	assert.Contains(t, resp.Answer, "No mood records are available yet")
}

func TestQuery_SubjectFilter(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()}, nil)

	resp := e.Query(context.Background(), "what is the most common emotion?", "bob")

	assert.Contains(t, resp.Answer, "'Sad'")
}

func TestConfigureAugmentation_InvalidCredential(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()},
		&stubAugmentor{validateErr: errors.New("401 unauthorized")})

	err := e.ConfigureAugmentation(context.Background(), "bad-key")

	require.Error(t, err)
	assert.False(t, e.Augmented())
	assert.Zero(t, e.IndexSize())

	// Indistinguishable from never configuring.
	resp := e.Query(context.Background(), "what is the most common emotion?", "")
	assert.Equal(t, answer.SourceRuleBased, resp.Source)
}

func TestConfigureAugmentation_EmptyCredential(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()}, &stubAugmentor{})
	assert.Error(t, e.ConfigureAugmentation(context.Background(), ""))
}

func TestConfigureAugmentation_EnablesAugmentedAnswers(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()},
		&stubAugmentor{completion: "Morale is high overall."})

	require.NoError(t, e.ConfigureAugmentation(context.Background(), "good-key"))
	assert.True(t, e.Augmented())
	assert.Greater(t, e.IndexSize(), 0)

	resp := e.Query(context.Background(), "how is everyone feeling?", "")
	assert.Equal(t, answer.SourceAugmented, resp.Source)
	assert.Equal(t, "Morale is high overall.", resp.Answer)
}

func TestQueryCounts_TracksPersistentTotals(t *testing.T) {
	cache := &countingCache{}
	e := New(&stubStore{records: testRecords()}, cache, testConfig(), nil)

	e.Query(context.Background(), "how is everyone feeling?", "")
	e.Query(context.Background(), "what is the most common emotion?", "")

	counts := e.QueryCounts(context.Background())
	require.NotNil(t, counts)
	assert.Equal(t, int64(2), counts[answer.SourceRuleBased])
	assert.Equal(t, int64(0), counts[answer.SourceAugmented])
}

func TestQueryCounts_NilWithoutCountingCache(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()}, nil)
	assert.Nil(t, e.QueryCounts(context.Background()))
}

func TestQuery_FallsBackWhenCompletionFails(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()},
		&stubAugmentor{completeErr: context.DeadlineExceeded})

	require.NoError(t, e.ConfigureAugmentation(context.Background(), "good-key"))

	resp := e.Query(context.Background(), "what is the most common emotion?", "")
	assert.Equal(t, answer.SourceRuleBased, resp.Source)
	assert.Contains(t, resp.Answer, "most common emotion is 'Happy'")
}

func TestRebuildIndex_WithoutEmbedder(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()}, nil)
	assert.Error(t, e.RebuildIndex(context.Background()))
}

func TestRebuildIndex_Idempotent(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()}, &stubAugmentor{completion: "ok"})
	require.NoError(t, e.ConfigureAugmentation(context.Background(), "good-key"))

	size := e.IndexSize()
	require.NoError(t, e.RebuildIndex(context.Background()))
	assert.Equal(t, size, e.IndexSize())
}

func TestStatistics_Degrades(t *testing.T) {
	e := newTestEngine(&stubStore{err: errors.New("locked")}, nil)
	st := e.Statistics(context.Background(), "")
	assert.True(t, st.NoData)
}

func TestSuggestions(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()}, nil)

	suggestions := e.Suggestions(context.Background(), 0)
	assert.NotEmpty(t, suggestions)
	assert.LessOrEqual(t, len(suggestions), 5)
}

func TestReport(t *testing.T) {
	e := newTestEngine(&stubStore{records: testRecords()}, nil)

	report := e.Report(context.Background(), "")
	assert.Contains(t, report, "EMOTION ANALYSIS REPORT")
	assert.Contains(t, report, "Total records: 13")
	assert.Contains(t, report, "Most common:   Happy")
}

func TestReport_NoData(t *testing.T) {
	e := newTestEngine(&stubStore{}, nil)

	report := e.Report(context.Background(), "")
	assert.Contains(t, report, "No mood data available yet")
}
