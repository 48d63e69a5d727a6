package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodlens/backend/internal/stats"
	"github.com/moodlens/backend/internal/storage/models"
)

// stubEmbedder maps text to a character-frequency vector. Identical
// texts embed identically, so an exact-match query scores 1.0.
type stubEmbedder struct {
	failWith error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	vec := make([]float32, 64)
	for _, r := range text {
		vec[int(r)%64]++
	}
	return vec, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func docAt(id, text string, observedAt time.Time, ord int) Document {
	return Document{ID: id, Text: text, Kind: KindRecord, ObservedAt: observedAt, Ord: ord}
}

func TestRebuild_NoEmbedder(t *testing.T) {
	ix := New(nil, nil)
	err := ix.Rebuild(context.Background(), []Document{docAt("d1", "text", time.Now(), 0)})
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestRebuild_EmptyDocuments(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	require.NoError(t, ix.Rebuild(context.Background(), nil))
	assert.Equal(t, 0, ix.Size())
	assert.Equal(t, uint64(1), ix.Version())
}

func TestSearch_EmptyIndexReturnsNothing(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)

	matches, err := ix.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearch_ExactMatchScoresOne(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	sentence := "Subject Alice reported happy with confidence 93.0 on 2025-06-01 12:00."
	require.NoError(t, ix.Rebuild(context.Background(), []Document{
		docAt("d1", sentence, time.Now(), 0),
	}))

	matches, err := ix.Search(context.Background(), sentence, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestSearch_TopKTruncates(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	now := time.Now()
	docs := []Document{
		docAt("d1", "alpha", now, 0),
		docAt("d2", "bravo", now, 1),
		docAt("d3", "charlie", now, 2),
	}
	require.NoError(t, ix.Rebuild(context.Background(), docs))

	matches, err := ix.Search(context.Background(), "alpha", 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	assert.Equal(t, "d1", matches[0].Document.ID)
}

func TestSearch_TiesBreakByRecencyThenOrder(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	older := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	// Identical text means identical scores for all three.
	docs := []Document{
		docAt("old", "same text", older, 0),
		docAt("new-first", "same text", newer, 1),
		docAt("new-second", "same text", newer, 2),
	}
	require.NoError(t, ix.Rebuild(context.Background(), docs))

	matches, err := ix.Search(context.Background(), "same text", 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "new-first", matches[0].Document.ID)
	assert.Equal(t, "new-second", matches[1].Document.ID)
	assert.Equal(t, "old", matches[2].Document.ID)
}

func TestSearch_EmbedderFailure(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	require.NoError(t, ix.Rebuild(context.Background(), []Document{
		docAt("d1", "text", time.Now(), 0),
	}))

	ix.SetEmbedder(&stubEmbedder{failWith: errors.New("provider down")})
	_, err := ix.Search(context.Background(), "text", 5)
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestRebuild_TwiceSameDataSameResults(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	docs := []Document{
		docAt("d1", "alpha beta", now, 0),
		docAt("d2", "gamma delta", now.Add(time.Hour), 1),
	}

	require.NoError(t, ix.Rebuild(context.Background(), docs))
	first, err := ix.Search(context.Background(), "alpha", 0)
	require.NoError(t, err)

	require.NoError(t, ix.Rebuild(context.Background(), docs))
	second, err := ix.Search(context.Background(), "alpha", 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, uint64(2), ix.Version())
}

func TestRebuild_FailureKeepsPreviousSnapshot(t *testing.T) {
	ix := New(&stubEmbedder{}, nil)
	require.NoError(t, ix.Rebuild(context.Background(), []Document{
		docAt("d1", "text", time.Now(), 0),
	}))
	require.Equal(t, 1, ix.Size())

	ix.SetEmbedder(&stubEmbedder{failWith: errors.New("provider down")})
	err := ix.Rebuild(context.Background(), []Document{
		docAt("d2", "other", time.Now(), 0),
	})
	require.Error(t, err)

	// The failed rebuild must not disturb what is being served.
	assert.Equal(t, 1, ix.Size())
	assert.Equal(t, uint64(1), ix.Version())
}

func TestBuildDocuments_RecordAndStatDocs(t *testing.T) {
	conf := 93.0
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []models.MoodRecord{
		{ID: 1, SubjectID: "alice", SubjectName: "Alice", Emotion: "happy", Confidence: &conf, ObservedAt: at},
		{ID: 2, SubjectID: "bob", SubjectName: "Bob", Emotion: "sad", ObservedAt: at.Add(time.Hour)},
	}
	st := stats.Compute(records, stats.Options{})

	docs := BuildDocuments(records, st)

	require.NotEmpty(t, docs)
	assert.Equal(t, "Subject Alice reported happy with confidence 93.0 on 2025-06-01 12:00.", docs[0].Text)
	assert.Equal(t, "Subject Bob reported sad on 2025-06-01 13:00.", docs[1].Text)

	kinds := map[string]int{}
	for i, d := range docs {
		kinds[d.Kind]++
		assert.Equal(t, i, d.Ord)
	}
	assert.Equal(t, 2, kinds[KindRecord])
	assert.GreaterOrEqual(t, kinds[KindStatistic], 3)
}

func TestBuildDocuments_Deterministic(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []models.MoodRecord{
		{ID: 1, SubjectID: "a", SubjectName: "A", Emotion: "happy", ObservedAt: at},
		{ID: 2, SubjectID: "b", SubjectName: "B", Emotion: "sad", ObservedAt: at.Add(time.Minute)},
		{ID: 3, SubjectID: "c", SubjectName: "C", Emotion: "angry", ObservedAt: at.Add(2 * time.Minute)},
	}
	st := stats.Compute(records, stats.Options{})

	assert.Equal(t, BuildDocuments(records, st), BuildDocuments(records, st))
}
