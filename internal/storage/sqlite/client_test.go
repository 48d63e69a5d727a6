package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodlens/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.InitSchema())
	return c
}

func TestSaveAndListRecords(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	conf := 93.5
	record := &models.MoodRecord{
		SubjectID:  "alice",
		Emotion:    "happy",
		Confidence: &conf,
		Source:     models.SourceAutomatic,
		ObservedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.SaveRecord(ctx, record))
	assert.NotZero(t, record.ID)

	records, err := c.ListRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, "alice", got.SubjectID)
	assert.Equal(t, "happy", got.Emotion)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 93.5, *got.Confidence, 1e-9)
	assert.True(t, got.ObservedAt.Equal(record.ObservedAt))
}

func TestListRecords_NewestFirst(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, emotion := range []string{"happy", "sad", "angry"} {
		require.NoError(t, c.SaveRecord(ctx, &models.MoodRecord{
			SubjectID:  "alice",
			Emotion:    emotion,
			ObservedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	records, err := c.ListRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "angry", records[0].Emotion)
	assert.Equal(t, "happy", records[2].Emotion)
}

func TestListRecords_SubjectFilterAndLimit(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.SaveRecord(ctx, &models.MoodRecord{
			SubjectID: "alice", Emotion: "happy", ObservedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, c.SaveRecord(ctx, &models.MoodRecord{
		SubjectID: "bob", Emotion: "sad", ObservedAt: base,
	}))

	records, err := c.ListRecords(ctx, "alice", 3)
	require.NoError(t, err)
	assert.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, "alice", r.SubjectID)
	}
}

func TestListRecords_JoinsSubjectIdentity(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertSubject(ctx, &models.Subject{
		SubjectID:  "alice",
		FullName:   "Alice Nguyen",
		Department: "Engineering",
	}))
	require.NoError(t, c.SaveRecord(ctx, &models.MoodRecord{
		SubjectID: "alice", Emotion: "happy",
	}))

	records, err := c.ListRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Alice Nguyen", records[0].SubjectName)
	assert.Equal(t, "Engineering", records[0].Department)
}

func TestListRecords_UnregisteredSubjectFallsBackToID(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SaveRecord(ctx, &models.MoodRecord{
		SubjectID: "ghost", Emotion: "neutral",
	}))

	records, err := c.ListRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ghost", records[0].SubjectName)
	assert.Empty(t, records[0].Department)
}

func TestSaveRecord_NilConfidence(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SaveRecord(ctx, &models.MoodRecord{
		SubjectID: "alice", Emotion: "calm", Source: models.SourceManual,
	}))

	records, err := c.ListRecords(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].Confidence)
	assert.Equal(t, models.SourceManual, records[0].Source)
}

func TestUpsertSubject_UpdatesInPlace(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertSubject(ctx, &models.Subject{
		SubjectID: "alice", FullName: "Alice", Department: "Sales",
	}))
	require.NoError(t, c.UpsertSubject(ctx, &models.Subject{
		SubjectID: "alice", FullName: "Alice Nguyen", Department: "Engineering",
	}))

	subjects, err := c.ListSubjects(ctx)
	require.NoError(t, err)
	require.Len(t, subjects, 1)
	assert.Equal(t, "Alice Nguyen", subjects[0].FullName)
	assert.Equal(t, "Engineering", subjects[0].Department)
}
