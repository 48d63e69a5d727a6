package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moodlens/backend/internal/index"
)

type stubCompleter struct {
	completion  string
	completeErr error
	validateErr error
	lastPrompt  string
}

func (s *stubCompleter) Complete(_ context.Context, _, userPrompt string) (string, error) {
	s.lastPrompt = userPrompt
	return s.completion, s.completeErr
}

func (s *stubCompleter) Validate(_ context.Context) error {
	return s.validateErr
}

type stubRetriever struct {
	matches []index.Match
	err     error
}

func (s *stubRetriever) Search(_ context.Context, _ string, _ int) ([]index.Match, error) {
	return s.matches, s.err
}

func newTestAugmented(retriever Retriever) *AugmentedAnswerer {
	return NewAugmented(NewRuleAnswerer(nil), retriever, 5, 500, nil)
}

func TestAugmented_UnconfiguredFallsBack(t *testing.T) {
	a := newTestAugmented(&stubRetriever{})
	st := buildStats(t, happySadRecords())

	res := a.Answer(context.Background(), "what is the most common emotion?", st)
	assert.Equal(t, SourceRuleBased, res.Source)
	assert.Contains(t, res.Answer, "most common emotion is 'Happy'")
	assert.False(t, a.Configured())
}

func TestAugmented_ConfigureRejectsFailedValidation(t *testing.T) {
	a := newTestAugmented(&stubRetriever{})

	err := a.Configure(context.Background(), &stubCompleter{validateErr: errors.New("bad key")})
	require.Error(t, err)
	assert.False(t, a.Configured())

	// Behavior is identical to never having configured at all.
	st := buildStats(t, happySadRecords())
	res := a.Answer(context.Background(), "how is everyone feeling?", st)
	assert.Equal(t, SourceRuleBased, res.Source)
}

func TestAugmented_HappyPath(t *testing.T) {
	a := newTestAugmented(&stubRetriever{
		matches: []index.Match{
			{Document: index.Document{Text: "Subject Alice reported happy on 2025-06-01 12:00."}, Score: 0.9},
		},
	})
	completer := &stubCompleter{completion: "The workforce is mostly happy."}
	require.NoError(t, a.Configure(context.Background(), completer))
	require.True(t, a.Configured())

	st := buildStats(t, happySadRecords())
	res := a.Answer(context.Background(), "how is everyone feeling?", st)

	assert.Equal(t, SourceAugmented, res.Source)
	assert.Equal(t, "The workforce is mostly happy.", res.Answer)
	assert.Contains(t, completer.lastPrompt, "Subject Alice reported happy")
	assert.Contains(t, completer.lastPrompt, "how is everyone feeling?")
}

func TestAugmented_RetrievalFailureFallsBack(t *testing.T) {
	a := newTestAugmented(&stubRetriever{err: index.ErrEmbeddingUnavailable})
	require.NoError(t, a.Configure(context.Background(), &stubCompleter{completion: "unused"}))

	st := buildStats(t, happySadRecords())
	res := a.Answer(context.Background(), "what is the most common emotion?", st)

	assert.Equal(t, SourceRuleBased, res.Source)
	assert.Contains(t, res.Answer, "most common emotion is 'Happy'")
}

func TestAugmented_CompletionFailureFallsBack(t *testing.T) {
	a := newTestAugmented(&stubRetriever{})
	require.NoError(t, a.Configure(context.Background(), &stubCompleter{
		completeErr: context.DeadlineExceeded,
	}))

	st := buildStats(t, happySadRecords())
	res := a.Answer(context.Background(), "what is the most common emotion?", st)

	assert.Equal(t, SourceRuleBased, res.Source)
}

func TestAugmented_EmptyCompletionFallsBack(t *testing.T) {
	a := newTestAugmented(&stubRetriever{})
	require.NoError(t, a.Configure(context.Background(), &stubCompleter{completion: "   \n  "}))

	st := buildStats(t, happySadRecords())
	res := a.Answer(context.Background(), "what is the most common emotion?", st)

	assert.Equal(t, SourceRuleBased, res.Source)
	assert.Contains(t, res.Answer, "most common emotion")
}

func TestAugmented_BlankQuestionGetsClarification(t *testing.T) {
	completer := &stubCompleter{completion: "An invented answer."}
	a := newTestAugmented(&stubRetriever{})
	require.NoError(t, a.Configure(context.Background(), completer))

	st := buildStats(t, happySadRecords())
	for _, q := range []string{"", "   ", "\n\t"} {
		res := a.Answer(context.Background(), q, st)
		assert.Equal(t, SourceRuleBased, res.Source)
		assert.Contains(t, res.Answer, "Please ask a question")
	}
	// The completer is never consulted for a blank question.
	assert.Empty(t, completer.lastPrompt)
}

func TestAugmented_TruncatesLongCompletions(t *testing.T) {
	long := strings.Repeat("word ", 300)
	a := NewAugmented(NewRuleAnswerer(nil), &stubRetriever{}, 5, 100, nil)
	require.NoError(t, a.Configure(context.Background(), &stubCompleter{completion: long}))

	st := buildStats(t, happySadRecords())
	res := a.Answer(context.Background(), "anything", st)

	assert.Equal(t, SourceAugmented, res.Source)
	assert.LessOrEqual(t, len(res.Answer), 110)
	assert.True(t, strings.HasSuffix(res.Answer, "…"))
}

func TestSanitizeCompletion(t *testing.T) {
	assert.Equal(t, "a b c", sanitizeCompletion("  a\n b\t c ", 0))
	assert.Equal(t, "", sanitizeCompletion("\n\t ", 100))
}
