package answer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/moodlens/backend/internal/index"
	"github.com/moodlens/backend/internal/stats"
)

// augmentState tracks where an augmented answer attempt is in its lifecycle.
// Every attempt ends in either stateCompleted or stateFallenBack.
type augmentState int

const (
	stateIdle augmentState = iota
	stateRetrieving
	statePrompting
	stateCompleted
	stateFallenBack
)

func (s augmentState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRetrieving:
		return "retrieving"
	case statePrompting:
		return "prompting"
	case stateCompleted:
		return "completed"
	case stateFallenBack:
		return "fallen-back"
	default:
		return "unknown"
	}
}

// Completer produces a completion for a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Validate(ctx context.Context) error
}

// Retriever returns the documents most similar to a query.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]index.Match, error)
}

const systemPrompt = `You are an HR analytics assistant. Answer questions about workplace ` +
	`mood and emotion data using only the context provided. Be concise and factual. ` +
	`If the context does not contain the answer, say so plainly.`

// AugmentedAnswerer wraps a RuleAnswerer with retrieval-augmented completion.
// When no completer is configured, or when any stage of the augmented path
// fails, it falls back to the rule-based answer and tags the result
// accordingly.
type AugmentedAnswerer struct {
	mu        sync.RWMutex
	completer Completer

	retriever      Retriever
	rules          *RuleAnswerer
	topK           int
	maxAnswerChars int
	logger         *zap.Logger
}

// NewAugmented builds an answerer that starts in rule-based-only mode.
// Call Configure to enable the augmented path.
func NewAugmented(rules *RuleAnswerer, retriever Retriever, topK, maxAnswerChars int, logger *zap.Logger) *AugmentedAnswerer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK <= 0 {
		topK = 5
	}
	return &AugmentedAnswerer{
		retriever:      retriever,
		rules:          rules,
		topK:           topK,
		maxAnswerChars: maxAnswerChars,
		logger:         logger,
	}
}

// Configure validates the completer before enabling it. A completer that
// fails validation is rejected and the answerer stays in its previous mode.
func (a *AugmentedAnswerer) Configure(ctx context.Context, completer Completer) error {
	if completer == nil {
		return ErrNotConfigured
	}
	if err := completer.Validate(ctx); err != nil {
		a.logger.Warn("completer validation failed, keeping rule-based mode", zap.Error(err))
		return fmt.Errorf("validating completer: %w", err)
	}

	a.mu.Lock()
	a.completer = completer
	a.mu.Unlock()

	a.logger.Info("augmented answering enabled")
	return nil
}

// Configured reports whether the augmented path is available.
func (a *AugmentedAnswerer) Configured() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.completer != nil
}

// Answer runs the augmented pipeline and falls back to the rule-based
// answerer on any failure. The returned Result is never nil and its Source
// records which path produced the text.
func (a *AugmentedAnswerer) Answer(ctx context.Context, question string, st stats.Statistics) *Result {
	// An empty question has nothing to retrieve on and would only invite
	// the model to invent an answer; the rule path owns the clarification
	// prompt.
	if strings.TrimSpace(question) == "" {
		return a.rules.Answer(question, st)
	}

	a.mu.RLock()
	completer := a.completer
	a.mu.RUnlock()

	state := stateIdle

	if completer == nil {
		return a.fallBack(question, st, state, ErrNotConfigured)
	}

	state = stateRetrieving
	matches, err := a.retriever.Search(ctx, question, a.topK)
	if err != nil {
		return a.fallBack(question, st, state, err)
	}

	state = statePrompting
	completion, err := completer.Complete(ctx, systemPrompt, buildUserPrompt(question, matches))
	if err != nil {
		return a.fallBack(question, st, state, err)
	}

	answer := sanitizeCompletion(completion, a.maxAnswerChars)
	if answer == "" {
		return a.fallBack(question, st, state, ErrEmptyCompletion)
	}

	state = stateCompleted
	a.logger.Debug("augmented answer produced",
		zap.String("state", state.String()),
		zap.Int("context_docs", len(matches)))
	return &Result{Answer: answer, Source: SourceAugmented}
}

func (a *AugmentedAnswerer) fallBack(question string, st stats.Statistics, from augmentState, cause error) *Result {
	if from != stateIdle {
		a.logger.Warn("augmented answer failed, falling back to rules",
			zap.String("state", from.String()),
			zap.Error(cause))
	}
	res := a.rules.Answer(question, st)
	res.Source = SourceRuleBased
	return res
}

func buildUserPrompt(question string, matches []index.Match) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	if len(matches) == 0 {
		b.WriteString("(no matching records)\n")
	}
	for _, m := range matches {
		b.WriteString("- ")
		b.WriteString(m.Document.Text)
		b.WriteByte('\n')
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// sanitizeCompletion collapses whitespace and truncates at a word boundary.
func sanitizeCompletion(s string, maxChars int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxChars > 0 && len(s) > maxChars {
		cut := s[:maxChars]
		if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
			cut = cut[:idx]
		}
		s = cut + "…"
	}
	return s
}
