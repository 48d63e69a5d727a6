package answer

import "errors"

// Answer sources. Callers use the tag to tell a fully augmented answer
// from a degraded rule-based one.
const (
	SourceRuleBased = "rule-based"
	SourceAugmented = "augmented"
)

// Result is an answer plus the path that produced it.
type Result struct {
	Answer string
	Source string
}

var (
	// ErrNotConfigured reports that no language-model credential has been
	// accepted, so augmentation cannot run.
	ErrNotConfigured = errors.New("augmentation not configured")

	// ErrEmptyCompletion reports that the language model returned nothing
	// usable.
	ErrEmptyCompletion = errors.New("empty completion")
)
