package models

import "time"

// Record sources. Automatic records come from the webcam emotion
// classifier and carry a confidence score; manual entries are logged by
// HR and usually do not.
const (
	SourceAutomatic = "automatic-detection"
	SourceManual    = "manual-entry"
)

// MoodRecord is one observed or declared emotional state for a subject.
// Records are immutable once written; the engine only ever reads them.
type MoodRecord struct {
	ID          int64
	SubjectID   string
	SubjectName string
	Department  string
	Emotion     string
	Confidence  *float64
	Source      string
	Notes       string
	ObservedAt  time.Time
}

// HasConfidence reports whether the record carries a usable confidence
// score. Manual entries and legacy rows may not.
func (r *MoodRecord) HasConfidence() bool {
	return r.Confidence != nil
}

// Subject is an employee a mood record concerns. Department is the
// grouping key for per-group breakdowns and may be empty.
type Subject struct {
	SubjectID  string
	FullName   string
	Email      string
	Department string
	Role       string
	CreatedAt  time.Time
}
