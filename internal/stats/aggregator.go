// Package stats computes aggregate statistics over mood records. All
// functions are pure: the same input records always produce the same
// output, and nothing here touches the clock, the store, or the network.
package stats

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/moodlens/backend/internal/storage/models"
)

// DefaultTrendWindow is the length of each of the two comparison windows
// used for trend computation.
const DefaultTrendWindow = 7 * 24 * time.Hour

var negativeEmotions = map[string]bool{
	"sad":     true,
	"angry":   true,
	"fear":    true,
	"disgust": true,
}

var positiveEmotions = map[string]bool{
	"happy": true,
}

type Options struct {
	SubjectID   string
	TrendWindow time.Duration
}

// Statistics is the derived view over a record snapshot. It is never
// persisted; callers recompute it from the current records.
type Statistics struct {
	NoData       bool
	TotalRecords int

	// Counts and Shares are keyed by normalized emotion label. Shares sum
	// to 1.0 within floating-point tolerance whenever NoData is false.
	Counts map[string]int
	Shares map[string]float64

	MostCommon  string
	LeastCommon string

	LatestEmotion string
	LatestAt      time.Time

	// MeanConfidence is nil when no record carries a confidence score.
	MeanConfidence      *float64
	ConfidenceByEmotion map[string]float64

	Trend Trend

	// Subjects is keyed by subject ID, Departments by department name.
	// Departments is empty when no record carries a department.
	Subjects    map[string]GroupSummary
	Departments map[string]GroupSummary
}

type GroupSummary struct {
	Name          string
	Records       int
	Counts        map[string]int
	TopEmotion    string
	NegativeShare float64
}

// Window is one half of a trend comparison. Counts is zero-filled across
// the union of emotions seen in either window, so per-emotion deltas are
// always well-defined.
type Window struct {
	Start  time.Time
	End    time.Time
	Total  int
	Counts map[string]int
}

type Trend struct {
	WindowLength time.Duration
	Recent       Window
	Previous     Window
}

// NegativeShare is the fraction of a window's records with a negative
// emotion label. Zero for an empty window.
func (w Window) NegativeShare() float64 {
	if w.Total == 0 {
		return 0
	}
	negative := 0
	for label, count := range w.Counts {
		if negativeEmotions[label] {
			negative += count
		}
	}
	return float64(negative) / float64(w.Total)
}

// Normalize maps an emotion or mood label to its canonical form.
// Detected emotions and manually entered moods share one taxonomy; the
// record's Source field preserves their differing reliability.
func Normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Display renders a normalized label for user-facing text.
func Display(label string) string {
	if label == "" {
		return label
	}
	runes := []rune(label)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func IsNegative(label string) bool {
	return negativeEmotions[Normalize(label)]
}

func IsPositive(label string) bool {
	return positiveEmotions[Normalize(label)]
}

// Compute aggregates the given records. A filter that excludes every
// record, like an empty input, yields the NoData variant.
func Compute(records []models.MoodRecord, opts Options) Statistics {
	if opts.TrendWindow <= 0 {
		opts.TrendWindow = DefaultTrendWindow
	}

	filtered := records
	if opts.SubjectID != "" {
		filtered = nil
		for _, r := range records {
			if r.SubjectID == opts.SubjectID {
				filtered = append(filtered, r)
			}
		}
	}

	if len(filtered) == 0 {
		return Statistics{NoData: true}
	}

	st := Statistics{
		TotalRecords:        len(filtered),
		Counts:              make(map[string]int),
		Shares:              make(map[string]float64),
		ConfidenceByEmotion: make(map[string]float64),
		Subjects:            make(map[string]GroupSummary),
		Departments:         make(map[string]GroupSummary),
	}

	confidenceSum := make(map[string]float64)
	confidenceCount := make(map[string]int)
	var totalConfidence float64
	var totalWithConfidence int

	for _, r := range filtered {
		label := Normalize(r.Emotion)
		st.Counts[label]++

		if r.HasConfidence() {
			confidenceSum[label] += *r.Confidence
			confidenceCount[label]++
			totalConfidence += *r.Confidence
			totalWithConfidence++
		}

		if r.ObservedAt.After(st.LatestAt) {
			st.LatestAt = r.ObservedAt
			st.LatestEmotion = label
		}

		addToGroup(st.Subjects, r.SubjectID, r.SubjectName, label)
		if r.Department != "" {
			addToGroup(st.Departments, r.Department, r.Department, label)
		}
	}

	total := float64(st.TotalRecords)
	for label, count := range st.Counts {
		st.Shares[label] = float64(count) / total
	}

	st.MostCommon = pickByCount(st.Counts, true)
	st.LeastCommon = pickByCount(st.Counts, false)

	if totalWithConfidence > 0 {
		mean := totalConfidence / float64(totalWithConfidence)
		st.MeanConfidence = &mean
	}
	for label, sum := range confidenceSum {
		st.ConfidenceByEmotion[label] = sum / float64(confidenceCount[label])
	}

	finalizeGroups(st.Subjects)
	finalizeGroups(st.Departments)

	st.Trend = computeTrend(filtered, st.LatestAt, opts.TrendWindow)

	return st
}

// SortedByCount returns labels ordered by descending count, ties broken
// alphabetically, for deterministic rendering.
func (s Statistics) SortedByCount() []string {
	labels := make([]string, 0, len(s.Counts))
	for label := range s.Counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if s.Counts[labels[i]] != s.Counts[labels[j]] {
			return s.Counts[labels[i]] > s.Counts[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return labels
}

// NegativeShare is the fraction of all records with a negative emotion.
func (s Statistics) NegativeShare() float64 {
	if s.TotalRecords == 0 {
		return 0
	}
	negative := 0
	for label, count := range s.Counts {
		if negativeEmotions[label] {
			negative += count
		}
	}
	return float64(negative) / float64(s.TotalRecords)
}

// PositiveShare is the fraction of all records with a positive emotion.
func (s Statistics) PositiveShare() float64 {
	if s.TotalRecords == 0 {
		return 0
	}
	positive := 0
	for label, count := range s.Counts {
		if positiveEmotions[label] {
			positive += count
		}
	}
	return float64(positive) / float64(s.TotalRecords)
}

func addToGroup(groups map[string]GroupSummary, key, name, label string) {
	g, ok := groups[key]
	if !ok {
		g = GroupSummary{Name: name, Counts: make(map[string]int)}
	}
	g.Records++
	g.Counts[label]++
	groups[key] = g
}

func finalizeGroups(groups map[string]GroupSummary) {
	for key, g := range groups {
		g.TopEmotion = pickByCount(g.Counts, true)
		negative := 0
		for label, count := range g.Counts {
			if negativeEmotions[label] {
				negative += count
			}
		}
		if g.Records > 0 {
			g.NegativeShare = float64(negative) / float64(g.Records)
		}
		groups[key] = g
	}
}

// pickByCount selects the label with the highest (or lowest) count, with
// alphabetical tie-breaking so identical inputs always pick the same label.
func pickByCount(counts map[string]int, most bool) string {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	picked := ""
	for _, label := range labels {
		if picked == "" {
			picked = label
			continue
		}
		if most && counts[label] > counts[picked] {
			picked = label
		}
		if !most && counts[label] < counts[picked] {
			picked = label
		}
	}
	return picked
}

// computeTrend partitions records into two contiguous windows of equal
// length ending at the latest observation. Anchoring on the latest record
// rather than the wall clock keeps Compute pure; out-of-order timestamps
// are handled because partitioning only inspects each record's own time.
func computeTrend(records []models.MoodRecord, anchor time.Time, window time.Duration) Trend {
	recentStart := anchor.Add(-window)
	previousStart := anchor.Add(-2 * window)

	trend := Trend{
		WindowLength: window,
		Recent: Window{
			Start:  recentStart,
			End:    anchor,
			Counts: make(map[string]int),
		},
		Previous: Window{
			Start:  previousStart,
			End:    recentStart,
			Counts: make(map[string]int),
		},
	}

	for _, r := range records {
		label := Normalize(r.Emotion)
		switch {
		case r.ObservedAt.After(recentStart):
			trend.Recent.Counts[label]++
			trend.Recent.Total++
		case r.ObservedAt.After(previousStart):
			trend.Previous.Counts[label]++
			trend.Previous.Total++
		}
	}

	// Zero-fill the union of emotions so comparisons are well-defined
	// even for emotions present in only one window.
	for label := range trend.Recent.Counts {
		if _, ok := trend.Previous.Counts[label]; !ok {
			trend.Previous.Counts[label] = 0
		}
	}
	for label := range trend.Previous.Counts {
		if _, ok := trend.Recent.Counts[label]; !ok {
			trend.Recent.Counts[label] = 0
		}
	}

	return trend
}
