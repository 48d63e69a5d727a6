package answer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/moodlens/backend/internal/stats"
)

// RuleAnswerer resolves questions against an ordered list of intents,
// each a (predicate, renderer) pair over the current statistics. It
// never fails: a question matching no intent gets the distribution
// summary, an empty question gets a clarification prompt.
type RuleAnswerer struct {
	intents []intent
	logger  *zap.Logger
}

type question struct {
	raw        string
	normalized string
	tokens     map[string]bool
}

type intent struct {
	name   string
	match  func(q *question, st stats.Statistics) bool
	render func(q *question, st stats.Statistics) string
}

func NewRuleAnswerer(logger *zap.Logger) *RuleAnswerer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &RuleAnswerer{logger: logger}
	a.intents = []intent{
		{"subject-lookup", a.matchSubject, a.renderSubject},
		{"least-common", keywords("least", "rarest", "uncommon"), renderLeastCommon},
		{"most-common", matchMostCommon, renderMostCommon},
		{"recent", keywords("recent", "latest", "last", "now", "today"), renderRecent},
		{"trend", keywords("trend", "pattern", "patterns", "change", "changed", "changing", "shift"), renderTrend},
		{"department-comparison", matchDepartment, renderDepartments},
		{"organization-health", keywords("team", "organization", "organizational", "company", "workforce"), renderOrgHealth},
		{"stress", keywords("stress", "stressed", "stressors", "anxiety", "worry", "worried", "struggling", "concern", "concerns", "negative", "burnout"), renderStress},
		{"confidence-quality", keywords("confidence", "confident", "reliable", "reliability", "accurate", "accuracy"), renderConfidence},
		{"specific-emotion", matchSpecificEmotion, renderSpecificEmotion},
		{"positive", keywords("happy", "positive", "good", "morale", "wellbeing", "satisfaction"), renderPositive},
		{"overview", keywords("feel", "feels", "feeling", "mood", "moods", "emotion", "emotions", "emotional"), renderOverview},
	}
	return a
}

// Answer is deterministic: the same question over the same statistics
// produces the same text, byte for byte.
func (a *RuleAnswerer) Answer(questionText string, st stats.Statistics) *Result {
	q := parseQuestion(questionText)

	if q.normalized == "" {
		return &Result{
			Answer: "Please ask a question about the recorded emotions, for example: what is the most common emotion?",
			Source: SourceRuleBased,
		}
	}

	if st.NoData {
		return &Result{
			Answer: "No mood records are available yet. Record some emotions first, then ask again.",
			Source: SourceRuleBased,
		}
	}

	for _, in := range a.intents {
		if in.match(q, st) {
			a.logger.Debug("Rule intent matched", zap.String("intent", in.name))
			return &Result{Answer: in.render(q, st), Source: SourceRuleBased}
		}
	}

	return &Result{Answer: renderGeneric(q, st), Source: SourceRuleBased}
}

func parseQuestion(text string) *question {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	normalized := strings.Join(strings.Fields(b.String()), " ")

	tokens := make(map[string]bool)
	for _, w := range strings.Fields(normalized) {
		tokens[w] = true
	}

	return &question{raw: text, normalized: normalized, tokens: tokens}
}

func keywords(words ...string) func(q *question, st stats.Statistics) bool {
	return func(q *question, _ stats.Statistics) bool {
		for _, w := range words {
			if q.tokens[w] {
				return true
			}
		}
		return false
	}
}

// matchMostCommon fires on the distribution question. A bare "most" is
// too greedy on its own ("which department is most stressed?"), so it
// only counts when the question also mentions emotions.
func matchMostCommon(q *question, _ stats.Statistics) bool {
	if q.tokens["common"] || q.tokens["commonest"] || q.tokens["frequent"] ||
		q.tokens["frequently"] || q.tokens["dominant"] || q.tokens["prevalent"] {
		return true
	}
	if !q.tokens["most"] {
		return false
	}
	return q.tokens["emotion"] || q.tokens["emotions"] || q.tokens["mood"] ||
		q.tokens["moods"] || q.tokens["feeling"] || q.tokens["feelings"]
}

// matchSubject checks whether the question names a known subject, either
// by ID token or by name. Named-entity extraction narrows the candidate
// spans; plain token matching covers names the tagger misses.
func (a *RuleAnswerer) matchSubject(q *question, st stats.Statistics) bool {
	return a.findSubject(q, st) != ""
}

func (a *RuleAnswerer) findSubject(q *question, st stats.Statistics) string {
	if len(st.Subjects) == 0 {
		return ""
	}

	candidates := make(map[string]bool)
	for w := range q.tokens {
		candidates[w] = true
	}

	if doc, err := prose.NewDocument(q.raw); err == nil {
		for _, ent := range doc.Entities() {
			if ent.Label == "PERSON" || ent.Label == "GPE" {
				for _, w := range strings.Fields(strings.ToLower(ent.Text)) {
					candidates[w] = true
				}
			}
		}
	} else {
		a.logger.Debug("NER unavailable, using token matching only", zap.Error(err))
	}

	// Deterministic pick: iterate subjects in sorted key order.
	for _, key := range sortedKeys(st.Subjects) {
		g := st.Subjects[key]
		if candidates[strings.ToLower(key)] {
			return key
		}
		for _, part := range strings.Fields(strings.ToLower(g.Name)) {
			if candidates[part] {
				return key
			}
		}
	}
	return ""
}

func (a *RuleAnswerer) renderSubject(q *question, st stats.Statistics) string {
	key := a.findSubject(q, st)
	g := st.Subjects[key]
	return fmt.Sprintf("%s has %d recorded observations. Their most frequent emotion is %s, and %.1f%% of their records are negative.",
		g.Name, g.Records, stats.Display(g.TopEmotion), g.NegativeShare*100)
}

func matchDepartment(q *question, st stats.Statistics) bool {
	if len(st.Departments) == 0 {
		return false
	}
	return q.tokens["department"] || q.tokens["departments"]
}

func renderDepartments(_ *question, st stats.Statistics) string {
	mostStressed := ""
	for _, key := range sortedKeys(st.Departments) {
		if mostStressed == "" || st.Departments[key].NegativeShare > st.Departments[mostStressed].NegativeShare {
			mostStressed = key
		}
	}

	var parts []string
	for _, key := range sortedKeys(st.Departments) {
		g := st.Departments[key]
		parts = append(parts, fmt.Sprintf("%s: mostly %s, %.1f%% negative", g.Name, stats.Display(g.TopEmotion), g.NegativeShare*100))
	}

	return fmt.Sprintf("Across departments, %s shows the highest share of negative emotions (%.1f%%). Breakdown: %s.",
		st.Departments[mostStressed].Name, st.Departments[mostStressed].NegativeShare*100, strings.Join(parts, "; "))
}

func renderOrgHealth(_ *question, st stats.Statistics) string {
	positive := 0
	for label, count := range st.Counts {
		if stats.IsPositive(label) || label == "neutral" {
			positive += count
		}
	}
	positivePct := float64(positive) / float64(st.TotalRecords) * 100
	return fmt.Sprintf("Team emotional health: %s. Overall positivity: %.1f%%.",
		distributionSummary(st, 0), positivePct)
}

func renderMostCommon(_ *question, st stats.Statistics) string {
	most := st.MostCommon
	return fmt.Sprintf("The most common emotion is '%s' with %d occurrences (%.1f%% of all records).",
		stats.Display(most), st.Counts[most], st.Shares[most]*100)
}

func renderLeastCommon(_ *question, st stats.Statistics) string {
	least := st.LeastCommon
	return fmt.Sprintf("The least common emotion is '%s' with %d occurrences (%.1f%% of all records).",
		stats.Display(least), st.Counts[least], st.Shares[least]*100)
}

func renderRecent(_ *question, st stats.Statistics) string {
	return fmt.Sprintf("The most recent emotion observed was '%s' at %s.",
		stats.Display(st.LatestEmotion), st.LatestAt.UTC().Format("2006-01-02 15:04"))
}

func renderTrend(_ *question, st stats.Statistics) string {
	recent := st.Trend.Recent
	previous := st.Trend.Previous

	if previous.Total == 0 {
		return fmt.Sprintf("All %d observations in scope fall within the most recent period, so there is no earlier window to compare against. Current distribution: %s.",
			recent.Total, distributionSummary(st, 3))
	}

	recentNeg := recent.NegativeShare() * 100
	previousNeg := previous.NegativeShare() * 100

	direction := "held steady"
	if recentNeg > previousNeg+1 {
		direction = "worsened"
	} else if recentNeg < previousNeg-1 {
		direction = "improved"
	}

	return fmt.Sprintf("Comparing the last two periods of %d days: negative emotions %s, moving from %.1f%% to %.1f%% of records (%d then, %d now).",
		int(st.Trend.WindowLength.Hours()/24), direction, previousNeg, recentNeg, previous.Total, recent.Total)
}

func renderStress(_ *question, st stats.Statistics) string {
	negativePct := st.NegativeShare() * 100
	if negativePct == 0 {
		return "No concerning emotional patterns detected; no negative emotions appear in the current records."
	}
	return fmt.Sprintf("Negative emotions (sad, angry, fear, disgust) account for %.1f%% of records. HR should consider support initiatives for the affected employees.",
		negativePct)
}

func renderConfidence(_ *question, st stats.Statistics) string {
	if st.MeanConfidence == nil {
		return "None of the records in scope carry a detection confidence score, so confidence quality cannot be assessed."
	}
	mean := *st.MeanConfidence
	switch {
	case mean >= 85:
		return fmt.Sprintf("Average detection confidence is %.1f%%, so the detected emotions are clearly defined.", mean)
	case mean < 70:
		return fmt.Sprintf("Average detection confidence is %.1f%%, which is low. Consider improving lighting or camera placement at capture points.", mean)
	default:
		return fmt.Sprintf("Average detection confidence is %.1f%%, which is adequate.", mean)
	}
}

func matchSpecificEmotion(q *question, st stats.Statistics) bool {
	return specificEmotion(q, st) != ""
}

func specificEmotion(q *question, st stats.Statistics) string {
	for _, label := range []string{"happy", "sad", "angry", "fear", "surprise", "disgust", "neutral"} {
		if q.tokens[label] {
			return label
		}
	}
	// Free-text mood labels entered manually are first-class too.
	for _, label := range sortedCountKeys(st.Counts) {
		if q.tokens[label] {
			return label
		}
	}
	return ""
}

func renderSpecificEmotion(q *question, st stats.Statistics) string {
	label := specificEmotion(q, st)
	count := st.Counts[label]
	significance := "a minor"
	if count > 2 {
		significance = "a significant"
	}
	return fmt.Sprintf("'%s' appears %d times (%.1f%% of records), making it %s part of the emotional picture.",
		stats.Display(label), count, st.Shares[label]*100, significance)
}

func renderPositive(_ *question, st stats.Statistics) string {
	positivePct := st.PositiveShare() * 100
	advice := "There is room to improve employee satisfaction."
	if positivePct > 50 {
		advice = "Consider ways to sustain this positive trend."
	}
	return fmt.Sprintf("Positive emotions represent %.1f%% of records. %s", positivePct, advice)
}

func renderOverview(_ *question, st stats.Statistics) string {
	return fmt.Sprintf("Overall emotional state: %s. The dominant emotion is %s.",
		distributionSummary(st, 0), stats.Display(st.MostCommon))
}

func renderGeneric(_ *question, st stats.Statistics) string {
	return fmt.Sprintf("Based on %d mood records: %s. The most prevalent emotion is %s.",
		st.TotalRecords, distributionSummary(st, 3), stats.Display(st.MostCommon))
}

// distributionSummary renders "Happy (10x), Sad (3x)" ordered by count.
// A limit of 0 includes every label.
func distributionSummary(st stats.Statistics, limit int) string {
	labels := st.SortedByCount()
	if limit > 0 && len(labels) > limit {
		labels = labels[:limit]
	}
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s (%dx)", stats.Display(label), st.Counts[label]))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(m map[string]stats.GroupSummary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedCountKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
