package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/moodlens/backend/internal/stats"
)

// Report renders a plain-text analysis of the current mood data, suitable
// for dashboards and exports. An empty subjectID covers the whole
// organization.
func (e *Engine) Report(ctx context.Context, subjectID string) string {
	st := e.Statistics(ctx, subjectID)
	if st.NoData {
		return "No mood data available yet. Start by recording some emotions through the detection feature."
	}

	var b strings.Builder

	b.WriteString("EMOTION ANALYSIS REPORT\n")
	b.WriteString("=======================\n\n")

	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "  Total records: %d\n", st.TotalRecords)
	fmt.Fprintf(&b, "  Most common:   %s (%dx, %.1f%%)\n",
		stats.Display(st.MostCommon), st.Counts[st.MostCommon], st.Shares[st.MostCommon]*100)
	if st.MeanConfidence != nil {
		fmt.Fprintf(&b, "  Mean detection confidence: %.1f%%\n", *st.MeanConfidence)
	}

	b.WriteString("\nDistribution:\n")
	for _, label := range st.SortedByCount() {
		pct := st.Shares[label] * 100
		bar := strings.Repeat("#", min(int(pct/3), 20))
		fmt.Fprintf(&b, "  %-12s %3d (%5.1f%%) %s\n", stats.Display(label), st.Counts[label], pct, bar)
	}

	b.WriteString("\nAnalysis:\n")
	switch {
	case stats.IsPositive(st.MostCommon) || st.MostCommon == "neutral":
		b.WriteString("  Overall emotional state appears balanced and positive.\n")
	case stats.IsNegative(st.MostCommon):
		fmt.Fprintf(&b, "  Predominantly %s emotions detected. Consider wellness programs and support initiatives.\n",
			stats.Display(st.MostCommon))
	}

	if variety := len(st.Counts); variety >= 5 {
		b.WriteString("  High emotional variety, which indicates a healthy emotional range.\n")
	} else if variety <= 2 {
		b.WriteString("  Limited emotional variety; the emotional state appears stable.\n")
	}

	if st.MeanConfidence != nil {
		switch mean := *st.MeanConfidence; {
		case mean >= 85:
			fmt.Fprintf(&b, "  High detection confidence (%.1f%%); emotions are clearly defined.\n", mean)
		case mean < 70:
			fmt.Fprintf(&b, "  Lower detection confidence (%.1f%%); consider improving lighting or camera angle.\n", mean)
		}
	}

	if st.Trend.Previous.Total > 0 {
		delta := st.Trend.Recent.NegativeShare() - st.Trend.Previous.NegativeShare()
		switch {
		case delta > 0.05:
			fmt.Fprintf(&b, "  Negative emotions are rising: %.0f%% of recent records vs %.0f%% previously.\n",
				st.Trend.Recent.NegativeShare()*100, st.Trend.Previous.NegativeShare()*100)
		case delta < -0.05:
			fmt.Fprintf(&b, "  Negative emotions are declining: %.0f%% of recent records vs %.0f%% previously.\n",
				st.Trend.Recent.NegativeShare()*100, st.Trend.Previous.NegativeShare()*100)
		}
	}

	if len(st.Departments) > 0 {
		b.WriteString("\nDepartments:\n")
		for _, name := range sortedGroupKeys(st.Departments) {
			dept := st.Departments[name]
			fmt.Fprintf(&b, "  %-16s %3d records, mostly %s (%.0f%% negative)\n",
				name, dept.Records, stats.Display(dept.TopEmotion), dept.NegativeShare*100)
		}
	}

	return b.String()
}

func sortedGroupKeys(m map[string]stats.GroupSummary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
