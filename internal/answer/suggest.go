package answer

import (
	"fmt"
	"sort"

	"github.com/moodlens/backend/internal/stats"
)

type suggestion struct {
	text      string
	magnitude float64
}

// Suggest returns follow-up questions ranked by how pronounced the signal
// behind each one is. Suggestions are only offered for facets the data
// actually exhibits, so the result is empty when there are no records.
func Suggest(st stats.Statistics, maxCount int) []string {
	if st.NoData || maxCount <= 0 {
		return nil
	}

	var candidates []suggestion

	if st.MostCommon != "" {
		share := st.Shares[st.MostCommon]
		candidates = append(candidates, suggestion{
			text:      fmt.Sprintf("Why is %s the most common emotion?", stats.Display(st.MostCommon)),
			magnitude: share,
		})
	}

	if neg := st.NegativeShare(); neg > 0 {
		candidates = append(candidates, suggestion{
			text:      "How high is the overall stress level?",
			magnitude: neg,
		})
	}

	if st.Trend.Previous.Total > 0 {
		delta := st.Trend.Recent.NegativeShare() - st.Trend.Previous.NegativeShare()
		if delta < 0 {
			delta = -delta
		}
		if delta > 0 {
			candidates = append(candidates, suggestion{
				text:      "How has the mood changed recently?",
				magnitude: delta,
			})
		}
	}

	if st.MeanConfidence != nil {
		candidates = append(candidates, suggestion{
			text:      "How reliable are the emotion detections?",
			magnitude: 1 - *st.MeanConfidence/100,
		})
	}

	if len(st.Departments) > 0 {
		var worst float64
		for _, dept := range st.Departments {
			if s := dept.NegativeShare; s > worst {
				worst = s
			}
		}
		candidates = append(candidates, suggestion{
			text:      "Which department is most stressed?",
			magnitude: worst,
		})
	}

	if len(st.Counts) > 3 {
		candidates = append(candidates, suggestion{
			text:      "What is the full emotion distribution?",
			magnitude: float64(len(st.Counts)) / 10,
		})
	}

	// Stable sort keeps the declaration order above as the tie-break, so
	// equal magnitudes rank deterministically.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].magnitude > candidates[j].magnitude
	})

	if len(candidates) > maxCount {
		candidates = candidates[:maxCount]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.text
	}
	return out
}
