package index

import (
	"fmt"
	"time"

	"github.com/moodlens/backend/internal/stats"
	"github.com/moodlens/backend/internal/storage/models"
)

// Document kinds. Record documents render a single mood record;
// statistic documents render one derived figure.
const (
	KindRecord    = "record"
	KindStatistic = "statistic"
)

// Document is one retrievable text blob plus enough provenance to trace
// it back to the record or statistic that produced it.
type Document struct {
	ID         string
	Text       string
	Kind       string
	RecordID   int64
	StatKey    string
	SubjectID  string
	ObservedAt time.Time
	Ord        int
}

const dateLayout = "2006-01-02 15:04"

// BuildDocuments renders one sentence per record and one per notable
// statistic. Templates are fixed; only the data varies, so two builds
// over the same records produce identical document sets.
func BuildDocuments(records []models.MoodRecord, st stats.Statistics) []Document {
	docs := make([]Document, 0, len(records)+len(st.Counts)+4)

	for _, r := range records {
		docs = append(docs, Document{
			ID:         fmt.Sprintf("record-%d", r.ID),
			Text:       recordSentence(r),
			Kind:       KindRecord,
			RecordID:   r.ID,
			SubjectID:  r.SubjectID,
			ObservedAt: r.ObservedAt,
			Ord:        len(docs),
		})
	}

	if st.NoData {
		return docs
	}

	for _, label := range st.SortedByCount() {
		docs = append(docs, Document{
			ID:         "stat-share-" + label,
			Text:       fmt.Sprintf("%s accounts for %.1f%% of all observations.", stats.Display(label), st.Shares[label]*100),
			Kind:       KindStatistic,
			StatKey:    "share:" + label,
			ObservedAt: st.LatestAt,
			Ord:        len(docs),
		})
	}

	docs = append(docs, Document{
		ID: "stat-most-common",
		Text: fmt.Sprintf("The most common emotion across %d records is %s.",
			st.TotalRecords, stats.Display(st.MostCommon)),
		Kind:       KindStatistic,
		StatKey:    "most-common",
		ObservedAt: st.LatestAt,
		Ord:        len(docs),
	})

	if st.MeanConfidence != nil {
		docs = append(docs, Document{
			ID: "stat-confidence",
			Text: fmt.Sprintf("Average detection confidence across scored records is %.1f%%.",
				*st.MeanConfidence),
			Kind:       KindStatistic,
			StatKey:    "mean-confidence",
			ObservedAt: st.LatestAt,
			Ord:        len(docs),
		})
	}

	if st.Trend.Previous.Total > 0 {
		docs = append(docs, Document{
			ID: "stat-trend",
			Text: fmt.Sprintf("Negative emotions moved from %.1f%% to %.1f%% of records between the previous and the most recent period.",
				st.Trend.Previous.NegativeShare()*100, st.Trend.Recent.NegativeShare()*100),
			Kind:       KindStatistic,
			StatKey:    "trend",
			ObservedAt: st.LatestAt,
			Ord:        len(docs),
		})
	}

	return docs
}

func recordSentence(r models.MoodRecord) string {
	label := stats.Normalize(r.Emotion)
	when := r.ObservedAt.UTC().Format(dateLayout)
	if r.HasConfidence() {
		return fmt.Sprintf("Subject %s reported %s with confidence %.1f on %s.",
			r.SubjectName, label, *r.Confidence, when)
	}
	return fmt.Sprintf("Subject %s reported %s on %s.", r.SubjectName, label, when)
}
