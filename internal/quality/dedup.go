// Package quality merges generated QA items, removes duplicates and scores them.
package quality

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/cjhyy/interview-QA-help/internal/domain"
)

// Merge flattens per-chunk results keeping chunk order, then item order.
func Merge(chunks [][]domain.QAItem) []domain.QAItem {
	total := 0
	for _, items := range chunks {
		total += len(items)
	}
	merged := make([]domain.QAItem, 0, total)
	for _, items := range chunks {
		merged = append(merged, items...)
	}
	return merged
}

// Key is the identity used for deduplication: the question, normalized,
// case-folded and with whitespace collapsed.
func Key(question string) string {
	folded := cases.Fold().String(norm.NFKC.String(question))
	return strings.Join(strings.Fields(folded), " ")
}

// Dedup drops later items whose question matches an earlier one.
func Dedup(items []domain.QAItem) []domain.QAItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]domain.QAItem, 0, len(items))
	for _, item := range items {
		key := Key(item.Question)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Records numbers items 1..K and scores each one.
func Records(taskID, urlHash string, items []domain.QAItem, now time.Time) []domain.QARecord {
	records := make([]domain.QARecord, 0, len(items))
	for i, item := range items {
		tags := item.Tags
		if tags == nil {
			tags = []string{}
		}
		records = append(records, domain.QARecord{
			TaskID:       taskID,
			URLHash:      urlHash,
			Question:     item.Question,
			Answer:       item.Answer,
			Order:        i + 1,
			Type:         item.Type,
			Difficulty:   item.Difficulty,
			Tags:         tags,
			QualityScore: ItemScore(item),
			CreatedAt:    now,
		})
	}
	return records
}
