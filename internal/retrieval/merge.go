package retrieval

import (
	"sort"

	"github.com/surisearch/suri-search/internal/vector"
)

// MergeAndRank concatenates per-partition match lists, drops everything
// below minScore, sorts globally by score descending and truncates to topK.
func MergeAndRank(perPartition [][]vector.Match, minScore float32, topK int) []vector.Match {
	total := 0
	for _, matches := range perPartition {
		total += len(matches)
	}

	merged := make([]vector.Match, 0, total)
	for _, matches := range perPartition {
		for _, m := range matches {
			if m.Score < minScore {
				continue
			}
			merged = append(merged, m)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if topK > 0 && len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}
