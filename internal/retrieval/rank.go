package retrieval

import "sort"

// rank keeps items scoring strictly above threshold, orders them best first
// (stable, so equal scores keep store order) and truncates to limit.
// A non-positive limit keeps every item above the threshold.
func rank[T any](items []T, score func(T) float64, threshold float64, limit int) []T {
	kept := make([]T, 0, len(items))
	for _, item := range items {
		if score(item) > threshold {
			kept = append(kept, item)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return score(kept[i]) > score(kept[j])
	})

	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
