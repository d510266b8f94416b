package cpi

import "sort"

// Top returns the names of the n highest-importance groups, descending.
func (r *Result) Top(n int) []string {
	type groupScore struct {
		name  string
		score float64
	}
	ranked := make([]groupScore, len(r.Groups))
	for i, name := range r.Groups {
		ranked[i] = groupScore{name: name, score: r.Importance[i]}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	if n < 0 {
		n = 0
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].name
	}
	return out
}
