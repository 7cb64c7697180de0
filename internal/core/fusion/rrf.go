// Package fusion merges ranked result pools and diversifies the merged list.
package fusion

import (
	"sort"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

const DefaultRRFK = 60

// FuseRRF merges pools with Reciprocal Rank Fusion. Each pool adds
// 1/(k+rank) for every document it contains, rank starting at 1.
// The first pool that mentions a document supplies its text.
func FuseRRF(pools []domain.ResultPool, k int) []domain.FusedResult {
	if k <= 0 {
		k = DefaultRRFK
	}

	acc := make(map[string]*domain.FusedResult)
	for _, pool := range pools {
		for rank, r := range pool {
			if r.ID == "" {
				continue
			}
			entry, ok := acc[r.ID]
			if !ok {
				entry = &domain.FusedResult{ID: r.ID, Text: r.Text}
				acc[r.ID] = entry
			}
			entry.FusedScore += 1.0 / float64(k+rank+1)
		}
	}

	out := make([]domain.FusedResult, 0, len(acc))
	for _, e := range acc {
		out = append(out, *e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}
