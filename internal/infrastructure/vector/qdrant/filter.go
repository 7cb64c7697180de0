package qdrant

import (
	"sort"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

// buildFilter translates must and not partitions into a Qdrant filter with
// match.any conditions. Should is applied client-side because a Qdrant
// should clause requires at least one match.
func buildFilter(filters *domain.FilterSet) map[string]any {
	if filters == nil {
		return nil
	}
	must := conditions(filters.Must)
	mustNot := conditions(filters.Not)
	if len(must) == 0 && len(mustNot) == 0 {
		return nil
	}
	out := map[string]any{}
	if len(must) > 0 {
		out["must"] = must
	}
	if len(mustNot) > 0 {
		out["must_not"] = mustNot
	}
	return out
}

func conditions(part map[string][]string) []map[string]any {
	keys := make([]string, 0, len(part))
	for k, values := range part {
		if len(values) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, map[string]any{
			"key":   k,
			"match": map[string]any{"any": part[k]},
		})
	}
	return out
}

func sortPool(pool domain.ResultPool) {
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Score > pool[j].Score
	})
}
