package rewrite

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

var decomposeSplitter = regexp.MustCompile(
	`(?i)\b(?:vs|versus|and|respectively|compared\s+(?:to|with)|compare|comparison\s+of|differences?\s+between)\b\.?` +
		`|以及|和|与|对比|差异|分别` +
		`|[、，,；;?？!！。]`,
)

// Decompose splits compound questions into independently retrievable parts.
// It never calls a collaborator.
type Decompose struct{}

func NewDecompose() *Decompose {
	return &Decompose{}
}

func (d *Decompose) Name() domain.Strategy {
	return domain.StrategyDecompose
}

func (d *Decompose) Generate(_ context.Context, query string) Outcome {
	return Outcome{Candidates: SplitSubqueries(query)}
}

// SplitSubqueries returns the sub-questions of query.
// Comparison queries are split on punctuation and connectors; timeline
// queries get a milestone variant; anything else gets a timeline variant.
func SplitSubqueries(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	if HasComparison(query) {
		parts := decomposeSplitter.Split(query, -1)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" || !hasWordRune(p) {
				continue
			}
			out = append(out, p)
		}
		return out
	}

	if hasTimeline(query) {
		return []string{query, query + " timeline and key milestones"}
	}
	return []string{query, query + " timeline"}
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
