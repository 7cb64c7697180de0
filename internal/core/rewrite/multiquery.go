package rewrite

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
	"github.com/kirillkom/rag-query-rewriter/internal/core/similarity"
)

const (
	multiQueryLines     = 8
	multiQueryMaxTokens = 512
)

var multiQueryTemplates = []string{
	"%s",
	"%s details",
	"%s related documents",
	"%s timeline",
	"%s FAQ",
	"%s specification",
	"%s key changes",
	"%s release notes",
}

// MultiQuery asks the generator for paraphrases of the query.
type MultiQuery struct {
	generator  ports.TextGenerator
	maxQueries int
	threshold  float64
}

func NewMultiQuery(generator ports.TextGenerator, maxQueries int, dedupThreshold float64) *MultiQuery {
	return &MultiQuery{
		generator:  generator,
		maxQueries: maxQueries,
		threshold:  dedupThreshold,
	}
}

func (m *MultiQuery) Name() domain.Strategy {
	return domain.StrategyMultiQuery
}

func (m *MultiQuery) Generate(ctx context.Context, query string) Outcome {
	lines, err := m.generator.GenerateLines(ctx, buildMultiQueryPrompt(query), multiQueryLines, multiQueryMaxTokens)
	result := attempt(lines, err, templateParaphrases(query))

	candidates := make([]string, 0, len(result.Value)+1)
	candidates = append(candidates, query)
	for _, line := range result.Value {
		if line = strings.TrimSpace(line); line != "" {
			candidates = append(candidates, line)
		}
	}

	kept := similarity.Dedup(candidates, m.threshold)
	if m.maxQueries > 0 && len(kept) > m.maxQueries {
		kept = kept[:m.maxQueries]
	}
	return Outcome{
		Candidates: kept,
		Fallback:   result.UsedFallback(),
		Err:        result.Err,
	}
}

func templateParaphrases(query string) []string {
	out := make([]string, 0, len(multiQueryTemplates))
	for _, tpl := range multiQueryTemplates {
		out = append(out, fmt.Sprintf(tpl, query))
	}
	return out
}

func buildMultiQueryPrompt(query string) string {
	return fmt.Sprintf(`Rewrite the question "%s" as %d search queries.
Each query must keep the original meaning but use different wording.
Write one query per line. No numbering, no quotes, no extra text.`, query, multiQueryLines)
}
