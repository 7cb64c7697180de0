package rewrite

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
	"github.com/kirillkom/rag-query-rewriter/internal/core/similarity"
)

// PRF expands the query with frequent terms from a shallow first retrieval.
type PRF struct {
	retriever      ports.Retriever
	topK           int
	expansionTerms int
	stopwords      map[string]struct{}
}

func NewPRF(retriever ports.Retriever, topK, expansionTerms int, stopwords []string) *PRF {
	sw := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			sw[w] = struct{}{}
		}
	}
	return &PRF{
		retriever:      retriever,
		topK:           topK,
		expansionTerms: expansionTerms,
		stopwords:      sw,
	}
}

func (p *PRF) Name() domain.Strategy {
	return domain.StrategyPRF
}

func (p *PRF) Generate(ctx context.Context, query string) Outcome {
	if p.expansionTerms <= 0 {
		return Outcome{}
	}

	pool, err := p.retriever.Search(ctx, query, p.topK, nil)
	result := attempt(pool, err, domain.ResultPool(nil))
	if result.UsedFallback() {
		return Outcome{Fallback: true, Err: result.Err}
	}

	texts := make([]string, 0, len(result.Value))
	for _, r := range result.Value {
		texts = append(texts, r.Text)
	}
	terms := p.mineTerms(strings.Join(texts, " "))
	if len(terms) == 0 {
		return Outcome{}
	}
	return Outcome{Candidates: []string{query + " " + strings.Join(terms, " ")}}
}

// mineTerms ranks tokens by frequency; ties keep first-occurrence order.
func (p *PRF) mineTerms(corpus string) []string {
	counts := make(map[string]int)
	order := make([]string, 0, 32)
	for _, tok := range similarity.Tokenize(corpus) {
		if _, stop := p.stopwords[tok]; stop || isNumeric(tok) {
			continue
		}
		if counts[tok] == 0 {
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > p.expansionTerms {
		order = order[:p.expansionTerms]
	}
	return order
}

func isNumeric(tok string) bool {
	for _, r := range tok {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return tok != ""
}
