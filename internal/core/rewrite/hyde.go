package rewrite

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
)

const hydeMaxTokens = 220

// HyDE generates a hypothetical answer passage and uses it as a query.
type HyDE struct {
	generator ports.TextGenerator
}

func NewHyDE(generator ports.TextGenerator) *HyDE {
	return &HyDE{generator: generator}
}

func (h *HyDE) Name() domain.Strategy {
	return domain.StrategyHyDE
}

func (h *HyDE) Generate(ctx context.Context, query string) Outcome {
	text, err := h.generator.Generate(ctx, buildHyDEPrompt(query), hydeMaxTokens)
	if err == nil && strings.TrimSpace(text) == "" {
		err = domain.WrapError(domain.ErrMalformedOutput, "hyde", fmt.Errorf("empty passage"))
	}
	result := attempt(strings.TrimSpace(text), err, "")
	if result.UsedFallback() {
		return Outcome{Fallback: true, Err: result.Err}
	}
	return Outcome{Candidates: []string{result.Value}}
}

func buildHyDEPrompt(query string) string {
	return fmt.Sprintf(`Write a hypothetical passage of 150 to 220 characters that answers the question "%s".
Use a neutral technical documentation style and cover background, timing and subject.
Do not invent specific numbers or named entities. Output only the passage.`, query)
}
