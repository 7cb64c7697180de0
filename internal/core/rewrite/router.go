package rewrite

import (
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

// Router decides which strategies run for a query. It is pure and safe for
// concurrent use.
type Router struct {
	thresholds domain.RouterThresholds
}

func NewRouter(thresholds domain.RouterThresholds) *Router {
	return &Router{thresholds: thresholds}
}

// Decide applies the routing rules in order. Query length is counted in runes.
func (r *Router) Decide(query string, enabled domain.StrategyToggles) domain.StrategyPlan {
	var plan domain.StrategyPlan
	if strings.TrimSpace(query) == "" {
		return plan
	}

	length := utf8.RuneCountInString(query)
	comparison := HasComparison(query)

	if enabled.Decompose && comparison {
		plan.UseDecompose = true
	}
	if enabled.SelfQuery && HasTimeReference(query) {
		plan.UseSelfQuery = true
	}
	if enabled.MultiQuery && length <= r.thresholds.ShortQueryMax && !plan.UseDecompose {
		plan.UseMultiQuery = true
	}
	if enabled.PRF && length > r.thresholds.LongQueryMin {
		plan.UsePRF = true
	}
	if enabled.HyDE && length < r.thresholds.VeryShortMax && !comparison {
		plan.UseHyDE = true
	}
	return plan
}
