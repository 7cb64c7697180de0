package rewrite

import (
	"testing"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

func allEnabled() domain.StrategyToggles {
	return domain.DefaultPipelineOptions().Enable
}

func defaultRouter() *Router {
	return NewRouter(domain.DefaultPipelineOptions().Router)
}

func TestDecideEmptyQueryYieldsEmptyPlan(t *testing.T) {
	plan := defaultRouter().Decide("   ", allEnabled())
	if plan != (domain.StrategyPlan{}) {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
}

func TestDecideComparisonEnablesDecomposeAndSuppressesMultiQuery(t *testing.T) {
	plan := defaultRouter().Decide("2023 version vs 2024 version, what differs", allEnabled())
	if !plan.UseDecompose {
		t.Fatalf("expected decompose, got %+v", plan)
	}
	if plan.UseMultiQuery {
		t.Fatalf("multi-query must be suppressed by decompose, got %+v", plan)
	}
	if !plan.UseSelfQuery {
		t.Fatalf("year tokens should enable self-query, got %+v", plan)
	}
	if plan.UseHyDE {
		t.Fatalf("hyde must be suppressed for comparison queries, got %+v", plan)
	}
}

func TestDecideShortQueryEnablesMultiQueryAndHyDE(t *testing.T) {
	plan := defaultRouter().Decide("gpt-5 release", allEnabled())
	want := domain.StrategyPlan{UseMultiQuery: true, UseHyDE: true}
	if plan != want {
		t.Fatalf("expected %+v, got %+v", want, plan)
	}
}

func TestDecideLongQueryEnablesPRF(t *testing.T) {
	plan := defaultRouter().Decide("please summarise the update history of the search platform", allEnabled())
	if !plan.UsePRF {
		t.Fatalf("expected prf for long query, got %+v", plan)
	}
	if plan.UseMultiQuery {
		t.Fatalf("query longer than 36 runes must not enable multi-query, got %+v", plan)
	}
}

func TestDecideCountsRunesNotBytes(t *testing.T) {
	// 13 runes, 39 bytes.
	plan := defaultRouter().Decide("它什么时候发布的呢请问一下", allEnabled())
	if !plan.UseHyDE {
		t.Fatalf("expected hyde for a 13 rune query, got %+v", plan)
	}
	if plan.UsePRF {
		t.Fatalf("13 rune query must not enable prf, got %+v", plan)
	}
}

func TestDecideHonoursDisabledFlags(t *testing.T) {
	plan := defaultRouter().Decide("2023 vs 2024", domain.StrategyToggles{})
	if plan != (domain.StrategyPlan{}) {
		t.Fatalf("expected empty plan with all flags off, got %+v", plan)
	}
}

func TestDecideDisabledDecomposeLetsMultiQueryRun(t *testing.T) {
	enabled := allEnabled()
	enabled.Decompose = false
	plan := defaultRouter().Decide("docs and pricing", enabled)
	if !plan.UseMultiQuery {
		t.Fatalf("expected multi-query when decompose is disabled, got %+v", plan)
	}
}

func TestDecideUsesConfiguredThresholds(t *testing.T) {
	r := NewRouter(domain.RouterThresholds{ShortQueryMax: 5, LongQueryMin: 3, VeryShortMax: 2})
	plan := r.Decide("release", allEnabled())
	want := domain.StrategyPlan{UsePRF: true}
	if plan != want {
		t.Fatalf("expected %+v, got %+v", want, plan)
	}
}

func TestHasTimeReference(t *testing.T) {
	cases := map[string]bool{
		"release in 2024":      true,
		"what happened today":  true,
		"changes last month":   true,
		"2023年的发布记录":           true,
		"version 12345":        false,
		"pricing for startups": false,
	}
	for q, want := range cases {
		if got := HasTimeReference(q); got != want {
			t.Fatalf("HasTimeReference(%q) = %v, want %v", q, got, want)
		}
	}
}

func TestHasComparison(t *testing.T) {
	cases := map[string]bool{
		"2023 vs 2024":               true,
		"compare plans":              true,
		"android release":            false,
		"2023 版与 2024 版有何差异":         true,
		"difference between a and b": true,
		"release notes":              false,
	}
	for q, want := range cases {
		if got := HasComparison(q); got != want {
			t.Fatalf("HasComparison(%q) = %v, want %v", q, got, want)
		}
	}
}
