package domain

import (
	"fmt"
	"math"
	"strings"
)

// RouterThresholds are rune counts used by the strategy router.
type RouterThresholds struct {
	ShortQueryMax int `json:"short_query_max"`
	LongQueryMin  int `json:"long_query_min"`
	VeryShortMax  int `json:"very_short_max"`
}

type StrategyToggles struct {
	MultiQuery bool `json:"multiquery"`
	Decompose  bool `json:"decompose"`
	HyDE       bool `json:"hyde"`
	PRF        bool `json:"prf"`
	SelfQuery  bool `json:"self_query"`
}

// PipelineOptions configures a single rewrite run.
type PipelineOptions struct {
	MaxQueries        int              `json:"max_queries"`
	DedupThreshold    float64          `json:"dedup_cosine_thr"`
	PRFTopK           int              `json:"prf_topk_initial"`
	PRFExpansionTerms int              `json:"prf_expansion_terms"`
	PRFStopwords      []string         `json:"prf_stopwords"`
	RRFK              int              `json:"rrf_k"`
	MMRLambda         float64          `json:"mmr_lambda"`
	MMRTopK           int              `json:"mmr_topk"`
	DispatchTopK      int              `json:"dispatch_topk"`
	Enable            StrategyToggles  `json:"enable"`
	Router            RouterThresholds `json:"router"`
}

func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		MaxQueries:        6,
		DedupThreshold:    0.92,
		PRFTopK:           5,
		PRFExpansionTerms: 6,
		PRFStopwords:      []string{"的", "了", "and", "or", "the"},
		RRFK:              60,
		MMRLambda:         0.7,
		MMRTopK:           8,
		DispatchTopK:      10,
		Enable: StrategyToggles{
			MultiQuery: true,
			Decompose:  true,
			HyDE:       true,
			PRF:        true,
			SelfQuery:  true,
		},
		Router: RouterThresholds{
			ShortQueryMax: 36,
			LongQueryMin:  18,
			VeryShortMax:  16,
		},
	}
}

// Validate rejects out-of-range values with ErrInvalidConfig.
func (o PipelineOptions) Validate() error {
	var problems []string
	checkInt := func(name string, v, lo, hi int) {
		if v < lo || v > hi {
			problems = append(problems, fmt.Sprintf("%s=%d out of range [%d,%d]", name, v, lo, hi))
		}
	}
	checkFloat := func(name string, v, lo, hi float64) {
		if math.IsNaN(v) || v < lo || v > hi {
			problems = append(problems, fmt.Sprintf("%s=%g out of range [%g,%g]", name, v, lo, hi))
		}
	}

	checkInt("max_queries", o.MaxQueries, 1, 12)
	checkFloat("dedup_cosine_thr", o.DedupThreshold, 0, 1)
	checkInt("prf_topk_initial", o.PRFTopK, 1, 100)
	checkInt("prf_expansion_terms", o.PRFExpansionTerms, 0, 50)
	if o.RRFK < 1 {
		problems = append(problems, fmt.Sprintf("rrf_k=%d must be >= 1", o.RRFK))
	}
	checkFloat("mmr_lambda", o.MMRLambda, 0, 1)
	checkInt("mmr_topk", o.MMRTopK, 1, 100)
	checkInt("dispatch_topk", o.DispatchTopK, 1, 100)
	if o.Router.ShortQueryMax < 0 || o.Router.LongQueryMin < 0 || o.Router.VeryShortMax < 0 {
		problems = append(problems, "router thresholds must be >= 0")
	}

	if len(problems) == 0 {
		return nil
	}
	return WrapError(ErrInvalidConfig, "validate pipeline options", fmt.Errorf("%s", strings.Join(problems, "; ")))
}

// OptionsOverride carries optional per-request changes to PipelineOptions.
type OptionsOverride struct {
	MaxQueries        *int             `json:"max_queries,omitempty"`
	DedupThreshold    *float64         `json:"dedup_cosine_thr,omitempty"`
	PRFTopK           *int             `json:"prf_topk_initial,omitempty"`
	PRFExpansionTerms *int             `json:"prf_expansion_terms,omitempty"`
	RRFK              *int             `json:"rrf_k,omitempty"`
	MMRLambda         *float64         `json:"mmr_lambda,omitempty"`
	MMRTopK           *int             `json:"mmr_topk,omitempty"`
	Enable            *StrategyToggles `json:"enable,omitempty"`
}

// Apply returns a copy of base with the override fields set.
func (ov OptionsOverride) Apply(base PipelineOptions) PipelineOptions {
	out := base
	out.PRFStopwords = append([]string(nil), base.PRFStopwords...)
	if ov.MaxQueries != nil {
		out.MaxQueries = *ov.MaxQueries
	}
	if ov.DedupThreshold != nil {
		out.DedupThreshold = *ov.DedupThreshold
	}
	if ov.PRFTopK != nil {
		out.PRFTopK = *ov.PRFTopK
	}
	if ov.PRFExpansionTerms != nil {
		out.PRFExpansionTerms = *ov.PRFExpansionTerms
	}
	if ov.RRFK != nil {
		out.RRFK = *ov.RRFK
	}
	if ov.MMRLambda != nil {
		out.MMRLambda = *ov.MMRLambda
	}
	if ov.MMRTopK != nil {
		out.MMRTopK = *ov.MMRTopK
	}
	if ov.Enable != nil {
		out.Enable = *ov.Enable
	}
	return out
}
