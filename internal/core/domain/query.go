package domain

import (
	"sort"
	"strings"
)

// Strategy names the producer of a candidate query.
type Strategy string

const (
	StrategyOriginal   Strategy = "original"
	StrategyMultiQuery Strategy = "multiquery"
	StrategyDecompose  Strategy = "decompose"
	StrategyHyDE       Strategy = "hyde"
	StrategyPRF        Strategy = "prf"
	StrategySelfQuery  Strategy = "self_query"
)

// StrategyPlan is decided once per run and never changed afterwards.
type StrategyPlan struct {
	UseMultiQuery bool `json:"use_multiquery"`
	UseDecompose  bool `json:"use_decompose"`
	UseHyDE       bool `json:"use_hyde"`
	UsePRF        bool `json:"use_prf"`
	UseSelfQuery  bool `json:"use_self_query"`
}

// Enabled lists the strategies switched on in the plan, in pipeline order.
func (p StrategyPlan) Enabled() []Strategy {
	out := make([]Strategy, 0, 5)
	if p.UseMultiQuery {
		out = append(out, StrategyMultiQuery)
	}
	if p.UseDecompose {
		out = append(out, StrategyDecompose)
	}
	if p.UsePRF {
		out = append(out, StrategyPRF)
	}
	if p.UseHyDE {
		out = append(out, StrategyHyDE)
	}
	if p.UseSelfQuery {
		out = append(out, StrategySelfQuery)
	}
	return out
}

type Candidate struct {
	Text   string   `json:"text"`
	Source Strategy `json:"source"`
}

// FilterSet holds metadata constraints extracted from a query.
// Must and Not are hard constraints, Should is a retriever-defined soft boost.
type FilterSet struct {
	Must   map[string][]string `json:"must,omitempty"`
	Should map[string][]string `json:"should,omitempty"`
	Not    map[string][]string `json:"not,omitempty"`
}

func (f FilterSet) IsEmpty() bool {
	return len(f.Must) == 0 && len(f.Should) == 0 && len(f.Not) == 0
}

// Matches reports whether metadata passes the must and not partitions.
// A must key matches when the metadata value is one of the accepted values.
func (f FilterSet) Matches(meta map[string]string) bool {
	for key, values := range f.Must {
		if len(values) == 0 {
			continue
		}
		v, ok := meta[key]
		if !ok || !containsFold(values, v) {
			return false
		}
	}
	for key, values := range f.Not {
		v, ok := meta[key]
		if ok && containsFold(values, v) {
			return false
		}
	}
	return true
}

// ShouldHits counts the should constraints satisfied by metadata.
func (f FilterSet) ShouldHits(meta map[string]string) int {
	hits := 0
	for key, values := range f.Should {
		if v, ok := meta[key]; ok && containsFold(values, v) {
			hits++
		}
	}
	return hits
}

// Keys returns every filter key across partitions, sorted.
func (f FilterSet) Keys() []string {
	seen := make(map[string]struct{})
	for _, part := range []map[string][]string{f.Must, f.Should, f.Not} {
		for k := range part {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(strings.TrimSpace(candidate), strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

type SearchResult struct {
	ID    string  `json:"doc_id"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

// ResultPool is the ranked output of one retrieval call; rank is position.
type ResultPool []SearchResult

type FusedResult struct {
	ID         string  `json:"doc_id"`
	FusedScore float64 `json:"score"`
	Text       string  `json:"text"`
}

type RewriteRequest struct {
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
}

type RunMetrics struct {
	ElapsedMS        int64    `json:"elapsed_ms"`
	RetrievalMS      int64    `json:"retrieval_ms"`
	NumCandidates    int      `json:"num_candidates"`
	NumFused         int      `json:"num_fused"`
	NumFinal         int      `json:"num_final"`
	FailedRetrievals int      `json:"failed_retrievals"`
	Fallbacks        []string `json:"fallbacks,omitempty"`
}

type RewriteResult struct {
	Normalized string        `json:"normalized"`
	Resolved   string        `json:"cqr"`
	Plan       StrategyPlan  `json:"strategy"`
	Filters    FilterSet     `json:"self_query_filters"`
	Candidates []Candidate   `json:"candidates"`
	Fused      []FusedResult `json:"fused_docs"`
	Final      []FusedResult `json:"final_docs"`
	Metrics    RunMetrics    `json:"metrics"`
}
