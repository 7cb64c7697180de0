package domain

import (
	"errors"
	"math"
	"testing"
)

func TestDefaultPipelineOptionsAreValid(t *testing.T) {
	if err := DefaultPipelineOptions().Validate(); err != nil {
		t.Fatalf("default options must be valid: %v", err)
	}
}

func TestPipelineOptionsValidateRejectsOutOfRange(t *testing.T) {
	cases := map[string]func(*PipelineOptions){
		"max_queries zero":     func(o *PipelineOptions) { o.MaxQueries = 0 },
		"max_queries too high": func(o *PipelineOptions) { o.MaxQueries = 13 },
		"dedup above one":      func(o *PipelineOptions) { o.DedupThreshold = 1.5 },
		"dedup nan":            func(o *PipelineOptions) { o.DedupThreshold = math.NaN() },
		"negative prf terms":   func(o *PipelineOptions) { o.PRFExpansionTerms = -1 },
		"rrf_k zero":           func(o *PipelineOptions) { o.RRFK = 0 },
		"lambda negative":      func(o *PipelineOptions) { o.MMRLambda = -0.1 },
		"mmr_topk zero":        func(o *PipelineOptions) { o.MMRTopK = 0 },
		"dispatch_topk zero":   func(o *PipelineOptions) { o.DispatchTopK = 0 },
		"router negative":      func(o *PipelineOptions) { o.Router.VeryShortMax = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := DefaultPipelineOptions()
			mutate(&opts)
			err := opts.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestPipelineOptionsValidateAcceptsBounds(t *testing.T) {
	opts := DefaultPipelineOptions()
	opts.MaxQueries = 12
	opts.DedupThreshold = 1
	opts.PRFExpansionTerms = 0
	opts.MMRLambda = 0
	if err := opts.Validate(); err != nil {
		t.Fatalf("expected bounds to be accepted: %v", err)
	}
}

func TestOptionsOverrideApplyCopiesBase(t *testing.T) {
	base := DefaultPipelineOptions()
	topK := 3
	lambda := 0.5
	toggles := StrategyToggles{Decompose: true}

	out := OptionsOverride{MMRTopK: &topK, MMRLambda: &lambda, Enable: &toggles}.Apply(base)
	if out.MMRTopK != 3 || out.MMRLambda != 0.5 || out.Enable != toggles {
		t.Fatalf("override not applied: %+v", out)
	}
	if out.MaxQueries != base.MaxQueries || out.RRFK != base.RRFK {
		t.Fatalf("unset fields must keep base values: %+v", out)
	}

	out.PRFStopwords[0] = "changed"
	if base.PRFStopwords[0] == "changed" {
		t.Fatalf("Apply must not share the stopword slice with base")
	}
}

func TestFilterSetMatches(t *testing.T) {
	filters := FilterSet{
		Must: map[string][]string{"year": {"2023", "2024"}},
		Not:  map[string][]string{"type": {"draft"}},
	}
	if !filters.Matches(map[string]string{"year": "2024", "type": "Release"}) {
		t.Fatalf("expected match")
	}
	if filters.Matches(map[string]string{"year": "2022"}) {
		t.Fatalf("year outside must values should not match")
	}
	if filters.Matches(map[string]string{"year": "2023", "type": "DRAFT"}) {
		t.Fatalf("not filter should compare case-insensitively")
	}
	if filters.Matches(map[string]string{"type": "release"}) {
		t.Fatalf("missing must key should not match")
	}
}

func TestFilterSetKeysAndEmpty(t *testing.T) {
	if !(FilterSet{}).IsEmpty() {
		t.Fatalf("zero FilterSet must be empty")
	}
	f := FilterSet{
		Must:   map[string][]string{"year": {"2023"}},
		Should: map[string][]string{"type": {"release"}, "year": {"2024"}},
	}
	keys := f.Keys()
	if len(keys) != 2 || keys[0] != "type" || keys[1] != "year" {
		t.Fatalf("unexpected keys: %v", keys)
	}
	if f.ShouldHits(map[string]string{"type": "release", "year": "2023"}) != 1 {
		t.Fatalf("expected one should hit")
	}
}
