// Package offline provides a deterministic TextGenerator for local runs and
// demos without a model server.
package offline

import (
	"context"
	"regexp"
	"sort"
)

var (
	quotedQuery = regexp.MustCompile(`["“]([^"”]+)["”]`)
	yearPattern = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
)

var paraphraseSuffixes = []string{
	"",
	" details",
	" related documents",
	" timeline",
	" FAQ",
	" specification",
	" key changes",
	" release notes",
}

const passage = "This question concerns the background, timing and subject involved. " +
	"Check the technical documentation and release records to confirm and compare the details."

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) Generate(context.Context, string, int) (string, error) {
	return passage, nil
}

// GenerateLines returns template paraphrases of the first quoted span in prompt.
func (g *Generator) GenerateLines(_ context.Context, prompt string, n, _ int) ([]string, error) {
	base := subject(prompt)
	out := make([]string, 0, len(paraphraseSuffixes))
	for _, suffix := range paraphraseSuffixes {
		if n > 0 && len(out) == n {
			break
		}
		out = append(out, base+suffix)
	}
	return out, nil
}

// GenerateJSON turns the years mentioned in the quoted query into a must
// filter on "year".
func (g *Generator) GenerateJSON(_ context.Context, prompt, _ string) (any, error) {
	years := uniqueSorted(yearPattern.FindAllString(subject(prompt), -1))
	must := map[string]any{}
	if len(years) > 0 {
		values := make([]any, len(years))
		for i, y := range years {
			values[i] = y
		}
		must["year"] = values
	}
	return map[string]any{
		"keywords":       []any{},
		"must_filters":   must,
		"should_filters": map[string]any{},
		"not_filters":    map[string]any{},
	}, nil
}

func subject(prompt string) string {
	if m := quotedQuery.FindStringSubmatch(prompt); m != nil {
		return m[1]
	}
	return "question"
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
