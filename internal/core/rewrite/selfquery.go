package rewrite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
)

const filterSchemaHint = `{"keywords":[],"must_filters":{},"should_filters":{},"not_filters":{}}`

// SelfQuery extracts metadata filters from the query text.
type SelfQuery struct {
	generator ports.TextGenerator
}

func NewSelfQuery(generator ports.TextGenerator) *SelfQuery {
	return &SelfQuery{generator: generator}
}

func (s *SelfQuery) Name() domain.Strategy {
	return domain.StrategySelfQuery
}

func (s *SelfQuery) Generate(ctx context.Context, query string) Outcome {
	raw, err := s.generator.GenerateJSON(ctx, buildSelfQueryPrompt(query), filterSchemaHint)
	if err != nil {
		return Outcome{Fallback: true, Err: err}
	}
	filters, ok := ParseFilterSet(raw)
	if !ok {
		return Outcome{
			Fallback: true,
			Err:      domain.WrapError(domain.ErrMalformedOutput, "self query", fmt.Errorf("expected object, got %T", raw)),
		}
	}
	return Outcome{Filters: filters}
}

// ParseFilterSet reads must/should/not partitions from decoded JSON.
// Both "must_filters" and "must" key styles are accepted. It reports false
// when raw is not a mapping.
func ParseFilterSet(raw any) (domain.FilterSet, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return domain.FilterSet{}, false
	}
	return domain.FilterSet{
		Must:   parsePartition(obj, "must_filters", "must"),
		Should: parsePartition(obj, "should_filters", "should"),
		Not:    parsePartition(obj, "not_filters", "not"),
	}, true
}

func parsePartition(obj map[string]any, keys ...string) map[string][]string {
	for _, key := range keys {
		part, ok := obj[key].(map[string]any)
		if !ok {
			continue
		}
		out := make(map[string][]string, len(part))
		for field, value := range part {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			if values := scalarStrings(value); len(values) > 0 {
				out[field] = values
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	}
	return nil
}

func scalarStrings(value any) []string {
	switch v := value.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := scalarString(item); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := scalarString(v); ok {
			return []string{s}
		}
		return nil
	}
}

func scalarString(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	default:
		return "", false
	}
}

func buildSelfQueryPrompt(query string) string {
	return fmt.Sprintf(`Extract structured metadata filters from the question "%s".
Return only a JSON object shaped like %s.
Each filter maps a metadata field to a list of values. Leave a partition empty when nothing applies.`, query, filterSchemaHint)
}
