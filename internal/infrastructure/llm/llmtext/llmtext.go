// Package llmtext cleans raw completions before they reach the strategies.
package llmtext

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

// Numbered markers need trailing whitespace so "2.0 release" keeps its version.
var listMarker = regexp.MustCompile(`^\s*(?:[-*•]+\s*|\(?\d{1,2}(?:[.):](?:\s+|$)|、\s*))`)

// Lines splits a completion into at most n non-empty lines, stripping list
// markers and wrapping quotes. n <= 0 keeps every line.
func Lines(raw string, n int) []string {
	out := make([]string, 0, 8)
	for _, line := range strings.Split(raw, "\n") {
		line = listMarker.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), "\"'“”`")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// ExtractJSONObject returns the outermost {...} span of raw, or raw itself.
func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

// DecodeJSON parses the JSON object embedded in a completion.
func DecodeJSON(operation, raw string) (any, error) {
	var out any
	if err := json.Unmarshal([]byte(ExtractJSONObject(strings.TrimSpace(raw))), &out); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedOutput, operation, fmt.Errorf("decode json: %w", err))
	}
	return out, nil
}
