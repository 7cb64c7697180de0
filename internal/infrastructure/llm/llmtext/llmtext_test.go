package llmtext

import (
	"testing"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

func TestLinesStripsMarkersAndBlanks(t *testing.T) {
	raw := "1. first query\n\n- \"second query\"\n3) third query\n  \nfourth"
	got := Lines(raw, 3)
	want := []string{"first query", "second query", "third query"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLinesKeepsLeadingVersionNumbers(t *testing.T) {
	got := Lines("2.0 release notes\n3.5 turbo pricing\n1) first\n2、第二", 8)
	want := []string{"2.0 release notes", "3.5 turbo pricing", "first", "第二"}
	if len(got) != len(want) {
		t.Fatalf("expected %d lines, got %q", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLinesKeepsAllWhenUnlimited(t *testing.T) {
	if got := Lines("a b\nc d\ne f", 0); len(got) != 3 {
		t.Fatalf("expected 3 lines, got %v", got)
	}
}

func TestDecodeJSONExtractsObject(t *testing.T) {
	out, err := DecodeJSON("self_query", "Here you go:\n{\"must_filters\":{\"year\":[\"2023\"]}}\nThanks")
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	obj, ok := out.(map[string]any)
	if !ok || obj["must_filters"] == nil {
		t.Fatalf("unexpected value: %#v", out)
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	_, err := DecodeJSON("self_query", "no json here")
	if !domain.IsKind(err, domain.ErrMalformedOutput) {
		t.Fatalf("expected ErrMalformedOutput, got %v", err)
	}
}
