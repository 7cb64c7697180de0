package domain

import (
	"errors"
	"testing"
)

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrBackendUnavailable, "search", cause)
	if !IsKind(err, ErrBackendUnavailable) || !errors.Is(err, cause) {
		t.Fatalf("expected kind and cause to be preserved: %v", err)
	}
	if err.Error() != "search: backend unavailable: connection refused" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if WrapError(ErrTemporary, "op", nil) != nil {
		t.Fatalf("wrapping nil must return nil")
	}
}

func TestErrorKind(t *testing.T) {
	cases := map[string]error{
		"invalid_input":       WrapError(ErrInvalidInput, "rewrite", errors.New("empty")),
		"invalid_config":      ErrInvalidConfig,
		"temporary":           WrapError(ErrTemporary, "generate", errors.New("503")),
		"backend_unavailable": ErrBackendUnavailable,
		"malformed_output":    ErrMalformedOutput,
		"internal":            errors.New("boom"),
		"":                    nil,
	}
	for want, err := range cases {
		if got := ErrorKind(err); got != want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", err, got, want)
		}
	}
}
