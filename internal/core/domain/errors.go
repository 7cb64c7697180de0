package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidConfig      = errors.New("invalid config")
	ErrTemporary          = errors.New("temporary failure")
	ErrMalformedOutput    = errors.New("malformed generator output")
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorKind returns a stable machine-readable name for err's kind.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrInvalidInput):
		return "invalid_input"
	case IsKind(err, ErrInvalidConfig):
		return "invalid_config"
	case IsKind(err, ErrTemporary):
		return "temporary"
	case IsKind(err, ErrBackendUnavailable):
		return "backend_unavailable"
	case IsKind(err, ErrMalformedOutput):
		return "malformed_output"
	default:
		return "internal"
	}
}
