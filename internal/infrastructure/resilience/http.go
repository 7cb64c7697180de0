package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

const statusBodyLimit = 2048

// StatusError is a non-2xx reply from an HTTP backend.
type StatusError struct {
	Backend    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

// NewStatusError captures the status and a bounded prefix of the body.
func NewStatusError(backend, operation string, resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, statusBodyLimit))
	return &StatusError{
		Backend:    backend,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(raw)),
	}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s status: %s", e.Backend, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Backend, e.Operation, e.Status, e.Body)
}

// ClassifyHTTPError retries timeouts, network errors, 408, 429 and 5xx.
// A 404 trips the breaker without a retry; other 4xx replies are the
// caller's fault and are ignored by both.
func ClassifyHTTPError(err error) ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) {
		return ErrorClassification{}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		switch {
		case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
			return ErrorClassification{Retryable: true, RecordFailure: true}
		case code == http.StatusNotFound:
			return ErrorClassification{RecordFailure: true}
		default:
			return ErrorClassification{}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{RecordFailure: true}
}

// WrapHTTPError tags err as temporary when ClassifyHTTPError would retry it
// and as backend unavailable otherwise. Errors that already carry a domain
// kind, and cancellations, pass through.
func WrapHTTPError(operation string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	if kind := domain.ErrorKind(err); kind != "internal" {
		return err
	}
	if ClassifyHTTPError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrBackendUnavailable, operation, err)
}
