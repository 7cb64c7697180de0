package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(fastConfig(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "generate", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return domain.WrapError(domain.ErrTemporary, "generate", errors.New("503"))
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryMalformedOutput(t *testing.T) {
	exec := NewExecutor(fastConfig(), nil)

	attempts := 0
	err := exec.Execute(context.Background(), "generate", func(context.Context) error {
		attempts++
		return domain.WrapError(domain.ErrMalformedOutput, "generate", errors.New("not json"))
	}, nil)
	if !domain.IsKind(err, domain.ErrMalformedOutput) {
		t.Fatalf("expected malformed output error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoReturnsValue(t *testing.T) {
	exec := NewExecutor(fastConfig(), nil)

	calls := 0
	got, err := Do(context.Background(), exec, "search", func(context.Context) ([]string, error) {
		calls++
		if calls == 1 {
			return nil, domain.WrapError(domain.ErrTemporary, "search", errors.New("reset"))
		}
		return []string{"d1", "d2"}, nil
	}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(got) != 2 || got[0] != "d1" {
		t.Fatalf("unexpected value: %v", got)
	}
}

func TestAttemptTimeoutIsTemporary(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.AttemptTimeout = 5 * time.Millisecond
	exec := NewExecutor(cfg, nil)

	err := exec.Execute(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, nil)

	var transitions []gobreaker.State
	exec.OnStateChange(func(_ string, _, to gobreaker.State) {
		transitions = append(transitions, to)
	})

	errDown := domain.WrapError(domain.ErrBackendUnavailable, "search", errors.New("connection refused"))
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "search", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected backend error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "search", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected open state wrapped as unavailable, got %v", err)
	}
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Fatalf("expected one transition to open, got %v", transitions)
	}
}

func TestClassifyDomainError(t *testing.T) {
	if c := ClassifyDomainError(domain.ErrInvalidInput); c.Retryable || c.RecordFailure {
		t.Fatalf("invalid input must not retry or trip: %+v", c)
	}
	if c := ClassifyDomainError(context.Canceled); c.RecordFailure {
		t.Fatalf("cancellation must not trip: %+v", c)
	}
	if c := ClassifyDomainError(domain.ErrBackendUnavailable); c.Retryable || !c.RecordFailure {
		t.Fatalf("unavailable backend must trip without retry: %+v", c)
	}
}
