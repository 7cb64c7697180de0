// Package rewrite turns one query into candidate queries and metadata filters.
package rewrite

import (
	"context"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

// Strategy produces candidate queries for a resolved query.
// Generate never returns an error: collaborator failures are reported in the
// Outcome together with the fallback that replaced the failed call.
type Strategy interface {
	Name() domain.Strategy
	Generate(ctx context.Context, query string) Outcome
}

type Outcome struct {
	Candidates []string
	Filters    domain.FilterSet
	// Fallback is set when the documented fallback replaced collaborator output.
	Fallback bool
	Err      error
}

// Attempt is the result of one collaborator call: either the returned value or
// the fallback value together with the error that forced it.
type Attempt[T any] struct {
	Value T
	Err   error
}

func (a Attempt[T]) UsedFallback() bool {
	return a.Err != nil
}

func attempt[T any](value T, err error, fallback T) Attempt[T] {
	if err != nil {
		return Attempt[T]{Value: fallback, Err: err}
	}
	return Attempt[T]{Value: value}
}
