package usecase

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
)

const (
	minDispatchWorkers = 2
	maxDispatchWorkers = 8
)

// Dispatcher runs one retrieval per candidate on a bounded worker pool.
type Dispatcher struct {
	retriever ports.Retriever
	topK      int
	logger    *slog.Logger
	observer  ports.PipelineObserver
}

func NewDispatcher(retriever ports.Retriever, topK int, logger *slog.Logger, observer ports.PipelineObserver) *Dispatcher {
	if topK <= 0 {
		topK = domain.DefaultPipelineOptions().DispatchTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = ports.NopObserver{}
	}
	return &Dispatcher{
		retriever: retriever,
		topK:      topK,
		logger:    logger,
		observer:  observer,
	}
}

func dispatchWorkers(n int) int {
	return min(maxDispatchWorkers, max(minDispatchWorkers, n))
}

// Dispatch returns one pool per candidate in candidate order. A failed
// retrieval is logged and leaves an empty pool at its index; the second
// return value counts such failures. Filters are forwarded only when non-empty.
func (d *Dispatcher) Dispatch(ctx context.Context, candidates []domain.Candidate, filters domain.FilterSet) ([]domain.ResultPool, int) {
	pools := make([]domain.ResultPool, len(candidates))
	if len(candidates) == 0 {
		return pools, 0
	}

	var searchFilters *domain.FilterSet
	if !filters.IsEmpty() {
		searchFilters = &filters
	}

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(dispatchWorkers(len(candidates)))
	for i, candidate := range candidates {
		g.Go(func() error {
			pool, err := d.retriever.Search(ctx, candidate.Text, d.topK, searchFilters)
			if err != nil {
				failed.Add(1)
				d.observer.ObserveRetrievalFailure()
				d.logger.Warn("retrieval_failed",
					"index", i,
					"source", string(candidate.Source),
					"error", err,
				)
				pools[i] = domain.ResultPool{}
				return nil
			}
			if pool == nil {
				pool = domain.ResultPool{}
			}
			pools[i] = pool
			return nil
		})
	}
	_ = g.Wait()

	return pools, int(failed.Load())
}
