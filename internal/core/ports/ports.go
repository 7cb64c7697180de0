package ports

import (
	"time"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

// PipelineObserver receives per-run telemetry. Implementations must be safe
// for concurrent use.
type PipelineObserver interface {
	ObservePlan(plan domain.StrategyPlan)
	ObserveFallback(strategy domain.Strategy)
	ObserveRetrievalFailure()
	ObserveStage(stage string, duration time.Duration)
	ObserveRun(metrics domain.RunMetrics, err error)
}

// NopObserver discards all telemetry.
type NopObserver struct{}

func (NopObserver) ObservePlan(domain.StrategyPlan)     {}
func (NopObserver) ObserveFallback(domain.Strategy)     {}
func (NopObserver) ObserveRetrievalFailure()            {}
func (NopObserver) ObserveStage(string, time.Duration)  {}
func (NopObserver) ObserveRun(domain.RunMetrics, error) {}
