package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

// PipelineMetrics implements ports.PipelineObserver.
type PipelineMetrics struct {
	service string

	runsTotal          *prometheus.CounterVec
	strategyTotal      *prometheus.CounterVec
	fallbackTotal      *prometheus.CounterVec
	retrievalFailures  *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	candidates         *prometheus.HistogramVec
	finalResults       *prometheus.HistogramVec
	breakerTransitions *prometheus.CounterVec
}

func NewPipelineMetrics(registerer prometheus.Registerer, service string) *PipelineMetrics {
	countBuckets := []float64{0, 1, 2, 4, 6, 8, 12, 16, 24, 32}

	m := &PipelineMetrics{
		service: service,
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "runs_total",
				Help:      "Total rewrite runs by status.",
			},
			[]string{"service", "status"},
		),
		strategyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "strategy_planned_total",
				Help:      "Times each strategy was selected by the router.",
			},
			[]string{"service", "strategy"},
		),
		fallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "fallbacks_total",
				Help:      "Strategies that degraded to their fallback.",
			},
			[]string{"service", "strategy"},
		),
		retrievalFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "retrieval_failures_total",
				Help:      "Candidate retrievals that failed and contributed an empty pool.",
			},
			[]string{"service"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"service", "stage"},
		),
		candidates: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "candidates",
				Help:      "Candidate queries per run after dedup.",
				Buckets:   countBuckets,
			},
			[]string{"service"},
		),
		finalResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "final_results",
				Help:      "Documents returned per run after MMR selection.",
				Buckets:   countBuckets,
			},
			[]string{"service"},
		),
		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state changes by operation and target state.",
			},
			[]string{"service", "operation", "state"},
		),
	}

	registerer.MustRegister(
		m.runsTotal,
		m.strategyTotal,
		m.fallbackTotal,
		m.retrievalFailures,
		m.stageDuration,
		m.candidates,
		m.finalResults,
		m.breakerTransitions,
	)
	return m
}

func (m *PipelineMetrics) ObservePlan(plan domain.StrategyPlan) {
	for _, s := range plan.Enabled() {
		m.strategyTotal.WithLabelValues(m.service, string(s)).Inc()
	}
}

func (m *PipelineMetrics) ObserveFallback(strategy domain.Strategy) {
	m.fallbackTotal.WithLabelValues(m.service, string(strategy)).Inc()
}

func (m *PipelineMetrics) ObserveRetrievalFailure() {
	m.retrievalFailures.WithLabelValues(m.service).Inc()
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveRun(metrics domain.RunMetrics, err error) {
	if err != nil {
		m.runsTotal.WithLabelValues(m.service, "error").Inc()
		return
	}
	m.runsTotal.WithLabelValues(m.service, "success").Inc()
	m.candidates.WithLabelValues(m.service).Observe(float64(metrics.NumCandidates))
	m.finalResults.WithLabelValues(m.service).Observe(float64(metrics.NumFinal))
}

// ObserveBreaker records a circuit breaker transition.
func (m *PipelineMetrics) ObserveBreaker(operation, state string) {
	m.breakerTransitions.WithLabelValues(m.service, operation, state).Inc()
}
