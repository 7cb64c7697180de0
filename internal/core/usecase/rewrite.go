package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/fusion"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
	"github.com/kirillkom/rag-query-rewriter/internal/core/rewrite"
	"github.com/kirillkom/rag-query-rewriter/internal/core/similarity"
)

type identityNormalizer struct{}

func (identityNormalizer) Normalize(text string) string { return strings.TrimSpace(text) }

type passthroughResolver struct{}

func (passthroughResolver) Resolve(query, _ string) string { return query }

// RewriteUseCase runs normalize, resolve, route, generate, dedup, dispatch,
// fuse and select for a single query.
type RewriteUseCase struct {
	generator  ports.TextGenerator
	retriever  ports.Retriever
	normalizer ports.QueryNormalizer
	resolver   ports.ConversationResolver
	observer   ports.PipelineObserver
	logger     *slog.Logger
	options    domain.PipelineOptions
	now        func() time.Time
}

func NewRewriteUseCase(
	generator ports.TextGenerator,
	retriever ports.Retriever,
	normalizer ports.QueryNormalizer,
	resolver ports.ConversationResolver,
	options domain.PipelineOptions,
	logger *slog.Logger,
) (*RewriteUseCase, error) {
	if generator == nil || retriever == nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new rewrite use case", errors.New("generator and retriever are required"))
	}
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if normalizer == nil {
		normalizer = identityNormalizer{}
	}
	if resolver == nil {
		resolver = passthroughResolver{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RewriteUseCase{
		generator:  generator,
		retriever:  retriever,
		normalizer: normalizer,
		resolver:   resolver,
		observer:   ports.NopObserver{},
		logger:     logger,
		options:    options,
		now:        time.Now,
	}, nil
}

// SetObserver attaches pipeline telemetry. Nil restores the no-op observer.
func (uc *RewriteUseCase) SetObserver(observer ports.PipelineObserver) {
	if observer == nil {
		observer = ports.NopObserver{}
	}
	uc.observer = observer
}

func (uc *RewriteUseCase) Options() domain.PipelineOptions {
	return uc.options
}

func (uc *RewriteUseCase) Rewrite(ctx context.Context, req domain.RewriteRequest) (*domain.RewriteResult, error) {
	return uc.run(ctx, req, uc.options)
}

// RewriteWithOptions applies override on top of the configured options.
// Invalid combinations are rejected before any stage runs.
func (uc *RewriteUseCase) RewriteWithOptions(
	ctx context.Context,
	req domain.RewriteRequest,
	override domain.OptionsOverride,
) (*domain.RewriteResult, error) {
	opts := override.Apply(uc.options)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return uc.run(ctx, req, opts)
}

func (uc *RewriteUseCase) run(ctx context.Context, req domain.RewriteRequest, opts domain.PipelineOptions) (*domain.RewriteResult, error) {
	start := uc.now()

	raw := strings.TrimSpace(req.Query)
	if raw == "" {
		err := domain.WrapError(domain.ErrInvalidInput, "rewrite", errors.New("query is required"))
		uc.observer.ObserveRun(domain.RunMetrics{}, err)
		return nil, err
	}

	normalized := strings.TrimSpace(uc.normalizer.Normalize(raw))
	if normalized == "" {
		err := domain.WrapError(domain.ErrInvalidInput, "rewrite", errors.New("query is empty after normalization"))
		uc.observer.ObserveRun(domain.RunMetrics{}, err)
		return nil, err
	}
	resolved := strings.TrimSpace(uc.resolver.Resolve(normalized, req.Context))
	if resolved == "" {
		resolved = normalized
	}

	logger := uc.logger.With("query", resolved)
	logger.Debug("rewrite_started", "raw", raw, "normalized", normalized)

	plan := rewrite.NewRouter(opts.Router).Decide(resolved, opts.Enable)
	uc.observer.ObservePlan(plan)
	logger.Info("strategy_plan",
		"multiquery", plan.UseMultiQuery,
		"decompose", plan.UseDecompose,
		"hyde", plan.UseHyDE,
		"prf", plan.UsePRF,
		"self_query", plan.UseSelfQuery,
	)

	var metrics domain.RunMetrics

	stageStart := uc.now()
	strategies := uc.strategiesFor(plan, opts)
	outcomes := runStrategies(ctx, strategies, resolved)

	candidates := []domain.Candidate{{Text: resolved, Source: domain.StrategyOriginal}}
	var filters domain.FilterSet
	for i, outcome := range outcomes {
		name := strategies[i].Name()
		if outcome.Fallback {
			metrics.Fallbacks = append(metrics.Fallbacks, string(name))
			uc.observer.ObserveFallback(name)
			logger.Warn("strategy_fallback", "strategy", string(name), "error", outcome.Err)
		}
		if name == domain.StrategySelfQuery {
			filters = outcome.Filters
			continue
		}
		for _, text := range outcome.Candidates {
			candidates = append(candidates, domain.Candidate{Text: text, Source: name})
		}
	}
	candidates = dedupCandidates(candidates, opts.DedupThreshold)
	uc.observer.ObserveStage("generate", uc.now().Sub(stageStart))

	retrievalStart := uc.now()
	pools, failed := NewDispatcher(uc.retriever, opts.DispatchTopK, logger, uc.observer).Dispatch(ctx, candidates, filters)
	retrievalDuration := uc.now().Sub(retrievalStart)
	uc.observer.ObserveStage("retrieve", retrievalDuration)

	stageStart = uc.now()
	fused := fusion.FuseRRF(pools, opts.RRFK)
	docs := make([]string, len(fused))
	for i, r := range fused {
		docs[i] = r.Text
	}
	selected := fusion.SelectMMR(resolved, docs, opts.MMRTopK, opts.MMRLambda)
	final := make([]domain.FusedResult, 0, len(selected))
	for _, idx := range selected {
		final = append(final, fused[idx])
	}
	uc.observer.ObserveStage("fuse", uc.now().Sub(stageStart))

	metrics.ElapsedMS = uc.now().Sub(start).Milliseconds()
	metrics.RetrievalMS = retrievalDuration.Milliseconds()
	metrics.NumCandidates = len(candidates)
	metrics.NumFused = len(fused)
	metrics.NumFinal = len(final)
	metrics.FailedRetrievals = failed

	uc.observer.ObserveRun(metrics, nil)
	logger.Info("rewrite_completed",
		"candidates", metrics.NumCandidates,
		"fused", metrics.NumFused,
		"final", metrics.NumFinal,
		"failed_retrievals", metrics.FailedRetrievals,
		"retrieval_ms", metrics.RetrievalMS,
		"elapsed_ms", metrics.ElapsedMS,
	)

	return &domain.RewriteResult{
		Normalized: normalized,
		Resolved:   resolved,
		Plan:       plan,
		Filters:    filters,
		Candidates: candidates,
		Fused:      fused,
		Final:      final,
		Metrics:    metrics,
	}, nil
}

// strategiesFor returns the planned strategies in candidate assembly order.
func (uc *RewriteUseCase) strategiesFor(plan domain.StrategyPlan, opts domain.PipelineOptions) []rewrite.Strategy {
	out := make([]rewrite.Strategy, 0, 5)
	for _, name := range plan.Enabled() {
		switch name {
		case domain.StrategyMultiQuery:
			out = append(out, rewrite.NewMultiQuery(uc.generator, opts.MaxQueries, opts.DedupThreshold))
		case domain.StrategyDecompose:
			out = append(out, rewrite.NewDecompose())
		case domain.StrategyPRF:
			out = append(out, rewrite.NewPRF(uc.retriever, opts.PRFTopK, opts.PRFExpansionTerms, opts.PRFStopwords))
		case domain.StrategyHyDE:
			out = append(out, rewrite.NewHyDE(uc.generator))
		case domain.StrategySelfQuery:
			out = append(out, rewrite.NewSelfQuery(uc.generator))
		}
	}
	return out
}

// runStrategies generates concurrently; outcomes keep strategy order.
func runStrategies(ctx context.Context, strategies []rewrite.Strategy, query string) []rewrite.Outcome {
	outcomes := make([]rewrite.Outcome, len(strategies))
	var g errgroup.Group
	for i, s := range strategies {
		g.Go(func() error {
			outcomes[i] = s.Generate(ctx, query)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func dedupCandidates(candidates []domain.Candidate, threshold float64) []domain.Candidate {
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = strings.TrimSpace(c.Text)
	}
	kept := similarity.Distinct(texts, threshold)
	out := make([]domain.Candidate, 0, len(kept))
	for _, i := range kept {
		out = append(out, domain.Candidate{Text: texts[i], Source: candidates[i].Source})
	}
	return out
}
