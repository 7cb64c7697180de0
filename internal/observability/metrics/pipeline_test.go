package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

func TestPipelineMetricsCountsRunsAndStrategies(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPipelineMetrics(registry, "test")

	m.ObservePlan(domain.StrategyPlan{UseMultiQuery: true, UseHyDE: true})
	m.ObserveFallback(domain.StrategyHyDE)
	m.ObserveRetrievalFailure()
	m.ObserveStage("retrieve", 20*time.Millisecond)
	m.ObserveRun(domain.RunMetrics{NumCandidates: 4, NumFinal: 3}, nil)
	m.ObserveRun(domain.RunMetrics{}, errors.New("invalid"))

	if got := testutil.ToFloat64(m.strategyTotal.WithLabelValues("test", "multiquery")); got != 1 {
		t.Fatalf("expected multiquery planned once, got %v", got)
	}
	if got := testutil.ToFloat64(m.fallbackTotal.WithLabelValues("test", "hyde")); got != 1 {
		t.Fatalf("expected one hyde fallback, got %v", got)
	}
	if got := testutil.ToFloat64(m.runsTotal.WithLabelValues("test", "error")); got != 1 {
		t.Fatalf("expected one failed run, got %v", got)
	}
	if got := testutil.ToFloat64(m.retrievalFailures.WithLabelValues("test")); got != 1 {
		t.Fatalf("expected one retrieval failure, got %v", got)
	}
}

func TestHTTPMiddlewareRecordsNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("test")
	handler := m.Middleware("test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	for _, path := range []string{"/v1/rewrite", "/random/1", "/random/2"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("test", http.MethodGet, "other", "418")); got != 2 {
		t.Fatalf("expected unknown paths to collapse to other, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "rqr_http_requests_total") {
		t.Fatalf("expected exposition to include request counter")
	}
}

func TestWorkerMetricsInFlight(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartRequest()
	if got := testutil.ToFloat64(m.requestInFlight); got != 1 {
		t.Fatalf("expected 1 in flight, got %v", got)
	}
	m.FinishRequest("worker", time.Millisecond, nil)
	if got := testutil.ToFloat64(m.requestInFlight); got != 0 {
		t.Fatalf("expected 0 in flight, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("worker", "ok")); got != 1 {
		t.Fatalf("expected one ok, got %v", got)
	}

	m.StartRequest()
	m.FinishRequest("worker", time.Millisecond, domain.WrapError(domain.ErrInvalidInput, "rewrite", errors.New("blank")))
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("worker", "invalid_input")); got != 1 {
		t.Fatalf("expected one invalid_input, got %v", got)
	}
}
