package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/rag-query-rewriter/internal/config"
	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
	"github.com/kirillkom/rag-query-rewriter/internal/observability/metrics"
)

const (
	serviceName  = "api"
	maxBodyBytes = 1 << 20
)

type Router struct {
	cfg      config.Config
	rewriter ports.QueryRewriter
	logger   *slog.Logger
	metrics  *metrics.HTTPServerMetrics
}

// NewRouter builds the HTTP surface. httpMetrics may be nil, in which case
// /metrics is not served.
func NewRouter(
	cfg config.Config,
	rewriter ports.QueryRewriter,
	logger *slog.Logger,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		rewriter: rewriter,
		logger:   logger,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/v1/rewrite", backpressureMiddleware(
		http.HandlerFunc(rt.rewrite),
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond,
		rt.recordRejection,
	))
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRejection)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) recordRejection(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejection(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type rewriteRequest struct {
	Query   string                  `json:"query"`
	Context string                  `json:"context"`
	Options *domain.OptionsOverride `json:"options"`
}

func (rt *Router) rewrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorMessage(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req rewriteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_input", "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeErrorMessage(w, http.StatusBadRequest, "invalid_input", "query is required")
		return
	}

	ctx := r.Context()
	if timeout := rt.cfg.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rr := domain.RewriteRequest{Query: req.Query, Context: req.Context}
	var (
		result *domain.RewriteResult
		err    error
	)
	if req.Options != nil {
		result, err = rt.rewriter.RewriteWithOptions(ctx, rr, *req.Options)
	} else {
		result, err = rt.rewriter.Rewrite(ctx, rr)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsKind(err, domain.ErrTemporary) {
			err = domain.WrapError(domain.ErrTemporary, "rewrite", err)
		}
		rt.logger.Warn("rewrite_failed",
			"request_id", requestIDFromContext(r.Context()),
			"kind", domain.ErrorKind(err),
			"error", err,
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
