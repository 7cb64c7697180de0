// Package worker serves rewrite requests arriving over the message broker
// and provides the matching client.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
)

// Request is the wire form of a rewrite request.
type Request struct {
	Query   string                  `json:"query"`
	Context string                  `json:"context,omitempty"`
	Options *domain.OptionsOverride `json:"options,omitempty"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Reply carries exactly one of Result or Error.
type Reply struct {
	Result *domain.RewriteResult `json:"result,omitempty"`
	Error  *ErrorBody            `json:"error,omitempty"`
}

type Recorder interface {
	StartRequest()
	FinishRequest(service string, duration time.Duration, err error)
}

type Handler struct {
	rewriter ports.QueryRewriter
	recorder Recorder
	logger   *slog.Logger
	service  string
}

func NewHandler(rewriter ports.QueryRewriter, recorder Recorder, logger *slog.Logger, service string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		rewriter: rewriter,
		recorder: recorder,
		logger:   logger,
		service:  service,
	}
}

// Handle decodes payload, runs the pipeline and encodes the reply. It never
// fails: problems are reported in the reply envelope.
func (h *Handler) Handle(ctx context.Context, payload []byte) []byte {
	start := time.Now()
	if h.recorder != nil {
		h.recorder.StartRequest()
	}

	result, err := h.rewrite(ctx, payload)

	if h.recorder != nil {
		h.recorder.FinishRequest(h.service, time.Since(start), err)
	}
	reply := Reply{Result: result}
	if err != nil {
		reply = Reply{Error: &ErrorBody{Kind: domain.ErrorKind(err), Message: err.Error()}}
		h.logger.Warn("worker_request_failed",
			"kind", reply.Error.Kind,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
	} else {
		h.logger.Info("worker_request_done",
			"duration_ms", time.Since(start).Milliseconds(),
			"num_final", len(result.Final),
			"fallbacks", result.Metrics.Fallbacks,
		)
	}

	raw, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("worker_reply_encode_failed", "error", err)
		raw, _ = json.Marshal(Reply{Error: &ErrorBody{Kind: "internal", Message: "encode reply"}})
	}
	return raw
}

func (h *Handler) rewrite(ctx context.Context, payload []byte) (*domain.RewriteResult, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode request", errors.New("query is required"))
	}
	rr := domain.RewriteRequest{Query: req.Query, Context: req.Context}
	if req.Options != nil {
		return h.rewriter.RewriteWithOptions(ctx, rr, *req.Options)
	}
	return h.rewriter.Rewrite(ctx, rr)
}

// Requester sends one payload and returns the reply.
type Requester interface {
	Request(ctx context.Context, payload []byte) ([]byte, error)
}

// Client implements ports.QueryRewriter on top of a broker round trip.
type Client struct {
	requester Requester
}

func NewClient(requester Requester) *Client {
	return &Client{requester: requester}
}

func (c *Client) Rewrite(ctx context.Context, req domain.RewriteRequest) (*domain.RewriteResult, error) {
	return c.call(ctx, Request{Query: req.Query, Context: req.Context})
}

func (c *Client) RewriteWithOptions(ctx context.Context, req domain.RewriteRequest, override domain.OptionsOverride) (*domain.RewriteResult, error) {
	return c.call(ctx, Request{Query: req.Query, Context: req.Context, Options: &override})
}

func (c *Client) call(ctx context.Context, req Request) (*domain.RewriteResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode request", err)
	}
	raw, err := c.requester.Request(ctx, payload)
	if err != nil {
		return nil, err
	}
	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedOutput, "decode reply", err)
	}
	if reply.Error != nil {
		remote := errors.New(reply.Error.Message)
		if kind := kindSentinel(reply.Error.Kind); kind != nil {
			return nil, domain.WrapError(kind, "remote rewrite", remote)
		}
		return nil, fmt.Errorf("remote rewrite: %s: %w", reply.Error.Kind, remote)
	}
	if reply.Result == nil {
		return nil, domain.WrapError(domain.ErrMalformedOutput, "decode reply", fmt.Errorf("reply has neither result nor error"))
	}
	return reply.Result, nil
}

// kindSentinel returns nil for "internal" and unknown kinds, which stay
// unclassified so domain.ErrorKind reports them as internal again.
func kindSentinel(kind string) error {
	switch kind {
	case "invalid_input":
		return domain.ErrInvalidInput
	case "invalid_config":
		return domain.ErrInvalidConfig
	case "temporary":
		return domain.ErrTemporary
	case "malformed_output":
		return domain.ErrMalformedOutput
	case "backend_unavailable":
		return domain.ErrBackendUnavailable
	default:
		return nil
	}
}
