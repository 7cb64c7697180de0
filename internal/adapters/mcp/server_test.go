package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

type rewriterFake struct {
	err          error
	lastRequest  domain.RewriteRequest
	lastOverride *domain.OptionsOverride
}

func (f *rewriterFake) Rewrite(_ context.Context, req domain.RewriteRequest) (*domain.RewriteResult, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RewriteResult{
		Normalized: req.Query,
		Final:      []domain.FusedResult{{ID: "d6", FusedScore: 0.03, Text: "GPT-5 was released"}},
	}, nil
}

func (f *rewriterFake) RewriteWithOptions(ctx context.Context, req domain.RewriteRequest, override domain.OptionsOverride) (*domain.RewriteResult, error) {
	f.lastOverride = &override
	return f.Rewrite(ctx, req)
}

func newTestServer(rewriter *rewriterFake) *Server {
	return NewServer(rewriter, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func callRequest(args any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      rewriteToolName,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) != 1 {
		t.Fatalf("expected a single content item, got %+v", result)
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestRewriteToolSchema(t *testing.T) {
	tool := rewriteTool()
	if tool.Name != "rewrite_query" {
		t.Fatalf("unexpected tool name %q", tool.Name)
	}
	if len(tool.InputSchema.Required) != 1 || tool.InputSchema.Required[0] != "query" {
		t.Fatalf("query must be the only required argument: %v", tool.InputSchema.Required)
	}
}

func TestHandleRewriteReturnsResultJSON(t *testing.T) {
	rewriter := &rewriterFake{}
	s := newTestServer(rewriter)

	result, err := s.handleRewrite(context.Background(), callRequest(map[string]any{
		"query":   "has it been released",
		"context": "entity=gpt-5",
		"options": map[string]any{"mmr_topk": 2, "enable": map[string]any{"prf": true}},
	}))
	if err != nil {
		t.Fatalf("handleRewrite() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	var decoded domain.RewriteResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &decoded); err != nil {
		t.Fatalf("decode tool output: %v", err)
	}
	if len(decoded.Final) != 1 || decoded.Final[0].ID != "d6" {
		t.Fatalf("unexpected tool output: %+v", decoded)
	}
	if rewriter.lastRequest.Context != "entity=gpt-5" {
		t.Fatalf("context was not forwarded: %+v", rewriter.lastRequest)
	}
	if rewriter.lastOverride == nil || *rewriter.lastOverride.MMRTopK != 2 || !rewriter.lastOverride.Enable.PRF {
		t.Fatalf("options were not decoded: %+v", rewriter.lastOverride)
	}
}

func TestHandleRewriteRejectsMissingQuery(t *testing.T) {
	s := newTestServer(&rewriterFake{})

	for _, args := range []any{nil, map[string]any{}, map[string]any{"query": "  "}} {
		_, err := s.handleRewrite(context.Background(), callRequest(args))
		var invalid *InvalidParamsError
		if !errors.As(err, &invalid) {
			t.Fatalf("args %v: expected invalid params, got %v", args, err)
		}
	}
}

func TestHandleRewriteRejectsMalformedOptions(t *testing.T) {
	s := newTestServer(&rewriterFake{})

	_, err := s.handleRewrite(context.Background(), callRequest(map[string]any{
		"query":   "faq",
		"options": map[string]any{"max_queries": "many"},
	}))
	var invalid *InvalidParamsError
	if !errors.As(err, &invalid) || invalid.Param != "options" {
		t.Fatalf("expected invalid options, got %v", err)
	}
}

func TestHandleRewriteReportsPipelineErrorsAsToolErrors(t *testing.T) {
	s := newTestServer(&rewriterFake{err: domain.WrapError(domain.ErrBackendUnavailable, "search", errors.New("refused"))})

	result, err := s.handleRewrite(context.Background(), callRequest(map[string]any{"query": "faq"}))
	if err != nil {
		t.Fatalf("pipeline failures must not be protocol errors: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error result")
	}
	if text := resultText(t, result); !strings.HasPrefix(text, "backend_unavailable: ") {
		t.Fatalf("unexpected error text %q", text)
	}
}
