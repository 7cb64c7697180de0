// Package mcpadapter exposes the rewrite pipeline as an MCP tool.
package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
)

const (
	ServerName    = "rag-query-rewriter"
	ServerVersion = "1.0.0"

	rewriteToolName = "rewrite_query"
)

// InvalidParamsError is returned for tool calls with unusable arguments.
type InvalidParamsError struct {
	Param  string
	Reason string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

type Server struct {
	mcp      *server.MCPServer
	rewriter ports.QueryRewriter
	logger   *slog.Logger
}

func NewServer(rewriter ports.QueryRewriter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		rewriter: rewriter,
		logger:   logger,
	}
	s.mcp.AddTool(rewriteTool(), s.handleRewrite)
	return s
}

// Serve speaks MCP over the given streams until ctx is canceled or the
// client disconnects.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

func rewriteTool() mcp.Tool {
	return mcp.Tool{
		Name:        rewriteToolName,
		Description: "Rewrite a search query into several candidates, retrieve documents for each and return the fused, diversified results",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "User question to rewrite",
				},
				"context": map[string]any{
					"type":        "string",
					"description": "Conversation brief such as \"entity=gpt-5\" used to resolve references",
				},
				"options": map[string]any{
					"type":        "object",
					"description": "Per-call overrides: max_queries, dedup_cosine_thr, prf_topk_initial, prf_expansion_terms, rrf_k, mmr_lambda, mmr_topk, enable",
				},
			},
			Required: []string{"query"},
		},
	}
}

func (s *Server) handleRewrite(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return nil, &InvalidParamsError{Param: "arguments", Reason: "expected an object"}
	}
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, &InvalidParamsError{Param: "query", Reason: "missing or empty"}
	}
	history, _ := args["context"].(string)

	req := domain.RewriteRequest{Query: query, Context: history}
	var (
		result *domain.RewriteResult
		err    error
	)
	if raw, present := args["options"]; present && raw != nil {
		override, decodeErr := decodeOverride(raw)
		if decodeErr != nil {
			return nil, &InvalidParamsError{Param: "options", Reason: decodeErr.Error()}
		}
		result, err = s.rewriter.RewriteWithOptions(ctx, req, override)
	} else {
		result, err = s.rewriter.Rewrite(ctx, req)
	}
	if err != nil {
		kind := domain.ErrorKind(err)
		s.logger.Warn("mcp_rewrite_failed", "kind", kind, "error", err)
		return mcp.NewToolResultError(kind + ": " + err.Error()), nil
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func decodeOverride(raw any) (domain.OptionsOverride, error) {
	var override domain.OptionsOverride
	data, err := json.Marshal(raw)
	if err != nil {
		return override, err
	}
	if err := json.Unmarshal(data, &override); err != nil {
		return override, err
	}
	return override, nil
}
