package ports

import (
	"context"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

// QueryRewriter is the inbound contract for the rewrite, retrieve and fuse pipeline.
type QueryRewriter interface {
	Rewrite(ctx context.Context, req domain.RewriteRequest) (*domain.RewriteResult, error)
	RewriteWithOptions(ctx context.Context, req domain.RewriteRequest, override domain.OptionsOverride) (*domain.RewriteResult, error)
}
