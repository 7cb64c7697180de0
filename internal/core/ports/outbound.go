package ports

import (
	"context"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

// TextGenerator is the language generation backend used by rewrite strategies.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
	GenerateLines(ctx context.Context, prompt string, nLines, maxTokens int) ([]string, error)
	// GenerateJSON returns decoded JSON. Callers must not assume a mapping.
	GenerateJSON(ctx context.Context, prompt, schemaHint string) (any, error)
}

// Retriever searches a document store. Must and Not filters are hard constraints.
type Retriever interface {
	Search(ctx context.Context, query string, topK int, filters *domain.FilterSet) (domain.ResultPool, error)
}

// QueryNormalizer makes raw user text retrieval friendly.
type QueryNormalizer interface {
	Normalize(text string) string
}

// ConversationResolver rewrites a follow-up question into a self-contained one.
type ConversationResolver interface {
	Resolve(query, history string) string
}

// Embedder builds query vectors for vector retrievers.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
