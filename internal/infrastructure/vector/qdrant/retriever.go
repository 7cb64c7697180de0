package qdrant

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/ports"
)

// CachedEmbedder memoizes query embeddings. Candidate sets repeat the same
// query text across strategies and runs.
type CachedEmbedder struct {
	next  ports.Embedder
	cache *lru.Cache[string, []float32]
}

func NewCachedEmbedder(next ports.Embedder, size int) (*CachedEmbedder, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if v, ok := e.cache.Get(key); ok {
		return v, nil
	}
	v, err := e.next.EmbedQuery(ctx, key)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, v)
	return v, nil
}

// Retriever implements ports.Retriever over a Qdrant collection.
type Retriever struct {
	client   *Client
	embedder ports.Embedder
}

func NewRetriever(client *Client, embedder ports.Embedder) *Retriever {
	return &Retriever{client: client, embedder: embedder}
}

func (r *Retriever) Search(ctx context.Context, query string, topK int, filters *domain.FilterSet) (domain.ResultPool, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return domain.ResultPool{}, nil
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return r.client.SearchVector(ctx, query, vector, topK, filters)
}
