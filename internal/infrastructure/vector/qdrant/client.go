package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "sparse"
	shouldBoostScore = 0.1
)

type Config struct {
	URL        string
	Collection string
	// Hybrid queries named dense and sparse vectors fused with RRF on the
	// server. Otherwise the collection holds one unnamed dense vector. The
	// collection is populated elsewhere; payloads carry doc_id, text and
	// flat metadata keys.
	Hybrid  bool
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	collection string
	hybrid     bool
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		hybrid:     cfg.Hybrid,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

type scoredPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// SearchVector returns payload-carrying hits for vector. filters must and not
// partitions become server-side conditions; should hits boost the score.
func (c *Client) SearchVector(ctx context.Context, query string, vector []float32, limit int, filters *domain.FilterSet) (domain.ResultPool, error) {
	var points []scoredPoint
	var err error
	if c.hybrid {
		points, err = c.queryHybrid(ctx, query, vector, limit, filters)
	} else {
		points, err = c.searchDense(ctx, vector, limit, filters)
	}
	if err != nil {
		return nil, err
	}

	out := make(domain.ResultPool, 0, len(points))
	for _, p := range points {
		score := p.Score
		if filters != nil && len(filters.Should) > 0 {
			score += shouldBoostScore * float64(filters.ShouldHits(stringPayload(p.Payload)))
		}
		out = append(out, domain.SearchResult{
			ID:    getStringPayload(p.Payload, "doc_id"),
			Score: score,
			Text:  getStringPayload(p.Payload, "text"),
		})
	}
	sortPool(out)
	return out, nil
}

func (c *Client) searchDense(ctx context.Context, vector []float32, limit int, filters *domain.FilterSet) ([]scoredPoint, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if f := buildFilter(filters); f != nil {
		reqBody["filter"] = f
	}

	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.call(ctx, "qdrant_search", http.MethodPost, path, reqBody, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *Client) queryHybrid(ctx context.Context, query string, vector []float32, limit int, filters *domain.FilterSet) ([]scoredPoint, error) {
	filter := buildFilter(filters)
	prefetch := []map[string]any{{
		"query": vector,
		"using": denseVectorName,
		"limit": limit * 2,
	}}
	if sparse := encodeSparseQuery(query); !sparse.empty() {
		prefetch = append(prefetch, map[string]any{
			"query": sparse,
			"using": sparseVectorName,
			"limit": limit * 2,
		})
	}
	if filter != nil {
		for _, p := range prefetch {
			p["filter"] = filter
		}
	}

	reqBody := map[string]any{
		"prefetch":     prefetch,
		"query":        map[string]any{"fusion": "rrf"},
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		reqBody["filter"] = filter
	}

	var resp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/query", c.collection)
	if err := c.call(ctx, "qdrant_query", http.MethodPost, path, reqBody, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Points, nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload, out any) error {
	do := func(ctx context.Context) error {
		return c.doJSON(ctx, operation, method, path, payload, out)
	}
	var err error
	if c.executor == nil {
		err = do(ctx)
	} else {
		err = c.executor.Execute(ctx, operation, do, resilience.ClassifyHTTPError)
	}
	return resilience.WrapHTTPError(operation, err)
}

func (c *Client) doJSON(ctx context.Context, operation, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewStatusError("qdrant", operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func stringPayload(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for k := range payload {
		out[k] = getStringPayload(payload, k)
	}
	return out
}
