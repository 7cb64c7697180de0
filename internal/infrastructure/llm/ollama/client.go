package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/llm/llmtext"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	genModel    string
	embedModel  string
	temperature float64
	httpClient  *http.Client
	executor    *resilience.Executor
}

// New builds a client for the Ollama HTTP API. A nil executor calls the
// server once without retry or breaker.
func New(baseURL, genModel, embedModel string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		genModel:    genModel,
		embedModel:  embedModel,
		temperature: 0.2,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    executor,
	}
}

// Generator implements ports.TextGenerator over /api/generate.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return g.client.generate(ctx, "generate", prompt, maxTokens, false)
}

func (g *Generator) GenerateLines(ctx context.Context, prompt string, n, maxTokens int) ([]string, error) {
	text, err := g.client.generate(ctx, "generate_lines", prompt, maxTokens, false)
	if err != nil {
		return nil, err
	}
	lines := llmtext.Lines(text, n)
	if len(lines) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedOutput, "generate_lines", fmt.Errorf("no lines in completion"))
	}
	return lines, nil
}

func (g *Generator) GenerateJSON(ctx context.Context, prompt, schemaHint string) (any, error) {
	text, err := g.client.generate(ctx, "generate_json", buildJSONPrompt(prompt, schemaHint), 0, true)
	if err != nil {
		return nil, err
	}
	return llmtext.DecodeJSON("generate_json", text)
}

// Embedder implements ports.Embedder over /api/embed.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "embed", "/api/embed", request, &response); err != nil {
		return nil, err
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedOutput, "embed", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

func (c *Client) generate(ctx context.Context, operation, prompt string, maxTokens int, jsonMode bool) (string, error) {
	options := map[string]any{"temperature": c.temperature}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	reqBody := map[string]any{
		"model":   c.genModel,
		"prompt":  prompt,
		"stream":  false,
		"options": options,
	}
	if jsonMode {
		reqBody["format"] = "json"
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.call(ctx, operation, "/api/generate", reqBody, &response); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

// call runs postJSON through the executor and maps failures to domain kinds.
func (c *Client) call(ctx context.Context, operation, path string, payload, out any) error {
	do := func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}
	var err error
	if c.executor == nil {
		err = do(ctx)
	} else {
		err = c.executor.Execute(ctx, "ollama_"+operation, do, resilience.ClassifyHTTPError)
	}
	return resilience.WrapHTTPError("ollama "+operation, err)
}
