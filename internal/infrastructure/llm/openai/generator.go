// Package openai adapts OpenAI-compatible chat completion endpoints to the
// TextGenerator port.
package openai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/llm/llmtext"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/resilience"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type Generator struct {
	client      openai.Client
	model       string
	temperature float64
	executor    *resilience.Executor
}

// NewGenerator builds a chat completion generator. SDK retries are disabled;
// retry and breaker policy belong to executor.
func NewGenerator(cfg Config, executor *resilience.Executor) (*Generator, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "openai generator", errors.New("model is required"))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}

	return &Generator{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		executor:    executor,
	}, nil
}

func (g *Generator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return g.complete(ctx, "generate", prompt, maxTokens)
}

func (g *Generator) GenerateLines(ctx context.Context, prompt string, n, maxTokens int) ([]string, error) {
	text, err := g.complete(ctx, "generate_lines", prompt, maxTokens)
	if err != nil {
		return nil, err
	}
	lines := llmtext.Lines(text, n)
	if len(lines) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedOutput, "generate_lines", errors.New("no lines in completion"))
	}
	return lines, nil
}

func (g *Generator) GenerateJSON(ctx context.Context, prompt, schemaHint string) (any, error) {
	if schemaHint != "" {
		prompt += "\n\nRespond with a single JSON object shaped like:\n" + schemaHint + "\nNo markdown, no extra text."
	}
	text, err := g.complete(ctx, "generate_json", prompt, 0)
	if err != nil {
		return nil, err
	}
	return llmtext.DecodeJSON("generate_json", text)
}

func (g *Generator) complete(ctx context.Context, operation, prompt string, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(g.temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	call := func(ctx context.Context) (string, error) {
		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", domain.WrapError(domain.ErrMalformedOutput, operation, errors.New("completion has no choices"))
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}

	var (
		text string
		err  error
	)
	if g.executor == nil {
		text, err = call(ctx)
	} else {
		text, err = resilience.Do(ctx, g.executor, "openai_"+operation, call, classifyOpenAIError)
	}
	if err != nil {
		return "", wrapOpenAIError(operation, err)
	}
	return text, nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if err == nil || errors.Is(err, context.Canceled) || domain.IsKind(err, domain.ErrMalformedOutput) {
		return resilience.ErrorClassification{}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests, apiErr.StatusCode == http.StatusRequestTimeout, apiErr.StatusCode >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusNotFound:
			return resilience.ErrorClassification{RecordFailure: true}
		default:
			return resilience.ErrorClassification{}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func wrapOpenAIError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrBackendUnavailable) ||
		domain.IsKind(err, domain.ErrMalformedOutput) || errors.Is(err, context.Canceled) {
		return err
	}
	if classifyOpenAIError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "openai "+operation, err)
	}
	return domain.WrapError(domain.ErrBackendUnavailable, "openai "+operation, err)
}
