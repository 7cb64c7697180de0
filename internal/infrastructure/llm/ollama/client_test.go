package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/infrastructure/resilience"
)

func TestGenerateSendsTokenLimit(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  a passage  "}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed", time.Second, nil))
	text, err := gen.Generate(context.Background(), "question?", 220)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "a passage" {
		t.Fatalf("unexpected text: %q", text)
	}
	options, _ := payload["options"].(map[string]any)
	if options["num_predict"] != float64(220) {
		t.Fatalf("expected num_predict=220, got %v", payload["options"])
	}
	if _, ok := payload["format"]; ok {
		t.Fatalf("plain generate must not request json format")
	}
}

func TestGenerateLinesCleansCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"response": "1. gpt-5 release date\n2. when did gpt-5 ship\n\n3. gpt-5 launch"})
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed", time.Second, nil))
	lines, err := gen.GenerateLines(context.Background(), "prompt", 2, 512)
	if err != nil {
		t.Fatalf("GenerateLines() error = %v", err)
	}
	if len(lines) != 2 || lines[0] != "gpt-5 release date" || lines[1] != "when did gpt-5 ship" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestGenerateJSONRequestsFormatAndParses(t *testing.T) {
	var capturedPrompt string
	var format any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		capturedPrompt, _ = payload["prompt"].(string)
		format = payload["format"]
		_, _ = w.Write([]byte(`{"response":"{\"must_filters\":{\"year\":\"2023\"}}"}`))
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed", time.Second, nil))
	out, err := gen.GenerateJSON(context.Background(), "extract filters", `{"must_filters":{}}`)
	if err != nil {
		t.Fatalf("GenerateJSON() error = %v", err)
	}
	if format != "json" {
		t.Fatalf("expected json format, got %v", format)
	}
	if !strings.Contains(capturedPrompt, `{"must_filters":{}}`) {
		t.Fatalf("schema hint missing from prompt: %s", capturedPrompt)
	}
	if _, ok := out.(map[string]any); !ok {
		t.Fatalf("expected object, got %#v", out)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", time.Second, nil))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to be temporary, got %v", err)
	}
}

func TestGenerateRetriesThroughExecutor(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
	}, nil)
	gen := NewGenerator(New(server.URL, "gen", "embed", time.Second, exec))
	text, err := gen.Generate(context.Background(), "prompt", 10)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "ok" || calls.Load() != 2 {
		t.Fatalf("expected retry then success, got %q after %d calls", text, calls.Load())
	}
}

func TestMissingModelIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `model "gen" not found`, http.StatusNotFound)
	}))
	defer server.Close()

	gen := NewGenerator(New(server.URL, "gen", "embed", time.Second, nil))
	_, err := gen.Generate(context.Background(), "prompt", 10)
	if !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}
