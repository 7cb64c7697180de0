package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

func offlineEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "offline")
	t.Setenv("RETRIEVER_BACKEND", "memory")
	t.Setenv("CORPUS_PATH", "")
	t.Setenv("LOG_LEVEL", "error")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestQueryCommandPrintsJSON(t *testing.T) {
	offlineEnv(t)

	out, err := runCLI(t, "query", "--json", "--mmr-topk", "3", "release", "notes", "timeline")
	if err != nil {
		t.Fatalf("query command error = %v", err)
	}
	var result domain.RewriteResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if result.Normalized != "release notes timeline" {
		t.Fatalf("unexpected normalized query %q", result.Normalized)
	}
	if len(result.Final) == 0 || len(result.Final) > 3 {
		t.Fatalf("expected 1..3 final documents, got %d", len(result.Final))
	}
}

func TestQueryCommandRejectsInvalidOverride(t *testing.T) {
	offlineEnv(t)

	_, err := runCLI(t, "query", "--max-queries", "40", "faq")
	if !domain.IsKind(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}

func TestPlanCommandListsStrategies(t *testing.T) {
	offlineEnv(t)
	t.Setenv("PIPELINE_ENABLE_HYDE", "false")

	out, err := runCLI(t, "plan", "FAQ")
	if err != nil {
		t.Fatalf("plan command error = %v", err)
	}
	if !strings.Contains(out, "normalized: faq") {
		t.Fatalf("expected normalized line, got:\n%s", out)
	}
	if strings.Contains(out, "hyde") {
		t.Fatalf("disabled strategy must not be listed:\n%s", out)
	}
}

func TestQueryCommandRequiresText(t *testing.T) {
	offlineEnv(t)

	if _, err := runCLI(t, "query"); err == nil {
		t.Fatalf("expected an argument error")
	}
}
