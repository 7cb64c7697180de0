package rewrite

import (
	"context"
	"sync"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

type generatorFake struct {
	mu      sync.Mutex
	text    string
	lines   []string
	json    any
	err     error
	prompts []string
}

func (f *generatorFake) record(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
}

func (f *generatorFake) Generate(_ context.Context, prompt string, _ int) (string, error) {
	f.record(prompt)
	return f.text, f.err
}

func (f *generatorFake) GenerateLines(_ context.Context, prompt string, n, _ int) ([]string, error) {
	f.record(prompt)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.lines) > n {
		return f.lines[:n], nil
	}
	return f.lines, nil
}

func (f *generatorFake) GenerateJSON(_ context.Context, prompt, _ string) (any, error) {
	f.record(prompt)
	return f.json, f.err
}

type retrieverFake struct {
	pool    domain.ResultPool
	err     error
	calls   int
	topK    int
	filters *domain.FilterSet
}

func (f *retrieverFake) Search(_ context.Context, _ string, topK int, filters *domain.FilterSet) (domain.ResultPool, error) {
	f.calls++
	f.topK = topK
	f.filters = filters
	return f.pool, f.err
}
