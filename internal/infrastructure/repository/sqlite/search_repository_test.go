package sqlite

import (
	"context"
	"testing"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

func newSeededRepo(t *testing.T) *SearchRepository {
	t.Helper()
	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	stmts := []string{
		`CREATE VIRTUAL TABLE rag_documents USING fts5(id UNINDEXED, body, metadata UNINDEXED, tokenize = 'porter unicode61')`,
		`INSERT INTO rag_documents (id, body, metadata) VALUES
			('d1', '2023 release notes with features and timeline', '{"year":"2023","type":"release"}'),
			('d2', '2024 minor release update fixing issues', '{"year":"2024","type":"release"}'),
			('d3', 'technical specification overview', '{"year":"2022","type":"spec"}'),
			('d4', 'frequently asked questions faq', '{"year":"2023","type":"FAQ"}')`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("fixture: %v", err)
		}
	}
	return NewSearchRepository(db)
}

func TestSearchRanksByRelevance(t *testing.T) {
	repo := newSeededRepo(t)

	pool, err := repo.Search(context.Background(), "release notes timeline", 10, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(pool) != 2 || pool[0].ID != "d1" {
		t.Fatalf("expected d1 then d2, got %+v", pool)
	}
	if pool[0].Score < pool[1].Score {
		t.Fatalf("expected descending scores, got %+v", pool)
	}
}

func TestSearchAppliesFilters(t *testing.T) {
	repo := newSeededRepo(t)

	pool, err := repo.Search(context.Background(), "release faq specification", 10, &domain.FilterSet{
		Must: map[string][]string{"year": {"2023"}},
		Not:  map[string][]string{"type": {"faq"}},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(pool) != 1 || pool[0].ID != "d1" {
		t.Fatalf("expected only d1, got %+v", pool)
	}
}

func TestSearchShouldBoostReordersTies(t *testing.T) {
	repo := newSeededRepo(t)

	pool, err := repo.Search(context.Background(), "release", 10, &domain.FilterSet{
		Should: map[string][]string{"year": {"2024"}},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(pool) != 2 || pool[0].ID != "d2" {
		t.Fatalf("expected boosted d2 first, got %+v", pool)
	}
}

func TestSearchIgnoresUnsafeFilterKeys(t *testing.T) {
	repo := newSeededRepo(t)

	pool, err := repo.Search(context.Background(), "release", 10, &domain.FilterSet{
		Must: map[string][]string{"year') OR 1=1 --": {"x"}},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(pool) != 2 {
		t.Fatalf("expected unsafe key to be ignored, got %+v", pool)
	}
}

func TestSearchQuotesOperators(t *testing.T) {
	repo := newSeededRepo(t)

	pool, err := repo.Search(context.Background(), `release AND NOT "notes" (`, 10, nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(pool) == 0 {
		t.Fatalf("expected operator words to be searched as terms")
	}
}

func TestCheckTable(t *testing.T) {
	repo := newSeededRepo(t)
	if err := repo.CheckTable(context.Background()); err != nil {
		t.Fatalf("CheckTable() error = %v", err)
	}

	db, err := OpenDB(":memory:")
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	defer db.Close()
	if err := NewSearchRepository(db).CheckTable(context.Background()); !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected backend unavailable for missing table, got %v", err)
	}
}
