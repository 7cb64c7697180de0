// Package sqlite is a Retriever over an SQLite FTS5 table, using the pure Go
// modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
	"github.com/kirillkom/rag-query-rewriter/internal/core/similarity"
)

const shouldBoostScore = 0.1

var metadataKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SearchRepository queries an existing FTS5 table
//
//	rag_documents(id UNINDEXED, body, metadata UNINDEXED)
//
// where metadata holds a JSON object of string fields.
type SearchRepository struct {
	db *sql.DB
}

func NewSearchRepository(db *sql.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// CheckTable fails fast when rag_documents is missing.
func (r *SearchRepository) CheckTable(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `SELECT id, body, metadata FROM rag_documents LIMIT 0`)
	if err != nil {
		return domain.WrapError(domain.ErrBackendUnavailable, "check table", err)
	}
	return rows.Close()
}

// Search implements ports.Retriever with bm25 ranking. Filter keys that are
// not plain identifiers are ignored.
func (r *SearchRepository) Search(ctx context.Context, query string, topK int, filters *domain.FilterSet) (domain.ResultPool, error) {
	match := matchExpression(query)
	if match == "" || topK <= 0 {
		return domain.ResultPool{}, nil
	}

	var b queryBuilder
	b.args = append(b.args, match)
	var must, should, not map[string][]string
	if filters != nil {
		must, should, not = filters.Must, filters.Should, filters.Not
	}

	boost := b.shouldExpr(should)
	where := []string{"rag_documents MATCH ?"}
	for _, key := range sortedKeys(must) {
		if cond := b.inExpr(key, must[key]); cond != "" {
			where = append(where, cond)
		}
	}
	for _, key := range sortedKeys(not) {
		if cond := b.inExpr(key, not[key]); cond != "" {
			where = append(where, "NOT coalesce("+cond+", 0)")
		}
	}

	sqlQuery := fmt.Sprintf(`
SELECT id, body, -bm25(rag_documents) + %s AS score
FROM rag_documents
WHERE %s
ORDER BY score DESC, id
LIMIT ?`, boost, strings.Join(where, " AND "))
	// boost placeholders come before the MATCH argument in the statement.
	args := append(append([]any{}, b.boostArgs...), b.args...)
	args = append(args, topK)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, classifyQueryError(err)
	}
	defer rows.Close()

	out := make(domain.ResultPool, 0, topK)
	for rows.Next() {
		var res domain.SearchResult
		if err := rows.Scan(&res.ID, &res.Text, &res.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyQueryError(err)
	}
	return out, nil
}

type queryBuilder struct {
	args      []any
	boostArgs []any
}

func (b *queryBuilder) inExpr(key string, values []string) string {
	if !metadataKeyPattern.MatchString(key) || len(values) == 0 {
		return ""
	}
	placeholders := make([]string, 0, len(values))
	b.args = append(b.args, "$."+key)
	for _, v := range values {
		placeholders = append(placeholders, "?")
		b.args = append(b.args, strings.ToLower(strings.TrimSpace(v)))
	}
	return fmt.Sprintf("lower(json_extract(metadata, ?)) IN (%s)", strings.Join(placeholders, ", "))
}

func (b *queryBuilder) shouldExpr(should map[string][]string) string {
	terms := make([]string, 0, len(should))
	for _, key := range sortedKeys(should) {
		values := should[key]
		if !metadataKeyPattern.MatchString(key) || len(values) == 0 {
			continue
		}
		placeholders := make([]string, 0, len(values))
		b.boostArgs = append(b.boostArgs, "$."+key)
		for _, v := range values {
			placeholders = append(placeholders, "?")
			b.boostArgs = append(b.boostArgs, strings.ToLower(strings.TrimSpace(v)))
		}
		terms = append(terms, fmt.Sprintf("coalesce(lower(json_extract(metadata, ?)) IN (%s), 0)", strings.Join(placeholders, ", ")))
	}
	if len(terms) == 0 {
		return "0"
	}
	return fmt.Sprintf("%g * (%s)", shouldBoostScore, strings.Join(terms, " + "))
}

// matchExpression turns free text into an FTS5 OR query of quoted terms so
// user input never reaches the FTS5 query grammar.
func matchExpression(query string) string {
	tokens := similarity.Tokenize(query)
	terms := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " OR ")
}

func sortedKeys(m map[string][]string) []string {
	return (domain.FilterSet{Must: m}).Keys()
}

func classifyQueryError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.WrapError(domain.ErrBackendUnavailable, "sqlite search", err)
}
