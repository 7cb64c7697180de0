package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

const (
	DefaultTable     = "rag_documents"
	DefaultTSConfig  = "simple"
	shouldBoostScore = 0.1
)

// SearchRepository runs full-text queries against an existing table with
// columns (id TEXT, body TEXT, metadata JSONB, tsv TSVECTOR).
type SearchRepository struct {
	db       *sql.DB
	table    string
	tsConfig string
}

func NewSearchRepository(db *sql.DB, table, tsConfig string) *SearchRepository {
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	if strings.TrimSpace(tsConfig) == "" {
		tsConfig = DefaultTSConfig
	}
	return &SearchRepository{
		db:       db,
		table:    pgx.Identifier{table}.Sanitize(),
		tsConfig: tsConfig,
	}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// CheckTable fails fast when the configured table is missing or lacks the
// expected columns. It reads no rows.
func (r *SearchRepository) CheckTable(ctx context.Context) error {
	query := fmt.Sprintf(`SELECT id, body, metadata, tsv FROM %s LIMIT 0`, r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return classifyQueryError("check table", err)
	}
	return rows.Close()
}

// Search implements ports.Retriever. Filter values are compared
// case-insensitively against metadata fields.
func (r *SearchRepository) Search(ctx context.Context, query string, topK int, filters *domain.FilterSet) (domain.ResultPool, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return domain.ResultPool{}, nil
	}

	var must, should, not map[string][]string
	if filters != nil {
		must, should, not = filters.Must, filters.Should, filters.Not
	}

	sqlQuery := fmt.Sprintf(`
SELECT d.id, d.body,
	ts_rank_cd(d.tsv, q) + $6 * (
		SELECT count(*) FROM jsonb_each($5::jsonb) s(k, vals)
		WHERE coalesce(vals ? lower(d.metadata->>s.k), false)
	) AS score
FROM %s d, websearch_to_tsquery($2::regconfig, $1) q
WHERE d.tsv @@ q
	AND NOT EXISTS (
		SELECT 1 FROM jsonb_each($3::jsonb) m(k, vals)
		WHERE NOT coalesce(vals ? lower(d.metadata->>m.k), false)
	)
	AND NOT EXISTS (
		SELECT 1 FROM jsonb_each($4::jsonb) n(k, vals)
		WHERE coalesce(vals ? lower(d.metadata->>n.k), false)
	)
ORDER BY score DESC, d.id
LIMIT $7
`, r.table)

	rows, err := r.db.QueryContext(ctx, sqlQuery,
		query, r.tsConfig, partitionJSON(must), partitionJSON(not), partitionJSON(should), shouldBoostScore, topK,
	)
	if err != nil {
		return nil, classifyQueryError("postgres search", err)
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
		return nil, classifyQueryError("postgres search", err)
	}
	return out, nil
}

// partitionJSON encodes a filter partition with lowercased values.
func partitionJSON(part map[string][]string) string {
	lowered := make(map[string][]string, len(part))
	for key, values := range part {
		if len(values) == 0 {
			continue
		}
		vs := make([]string, 0, len(values))
		for _, v := range values {
			vs = append(vs, strings.ToLower(strings.TrimSpace(v)))
		}
		lowered[key] = vs
	}
	raw, _ := json.Marshal(lowered)
	return string(raw)
}

func classifyQueryError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return domain.WrapError(domain.ErrBackendUnavailable, operation, err)
}
