// Package memory is an in-process Retriever backed by a mem-only bleve index.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/kirillkom/rag-query-rewriter/internal/core/domain"
)

// shouldBoost is added per satisfied should filter.
const shouldBoost = 0.1

type indexedDoc struct {
	Text string `json:"text"`
}

type Index struct {
	index bleve.Index
	docs  map[string]Document
	order []string
}

func NewIndex(docs []Document) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}

	batch := idx.NewBatch()
	byID := make(map[string]Document, len(docs))
	order := make([]string, 0, len(docs))
	for _, doc := range docs {
		if err := batch.Index(doc.ID, indexedDoc{Text: doc.Text}); err != nil {
			return nil, fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
		byID[doc.ID] = doc
		order = append(order, doc.ID)
	}
	if err := idx.Batch(batch); err != nil {
		return nil, fmt.Errorf("index corpus: %w", err)
	}
	return &Index{index: idx, docs: byID, order: order}, nil
}

func buildIndexMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = "en"
	textField.Store = false
	docMapping.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Search scores query against documents that pass filters. Must and not
// partitions restrict the candidate set before scoring; should hits add a
// small boost.
func (i *Index) Search(ctx context.Context, query string, topK int, filters *domain.FilterSet) (domain.ResultPool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return domain.ResultPool{}, nil
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("text")
	var q blevequery.Query = match

	if filters != nil && (len(filters.Must) > 0 || len(filters.Not) > 0) {
		allowed := i.allowedIDs(*filters)
		if len(allowed) == 0 {
			return domain.ResultPool{}, nil
		}
		q = bleve.NewConjunctionQuery(match, bleve.NewDocIDQuery(allowed))
	}

	req := bleve.NewSearchRequestOptions(q, len(i.docs), 0, false)
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "memory search", err)
	}

	out := make(domain.ResultPool, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, ok := i.docs[hit.ID]
		if !ok {
			continue
		}
		score := hit.Score
		if filters != nil {
			score += shouldBoost * float64(filters.ShouldHits(doc.Metadata))
		}
		out = append(out, domain.SearchResult{ID: doc.ID, Score: score, Text: doc.Text})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (i *Index) allowedIDs(filters domain.FilterSet) []string {
	out := make([]string, 0, len(i.order))
	for _, id := range i.order {
		if filters.Matches(i.docs[id].Metadata) {
			out = append(out, id)
		}
	}
	return out
}

func (i *Index) Len() int {
	return len(i.docs)
}

func (i *Index) Close() error {
	return i.index.Close()
}
