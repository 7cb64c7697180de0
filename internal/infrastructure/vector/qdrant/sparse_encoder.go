package qdrant

import (
	"hash/fnv"
	"math"
	"sort"

	"github.com/kirillkom/rag-query-rewriter/internal/core/similarity"
)

type sparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

func (v sparseVector) empty() bool {
	return len(v.Indices) == 0
}

const (
	queryBM25K     = 1.2
	maxSparseTerms = 256
)

// encodeSparseQuery hashes similarity tokens with FNV-1a. The sparse side of
// a hybrid collection must be indexed with the same hashing.
func encodeSparseQuery(query string) sparseVector {
	return termFreqToSparse(termFrequencies(query), queryBM25K)
}

func termFrequencies(text string) map[uint32]float64 {
	tf := make(map[uint32]float64, 32)
	for _, token := range similarity.Tokenize(text) {
		tf[hashToken(token)]++
	}
	return tf
}

// termFreqToSparse saturates term counts BM25-style. Indices are sorted and
// capped at maxSparseTerms.
func termFreqToSparse(tf map[uint32]float64, k float64) sparseVector {
	if len(tf) == 0 {
		return sparseVector{}
	}
	indices := make([]uint32, 0, len(tf))
	for idx := range tf {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	if len(indices) > maxSparseTerms {
		indices = indices[:maxSparseTerms]
	}

	values := make([]float32, 0, len(indices))
	for _, idx := range indices {
		count := tf[idx]
		weight := (count * (k + 1.0)) / (count + k)
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			weight = 0
		}
		values = append(values, float32(weight))
	}
	return sparseVector{Indices: indices, Values: values}
}

func hashToken(token string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	if sum := h.Sum32(); sum != 0 {
		return sum
	}
	return 1
}
