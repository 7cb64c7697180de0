package fusion

import (
	"math"

	"github.com/kirillkom/rag-query-rewriter/internal/core/similarity"
)

const (
	DefaultMMRLambda = 0.7
	DefaultMMRTopK   = 8
)

// SelectMMR picks up to topk document indexes by Maximal Marginal Relevance.
// The first pick is the most query-similar document; later picks maximise
// lambda*sim(q,d) - (1-lambda)*max sim(d,selected). Ties go to the lower index.
func SelectMMR(query string, docs []string, topk int, lambda float64) []int {
	if topk <= 0 || len(docs) == 0 {
		return []int{}
	}
	if topk > len(docs) {
		topk = len(docs)
	}

	texts := make([]string, 0, len(docs)+1)
	texts = append(texts, query)
	texts = append(texts, docs...)
	index := similarity.Fit(texts)

	n := len(docs)
	simQD := make([]float64, n)
	simDD := make([][]float64, n)
	for i := 0; i < n; i++ {
		simQD[i] = finite(index.Cosine(0, i+1))
		simDD[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			simDD[i][j] = finite(index.Cosine(i+1, j+1))
		}
	}

	selected := make([]int, 0, topk)
	taken := make([]bool, n)
	// maxToSelected[i] tracks max sim(i, s) over the current selection.
	maxToSelected := make([]float64, n)

	for len(selected) < topk {
		best := -1
		bestScore := math.Inf(-1)
		for i := 0; i < n; i++ {
			if taken[i] {
				continue
			}
			score := simQD[i]
			if len(selected) > 0 {
				score = lambda*simQD[i] - (1-lambda)*maxToSelected[i]
			}
			if best == -1 || score > bestScore {
				best = i
				bestScore = score
			}
		}
		if best == -1 {
			break
		}

		taken[best] = true
		selected = append(selected, best)
		for i := 0; i < n; i++ {
			if !taken[i] && (len(selected) == 1 || simDD[i][best] > maxToSelected[i]) {
				maxToSelected[i] = simDD[i][best]
			}
		}
	}
	return selected
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
