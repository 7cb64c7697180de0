// Package similarity scores text pairs with TF-IDF cosine similarity.
package similarity

import (
	"math"
	"strings"
	"unicode"
)

const minTokenRunes = 2

type vector map[string]float64

// Index holds L2-normalised TF-IDF vectors for a fixed text set.
// It is read-only after Fit and safe for concurrent reads.
type Index struct {
	vectors []vector
}

// Fit builds an index over unigram and bigram features with smoothed IDF.
func Fit(texts []string) *Index {
	counts := make([]map[string]int, len(texts))
	docFreq := make(map[string]int)
	for i, text := range texts {
		terms := termCounts(text)
		counts[i] = terms
		for term := range terms {
			docFreq[term]++
		}
	}

	n := float64(len(texts))
	idf := make(map[string]float64, len(docFreq))
	for term, df := range docFreq {
		idf[term] = math.Log((1+n)/(1+float64(df))) + 1
	}

	vectors := make([]vector, len(texts))
	for i, terms := range counts {
		vec := make(vector, len(terms))
		var norm float64
		for term, tf := range terms {
			w := float64(tf) * idf[term]
			vec[term] = w
			norm += w * w
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for term := range vec {
				vec[term] /= norm
			}
		}
		vectors[i] = vec
	}
	return &Index{vectors: vectors}
}

func (ix *Index) Len() int {
	return len(ix.vectors)
}

// Cosine returns the similarity of texts i and j. Empty vectors score 0.
func (ix *Index) Cosine(i, j int) float64 {
	a, b := ix.vectors[i], ix.vectors[j]
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot float64
	for term, w := range a {
		dot += w * b[term]
	}
	return sanitize(dot)
}

// Similarities returns the cosine of text i against every indexed text.
func (ix *Index) Similarities(i int) []float64 {
	out := make([]float64, len(ix.vectors))
	for j := range ix.vectors {
		out[j] = ix.Cosine(i, j)
	}
	return out
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func termCounts(text string) map[string]int {
	tokens := Tokenize(text)
	out := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		out[tok]++
		if i > 0 {
			out[tokens[i-1]+" "+tok]++
		}
	}
	return out
}

// Tokenize lowercases text and returns runs of letters, digits and
// underscores that are at least two runes long.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	out := make([]string, 0, 16)
	var b strings.Builder
	runes := 0
	flush := func() {
		if runes >= minTokenRunes {
			out = append(out, b.String())
		}
		b.Reset()
		runes = 0
	}
	for _, r := range text {
		if isWordRune(r) {
			b.WriteRune(unicode.ToLower(r))
			runes++
			continue
		}
		flush()
	}
	flush()
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
