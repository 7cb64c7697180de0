package similarity

import "strings"

// Distinct returns the indexes of texts kept by greedy near-duplicate
// suppression. Blank texts are skipped. A text is kept only when its highest
// similarity to every already kept text is strictly below threshold.
func Distinct(texts []string, threshold float64) []int {
	live := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			live = append(live, i)
		}
	}
	if len(live) == 0 {
		return nil
	}

	compact := make([]string, len(live))
	for i, idx := range live {
		compact[i] = texts[idx]
	}
	index := Fit(compact)

	kept := make([]int, 0, len(live))
	for i := range compact {
		maxSim := 0.0
		for _, k := range kept {
			if s := index.Cosine(i, k); s > maxSim {
				maxSim = s
			}
		}
		if len(kept) == 0 || maxSim < threshold {
			kept = append(kept, i)
		}
	}

	out := make([]int, len(kept))
	for i, k := range kept {
		out[i] = live[k]
	}
	return out
}

// Dedup returns the texts kept by Distinct, in input order.
func Dedup(texts []string, threshold float64) []string {
	idx := Distinct(texts, threshold)
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, texts[i])
	}
	return out
}
