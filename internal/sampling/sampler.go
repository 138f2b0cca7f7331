// Package sampling implements weighted random selection without replacement.
package sampling

import "math/rand"

// jitterSpan is the width of the fresh random term added to every weight
// during selection.
const jitterSpan = 0.5

// Candidate is one weighted item in the selection pool.
type Candidate struct {
	Key    string
	Weight float64
}

// Pick selects min(k, len(pool)) distinct candidates, each drawn without
// replacement with probability proportional to its weight relative to the
// remaining pool.
//
// A fresh jitter in [0, jitterSpan) is added to each weight both when the
// pool total is computed and again when individual candidates are compared.
// The two draws are intentionally independent: the extra entropy keeps
// low-weight candidates in play and makes repeat runs diverge. Callers that
// need reproducibility must seed rng and accept that only statistical
// tendencies are stable.
func Pick(rng *rand.Rand, pool []Candidate, k int) []Candidate {
	if k >= len(pool) {
		out := make([]Candidate, len(pool))
		copy(out, pool)
		return out
	}

	remaining := make([]Candidate, len(pool))
	copy(remaining, pool)

	selected := make([]Candidate, 0, k)
	for len(selected) < k && len(remaining) > 0 {
		total := 0.0
		for _, c := range remaining {
			total += c.Weight + rng.Float64()*jitterSpan
		}

		target := rng.Float64() * total
		idx := len(remaining) - 1
		acc := 0.0
		for i, c := range remaining {
			acc += c.Weight + rng.Float64()*jitterSpan
			if acc >= target {
				idx = i
				break
			}
		}

		selected = append(selected, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return selected
}
