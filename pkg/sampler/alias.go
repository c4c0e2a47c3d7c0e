package sampler

import (
	"math"
	"math/rand"
)

// AliasTable supports O(1) weighted sampling via Walker's alias method.
type AliasTable struct {
	alias []int64
	prob  []float64
}

// NewAliasTable builds an alias table over the given distribution, with an
// optional power transform (0.75 gives the word2vec-style smoothed
// frequency distribution). Zero or negative weights are excluded.
func NewAliasTable(distribution []float64, power float64) *AliasTable {
	n := len(distribution)
	at := &AliasTable{
		alias: make([]int64, n),
		prob:  make([]float64, n),
	}
	if n == 0 {
		return at
	}

	sum := 0.0
	norm := make([]float64, n)
	for i, w := range distribution {
		if w > 0 {
			norm[i] = math.Pow(w, power)
		}
		sum += norm[i]
	}

	if sum == 0 {
		for i := range at.prob {
			at.prob[i] = 1.0
			at.alias[i] = int64(i)
		}
		return at
	}

	for i := range norm {
		norm[i] = norm[i] * float64(n) / sum
	}

	// Vose's construction.
	small := make([]int, 0, n)
	large := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if norm[i] < 1.0 {
			small = append(small, i)
		} else {
			large = append(large, i)
		}
	}

	for len(small) > 0 && len(large) > 0 {
		l := small[len(small)-1]
		small = small[:len(small)-1]

		g := large[len(large)-1]
		large = large[:len(large)-1]

		at.prob[l] = norm[l]
		at.alias[l] = int64(g)

		norm[g] = norm[g] + norm[l] - 1.0
		if norm[g] < 1.0 {
			small = append(small, g)
		} else {
			large = append(large, g)
		}
	}

	for len(large) > 0 {
		g := large[len(large)-1]
		large = large[:len(large)-1]
		at.prob[g] = 1.0
		at.alias[g] = int64(g)
	}
	for len(small) > 0 {
		l := small[len(small)-1]
		small = small[:len(small)-1]
		at.prob[l] = 1.0
		at.alias[l] = int64(l)
	}

	return at
}

// Sample draws one index from the table.
func (at *AliasTable) Sample(rng *rand.Rand) int64 {
	if len(at.prob) == 0 {
		return -1
	}
	i := rng.Intn(len(at.prob))
	if rng.Float64() < at.prob[i] {
		return int64(i)
	}
	return at.alias[i]
}
