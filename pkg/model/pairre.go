package model

import "math"

// pairRE scores a triple as gamma - ||h' ∘ r_h - t' ∘ r_t||_1 where h' and
// t' are the L2-normalized entity embeddings and the relation row packs
// r_h then r_t.
type pairRE struct {
	gamma float64
}

func (s *pairRE) score(h, r, t []float64) float64 {
	n := len(h)
	hn := make([]float64, n)
	tn := make([]float64, n)
	normalize(h, hn)
	normalize(t, tn)

	dist := 0.0
	for k := 0; k < n; k++ {
		dist += math.Abs(hn[k]*r[k] - tn[k]*r[n+k])
	}
	return s.gamma - dist
}

func (s *pairRE) grad(h, r, t []float64, coeff float64, gh, gr, gt []float64) {
	n := len(h)
	hn := make([]float64, n)
	tn := make([]float64, n)
	normH := normalize(h, hn)
	normT := normalize(t, tn)

	ghn := make([]float64, n)
	gtn := make([]float64, n)
	for k := 0; k < n; k++ {
		sg := sign(hn[k]*r[k] - tn[k]*r[n+k])
		ghn[k] = -sg * r[k]
		gtn[k] = sg * r[n+k]
		gr[k] -= coeff * sg * hn[k]
		gr[n+k] += coeff * sg * tn[k]
	}
	addProjected(ghn, hn, normH, coeff, gh)
	addProjected(gtn, tn, normT, coeff, gt)
}
