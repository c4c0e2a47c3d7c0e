package model

import "math"

// transE scores a triple as gamma - ||h + r - t||_1.
type transE struct {
	gamma float64
}

func (s *transE) score(h, r, t []float64) float64 {
	dist := 0.0
	for d := range h {
		dist += math.Abs(h[d] + r[d] - t[d])
	}
	return s.gamma - dist
}

func (s *transE) grad(h, r, t []float64, coeff float64, gh, gr, gt []float64) {
	for d := range h {
		sg := sign(h[d] + r[d] - t[d])
		gh[d] -= coeff * sg
		gr[d] -= coeff * sg
		gt[d] += coeff * sg
	}
}
