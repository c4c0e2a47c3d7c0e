package model

// distMult scores a triple as the trilinear product <h, r, t>.
type distMult struct{}

func (s *distMult) score(h, r, t []float64) float64 {
	sum := 0.0
	for d := range h {
		sum += h[d] * r[d] * t[d]
	}
	return sum
}

func (s *distMult) grad(h, r, t []float64, coeff float64, gh, gr, gt []float64) {
	for d := range h {
		gh[d] += coeff * r[d] * t[d]
		gr[d] += coeff * h[d] * t[d]
		gt[d] += coeff * h[d] * r[d]
	}
}
