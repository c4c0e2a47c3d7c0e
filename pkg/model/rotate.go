package model

import "math"

// rotatE models a relation as an element-wise rotation in the complex
// plane: h ∘ r ≈ t. Entities are complex-valued ([re..., im...]); relation
// rows store raw values that are mapped to phases in [-pi, pi] by
// phaseScale, so the rotation is always unit-modulus by construction.
type rotatE struct {
	gamma      float64
	phaseScale float64
}

func (s *rotatE) score(h, r, t []float64) float64 {
	n := len(r)
	dist := 0.0
	for k := 0; k < n; k++ {
		reH, imH := h[k], h[n+k]
		reT, imT := t[k], t[n+k]
		theta := r[k] * s.phaseScale
		reR, imR := math.Cos(theta), math.Sin(theta)

		ure := reH*reR - imH*imR - reT
		uim := reH*imR + imH*reR - imT
		dist += math.Hypot(ure, uim)
	}
	return s.gamma - dist
}

func (s *rotatE) grad(h, r, t []float64, coeff float64, gh, gr, gt []float64) {
	n := len(r)
	for k := 0; k < n; k++ {
		reH, imH := h[k], h[n+k]
		reT, imT := t[k], t[n+k]
		theta := r[k] * s.phaseScale
		reR, imR := math.Cos(theta), math.Sin(theta)

		ure := reH*reR - imH*imR - reT
		uim := reH*imR + imH*reR - imT
		d := math.Hypot(ure, uim)
		if d < 1e-12 {
			continue
		}
		duRe := -ure / d
		duIm := -uim / d

		gh[k] += coeff * (duRe*reR + duIm*imR)
		gh[n+k] += coeff * (-duRe*imR + duIm*reR)
		gt[k] -= coeff * duRe
		gt[n+k] -= coeff * duIm

		dTheta := duRe*(-reH*imR-imH*reR) + duIm*(reH*reR-imH*imR)
		gr[k] += coeff * dTheta * s.phaseScale
	}
}
