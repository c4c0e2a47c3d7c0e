package model

// complEx scores a triple as Re(<h, r, conj(t)>) over complex-valued
// embeddings stored as [real components..., imaginary components...].
type complEx struct{}

func (s *complEx) score(h, r, t []float64) float64 {
	n := len(h) / 2
	sum := 0.0
	for k := 0; k < n; k++ {
		reH, imH := h[k], h[n+k]
		reR, imR := r[k], r[n+k]
		reT, imT := t[k], t[n+k]

		reScore := reH*reR - imH*imR
		imScore := reH*imR + imH*reR
		sum += reScore*reT + imScore*imT
	}
	return sum
}

func (s *complEx) grad(h, r, t []float64, coeff float64, gh, gr, gt []float64) {
	n := len(h) / 2
	for k := 0; k < n; k++ {
		reH, imH := h[k], h[n+k]
		reR, imR := r[k], r[n+k]
		reT, imT := t[k], t[n+k]

		gh[k] += coeff * (reR*reT + imR*imT)
		gh[n+k] += coeff * (-imR*reT + reR*imT)
		gr[k] += coeff * (reH*reT + imH*imT)
		gr[n+k] += coeff * (-imH*reT + reH*imT)
		gt[k] += coeff * (reH*reR - imH*imR)
		gt[n+k] += coeff * (reH*imR + imH*reR)
	}
}
