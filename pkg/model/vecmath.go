package model

import "math"

func sign(x float64) float64 {
	if x > 0 {
		return 1
	}
	if x < 0 {
		return -1
	}
	return 0
}

// normalize writes v/||v||_2 into out and returns the norm. A near-zero
// vector is copied unchanged with norm 1 so callers never divide by zero.
func normalize(v, out []float64) float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm < 1e-15 {
		copy(out, v)
		return 1
	}
	inv := 1 / norm
	for i, x := range v {
		out[i] = x * inv
	}
	return norm
}

// addProjected maps a gradient gn taken with respect to the normalized
// vector vn back to the raw vector, scaling by coeff:
//
//	out += coeff * (gn - (gn·vn) vn) / norm
func addProjected(gn, vn []float64, norm, coeff float64, out []float64) {
	dot := 0.0
	for i := range gn {
		dot += gn[i] * vn[i]
	}
	c := coeff / norm
	for i := range gn {
		out[i] += c * (gn[i] - dot*vn[i])
	}
}
