package model

import "math"

// compoundE applies a compound rotation, translation and scaling to the
// normalized tail and measures the L1 distance to the normalized head:
//
//	score = gamma - ||h' - s ∘ (R(θ)·t' + b)||_1
//
// The relation row packs [scale, translation, phases]; only the first half
// of the phase block is used, each phase rotating one 2D slice of the tail.
type compoundE struct {
	gamma      float64
	phaseScale float64
}

func (s *compoundE) score(h, r, t []float64) float64 {
	n := len(h)
	hn := make([]float64, n)
	tn := make([]float64, n)
	normalize(h, hn)
	normalize(t, tn)

	dist := 0.0
	for i := 0; i < n/2; i++ {
		theta := r[2*n+i] * s.phaseScale
		re, im := math.Cos(theta), math.Sin(theta)
		a, b := tn[2*i], tn[2*i+1]

		rot0 := re*a - im*b
		rot1 := im*a + re*b

		k0, k1 := 2*i, 2*i+1
		u0 := hn[k0] - r[k0]*(rot0+r[n+k0])
		u1 := hn[k1] - r[k1]*(rot1+r[n+k1])
		dist += math.Abs(u0) + math.Abs(u1)
	}
	return s.gamma - dist
}

func (s *compoundE) grad(h, r, t []float64, coeff float64, gh, gr, gt []float64) {
	n := len(h)
	hn := make([]float64, n)
	tn := make([]float64, n)
	normH := normalize(h, hn)
	normT := normalize(t, tn)

	ghn := make([]float64, n)
	gtn := make([]float64, n)
	for i := 0; i < n/2; i++ {
		theta := r[2*n+i] * s.phaseScale
		re, im := math.Cos(theta), math.Sin(theta)
		a, b := tn[2*i], tn[2*i+1]

		rot0 := re*a - im*b
		rot1 := im*a + re*b

		k0, k1 := 2*i, 2*i+1
		t10 := rot0 + r[n+k0]
		t11 := rot1 + r[n+k1]
		sg0 := sign(hn[k0] - r[k0]*t10)
		sg1 := sign(hn[k1] - r[k1]*t11)

		ghn[k0] = -sg0
		ghn[k1] = -sg1

		// scale and translation blocks
		gr[k0] += coeff * sg0 * t10
		gr[k1] += coeff * sg1 * t11
		gr[n+k0] += coeff * sg0 * r[k0]
		gr[n+k1] += coeff * sg1 * r[k1]

		// back through the rotation
		q0 := sg0 * r[k0]
		q1 := sg1 * r[k1]
		gtn[k0] = q0*re + q1*im
		gtn[k1] = -q0*im + q1*re

		dTheta := q0*(-im*a-re*b) + q1*(re*a-im*b)
		gr[2*n+i] += coeff * dTheta * s.phaseScale
	}
	addProjected(ghn, hn, normH, coeff, gh)
	addProjected(gtn, tn, normT, coeff, gt)
}
