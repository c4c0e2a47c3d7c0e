package model

import "math"

// rotatEv2 rotates both sides: h ∘ r_h ≈ t ∘ r_t. The relation row packs
// the head-side phases in its first half and the tail-side phases in its
// second half.
type rotatEv2 struct {
	gamma      float64
	phaseScale float64
}

func (s *rotatEv2) score(h, r, t []float64) float64 {
	n := len(h) / 2
	dist := 0.0
	for k := 0; k < n; k++ {
		reH, imH := h[k], h[n+k]
		reT, imT := t[k], t[n+k]

		thetaH := r[k] * s.phaseScale
		thetaT := r[n+k] * s.phaseScale
		reRH, imRH := math.Cos(thetaH), math.Sin(thetaH)
		reRT, imRT := math.Cos(thetaT), math.Sin(thetaT)

		ure := (reH*reRH - imH*imRH) - (reT*reRT - imT*imRT)
		uim := (reH*imRH + imH*reRH) - (reT*imRT + imT*reRT)
		dist += math.Hypot(ure, uim)
	}
	return s.gamma - dist
}

func (s *rotatEv2) grad(h, r, t []float64, coeff float64, gh, gr, gt []float64) {
	n := len(h) / 2
	for k := 0; k < n; k++ {
		reH, imH := h[k], h[n+k]
		reT, imT := t[k], t[n+k]

		thetaH := r[k] * s.phaseScale
		thetaT := r[n+k] * s.phaseScale
		reRH, imRH := math.Cos(thetaH), math.Sin(thetaH)
		reRT, imRT := math.Cos(thetaT), math.Sin(thetaT)

		ure := (reH*reRH - imH*imRH) - (reT*reRT - imT*imRT)
		uim := (reH*imRH + imH*reRH) - (reT*imRT + imT*reRT)
		d := math.Hypot(ure, uim)
		if d < 1e-12 {
			continue
		}
		duRe := -ure / d
		duIm := -uim / d

		gh[k] += coeff * (duRe*reRH + duIm*imRH)
		gh[n+k] += coeff * (-duRe*imRH + duIm*reRH)
		gt[k] -= coeff * (duRe*reRT + duIm*imRT)
		gt[n+k] += coeff * (duRe*imRT - duIm*reRT)

		dThetaH := duRe*(-reH*imRH-imH*reRH) + duIm*(reH*reRH-imH*imRH)
		dThetaT := duRe*(reT*imRT+imT*reRT) - duIm*(reT*reRT-imT*imRT)
		gr[k] += coeff * dThetaH * s.phaseScale
		gr[n+k] += coeff * dThetaT * s.phaseScale
	}
}
