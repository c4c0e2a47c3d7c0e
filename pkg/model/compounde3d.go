package model

import "math"

// compoundE3D implements CompoundE3D_Complete_Mix_T_H: the head is
// translated and the tail is transformed by a full 3x3 shear applied to
// each 3D slice of its embedding:
//
//	score = gamma - ||h + b - S·t||_1
//
// The relation row packs [translation, shear block A, shear block B];
// block A holds (s_yx, s_zx, s_xy) and block B (s_zy, s_xz, s_yz), each a
// per-slice coefficient vector of length hidden/3.
type compoundE3D struct {
	gamma float64
}

func (s *compoundE3D) score(h, r, t []float64) float64 {
	n := len(h)
	m := n / 3
	dist := 0.0
	for i := 0; i < m; i++ {
		shYX := r[n+i]
		shZX := r[n+m+i]
		shXY := r[n+2*m+i]
		shZY := r[2*n+i]
		shXZ := r[2*n+m+i]
		shYZ := r[2*n+2*m+i]

		t0, t1, t2 := t[3*i], t[3*i+1], t[3*i+2]
		c0 := t0 + shYX*t1 + shZX*t2
		c1 := shXY*t0 + t1 + shZY*t2
		c2 := shXZ*t0 + shYZ*t1 + t2

		dist += math.Abs(h[3*i]+r[3*i]-c0) +
			math.Abs(h[3*i+1]+r[3*i+1]-c1) +
			math.Abs(h[3*i+2]+r[3*i+2]-c2)
	}
	return s.gamma - dist
}

func (s *compoundE3D) grad(h, r, t []float64, coeff float64, gh, gr, gt []float64) {
	n := len(h)
	m := n / 3
	for i := 0; i < m; i++ {
		shYX := r[n+i]
		shZX := r[n+m+i]
		shXY := r[n+2*m+i]
		shZY := r[2*n+i]
		shXZ := r[2*n+m+i]
		shYZ := r[2*n+2*m+i]

		t0, t1, t2 := t[3*i], t[3*i+1], t[3*i+2]
		c0 := t0 + shYX*t1 + shZX*t2
		c1 := shXY*t0 + t1 + shZY*t2
		c2 := shXZ*t0 + shYZ*t1 + t2

		sg0 := sign(h[3*i] + r[3*i] - c0)
		sg1 := sign(h[3*i+1] + r[3*i+1] - c1)
		sg2 := sign(h[3*i+2] + r[3*i+2] - c2)

		gh[3*i] -= coeff * sg0
		gh[3*i+1] -= coeff * sg1
		gh[3*i+2] -= coeff * sg2
		gr[3*i] -= coeff * sg0
		gr[3*i+1] -= coeff * sg1
		gr[3*i+2] -= coeff * sg2

		// dScore/dC_k = +sign(u_k); push through the shear transpose.
		gt[3*i] += coeff * (sg0 + sg1*shXY + sg2*shXZ)
		gt[3*i+1] += coeff * (sg0*shYX + sg1 + sg2*shYZ)
		gt[3*i+2] += coeff * (sg0*shZX + sg1*shZY + sg2)

		gr[n+i] += coeff * sg0 * t1
		gr[n+m+i] += coeff * sg0 * t2
		gr[n+2*m+i] += coeff * sg1 * t0
		gr[2*n+i] += coeff * sg1 * t2
		gr[2*n+m+i] += coeff * sg2 * t0
		gr[2*n+2*m+i] += coeff * sg2 * t1
	}
}
