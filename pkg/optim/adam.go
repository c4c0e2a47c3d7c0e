// Package optim provides the sparse-row Adam optimizer used for embedding
// matrices: first and second moment rows are allocated lazily and only the
// rows touched by a step are updated.
package optim

import "math"

const (
	beta1 = 0.9
	beta2 = 0.999
	eps   = 1e-8
)

// Adam holds the optimizer state for one embedding matrix.
type Adam struct {
	lr  float64
	dim int

	m [][]float64
	v [][]float64
	t int64
}

// NewAdam creates an optimizer for a matrix of rows x dim parameters.
func NewAdam(rows int64, dim int, lr float64) *Adam {
	return &Adam{
		lr:  lr,
		dim: dim,
		m:   make([][]float64, rows),
		v:   make([][]float64, rows),
	}
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 { return a.lr }

// SetLR changes the learning rate (used for the warm-up decay schedule).
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// Steps returns the bias-correction step counter.
func (a *Adam) Steps() int64 { return a.t }

// Step applies one Adam update to the rows present in grads.
func (a *Adam) Step(params [][]float64, grads map[int64][]float64) {
	a.t++
	bc1 := 1.0 - math.Pow(beta1, float64(a.t))
	bc2 := 1.0 - math.Pow(beta2, float64(a.t))

	for row, g := range grads {
		if a.m[row] == nil {
			a.m[row] = make([]float64, a.dim)
			a.v[row] = make([]float64, a.dim)
		}
		m, v, p := a.m[row], a.v[row], params[row]
		for d := 0; d < a.dim; d++ {
			m[d] = beta1*m[d] + (1.0-beta1)*g[d]
			v[d] = beta2*v[d] + (1.0-beta2)*g[d]*g[d]
			mHat := m[d] / bc1
			vHat := v[d] / bc2
			p[d] -= a.lr * mHat / (math.Sqrt(vHat) + eps)
		}
	}
}

// State exposes the raw moment matrices and step counter for checkpointing.
// Unallocated rows are nil and deserialize as zeros.
func (a *Adam) State() (m, v [][]float64, t int64) {
	return a.m, a.v, a.t
}

// Restore replaces the optimizer state from a checkpoint.
func (a *Adam) Restore(m, v [][]float64, t int64) {
	a.m = m
	a.v = v
	a.t = t
}
