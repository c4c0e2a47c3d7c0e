package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstStepMovesBySignedLearningRate(t *testing.T) {
	a := NewAdam(2, 3, 0.1)
	params := [][]float64{{0, 0, 0}, {0, 0, 0}}
	grads := map[int64][]float64{0: {1.0, -2.0, 0.5}}

	a.Step(params, grads)

	// With bias correction, the first update is lr * g / (|g| + eps),
	// which is lr * sign(g) up to eps.
	assert.InDelta(t, -0.1, params[0][0], 1e-6)
	assert.InDelta(t, 0.1, params[0][1], 1e-6)
	assert.InDelta(t, -0.1, params[0][2], 1e-6)
	assert.Equal(t, []float64{0, 0, 0}, params[1])
}

func TestLazyRowAllocation(t *testing.T) {
	a := NewAdam(4, 2, 0.01)
	params := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}

	a.Step(params, map[int64][]float64{2: {0.5, 0.5}})

	m, v, steps := a.State()
	assert.Equal(t, int64(1), steps)
	assert.Nil(t, m[0])
	assert.Nil(t, v[3])
	require.NotNil(t, m[2])
	require.NotNil(t, v[2])
}

func TestConvergesOnQuadratic(t *testing.T) {
	a := NewAdam(1, 1, 0.1)
	params := [][]float64{{10.0}}

	// Minimize (x - 3)^2.
	for i := 0; i < 1000; i++ {
		g := 2 * (params[0][0] - 3)
		a.Step(params, map[int64][]float64{0: {g}})
	}
	assert.InDelta(t, 3.0, params[0][0], 0.05)
}

func TestRestoreResumesState(t *testing.T) {
	a := NewAdam(2, 2, 0.05)
	params := [][]float64{{1, 1}, {2, 2}}
	grads := map[int64][]float64{0: {0.3, -0.3}, 1: {0.1, 0.1}}
	for i := 0; i < 5; i++ {
		a.Step(params, grads)
	}

	m, v, steps := a.State()
	restored := NewAdam(2, 2, 0.05)
	restored.Restore(cloneMatrix(m), cloneMatrix(v), steps)

	paramsA := [][]float64{
		append([]float64(nil), params[0]...),
		append([]float64(nil), params[1]...),
	}
	paramsB := [][]float64{
		append([]float64(nil), params[0]...),
		append([]float64(nil), params[1]...),
	}

	// The restored optimizer produces the same next update.
	a.Step(paramsA, grads)
	restored.Step(paramsB, grads)
	for i := range paramsA {
		for d := range paramsA[i] {
			assert.InDelta(t, paramsA[i][d], paramsB[i][d], 1e-12)
		}
	}
	assert.Equal(t, a.Steps(), restored.Steps())
}

func TestSetLR(t *testing.T) {
	a := NewAdam(1, 1, 0.1)
	assert.Equal(t, 0.1, a.LR())
	a.SetLR(0.01)
	assert.InDelta(t, 0.01, a.LR(), 1e-15)

	// A tenth of the learning rate gives a tenth of the first step.
	params := [][]float64{{0}}
	a.Step(params, map[int64][]float64{0: {1}})
	assert.InDelta(t, -0.01, params[0][0], 1e-7)
}

func cloneMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		if row == nil {
			continue
		}
		out[i] = append([]float64(nil), row...)
	}
	return out
}
