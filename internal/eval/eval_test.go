package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgembed/compounde3d/pkg/kg"
	"github.com/kgembed/compounde3d/pkg/model"
)

// fixtureGraph has four entities and one relation, with hand-set TransE
// embeddings so that (e0, r, e1) ranks first on both sides and
// (e2, r, e3) ranks fourth on both sides under full filtered ranking.
func fixtureGraph(t *testing.T) (*model.Model, *kg.KnowledgeGraph) {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"train.txt": "e0\tr\te1\ne2\tr\te3\n",
		"valid.txt": "",
		"test.txt":  "e0\tr\te1\ne2\tr\te3\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	g, err := kg.Load(dir)
	require.NoError(t, err)

	m, err := model.New(model.Config{
		Name: model.NameTransE, NumEntities: g.NumEntities, NumRelations: g.NumRelations,
		HiddenDim: 2, Gamma: 4,
	})
	require.NoError(t, err)

	m.Entity[0] = []float64{0, 0}
	m.Entity[1] = []float64{0.5, 0}
	m.Entity[2] = []float64{1, 0}
	m.Entity[3] = []float64{0, 1}
	m.Relation[0] = []float64{0.5, 0}
	return m, g
}

func TestEvaluateFullRanking(t *testing.T) {
	m, g := fixtureGraph(t)

	metrics, err := Evaluate(m, g, g.Test, Config{FullRanking: true, Workers: 2, BatchSize: 1})
	require.NoError(t, err)

	// Ranks are [1, 1] for (e0, r, e1) and [4, 4] for (e2, r, e3).
	assert.Equal(t, 4, metrics.Count)
	assert.InDelta(t, (1.0+1.0+0.25+0.25)/4, metrics.MRR, 1e-9)
	assert.InDelta(t, 0.5, metrics.Hits1, 1e-9)
	assert.InDelta(t, 0.5, metrics.Hits3, 1e-9)
	assert.InDelta(t, 1.0, metrics.Hits10, 1e-9)
}

func TestEvaluateSampled(t *testing.T) {
	m, g := fixtureGraph(t)

	metrics, err := Evaluate(m, g, g.Test, Config{NegativeSize: 20, Workers: 1, Seed: 11})
	require.NoError(t, err)

	assert.Equal(t, 4, metrics.Count)
	assert.Greater(t, metrics.MRR, 0.0)
	assert.LessOrEqual(t, metrics.MRR, 1.0)
	assert.GreaterOrEqual(t, metrics.Hits10, metrics.Hits3)
	assert.GreaterOrEqual(t, metrics.Hits3, metrics.Hits1)
}

func TestEvaluateEmptySplit(t *testing.T) {
	m, g := fixtureGraph(t)
	_, err := Evaluate(m, g, nil, Config{FullRanking: true})
	require.Error(t, err)
}

func TestEvaluateSampledRequiresNegativeSize(t *testing.T) {
	m, g := fixtureGraph(t)
	_, err := Evaluate(m, g, g.Test, Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative size")
}
