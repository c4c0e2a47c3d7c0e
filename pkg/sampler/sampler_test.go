package sampler

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgembed/compounde3d/pkg/kg"
)

// chainGraph builds a small dataset where entity i links to i+1.
func chainGraph(t *testing.T, n int) *kg.KnowledgeGraph {
	t.Helper()
	dir := t.TempDir()
	train := ""
	for i := 0; i < n-1; i++ {
		train += fmt.Sprintf("e%d\tr\te%d\n", i, i+1)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.txt"), []byte(train), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "valid.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.txt"), nil, 0o644))

	g, err := kg.Load(dir)
	require.NoError(t, err)
	return g
}

func TestTrainIteratorBatchShape(t *testing.T) {
	g := chainGraph(t, 10)
	it := NewTrainIterator(g, Config{BatchSize: 16, NegativeSize: 8, Workers: 2, Seed: 1})
	defer it.Close()

	for i := 0; i < 5; i++ {
		b := it.Next()
		require.Len(t, b.Positives, 16)
		require.Len(t, b.Negatives, 16)
		require.Len(t, b.Weights, 16)
		for j := range b.Positives {
			assert.Len(t, b.Negatives[j], 8)
			assert.Greater(t, b.Weights[j], 0.0)
			for _, e := range b.Negatives[j] {
				assert.GreaterOrEqual(t, e, int64(0))
				assert.Less(t, e, g.NumEntities)
			}
		}
	}
}

func TestTrainIteratorAlternatesModesStrictly(t *testing.T) {
	g := chainGraph(t, 10)
	// Several workers: the consumed stream must still alternate one for
	// one, not just balance out on average.
	it := NewTrainIterator(g, Config{BatchSize: 4, NegativeSize: 2, Workers: 4, Seed: 1})
	defer it.Close()

	for i := 0; i < 40; i++ {
		want := HeadBatch
		if i%2 == 1 {
			want = TailBatch
		}
		assert.Equal(t, want, it.Next().Mode, "batch %d", i)
	}
}

func TestTrainIteratorFiltersFalseNegatives(t *testing.T) {
	g := chainGraph(t, 10)
	it := NewTrainIterator(g, Config{
		BatchSize:            32,
		NegativeSize:         8,
		Workers:              1,
		FilterFalseNegatives: true,
		Seed:                 3,
	})
	defer it.Close()

	for i := 0; i < 20; i++ {
		b := it.Next()
		for j, pos := range b.Positives {
			for _, e := range b.Negatives[j] {
				corrupted := pos
				if b.Mode == HeadBatch {
					corrupted.Head = e
				} else {
					corrupted.Tail = e
				}
				assert.False(t, g.IsKnown(corrupted), "negative %v forms a known triple", corrupted)
			}
		}
	}
}

func TestCloseStopsWorkers(t *testing.T) {
	g := chainGraph(t, 10)
	it := NewTrainIterator(g, Config{BatchSize: 4, NegativeSize: 2, Workers: 4, Seed: 1})
	it.Next()
	it.Close() // must not deadlock
}

func TestAliasTableMatchesDistribution(t *testing.T) {
	dist := []float64{1, 2, 3, 4}
	at := NewAliasTable(dist, 1.0)
	rng := rand.New(rand.NewSource(42))

	counts := make([]float64, len(dist))
	const draws = 200000
	for i := 0; i < draws; i++ {
		idx := at.Sample(rng)
		require.GreaterOrEqual(t, idx, int64(0))
		counts[idx]++
	}
	for i, w := range dist {
		assert.InDelta(t, w/10.0, counts[i]/draws, 0.01, "index %d", i)
	}
}

func TestAliasTableSkipsZeroWeights(t *testing.T) {
	at := NewAliasTable([]float64{0, 1, 0, 1}, 0.75)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		idx := at.Sample(rng)
		assert.Contains(t, []int64{1, 3}, idx)
	}
}

func TestAliasTableEmpty(t *testing.T) {
	at := NewAliasTable(nil, 0.75)
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, int64(-1), at.Sample(rng))
}
