package kg

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadBuildsDictionariesOnTheFly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "train.txt", "a\tr1\tb\na\tr1\tc\nb\tr2\tc\n")
	writeFile(t, dir, "valid.txt", "a\tr2\td\n")
	writeFile(t, dir, "test.txt", "c\tr1\td\n")

	g, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, int64(4), g.NumEntities)
	assert.Equal(t, int64(2), g.NumRelations)
	assert.Len(t, g.Train, 3)
	assert.Len(t, g.Valid, 1)
	assert.Len(t, g.Test, 1)

	// Ids follow first appearance in train.txt.
	assert.Equal(t, "a", g.GetEntityName(0))
	assert.Equal(t, "b", g.GetEntityName(1))
	assert.Equal(t, "r1", g.GetRelationName(0))
	assert.Equal(t, "", g.GetEntityName(99))
}

func TestIsKnownCoversAllSplits(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "train.txt", "a\tr\tb\n")
	writeFile(t, dir, "valid.txt", "a\tr\tc\n")
	writeFile(t, dir, "test.txt", "b\tr\tc\n")

	g, err := Load(dir)
	require.NoError(t, err)

	a, b, c := g.EntityHash["a"], g.EntityHash["b"], g.EntityHash["c"]
	r := g.RelationHash["r"]

	assert.True(t, g.IsKnown(Triple{Head: a, Relation: r, Tail: b}))
	assert.True(t, g.IsKnown(Triple{Head: a, Relation: r, Tail: c}))
	assert.True(t, g.IsKnown(Triple{Head: b, Relation: r, Tail: c}))
	assert.False(t, g.IsKnown(Triple{Head: c, Relation: r, Tail: a}))
}

func TestSubsamplingWeight(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "train.txt", "a\tr1\tb\na\tr1\tc\nb\tr2\tc\n")
	writeFile(t, dir, "valid.txt", "")
	writeFile(t, dir, "test.txt", "")

	g, err := Load(dir)
	require.NoError(t, err)

	// (a, r1, b): count(a,r1)=2, count(r1,b)=1, both offset by 3.
	tr := Triple{Head: g.EntityHash["a"], Relation: g.RelationHash["r1"], Tail: g.EntityHash["b"]}
	assert.InDelta(t, math.Sqrt(1.0/9.0), g.SubsamplingWeight(tr), 1e-12)
}

func TestLoadWithFrozenDictionaries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "entities.dict", "0\tb\n1\ta\n")
	writeFile(t, dir, "relations.dict", "0\tr\n")
	writeFile(t, dir, "train.txt", "a\tr\tb\n")
	writeFile(t, dir, "valid.txt", "")
	writeFile(t, dir, "test.txt", "")

	g, err := Load(dir)
	require.NoError(t, err)

	// The dict order wins over first appearance.
	assert.Equal(t, int64(1), g.EntityHash["a"])
	assert.Equal(t, int64(0), g.EntityHash["b"])
	assert.Equal(t, Triple{Head: 1, Relation: 0, Tail: 0}, g.Train[0])
}

func TestLoadRejectsUnknownNameWithFrozenDictionaries(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "entities.dict", "0\ta\n1\tb\n")
	writeFile(t, dir, "relations.dict", "0\tr\n")
	writeFile(t, dir, "train.txt", "a\tr\tz\n")
	writeFile(t, dir, "valid.txt", "")
	writeFile(t, dir, "test.txt", "")

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in dictionary")
}

func TestEntityFrequencies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "train.txt", "a\tr\tb\na\tr\tc\n")
	writeFile(t, dir, "valid.txt", "")
	writeFile(t, dir, "test.txt", "")

	g, err := Load(dir)
	require.NoError(t, err)

	freq := g.EntityFrequencies()
	assert.Equal(t, 2.0, freq[g.EntityHash["a"]])
	assert.Equal(t, 1.0, freq[g.EntityHash["b"]])
	assert.Equal(t, 1.0, freq[g.EntityHash["c"]])
}
