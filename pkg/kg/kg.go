package kg

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Triple represents a knowledge graph triple (head, relation, tail).
type Triple struct {
	Head     int64
	Relation int64
	Tail     int64
}

// subsampling counts start at this value so that rare patterns do not get
// unbounded weights (word2vec-style smoothing).
const countStart = 4

// KnowledgeGraph holds a benchmark dataset: entity/relation dictionaries,
// the train/valid/test splits, and the indexes used for filtered ranking
// and frequency-based subsampling.
type KnowledgeGraph struct {
	EntityHash   map[string]int64
	RelationHash map[string]int64
	EntityKeys   []string
	RelationKeys []string

	Train []Triple
	Valid []Triple
	Test  []Triple

	NumEntities  int64
	NumRelations int64

	// known contains every triple of every split, for filtered evaluation
	// and optional false-negative rejection during training.
	known map[Triple]struct{}

	// Train-split pattern counts used for subsampling weights.
	hrCount map[[2]int64]int
	rtCount map[[2]int64]int

	// Per-entity occurrence counts in the train split, for the optional
	// frequency-weighted negative sampler.
	entityFreq []float64
}

// New creates an empty knowledge graph.
func New() *KnowledgeGraph {
	return &KnowledgeGraph{
		EntityHash:   make(map[string]int64),
		RelationHash: make(map[string]int64),
		known:        make(map[Triple]struct{}),
		hrCount:      make(map[[2]int64]int),
		rtCount:      make(map[[2]int64]int),
	}
}

// Load reads a benchmark directory in the standard KGE layout:
//
//	entities.dict   id<TAB>entity_name      (optional)
//	relations.dict  id<TAB>relation_name    (optional)
//	train.txt       head<TAB>relation<TAB>tail
//	valid.txt       head<TAB>relation<TAB>tail
//	test.txt        head<TAB>relation<TAB>tail
//
// When the dict files are missing, dictionaries are built on the fly from
// the triple files, in order of first appearance.
func Load(dataPath string) (*KnowledgeGraph, error) {
	g := New()

	if err := g.loadDict(filepath.Join(dataPath, "entities.dict"), g.EntityHash, &g.EntityKeys); err != nil {
		return nil, err
	}
	if err := g.loadDict(filepath.Join(dataPath, "relations.dict"), g.RelationHash, &g.RelationKeys); err != nil {
		return nil, err
	}
	frozen := len(g.EntityKeys) > 0

	var err error
	if g.Train, err = g.loadTriples(filepath.Join(dataPath, "train.txt"), frozen, true); err != nil {
		return nil, err
	}
	if g.Valid, err = g.loadTriples(filepath.Join(dataPath, "valid.txt"), frozen, false); err != nil {
		return nil, err
	}
	if g.Test, err = g.loadTriples(filepath.Join(dataPath, "test.txt"), frozen, false); err != nil {
		return nil, err
	}

	g.NumEntities = int64(len(g.EntityKeys))
	g.NumRelations = int64(len(g.RelationKeys))

	g.entityFreq = make([]float64, g.NumEntities)
	for _, t := range g.Train {
		g.entityFreq[t.Head]++
		g.entityFreq[t.Tail]++
	}

	log.Info().
		Str("data_path", dataPath).
		Int64("entities", g.NumEntities).
		Int64("relations", g.NumRelations).
		Int("train", len(g.Train)).
		Int("valid", len(g.Valid)).
		Int("test", len(g.Test)).
		Msg("knowledge graph loaded")

	return g, nil
}

// loadDict reads an id<TAB>name file. A missing file is not an error: the
// dictionaries are then built from the triple files instead.
func (g *KnowledgeGraph) loadDict(filename string, hash map[string]int64, keys *[]string) error {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", filename, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "\t", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parse id in %s: %w", filename, err)
		}
		name := parts[1]
		for int64(len(*keys)) <= id {
			*keys = append(*keys, "")
		}
		(*keys)[id] = name
		hash[name] = id
	}
	return scanner.Err()
}

// loadTriples reads a head<TAB>relation<TAB>tail file. With frozen
// dictionaries an unknown name is an error; otherwise ids are assigned in
// order of first appearance. The train split additionally feeds the
// subsampling counts.
func (g *KnowledgeGraph) loadTriples(filename string, frozen, isTrain bool) ([]Triple, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer file.Close()

	var triples []Triple
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		parts := strings.Fields(scanner.Text())
		if len(parts) < 3 {
			continue
		}

		h, err := g.lookup(parts[0], frozen, g.EntityHash, &g.EntityKeys)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, line, err)
		}
		r, err := g.lookup(parts[1], frozen, g.RelationHash, &g.RelationKeys)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, line, err)
		}
		t, err := g.lookup(parts[2], frozen, g.EntityHash, &g.EntityKeys)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, line, err)
		}

		triple := Triple{Head: h, Relation: r, Tail: t}
		triples = append(triples, triple)
		g.known[triple] = struct{}{}

		if isTrain {
			g.hrCount[[2]int64{h, r}]++
			g.rtCount[[2]int64{r, t}]++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return triples, nil
}

func (g *KnowledgeGraph) lookup(name string, frozen bool, hash map[string]int64, keys *[]string) (int64, error) {
	if id, ok := hash[name]; ok {
		return id, nil
	}
	if frozen {
		return 0, fmt.Errorf("name not in dictionary: %s", name)
	}
	id := int64(len(*keys))
	hash[name] = id
	*keys = append(*keys, name)
	return id, nil
}

// GetEntityName returns the name of an entity by id.
func (g *KnowledgeGraph) GetEntityName(id int64) string {
	if id < 0 || id >= int64(len(g.EntityKeys)) {
		return ""
	}
	return g.EntityKeys[id]
}

// GetRelationName returns the name of a relation by id.
func (g *KnowledgeGraph) GetRelationName(id int64) string {
	if id < 0 || id >= int64(len(g.RelationKeys)) {
		return ""
	}
	return g.RelationKeys[id]
}

// IsKnown reports whether the triple occurs in any split.
func (g *KnowledgeGraph) IsKnown(t Triple) bool {
	_, ok := g.known[t]
	return ok
}

// SubsamplingWeight returns sqrt(1 / (count(h,r) + count(r,t))) over the
// train split, with counts offset by the smoothing start value.
func (g *KnowledgeGraph) SubsamplingWeight(t Triple) float64 {
	hr := g.hrCount[[2]int64{t.Head, t.Relation}]
	rt := g.rtCount[[2]int64{t.Relation, t.Tail}]
	total := (countStart - 1 + hr) + (countStart - 1 + rt)
	return math.Sqrt(1.0 / float64(total))
}

// EntityFrequencies returns per-entity occurrence counts in the train split.
func (g *KnowledgeGraph) EntityFrequencies() []float64 {
	return g.entityFreq
}
