package model

import (
	"fmt"
	"math/rand"

	"github.com/kgembed/compounde3d/pkg/kg"
)

// Supported model variant names, as accepted by --model.
const (
	NameTransE      = "TransE"
	NameDistMult    = "DistMult"
	NameComplEx     = "ComplEx"
	NameRotatE      = "RotatE"
	NameRotatEv2    = "RotatEv2"
	NamePairRE      = "PairRE"
	NameCompoundE   = "CompoundE"
	NameCompoundE3D = "CompoundE3D_Complete_Mix_T_H"
)

// epsilon widens the uniform init range beyond gamma.
const epsilon = 2.0

// Config describes a model instance. The embedding dimension flags mirror
// the usual KGE conventions: the hidden dimension is multiplied per side
// depending on how many components the variant packs into a relation.
type Config struct {
	Name         string
	NumEntities  int64
	NumRelations int64
	HiddenDim    int
	Gamma        float64

	DoubleEntityEmbedding   bool
	DoubleRelationEmbedding bool
	TripleRelationEmbedding bool
	QuadRelationEmbedding   bool
}

// Model holds the entity and relation embedding matrices and the scoring
// function of the selected variant. Scores follow the "higher is better"
// convention: distance-based variants return gamma minus the distance.
type Model struct {
	Config

	EntityDim      int
	RelationDim    int
	EmbeddingRange float64

	Entity   [][]float64
	Relation [][]float64

	scorer scorer
}

// scorer computes the score of one triple from its embedding rows, and
// accumulates coeff * dScore/dParam into the given gradient rows.
type scorer interface {
	score(h, r, t []float64) float64
	grad(h, r, t []float64, coeff float64, gh, gr, gt []float64)
}

// New validates the configuration and allocates zeroed embedding matrices.
// Call InitEmbeddings before training from scratch.
func New(cfg Config) (*Model, error) {
	m := &Model{Config: cfg}

	m.EntityDim = cfg.HiddenDim
	if cfg.DoubleEntityEmbedding {
		m.EntityDim = cfg.HiddenDim * 2
	}
	switch {
	case cfg.DoubleRelationEmbedding:
		m.RelationDim = cfg.HiddenDim * 2
	case cfg.TripleRelationEmbedding:
		m.RelationDim = cfg.HiddenDim * 3
	case cfg.QuadRelationEmbedding:
		m.RelationDim = cfg.HiddenDim * 4
	default:
		m.RelationDim = cfg.HiddenDim
	}
	m.EmbeddingRange = (cfg.Gamma + epsilon) / float64(cfg.HiddenDim)

	phaseScale := 3.14159265358979323846 / m.EmbeddingRange

	switch cfg.Name {
	case NameTransE:
		m.scorer = &transE{gamma: cfg.Gamma}
	case NameDistMult:
		m.scorer = &distMult{}
	case NameComplEx:
		if !cfg.DoubleEntityEmbedding || !cfg.DoubleRelationEmbedding {
			return nil, fmt.Errorf("ComplEx should use --double_entity_embedding and --double_relation_embedding")
		}
		m.scorer = &complEx{}
	case NameRotatE:
		if !cfg.DoubleEntityEmbedding || cfg.DoubleRelationEmbedding {
			return nil, fmt.Errorf("RotatE should use --double_entity_embedding")
		}
		m.scorer = &rotatE{gamma: cfg.Gamma, phaseScale: phaseScale}
	case NameRotatEv2:
		if !cfg.DoubleEntityEmbedding || !cfg.DoubleRelationEmbedding {
			return nil, fmt.Errorf("RotatEv2 should use --double_entity_embedding and --double_relation_embedding")
		}
		m.scorer = &rotatEv2{gamma: cfg.Gamma, phaseScale: phaseScale}
	case NamePairRE:
		if !cfg.DoubleRelationEmbedding {
			return nil, fmt.Errorf("PairRE should use --double_relation_embedding")
		}
		m.scorer = &pairRE{gamma: cfg.Gamma}
	case NameCompoundE:
		if !cfg.TripleRelationEmbedding {
			return nil, fmt.Errorf("CompoundE should use --triple_relation_embedding")
		}
		if cfg.HiddenDim%2 != 0 {
			return nil, fmt.Errorf("CompoundE requires an even hidden dimension, got %d", cfg.HiddenDim)
		}
		m.scorer = &compoundE{gamma: cfg.Gamma, phaseScale: phaseScale}
	case NameCompoundE3D:
		if !cfg.TripleRelationEmbedding {
			return nil, fmt.Errorf("CompoundE3D should use --triple_relation_embedding")
		}
		if cfg.HiddenDim%3 != 0 {
			return nil, fmt.Errorf("CompoundE3D requires a hidden dimension divisible by 3, got %d", cfg.HiddenDim)
		}
		m.scorer = &compoundE3D{gamma: cfg.Gamma}
	default:
		return nil, fmt.Errorf("model %s not supported", cfg.Name)
	}

	m.Entity = make([][]float64, cfg.NumEntities)
	for i := range m.Entity {
		m.Entity[i] = make([]float64, m.EntityDim)
	}
	m.Relation = make([][]float64, cfg.NumRelations)
	for i := range m.Relation {
		m.Relation[i] = make([]float64, m.RelationDim)
	}

	return m, nil
}

// InitEmbeddings fills both matrices uniformly in ±EmbeddingRange.
func (m *Model) InitEmbeddings(rng *rand.Rand) {
	for _, row := range m.Entity {
		for d := range row {
			row[d] = (rng.Float64()*2 - 1) * m.EmbeddingRange
		}
	}
	for _, row := range m.Relation {
		for d := range row {
			row[d] = (rng.Float64()*2 - 1) * m.EmbeddingRange
		}
	}
}

// Score returns the score of a triple by id.
func (m *Model) Score(t kg.Triple) float64 {
	return m.scorer.score(m.Entity[t.Head], m.Relation[t.Relation], m.Entity[t.Tail])
}

// ScoreVecs scores a triple given its embedding rows directly.
func (m *Model) ScoreVecs(h, r, t []float64) float64 {
	return m.scorer.score(h, r, t)
}

// GradVecs accumulates coeff * dScore/dParam into gh, gr, gt for the triple
// given by its embedding rows.
func (m *Model) GradVecs(h, r, t []float64, coeff float64, gh, gr, gt []float64) {
	m.scorer.grad(h, r, t, coeff, gh, gr, gt)
}
