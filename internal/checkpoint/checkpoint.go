// Package checkpoint persists and restores a training run: model
// embeddings, optimizer state and the learning-rate schedule. Embedding
// matrices are gzip-compressed binary, optionally quantized to fp16.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/kgembed/compounde3d/pkg/model"
	"github.com/kgembed/compounde3d/pkg/optim"
)

const (
	metaFile       = "checkpoint.json"
	entityFile     = "entity_embedding.bin.gz"
	relationFile   = "relation_embedding.bin.gz"
	entityAdamM    = "entity_adam_m.bin.gz"
	entityAdamV    = "entity_adam_v.bin.gz"
	relationAdamM  = "relation_adam_m.bin.gz"
	relationAdamV  = "relation_adam_v.bin.gz"
	configFileName = "config.json"
)

// Meta records the run state needed to resume training.
type Meta struct {
	Model             string  `json:"model"`
	Step              int     `json:"step"`
	LearningRate      float64 `json:"current_learning_rate"`
	WarmUpSteps       int     `json:"warm_up_steps"`
	EntityAdamSteps   int64   `json:"entity_adam_steps"`
	RelationAdamSteps int64   `json:"relation_adam_steps"`
	FP16              bool    `json:"fp16"`
}

// Save writes the checkpoint into dir. The optimizers may be nil for
// evaluation-only runs. Optimizer moments are always stored as fp32; only
// the embedding matrices honor the fp16 flag.
func Save(dir string, m *model.Model, entOpt, relOpt *optim.Adam, meta Meta, fp16 bool) error {
	meta.Model = m.Name
	meta.FP16 = fp16

	if err := writeMatrix(filepath.Join(dir, entityFile), m.Entity, m.EntityDim, fp16); err != nil {
		return err
	}
	if err := writeMatrix(filepath.Join(dir, relationFile), m.Relation, m.RelationDim, fp16); err != nil {
		return err
	}

	if entOpt != nil && relOpt != nil {
		em, ev, et := entOpt.State()
		rm, rv, rt := relOpt.State()
		meta.EntityAdamSteps = et
		meta.RelationAdamSteps = rt
		if err := writeMatrix(filepath.Join(dir, entityAdamM), em, m.EntityDim, false); err != nil {
			return err
		}
		if err := writeMatrix(filepath.Join(dir, entityAdamV), ev, m.EntityDim, false); err != nil {
			return err
		}
		if err := writeMatrix(filepath.Join(dir, relationAdamM), rm, m.RelationDim, false); err != nil {
			return err
		}
		if err := writeMatrix(filepath.Join(dir, relationAdamV), rv, m.RelationDim, false); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", metaFile, err)
	}

	log.Info().Str("dir", dir).Int("step", meta.Step).Msg("checkpoint saved")
	return nil
}

// Load restores a checkpoint from dir into the model and, when present and
// requested, the optimizers.
func Load(dir string, m *model.Model, entOpt, relOpt *optim.Adam) (Meta, error) {
	var meta Meta
	data, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		return meta, fmt.Errorf("read %s: %w", metaFile, err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse %s: %w", metaFile, err)
	}
	if meta.Model != m.Name {
		return meta, fmt.Errorf("checkpoint model %s does not match configured model %s", meta.Model, m.Name)
	}

	ent, err := readMatrix(filepath.Join(dir, entityFile))
	if err != nil {
		return meta, err
	}
	rel, err := readMatrix(filepath.Join(dir, relationFile))
	if err != nil {
		return meta, err
	}
	if err := checkShape(ent, len(m.Entity), m.EntityDim, "entity"); err != nil {
		return meta, err
	}
	if err := checkShape(rel, len(m.Relation), m.RelationDim, "relation"); err != nil {
		return meta, err
	}
	m.Entity = ent
	m.Relation = rel

	if entOpt != nil && relOpt != nil {
		if _, err := os.Stat(filepath.Join(dir, entityAdamM)); err == nil {
			em, err := readMatrix(filepath.Join(dir, entityAdamM))
			if err != nil {
				return meta, err
			}
			ev, err := readMatrix(filepath.Join(dir, entityAdamV))
			if err != nil {
				return meta, err
			}
			rm, err := readMatrix(filepath.Join(dir, relationAdamM))
			if err != nil {
				return meta, err
			}
			rv, err := readMatrix(filepath.Join(dir, relationAdamV))
			if err != nil {
				return meta, err
			}
			entOpt.Restore(em, ev, meta.EntityAdamSteps)
			relOpt.Restore(rm, rv, meta.RelationAdamSteps)
		} else {
			log.Warn().Str("dir", dir).Msg("checkpoint has no optimizer state, starting Adam fresh")
		}
	}

	log.Info().Str("dir", dir).Int("step", meta.Step).Msg("checkpoint loaded")
	return meta, nil
}

func checkShape(mat [][]float64, rows, cols int, what string) error {
	gotCols := 0
	if len(mat) > 0 {
		gotCols = len(mat[0])
	}
	if len(mat) != rows || (len(mat) > 0 && gotCols != cols) {
		return fmt.Errorf("%s embedding shape mismatch: checkpoint %dx%d, model %dx%d",
			what, len(mat), gotCols, rows, cols)
	}
	return nil
}

// SaveConfig dumps the run configuration as config.json.
func SaveConfig(dir string, cfg interface{}) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, configFileName), data, 0o644)
}
