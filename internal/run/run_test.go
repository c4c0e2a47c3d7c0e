package run

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgembed/compounde3d/pkg/model"
)

func writeRingDataset(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	train := ""
	for i := 0; i < n; i++ {
		train += fmt.Sprintf("e%d\tnext\te%d\n", i, (i+1)%n)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "train.txt"), []byte(train), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "valid.txt"), []byte("e0\tnext\te2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.txt"), []byte("e1\tnext\te3\n"), 0o644))
	return dir
}

func baseConfig(dataPath, savePath string) Config {
	return Config{
		DoTrain:            true,
		DoValid:            true,
		DoTest:             true,
		DataPath:           dataPath,
		SavePath:           savePath,
		Model:              model.NameTransE,
		NegativeSampleSize: 4,
		BatchSize:          8,
		HiddenDim:          6,
		Gamma:              4,
		LearningRate:       0.01,
		MaxSteps:           30,
		CPUNum:             2,
		TestBatchSize:      2,
		NegSizeEval:        8,
		NegSizeEvalTrain:   8,
		LogSteps:           10,
		Seed:               1,
		LogLevel:           "ERROR",
	}
}

func TestRunTrainAndEvaluate(t *testing.T) {
	dataPath := writeRingDataset(t, 12)
	savePath := t.TempDir()

	require.NoError(t, Run(baseConfig(dataPath, savePath)))

	for _, name := range []string{
		"config.json",
		"checkpoint.json",
		"entity_embedding.bin.gz",
		"relation_embedding.bin.gz",
		"entity_embedding.txt",
		"relation_embedding.txt",
		"train.log",
	} {
		_, err := os.Stat(filepath.Join(savePath, name))
		assert.NoError(t, err, name)
	}
}

func TestRunResumeFromCheckpoint(t *testing.T) {
	dataPath := writeRingDataset(t, 12)
	savePath := t.TempDir()
	require.NoError(t, Run(baseConfig(dataPath, savePath)))

	cfg := baseConfig(dataPath, "")
	cfg.DoTrain = false
	cfg.DoValid = false
	cfg.InitCheckpoint = savePath
	require.NoError(t, Run(cfg))
}

func TestRunRequiresAnAction(t *testing.T) {
	cfg := baseConfig(writeRingDataset(t, 4), t.TempDir())
	cfg.DoTrain = false
	cfg.DoValid = false
	cfg.DoTest = false
	err := Run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do_train")
}

func TestRunRequiresSavePathForTraining(t *testing.T) {
	cfg := baseConfig(writeRingDataset(t, 4), "")
	err := Run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save_path")
}

func TestRunRejectsNonPositiveSizes(t *testing.T) {
	dataPath := writeRingDataset(t, 4)

	cfg := baseConfig(dataPath, t.TempDir())
	cfg.BatchSize = 0
	err := Run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")

	cfg = baseConfig(dataPath, t.TempDir())
	cfg.NegativeSampleSize = -1
	err = Run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative_sample_size")

	cfg = baseConfig(dataPath, t.TempDir())
	cfg.HiddenDim = 0
	err = Run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hidden_dim")
}

func TestRunRejectsUnknownModel(t *testing.T) {
	cfg := baseConfig(writeRingDataset(t, 4), t.TempDir())
	cfg.Model = "NoSuchModel"
	err := Run(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}
