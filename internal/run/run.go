// Package run wires the experiment together: configuration validation,
// logging, data loading, model construction, training with interleaved
// validation, and final evaluation.
package run

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kgembed/compounde3d/internal/checkpoint"
	"github.com/kgembed/compounde3d/internal/eval"
	"github.com/kgembed/compounde3d/internal/status"
	"github.com/kgembed/compounde3d/internal/train"
	"github.com/kgembed/compounde3d/pkg/kg"
	"github.com/kgembed/compounde3d/pkg/logger"
	"github.com/kgembed/compounde3d/pkg/model"
	"github.com/kgembed/compounde3d/pkg/optim"
	"github.com/kgembed/compounde3d/pkg/sampler"
)

// Config is the full experiment configuration, one field per CLI flag.
type Config struct {
	DoTrain       bool `json:"do_train" mapstructure:"do_train"`
	DoValid       bool `json:"do_valid" mapstructure:"do_valid"`
	DoTest        bool `json:"do_test" mapstructure:"do_test"`
	EvaluateTrain bool `json:"evaluate_train" mapstructure:"evaluate_train"`

	DataPath       string `json:"data_path" mapstructure:"data_path"`
	SavePath       string `json:"save_path" mapstructure:"save_path"`
	InitCheckpoint string `json:"init_checkpoint" mapstructure:"init_checkpoint"`

	Model                       string  `json:"model" mapstructure:"model"`
	NegativeSampleSize          int     `json:"negative_sample_size" mapstructure:"negative_sample_size"`
	BatchSize                   int     `json:"batch_size" mapstructure:"batch_size"`
	HiddenDim                   int     `json:"hidden_dim" mapstructure:"hidden_dim"`
	Gamma                       float64 `json:"gamma" mapstructure:"gamma"`
	AdversarialTemperature      float64 `json:"adversarial_temperature" mapstructure:"adversarial_temperature"`
	NegativeAdversarialSampling bool    `json:"negative_adversarial_sampling" mapstructure:"negative_adversarial_sampling"`
	UniWeight                   bool    `json:"uni_weight" mapstructure:"uni_weight"`
	Regularization              float64 `json:"regularization" mapstructure:"regularization"`
	LearningRate                float64 `json:"learning_rate" mapstructure:"learning_rate"`
	MaxSteps                    int     `json:"max_steps" mapstructure:"max_steps"`
	WarmUpSteps                 int     `json:"warm_up_steps" mapstructure:"warm_up_steps"`

	DoubleEntityEmbedding   bool `json:"double_entity_embedding" mapstructure:"double_entity_embedding"`
	DoubleRelationEmbedding bool `json:"double_relation_embedding" mapstructure:"double_relation_embedding"`
	TripleRelationEmbedding bool `json:"triple_relation_embedding" mapstructure:"triple_relation_embedding"`
	QuadRelationEmbedding   bool `json:"quad_relation_embedding" mapstructure:"quad_relation_embedding"`

	CPUNum           int  `json:"cpu_num" mapstructure:"cpu_num"`
	TestBatchSize    int  `json:"test_batch_size" mapstructure:"test_batch_size"`
	NegSizeEval      int  `json:"neg_size_eval" mapstructure:"neg_size_eval"`
	NegSizeEvalTrain int  `json:"neg_size_eval_train" mapstructure:"neg_size_eval_train"`
	EvalAll          bool `json:"eval_all" mapstructure:"eval_all"`

	FilterFalseNegatives bool `json:"filter_false_negatives" mapstructure:"filter_false_negatives"`
	FreqWeightedNegs     bool `json:"freq_weighted_negatives" mapstructure:"freq_weighted_negatives"`

	LogSteps            int   `json:"log_steps" mapstructure:"log_steps"`
	ValidSteps          int   `json:"valid_steps" mapstructure:"valid_steps"`
	TestLogSteps        int   `json:"test_log_steps" mapstructure:"test_log_steps"`
	SaveCheckpointSteps int   `json:"save_checkpoint_steps" mapstructure:"save_checkpoint_steps"`
	Seed                int64 `json:"seed" mapstructure:"seed"`

	FP16Checkpoint bool   `json:"fp16_checkpoint" mapstructure:"fp16_checkpoint"`
	PrintOnScreen  bool   `json:"print_on_screen" mapstructure:"print_on_screen"`
	LogLevel       string `json:"log_level" mapstructure:"log_level"`
	HTTPAddr       string `json:"http_addr" mapstructure:"http_addr"`
}

func (cfg *Config) validate() error {
	if !cfg.DoTrain && !cfg.DoValid && !cfg.DoTest {
		return fmt.Errorf("one of --do_train, --do_valid or --do_test must be set")
	}
	if cfg.DataPath == "" {
		return fmt.Errorf("--data_path must be set")
	}
	if cfg.HiddenDim <= 0 {
		return fmt.Errorf("--hidden_dim must be positive, got %d", cfg.HiddenDim)
	}
	if cfg.DoTrain {
		if cfg.SavePath == "" {
			return fmt.Errorf("--do_train requires --save_path")
		}
		if cfg.BatchSize <= 0 {
			return fmt.Errorf("--batch_size must be positive, got %d", cfg.BatchSize)
		}
		if cfg.NegativeSampleSize <= 0 {
			return fmt.Errorf("--negative_sample_size must be positive, got %d", cfg.NegativeSampleSize)
		}
	}
	if cfg.SavePath == "" && cfg.InitCheckpoint != "" {
		cfg.SavePath = cfg.InitCheckpoint
	}
	if cfg.WarmUpSteps <= 0 {
		cfg.WarmUpSteps = cfg.MaxSteps / 2
	}
	return nil
}

// Run executes the experiment described by cfg.
func Run(cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if cfg.SavePath != "" {
		if err := os.MkdirAll(cfg.SavePath, 0o755); err != nil {
			return fmt.Errorf("create save path: %w", err)
		}
	}
	if err := logger.Init(cfg.SavePath, cfg.PrintOnScreen, cfg.LogLevel); err != nil {
		return err
	}
	if cfg.SavePath != "" {
		if err := checkpoint.SaveConfig(cfg.SavePath, cfg); err != nil {
			return err
		}
	}

	graph, err := kg.Load(cfg.DataPath)
	if err != nil {
		return err
	}

	m, err := model.New(model.Config{
		Name:                    cfg.Model,
		NumEntities:             graph.NumEntities,
		NumRelations:            graph.NumRelations,
		HiddenDim:               cfg.HiddenDim,
		Gamma:                   cfg.Gamma,
		DoubleEntityEmbedding:   cfg.DoubleEntityEmbedding,
		DoubleRelationEmbedding: cfg.DoubleRelationEmbedding,
		TripleRelationEmbedding: cfg.TripleRelationEmbedding,
		QuadRelationEmbedding:   cfg.QuadRelationEmbedding,
	})
	if err != nil {
		return err
	}
	m.InitEmbeddings(rand.New(rand.NewSource(cfg.Seed)))

	log.Info().
		Str("model", cfg.Model).
		Int("entity_dim", m.EntityDim).
		Int("relation_dim", m.RelationDim).
		Float64("gamma", cfg.Gamma).
		Float64("embedding_range", m.EmbeddingRange).
		Msg("model initialized")

	var entOpt, relOpt *optim.Adam
	if cfg.DoTrain {
		entOpt = optim.NewAdam(graph.NumEntities, m.EntityDim, cfg.LearningRate)
		relOpt = optim.NewAdam(graph.NumRelations, m.RelationDim, cfg.LearningRate)
	}

	initStep := 0
	currentLR := cfg.LearningRate
	warmUp := cfg.WarmUpSteps
	if cfg.InitCheckpoint != "" {
		meta, err := checkpoint.Load(cfg.InitCheckpoint, m, entOpt, relOpt)
		if err != nil {
			return err
		}
		initStep = meta.Step
		if meta.LearningRate > 0 {
			currentLR = meta.LearningRate
		}
		if meta.WarmUpSteps > 0 {
			warmUp = meta.WarmUpSteps
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var statusSrv *status.Server
	if cfg.HTTPAddr != "" {
		statusSrv = status.NewServer(cfg.HTTPAddr, cfg.Model, cfg.MaxSteps)
		statusSrv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			statusSrv.Stop(shutdownCtx)
		}()
	}

	evaluate := func(split string, triples []kg.Triple, step, negSize int) error {
		metrics, err := eval.Evaluate(m, graph, triples, eval.Config{
			NegativeSize: negSize,
			FullRanking:  cfg.EvalAll,
			Workers:      cfg.CPUNum,
			BatchSize:    cfg.TestBatchSize,
			TestLogSteps: cfg.TestLogSteps,
			Seed:         cfg.Seed,
		})
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", split, err)
		}
		log.Info().
			Str("split", split).
			Int("step", step).
			Float64("mrr", metrics.MRR).
			Float64("hits@1", metrics.Hits1).
			Float64("hits@3", metrics.Hits3).
			Float64("hits@10", metrics.Hits10).
			Int("count", metrics.Count).
			Msg("evaluation")
		if statusSrv != nil {
			statusSrv.ReportEval(split, map[string]float64{
				"mrr": metrics.MRR, "hits@1": metrics.Hits1,
				"hits@3": metrics.Hits3, "hits@10": metrics.Hits10,
			})
		}
		return nil
	}

	if cfg.DoTrain {
		log.Info().
			Int("init_step", initStep).
			Int("max_steps", cfg.MaxSteps).
			Int("batch_size", cfg.BatchSize).
			Int("negative_sample_size", cfg.NegativeSampleSize).
			Float64("learning_rate", currentLR).
			Bool("negative_adversarial_sampling", cfg.NegativeAdversarialSampling).
			Float64("adversarial_temperature", cfg.AdversarialTemperature).
			Msg("start training")

		iter := sampler.NewTrainIterator(graph, sampler.Config{
			BatchSize:            cfg.BatchSize,
			NegativeSize:         cfg.NegativeSampleSize,
			Workers:              cfg.CPUNum,
			FilterFalseNegatives: cfg.FilterFalseNegatives,
			FrequencyWeighted:    cfg.FreqWeightedNegs,
			Seed:                 cfg.Seed,
		})
		defer iter.Close()

		trainer := train.New(train.Config{
			MaxSteps:                    cfg.MaxSteps,
			WarmUpSteps:                 warmUp,
			InitStep:                    initStep,
			LearningRate:                currentLR,
			AdversarialTemperature:      cfg.AdversarialTemperature,
			NegativeAdversarialSampling: cfg.NegativeAdversarialSampling,
			UniWeight:                   cfg.UniWeight,
			Regularization:              cfg.Regularization,
			Workers:                     cfg.CPUNum,
			LogSteps:                    cfg.LogSteps,
			ValidSteps:                  cfg.ValidSteps,
			SaveCheckpointSteps:         cfg.SaveCheckpointSteps,
		}, m, iter, entOpt, relOpt)

		if cfg.DoValid {
			trainer.OnValid = func(step int) {
				if err := evaluate("valid", graph.Valid, step, cfg.NegSizeEval); err != nil {
					log.Error().Err(err).Msg("validation failed")
				}
			}
		}
		trainer.OnSave = func(step int, lr float64, warmUpSteps int) {
			err := checkpoint.Save(cfg.SavePath, m, entOpt, relOpt, checkpoint.Meta{
				Step:         step,
				LearningRate: lr,
				WarmUpSteps:  warmUpSteps,
			}, cfg.FP16Checkpoint)
			if err != nil {
				log.Error().Err(err).Msg("checkpoint save failed")
			}
		}
		if statusSrv != nil {
			trainer.Reporter = statusSrv
		}

		if err := trainer.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				log.Warn().Msg("training interrupted, latest checkpoint kept")
				return nil
			}
			return err
		}
		if err := checkpoint.ExportText(cfg.SavePath, m, graph); err != nil {
			return err
		}
	}

	finalStep := cfg.MaxSteps
	if !cfg.DoTrain {
		finalStep = initStep
	}
	if cfg.DoValid {
		if err := evaluate("valid", graph.Valid, finalStep, cfg.NegSizeEval); err != nil {
			return err
		}
	}
	if cfg.DoTest {
		if err := evaluate("test", graph.Test, finalStep, cfg.NegSizeEval); err != nil {
			return err
		}
	}
	if cfg.EvaluateTrain {
		if err := evaluate("train", graph.Train, finalStep, cfg.NegSizeEvalTrain); err != nil {
			return err
		}
	}
	return nil
}
