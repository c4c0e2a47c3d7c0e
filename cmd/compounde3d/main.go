package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kgembed/compounde3d/internal/run"
	"github.com/kgembed/compounde3d/pkg/model"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "compounde3d",
	Short: "Train and evaluate knowledge graph embedding models",
	Long: `compounde3d trains knowledge graph embedding models (TransE, DistMult,
ComplEx, RotatE, RotatEv2, PairRE, CompoundE, CompoundE3D) on triple
datasets and evaluates them with ranking metrics (MRR, Hits@k).`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		}
		var cfg run.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		return run.Run(cfg)
	},
}

func init() {
	f := rootCmd.Flags()

	f.StringVar(&configFile, "config", "", "optional YAML config file; flags override it")

	f.Bool("do_train", false, "run training")
	f.Bool("do_valid", false, "evaluate on the validation split")
	f.Bool("do_test", false, "evaluate on the test split")
	f.Bool("evaluate_train", false, "evaluate on a sample of the training split")

	f.String("data_path", "", "dataset directory with train/valid/test.txt")
	f.String("save_path", "", "output directory for logs, checkpoints and embeddings")
	f.String("init_checkpoint", "", "checkpoint directory to resume from")

	f.String("model", model.NameCompoundE3D, "embedding model")
	f.IntP("negative_sample_size", "n", 128, "negatives per positive during training")
	f.IntP("batch_size", "b", 1024, "training batch size")
	f.IntP("hidden_dim", "d", 500, "embedding dimension")
	f.Float64P("gamma", "g", 12.0, "margin gamma")
	f.Float64P("adversarial_temperature", "a", 1.0, "self-adversarial softmax temperature")
	f.Bool("negative_adversarial_sampling", false, "weight negatives by self-adversarial softmax")
	f.Bool("uni_weight", false, "uniform sample weights instead of subsampling weights")
	f.Float64P("regularization", "r", 0.0, "L3 regularization coefficient")
	f.Float64("learning_rate", 0.0001, "initial Adam learning rate")
	f.Int("max_steps", 100000, "total training steps")
	f.Int("warm_up_steps", 0, "step of the first learning-rate drop (0 = max_steps/2)")

	f.Bool("double_entity_embedding", false, "entity dimension = 2 * hidden_dim")
	f.Bool("double_relation_embedding", false, "relation dimension = 2 * hidden_dim")
	f.Bool("triple_relation_embedding", false, "relation dimension = 3 * hidden_dim")
	f.Bool("quad_relation_embedding", false, "relation dimension = 4 * hidden_dim")

	f.Int("cpu_num", 10, "worker goroutines for sampling, training and evaluation")
	f.Int("test_batch_size", 4, "triples claimed per evaluation work unit")
	f.Int("neg_size_eval", 500, "sampled candidates per triple for valid/test evaluation")
	f.Int("neg_size_eval_train", 500, "sampled candidates per triple for train evaluation")
	f.Bool("eval_all", false, "rank against all entities with true triples filtered")

	f.Bool("filter_false_negatives", false, "reject training negatives that are known triples")
	f.Bool("freq_weighted_negatives", false, "draw training negatives by frequency^0.75")

	f.Int("log_steps", 100, "training log interval")
	f.Int("valid_steps", 10000, "validation interval during training")
	f.Int("test_log_steps", 1000, "evaluation progress log interval")
	f.Int("save_checkpoint_steps", 10000, "checkpoint interval")
	f.Int64("seed", 0, "random seed")

	f.Bool("fp16_checkpoint", false, "store checkpoint embeddings as float16")
	f.Bool("print_on_screen", false, "also log to stdout")
	f.String("log_level", "INFO", "log level: DEBUG, INFO, WARN, ERROR, DISABLED")
	f.String("http_addr", "", "listen address for the status HTTP server (empty = off)")

	if err := viper.BindPFlags(f); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("KGE")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
