// Package config loads layered settings: defaults, an optional config file,
// CODECLASS_* environment variables and command-line flags.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/japaniel/codeclass/pkg/evaluate"
	"github.com/japaniel/codeclass/pkg/segment"
	"github.com/japaniel/codeclass/pkg/vocab"
)

type Config struct {
	Paths PathsConfig `mapstructure:"paths"`
	Data  DataConfig  `mapstructure:"data"`
	Chunk ChunkConfig `mapstructure:"chunk"`
	Vocab VocabConfig `mapstructure:"vocab"`
	Eval  EvalConfig  `mapstructure:"eval"`
	Train TrainConfig `mapstructure:"train"`
	Scan  ScanConfig  `mapstructure:"scan"`
	Log   LogConfig   `mapstructure:"log"`
}

type PathsConfig struct {
	Languages string `mapstructure:"languages"`
	Dataset   string `mapstructure:"dataset"`
	Store     string `mapstructure:"store"`
	Metrics   string `mapstructure:"metrics"`
}

type DataConfig struct {
	TrainSplits []string `mapstructure:"train_splits"`
	TestSplits  []string `mapstructure:"test_splits"`
}

// ChunkConfig sets the chunk length. A non-empty Preset ("default" or
// "legacy") overrides Length.
type ChunkConfig struct {
	Length int    `mapstructure:"length"`
	Preset string `mapstructure:"preset"`
}

type VocabConfig struct {
	Size       int    `mapstructure:"size"`
	ReportSize int    `mapstructure:"report_size"`
	Unknown    string `mapstructure:"unknown"`
}

type EvalConfig struct {
	BatchSize  int  `mapstructure:"batch_size"`
	AllowDrift bool `mapstructure:"allow_drift"`
}

type TrainConfig struct {
	Epochs       int     `mapstructure:"epochs"`
	LearningRate float64 `mapstructure:"learning_rate"`
	L2           float64 `mapstructure:"l2"`
	Seed         int64   `mapstructure:"seed"`
}

type ScanConfig struct {
	Workers int  `mapstructure:"workers"`
	Strict  bool `mapstructure:"strict"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			Languages: "data/languages.txt",
			Dataset:   "data/files",
			Store:     "data/model/codeclass.db",
		},
		Data: DataConfig{
			TrainSplits: []string{"train", "valid"},
			TestSplits:  []string{"test"},
		},
		Chunk: ChunkConfig{Length: segment.DefaultChunkLength},
		Vocab: VocabConfig{
			Size:       vocab.DefaultSize,
			ReportSize: vocab.DefaultReportSize,
			Unknown:    vocab.Unknown,
		},
		Eval: EvalConfig{BatchSize: evaluate.DefaultBatchSize},
		Train: TrainConfig{
			Epochs:       50,
			LearningRate: 0.5,
			L2:           1e-4,
			Seed:         1,
		},
		Scan: ScanConfig{Workers: 4},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// flag name -> config key
var flagKeys = [][2]string{
	{"languages", "paths.languages"},
	{"dataset", "paths.dataset"},
	{"store", "paths.store"},
	{"metrics-file", "paths.metrics"},
	{"train-splits", "data.train_splits"},
	{"test-splits", "data.test_splits"},
	{"chunk-length", "chunk.length"},
	{"chunk-preset", "chunk.preset"},
	{"vocab-size", "vocab.size"},
	{"vocab-report-size", "vocab.report_size"},
	{"vocab-unknown", "vocab.unknown"},
	{"eval-batch-size", "eval.batch_size"},
	{"eval-allow-drift", "eval.allow_drift"},
	{"train-epochs", "train.epochs"},
	{"train-learning-rate", "train.learning_rate"},
	{"train-l2", "train.l2"},
	{"train-seed", "train.seed"},
	{"scan-workers", "scan.workers"},
	{"scan-strict", "scan.strict"},
	{"log-level", "log.level"},
	{"log-format", "log.format"},
	{"log-file", "log.file"},
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("languages", defaults.Paths.Languages, "Language map file (language extension per line)")
	fs.String("dataset", defaults.Paths.Dataset, "Dataset root containing one directory per split")
	fs.String("store", defaults.Paths.Store, "SQLite file holding model artifacts and run records")
	fs.String("metrics-file", defaults.Paths.Metrics, "Write Prometheus metrics to this file when set")
	fs.StringSlice("train-splits", defaults.Data.TrainSplits, "Splits scanned for training")
	fs.StringSlice("test-splits", defaults.Data.TestSplits, "Splits scanned for testing")
	fs.Int("chunk-length", defaults.Chunk.Length, "Chunk length in bytes before word-boundary extension")
	fs.String("chunk-preset", defaults.Chunk.Preset, "Chunk length preset (default|legacy), overrides --chunk-length")
	fs.Int("vocab-size", defaults.Vocab.Size, "Number of most frequent words kept in the vocabulary")
	fs.Int("vocab-report-size", defaults.Vocab.ReportSize, "Number of words in the analyze report")
	fs.String("vocab-unknown", defaults.Vocab.Unknown, "Marker substituted for out-of-vocabulary tokens")
	fs.Int("eval-batch-size", defaults.Eval.BatchSize, "Documents per evaluation batch")
	fs.Bool("eval-allow-drift", defaults.Eval.AllowDrift, "Log vocabulary drift instead of failing")
	fs.Int("train-epochs", defaults.Train.Epochs, "Gradient descent epochs")
	fs.Float64("train-learning-rate", defaults.Train.LearningRate, "Gradient descent step size")
	fs.Float64("train-l2", defaults.Train.L2, "L2 regularization strength")
	fs.Int64("train-seed", defaults.Train.Seed, "Shuffle seed")
	fs.Int("scan-workers", defaults.Scan.Workers, "Files read concurrently while scanning")
	fs.Bool("scan-strict", defaults.Scan.Strict, "Fail on unreadable files instead of skipping them")
	fs.String("log-level", defaults.Log.Level, "Log level (debug|info|warn|error)")
	fs.String("log-format", defaults.Log.Format, "Log format (text|json)")
	fs.String("log-file", defaults.Log.File, "Also append logs to this file")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for _, fk := range flagKeys {
			if f := fs.Lookup(fk[0]); f != nil {
				if err := v.BindPFlag(fk[1], f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", fk[0], err)
				}
			}
		}
	}

	v.SetEnvPrefix("CODECLASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("codeclass")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Chunk.applyPreset(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyPreset replaces Length with the length named by Preset.
func (c *ChunkConfig) applyPreset() error {
	switch strings.ToLower(strings.TrimSpace(c.Preset)) {
	case "":
	case "default":
		c.Length = segment.DefaultChunkLength
	case "legacy":
		c.Length = segment.LegacyChunkLength
	default:
		return fmt.Errorf("chunk.preset %q (expected default|legacy)", c.Preset)
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Chunk.Length <= 0:
		return fmt.Errorf("chunk.length must be positive, got %d", c.Chunk.Length)
	case c.Vocab.Size <= 0:
		return fmt.Errorf("vocab.size must be positive, got %d", c.Vocab.Size)
	case c.Eval.BatchSize <= 0:
		return fmt.Errorf("eval.batch_size must be positive, got %d", c.Eval.BatchSize)
	case strings.TrimSpace(c.Vocab.Unknown) == "" || strings.ContainsAny(c.Vocab.Unknown, " \t\n"):
		return fmt.Errorf("vocab.unknown must be a single non-blank token, got %q", c.Vocab.Unknown)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.languages", c.Paths.Languages)
	v.SetDefault("paths.dataset", c.Paths.Dataset)
	v.SetDefault("paths.store", c.Paths.Store)
	v.SetDefault("paths.metrics", c.Paths.Metrics)
	v.SetDefault("data.train_splits", c.Data.TrainSplits)
	v.SetDefault("data.test_splits", c.Data.TestSplits)
	v.SetDefault("chunk.length", c.Chunk.Length)
	v.SetDefault("chunk.preset", c.Chunk.Preset)
	v.SetDefault("vocab.size", c.Vocab.Size)
	v.SetDefault("vocab.report_size", c.Vocab.ReportSize)
	v.SetDefault("vocab.unknown", c.Vocab.Unknown)
	v.SetDefault("eval.batch_size", c.Eval.BatchSize)
	v.SetDefault("eval.allow_drift", c.Eval.AllowDrift)
	v.SetDefault("train.epochs", c.Train.Epochs)
	v.SetDefault("train.learning_rate", c.Train.LearningRate)
	v.SetDefault("train.l2", c.Train.L2)
	v.SetDefault("train.seed", c.Train.Seed)
	v.SetDefault("scan.workers", c.Scan.Workers)
	v.SetDefault("scan.strict", c.Scan.Strict)
	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
	v.SetDefault("log.file", c.Log.File)
}
