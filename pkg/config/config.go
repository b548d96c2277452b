package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid value")

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
	Data      DataConfig      `yaml:"data"`
	Storage   StorageConfig   `yaml:"storage"`
	Estimator EstimatorConfig `yaml:"estimator"`
}

type LogConfig struct {
	Level  string `yaml:"level"`   // debug, info, warn, error
	SeqURL string `yaml:"seq_url"` // optional Seq sink, e.g. http://localhost:5341
}

// RuntimeConfig selects the execution context once at process start.
type RuntimeConfig struct {
	Workers int `yaml:"workers"` // goroutines used to fit tree ensembles
}

type DataConfig struct {
	Train string `yaml:"train"` // sample file or directory
	Test  string `yaml:"test"`
}

type StorageConfig struct {
	ResultDir string `yaml:"result_dir"` // where predictions and models are written; empty disables
}

// EstimatorConfig enumerates every option an estimator understands. Options that
// do not apply to the selected algorithm are ignored.
type EstimatorConfig struct {
	Algorithm string `yaml:"algs"`
	Seed      int64  `yaml:"seed"` // 0 seeds from the clock

	// neural
	LossFunc        string  `yaml:"loss_func"` // mse | qloss
	Optimizer       string  `yaml:"optimizer"` // adam | ams | adamw | sgd
	LR              float64 `yaml:"lr"`
	WeightDecay     float64 `yaml:"weight_decay"`
	HiddenLayerSize int     `yaml:"hidden_layer_size"`
	NumHiddenLayers int     `yaml:"num_hidden_layers"`
	ClipGradient    float64 `yaml:"clip_gradient"` // 0 disables clipping
	MBSize          int     `yaml:"mb_size"`
	MaxEpochs       int     `yaml:"max_epochs"`
	EvalBatchSize   int     `yaml:"eval_batch_size"` // 0 keeps the per-model default

	// trees
	NEstimators    int     `yaml:"n_estimators"`
	MaxDepth       int     `yaml:"max_depth"`
	Subsample      float64 `yaml:"subsample"`
	MinChildWeight int     `yaml:"min_child_weight"`
	GridSearch     bool    `yaml:"grid_search"`
	SearchIters    int     `yaml:"search_iters"`

	// baselines
	ModelDir string `yaml:"model_dir"` // saved predictions to replay
	MaxNoise int    `yaml:"max_noise"` // percent; 0 draws one in [1,500]
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Runtime: RuntimeConfig{
			Workers: 4,
		},
		Estimator: DefaultEstimator(),
	}
}

func DefaultEstimator() EstimatorConfig {
	return EstimatorConfig{
		Algorithm:       "postgres",
		LossFunc:        "mse",
		Optimizer:       "adam",
		LR:              0.001,
		HiddenLayerSize: 64,
		NumHiddenLayers: 2,
		ClipGradient:    10,
		MBSize:          1024,
		MaxEpochs:       10,
		NEstimators:     100,
		MaxDepth:        6,
		Subsample:       1.0,
		MinChildWeight:  1,
		SearchIters:     10,
	}
}

func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		for _, p := range []string{"configs/cardbench.yaml", "cardbench.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := decode(data, cfg); err != nil {
					return cfg, fmt.Errorf("config: %s: %w", p, err)
				}
				applyDefaults(cfg)
				return cfg, cfg.Validate()
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}
	if err := decode(data, cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", configPath, err)
	}

	applyDefaults(cfg)
	return cfg, cfg.Validate()
}

// decode rejects keys that do not map to a field.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Runtime.Workers <= 0 {
		cfg.Runtime.Workers = 4
	}
	ApplyEstimatorDefaults(&cfg.Estimator)
}

// ApplyEstimatorDefaults fills zero-valued options. Explicit zeros for
// clip_gradient and weight_decay are kept since zero is meaningful there.
func ApplyEstimatorDefaults(ec *EstimatorConfig) {
	def := DefaultEstimator()
	if ec.Algorithm == "" {
		ec.Algorithm = def.Algorithm
	}
	if ec.LossFunc == "" {
		ec.LossFunc = def.LossFunc
	}
	if ec.Optimizer == "" {
		ec.Optimizer = def.Optimizer
	}
	if ec.LR == 0 {
		ec.LR = def.LR
	}
	if ec.HiddenLayerSize == 0 {
		ec.HiddenLayerSize = def.HiddenLayerSize
	}
	if ec.NumHiddenLayers == 0 {
		ec.NumHiddenLayers = def.NumHiddenLayers
	}
	if ec.MBSize == 0 {
		ec.MBSize = def.MBSize
	}
	if ec.MaxEpochs == 0 {
		ec.MaxEpochs = def.MaxEpochs
	}
	if ec.NEstimators == 0 {
		ec.NEstimators = def.NEstimators
	}
	if ec.MaxDepth == 0 {
		ec.MaxDepth = def.MaxDepth
	}
	if ec.Subsample == 0 {
		ec.Subsample = def.Subsample
	}
	if ec.MinChildWeight == 0 {
		ec.MinChildWeight = def.MinChildWeight
	}
	if ec.SearchIters == 0 {
		ec.SearchIters = def.SearchIters
	}
}

func (c *Config) Validate() error {
	if c.Runtime.Workers < 0 {
		return fmt.Errorf("%w: workers=%d", ErrInvalidConfig, c.Runtime.Workers)
	}
	return c.Estimator.Validate()
}

func (ec *EstimatorConfig) Validate() error {
	switch {
	case ec.LR < 0:
		return fmt.Errorf("%w: lr=%v", ErrInvalidConfig, ec.LR)
	case ec.WeightDecay < 0:
		return fmt.Errorf("%w: weight_decay=%v", ErrInvalidConfig, ec.WeightDecay)
	case ec.HiddenLayerSize < 0 || ec.NumHiddenLayers < 0:
		return fmt.Errorf("%w: hidden layers %dx%d", ErrInvalidConfig, ec.NumHiddenLayers, ec.HiddenLayerSize)
	case ec.ClipGradient < 0:
		return fmt.Errorf("%w: clip_gradient=%v", ErrInvalidConfig, ec.ClipGradient)
	case ec.MBSize < 0 || ec.MaxEpochs < 0 || ec.EvalBatchSize < 0:
		return fmt.Errorf("%w: mb_size=%d max_epochs=%d eval_batch_size=%d", ErrInvalidConfig, ec.MBSize, ec.MaxEpochs, ec.EvalBatchSize)
	case ec.NEstimators < 0 || ec.MaxDepth < 0 || ec.MinChildWeight < 0 || ec.SearchIters < 0:
		return fmt.Errorf("%w: tree options", ErrInvalidConfig)
	case ec.Subsample < 0 || ec.Subsample > 1:
		return fmt.Errorf("%w: subsample=%v", ErrInvalidConfig, ec.Subsample)
	case ec.MaxNoise < 0:
		return fmt.Errorf("%w: max_noise=%d", ErrInvalidConfig, ec.MaxNoise)
	}
	return nil
}
