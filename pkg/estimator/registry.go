package estimator

import (
	"fmt"

	"cardbench/pkg/config"
)

// Algorithms lists the tags New understands.
var Algorithms = []string{
	"postgres", "true", "true_random", "random",
	"true_rank", "true_rank_tables", "saved",
	"xgboost", "rf", "fcnn", "mscn",
}

// New builds the estimator selected by cfg.Algorithm.
func New(cfg config.EstimatorConfig) (Estimator, error) {
	switch cfg.Algorithm {
	case "postgres":
		return NewNativeEstimate(), nil
	case "true":
		return NewGroundTruth(), nil
	case "true_random":
		return NewNoisyGroundTruth(cfg), nil
	case "random":
		return NewUniformRandom(cfg), nil
	case "true_rank":
		return NewRankRepair(), nil
	case "true_rank_tables":
		return NewRankRepairPerTableCount(), nil
	case "saved":
		if cfg.ModelDir == "" {
			return nil, fmt.Errorf("%w: saved requires model_dir", config.ErrInvalidConfig)
		}
		return NewReplayEstimates(cfg.ModelDir), nil
	case "xgboost":
		return NewGradientBoostedTrees(cfg), nil
	case "rf":
		return NewRandomForest(cfg), nil
	case "fcnn":
		e, err := NewFCNN(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	case "mscn":
		e, err := NewMSCN(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, cfg.Algorithm)
}
