package estimator

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"cardbench/pkg/config"
	"cardbench/pkg/featurize"
	"cardbench/pkg/model"
	"cardbench/pkg/query"
	"cardbench/pkg/storage"
)

const (
	gbtModelFile = "xgb_model.gob"
	rfModelFile  = "rf_model.gob"
)

// regressorTest featurizes samples, predicts each row and reassembles the
// containers. Shared by both tree ensembles.
func regressorTest(r model.Regressor, width int, fz featurize.Featurizer, samples []*query.Sample) ([]query.Estimates, error) {
	if r == nil || fz == nil {
		return nil, ErrNotTrained
	}
	if err := validateTest(samples); err != nil {
		return nil, err
	}
	X, _, err := fz.Featurize(samples)
	if err != nil {
		return nil, err
	}
	if err := checkRowWidth(X, width); err != nil {
		return nil, err
	}
	return formatOutput(samples, model.PredictAll(r, X), fz.Unnormalize)
}

func featurizeTrain(samples []*query.Sample, fz featurize.Featurizer) ([][]float64, []float64, error) {
	if err := validateTrain(samples); err != nil {
		return nil, nil, err
	}
	if fz == nil {
		return nil, nil, fmt.Errorf("%w: no featurizer", ErrMalformedSample)
	}
	X, Y, err := fz.Featurize(samples)
	if err != nil {
		return nil, nil, err
	}
	if len(X) == 0 {
		return nil, nil, fmt.Errorf("%w: training samples have no subplans", ErrNoSamples)
	}
	return X, Y, nil
}

// GradientBoostedTrees fits squared-error boosted regression trees on the flat
// features. With grid search on, hyperparameters come from a randomized search.
type GradientBoostedTrees struct {
	cfg   config.EstimatorConfig
	rng   *rand.Rand
	namer expNamer

	fz    featurize.Featurizer
	model *model.GradientBoosting
}

func NewGradientBoostedTrees(cfg config.EstimatorConfig) *GradientBoostedTrees {
	return &GradientBoostedTrees{cfg: cfg, rng: newRand(cfg.Seed)}
}

func (e *GradientBoostedTrees) Train(env *Env, samples []*query.Sample, fz featurize.Featurizer) error {
	X, Y, err := featurizeTrain(samples, fz)
	if err != nil {
		return err
	}
	logger := env.log().With("estimator", e.String())

	params := model.GBParams{
		LR:             e.cfg.LR,
		NEstimators:    e.cfg.NEstimators,
		MaxDepth:       e.cfg.MaxDepth,
		Subsample:      e.cfg.Subsample,
		MinChildWeight: float64(e.cfg.MinChildWeight),
		Seed:           e.rng.Int63(),
	}
	if e.cfg.GridSearch {
		results, err := model.RandomizedSearch(X, Y, model.DefaultGBGrid(), params, e.cfg.SearchIters, env.workers(), e.rng)
		if err != nil {
			return fmt.Errorf("estimator: grid search: %w", err)
		}
		params = results[0].Params
		logger.Info("best estimator found",
			"lr", params.LR,
			"n_estimators", params.NEstimators,
			"max_depth", params.MaxDepth,
			"subsample", params.Subsample,
			"holdout_mse", results[0].MSE,
		)
	}

	gb := model.NewGradientBoosting(params)
	if err := gb.Fit(X, Y); err != nil {
		return err
	}
	e.fz, e.model = fz, gb
	logger.Info("fitted gradient boosting", "rows", len(X), "features", len(X[0]), "trees", len(gb.Trees))
	return nil
}

func (e *GradientBoostedTrees) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	if e.model == nil {
		return nil, ErrNotTrained
	}
	return regressorTest(e.model, e.model.NumFeatures, e.fz, samples)
}

func (e *GradientBoostedTrees) SaveModel(dir string) error {
	if e.model == nil {
		return ErrNotTrained
	}
	return storage.SaveModel(filepath.Join(dir, gbtModelFile), e.model)
}

func (e *GradientBoostedTrees) LoadModel(dir string, fz featurize.Featurizer) error {
	var gb model.GradientBoosting
	if err := storage.LoadModel(filepath.Join(dir, gbtModelFile), &gb); err != nil {
		return err
	}
	if err := checkLoadedWidth(fz, gb.NumFeatures); err != nil {
		return err
	}
	e.fz, e.model = fz, &gb
	return nil
}

func (e *GradientBoostedTrees) ExpName() string       { return e.namer.get(e.String()) }
func (e *GradientBoostedTrees) NumParameters() float64 { return 0 }
func (e *GradientBoostedTrees) String() string         { return "XGBoost" }

// RandomForest averages bagged regression trees fitted in parallel.
type RandomForest struct {
	cfg   config.EstimatorConfig
	rng   *rand.Rand
	namer expNamer

	fz     featurize.Featurizer
	forest *model.RandomForest
}

func NewRandomForest(cfg config.EstimatorConfig) *RandomForest {
	return &RandomForest{cfg: cfg, rng: newRand(cfg.Seed)}
}

func (e *RandomForest) Train(env *Env, samples []*query.Sample, fz featurize.Featurizer) error {
	if e.cfg.GridSearch {
		return fmt.Errorf("%w: grid search for %s", ErrNotImplemented, e)
	}
	X, Y, err := featurizeTrain(samples, fz)
	if err != nil {
		return err
	}

	rf := model.NewRandomForest(model.RFParams{
		NEstimators:    e.cfg.NEstimators,
		MaxDepth:       e.cfg.MaxDepth,
		MinChildWeight: float64(e.cfg.MinChildWeight),
		Seed:           e.rng.Int63(),
		Workers:        env.workers(),
	})
	if err := rf.Fit(X, Y); err != nil {
		return err
	}
	e.fz, e.forest = fz, rf
	env.log().Info("fitted random forest", "estimator", e.String(), "rows", len(X), "trees", len(rf.Trees), "workers", env.workers())
	return nil
}

func (e *RandomForest) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	if e.forest == nil {
		return nil, ErrNotTrained
	}
	return regressorTest(e.forest, e.forest.NumFeatures, e.fz, samples)
}

func (e *RandomForest) SaveModel(dir string) error {
	if e.forest == nil {
		return ErrNotTrained
	}
	return storage.SaveModel(filepath.Join(dir, rfModelFile), e.forest)
}

func (e *RandomForest) LoadModel(dir string, fz featurize.Featurizer) error {
	var rf model.RandomForest
	if err := storage.LoadModel(filepath.Join(dir, rfModelFile), &rf); err != nil {
		return err
	}
	if err := checkLoadedWidth(fz, rf.NumFeatures); err != nil {
		return err
	}
	e.fz, e.forest = fz, &rf
	return nil
}

func (e *RandomForest) ExpName() string       { return e.namer.get(e.String()) }
func (e *RandomForest) NumParameters() float64 { return 0 }
func (e *RandomForest) String() string         { return "RandomForest" }
