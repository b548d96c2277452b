package estimator

import (
	"fmt"
	"path/filepath"

	"cardbench/pkg/featurize"
	"cardbench/pkg/query"
	"cardbench/pkg/storage"
)

// ReplayEstimates serves predictions saved by an earlier run.
type ReplayEstimates struct {
	modelDir string
	saved    map[string]query.Estimates
}

func NewReplayEstimates(modelDir string) *ReplayEstimates {
	return &ReplayEstimates{modelDir: modelDir}
}

// Train loads every saved container from the run directory.
func (e *ReplayEstimates) Train(env *Env, samples []*query.Sample, _ featurize.Featurizer) error {
	if err := validateTrain(samples); err != nil {
		return err
	}
	store, err := storage.OpenExistingPredictionStore(e.modelDir)
	if err != nil {
		return err
	}
	defer store.Close()

	saved, err := store.LoadAll()
	if err != nil {
		return fmt.Errorf("estimator: load saved predictions: %w", err)
	}
	e.saved = saved
	env.log().Info("loaded saved predictions", "dir", e.modelDir, "queries", len(saved))
	return nil
}

func (e *ReplayEstimates) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	if e.saved == nil {
		return nil, ErrNotTrained
	}
	if err := validateTest(samples); err != nil {
		return nil, err
	}
	out := make([]query.Estimates, 0, len(samples))
	for _, s := range samples {
		est, ok := e.saved[s.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuery, s.Name)
		}
		out = append(out, est.Clone())
	}
	return out, nil
}

func (e *ReplayEstimates) ExpName() string {
	return "SavedRun-" + filepath.Base(e.modelDir)
}

func (e *ReplayEstimates) NumParameters() float64 { return 0 }
func (e *ReplayEstimates) String() string         { return "SavedAlg" }
