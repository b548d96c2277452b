package estimator

import (
	"fmt"

	"cardbench/pkg/featurize"
	"cardbench/pkg/query"
)

func validateTrain(samples []*query.Sample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	return checkNil(samples)
}

func validateTest(samples []*query.Sample) error {
	if len(samples) == 0 {
		return fmt.Errorf("%w: empty test set", ErrMalformedSample)
	}
	return checkNil(samples)
}

func checkNil(samples []*query.Sample) error {
	for i, s := range samples {
		if s == nil {
			return fmt.Errorf("%w: sample %d is nil", ErrMalformedSample, i)
		}
	}
	return nil
}

// formatOutput splits a flat prediction vector back into per-sample containers.
// preds must follow the featurizer's order: samples in input order, each
// sample's non-root keys in SortedKeys order.
func formatOutput(samples []*query.Sample, preds []float64, unnormalize func(float64) float64) ([]query.Estimates, error) {
	want := 0
	for _, s := range samples {
		want += s.NumSubplans()
	}
	if len(preds) != want {
		return nil, fmt.Errorf("estimator: %d predictions for %d subplans", len(preds), want)
	}

	out := make([]query.Estimates, 0, len(samples))
	pos := 0
	for _, s := range samples {
		keys := s.SortedKeys()
		est := make(query.Estimates, len(keys))
		for _, key := range keys {
			card := unnormalize(preds[pos])
			pos++
			if !(card > 0) {
				return nil, fmt.Errorf("%w: %v for %s in %s", ErrNonPositiveEstimate, card, key, s.Name)
			}
			est[key] = card
		}
		out = append(out, est)
	}
	return out, nil
}

// checkRowWidth rejects feature rows the fitted model cannot consume.
func checkRowWidth(X [][]float64, want int) error {
	for i, row := range X {
		if len(row) != want {
			return fmt.Errorf("%w: row %d has %d features, model expects %d", ErrFeatureMismatch, i, len(row), want)
		}
	}
	return nil
}

// checkLoadedWidth compares a restored model's input width with fz.
func checkLoadedWidth(fz featurize.Featurizer, want int) error {
	if fz == nil {
		return fmt.Errorf("%w: no featurizer", ErrFeatureMismatch)
	}
	if got := fz.NumFeatures(); got != want {
		return fmt.Errorf("%w: featurizer has %d features, model expects %d", ErrFeatureMismatch, got, want)
	}
	return nil
}
