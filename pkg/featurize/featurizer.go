// Package featurize turns subplans into fixed-width numeric rows and maps
// normalized predictions back to row counts.
//
// Every method visits samples in input order and, within a sample, the nodes in
// query.Sample.SortedKeys order. Estimators rely on that order to attach
// predictions back to subplans.
package featurize

import (
	"errors"

	"cardbench/pkg/query"
)

var ErrNoSamples = errors.New("featurize: no samples")

type Featurizer interface {
	// Featurize returns one flat row and one normalized target per subplan.
	Featurize(samples []*query.Sample) (X [][]float64, Y []float64, err error)
	// FeaturizeSets returns the per-subplan table/predicate/join sets.
	FeaturizeSets(samples []*query.Sample) ([]SetFeatures, []float64, error)
	NumFeatures() int
	Normalize(card float64) float64
	Unnormalize(v float64) float64
}
