package estimator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardbench/pkg/query"
	"cardbench/pkg/query/querytest"
)

func synthetic(seed int64, n int) []*query.Sample {
	return querytest.Synthetic(rand.New(rand.NewSource(seed)), n)
}

// requireCoverage checks one container per sample whose keys are exactly the
// sample's non-root subplans, all estimates strictly positive.
func requireCoverage(t *testing.T, samples []*query.Sample, out []query.Estimates) {
	t.Helper()
	require.Len(t, out, len(samples))
	for i, s := range samples {
		assert.ElementsMatch(t, s.SortedKeys(), out[i].Keys(), "keys of %s", s.Name)
		for key, v := range out[i] {
			assert.Greater(t, v, 0.0, "%s in %s", key, s.Name)
		}
	}
}

func snapshot(samples []*query.Sample) [][]query.Node {
	out := make([][]query.Node, len(samples))
	for i, s := range samples {
		out[i] = s.Nodes()
	}
	return out
}
