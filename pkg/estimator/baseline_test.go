package estimator

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardbench/pkg/config"
	"cardbench/pkg/query"
	"cardbench/pkg/query/querytest"
	"cardbench/pkg/storage"
)

func TestNativeEstimateAndGroundTruth(t *testing.T) {
	s := querytest.MustSample(t, "1a.sql",
		querytest.Node(1, 1, 1),
		querytest.Node(10, 12, 100, "t"),
		querytest.Node(0, 0.25, 400, "mi"),
		querytest.Node(40, 35, 40000, "mi", "t"),
	)
	samples := []*query.Sample{s}

	native, err := NewNativeEstimate().Test(nil, samples)
	require.NoError(t, err)
	assert.Equal(t, query.Estimates{"t": 12, "mi": 1, "mi t": 35}, native[0])

	truth, err := NewGroundTruth().Test(nil, samples)
	require.NoError(t, err)
	assert.Equal(t, query.Estimates{"t": 10, "mi": 1, "mi t": 40}, truth[0])
}

func TestBaselinesCoverAndPreserveInput(t *testing.T) {
	samples := synthetic(1, 6)
	before := snapshot(samples)
	cfg := config.DefaultEstimator()
	cfg.Seed = 3

	for _, e := range []Estimator{
		NewNativeEstimate(),
		NewGroundTruth(),
		NewNoisyGroundTruth(cfg),
		NewUniformRandom(cfg),
		NewRankRepair(),
		NewRankRepairPerTableCount(),
	} {
		t.Run(e.String(), func(t *testing.T) {
			require.NoError(t, e.Train(nil, samples, nil))
			out, err := e.Test(nil, samples)
			require.NoError(t, err)
			requireCoverage(t, samples, out)
			assert.Equal(t, before, snapshot(samples))
			assert.Zero(t, e.NumParameters())
		})
	}
}

func TestBaselinesRejectBadInput(t *testing.T) {
	for _, e := range []Estimator{NewNativeEstimate(), NewGroundTruth(), NewUniformRandom(config.DefaultEstimator())} {
		assert.ErrorIs(t, e.Train(nil, nil, nil), ErrNoSamples)
		assert.ErrorIs(t, e.Train(nil, []*query.Sample{nil}, nil), ErrMalformedSample)
		_, err := e.Test(nil, nil)
		assert.ErrorIs(t, err, ErrMalformedSample)
		_, err = e.Test(nil, []*query.Sample{nil})
		assert.ErrorIs(t, err, ErrMalformedSample)
	}
}

func TestNoisyGroundTruthBound(t *testing.T) {
	samples := synthetic(2, 10)
	for _, maxNoise := range []int{1, 50, 300} {
		cfg := config.DefaultEstimator()
		cfg.MaxNoise, cfg.Seed = maxNoise, int64(maxNoise)
		e := NewNoisyGroundTruth(cfg)
		require.Equal(t, maxNoise, e.MaxNoise())

		out, err := e.Test(nil, samples)
		require.NoError(t, err)
		for i, s := range samples {
			for _, n := range s.SortedNodes() {
				got, truth := out[i][n.Key], n.Card.Actual
				// the bound holds for actual >= 1; below that the floor wins
				require.GreaterOrEqual(t, truth, 1.0, "%s in %s", n.Key, s.Name)
				assert.GreaterOrEqual(t, got, 1.0)
				assert.LessOrEqual(t, math.Abs(got-truth)/truth, float64(maxNoise)/100+1e-12, "%s: %v vs %v", n.Key, got, truth)
			}
		}
	}
}

func TestNoisyGroundTruthFloorsFractionalTruth(t *testing.T) {
	s := querytest.MustSample(t, "tiny", querytest.Node(1, 1, 1), querytest.Node(0.5, 1, 10, "t"))
	cfg := config.DefaultEstimator()
	cfg.MaxNoise, cfg.Seed = 10, 3
	out, err := NewNoisyGroundTruth(cfg).Test(nil, []*query.Sample{s})
	require.NoError(t, err)
	assert.Equal(t, 1.0, out[0][query.NewSubplanKey("t")])
}

func TestNoisyGroundTruthDrawsMaxNoise(t *testing.T) {
	for seed := int64(1); seed < 20; seed++ {
		cfg := config.DefaultEstimator()
		cfg.Seed = seed
		n := NewNoisyGroundTruth(cfg).MaxNoise()
		assert.GreaterOrEqual(t, n, 1)
		assert.LessOrEqual(t, n, 500)
	}
}

func TestNoisyGroundTruthUnbiasedSign(t *testing.T) {
	cfg := config.DefaultEstimator()
	cfg.MaxNoise, cfg.Seed = 50, 9
	e := NewNoisyGroundTruth(cfg)
	samples := synthetic(3, 40)
	out, err := e.Test(nil, samples)
	require.NoError(t, err)

	up, down := 0, 0
	for i, s := range samples {
		for _, n := range s.SortedNodes() {
			if out[i][n.Key] > n.Card.Actual {
				up++
			} else {
				down++
			}
		}
	}
	total := float64(up + down)
	assert.InDelta(t, 0.5, float64(up)/total, 0.1)
}

func TestUniformRandomWithinBound(t *testing.T) {
	cfg := config.DefaultEstimator()
	cfg.Seed = 5
	samples := synthetic(4, 5)
	out, err := NewUniformRandom(cfg).Test(nil, samples)
	require.NoError(t, err)
	for i, s := range samples {
		for _, n := range s.SortedNodes() {
			assert.LessOrEqual(t, out[i][n.Key], math.Max(n.Card.Total, 1))
		}
	}
}

func TestExpNames(t *testing.T) {
	assert.Equal(t, "Postgres", NewNativeEstimate().ExpName())
	assert.Equal(t, "True", NewGroundTruth().ExpName())

	e := NewUniformRandom(config.DefaultEstimator())
	name := e.ExpName()
	assert.True(t, strings.HasPrefix(name, "Random"))
	assert.Greater(t, len(name), len("Random"))
	assert.Equal(t, name, e.ExpName(), "suffix is cached per instance")

	assert.Equal(t, "SavedRun-run42", NewReplayEstimates(filepath.Join("results", "run42")).ExpName())
}

func TestReplayEstimates(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.OpenPredictionStore(dir)
	require.NoError(t, err)
	saved := query.Estimates{"t": 12.5, "mi t": 3}
	require.NoError(t, store.Put("1a.sql", saved))
	require.NoError(t, store.Close())

	known := querytest.MustSample(t, "1a.sql", querytest.Node(10, 12, 100, "t"))
	unknown := querytest.MustSample(t, "2b.sql", querytest.Node(10, 12, 100, "t"))

	e := NewReplayEstimates(dir)
	_, err = e.Test(nil, []*query.Sample{known})
	assert.ErrorIs(t, err, ErrNotTrained)

	require.NoError(t, e.Train(nil, []*query.Sample{known}, nil))
	out, err := e.Test(nil, []*query.Sample{known})
	require.NoError(t, err)
	assert.Equal(t, saved, out[0])

	out[0]["t"] = -1
	again, err := e.Test(nil, []*query.Sample{known})
	require.NoError(t, err)
	assert.Equal(t, 12.5, again[0]["t"], "returned containers are copies")

	_, err = e.Test(nil, []*query.Sample{known, unknown})
	assert.ErrorIs(t, err, ErrUnknownQuery)
}

func TestReplayMissingDirectory(t *testing.T) {
	e := NewReplayEstimates(filepath.Join(t.TempDir(), "absent"))
	s := querytest.MustSample(t, "q", querytest.Node(1, 1, 1, "t"))
	assert.Error(t, e.Train(nil, []*query.Sample{s}, nil))
}
