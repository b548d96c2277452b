package estimator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardbench/pkg/config"
	"cardbench/pkg/monitor"
)

func TestNewKnowsEveryAlgorithm(t *testing.T) {
	names := map[string]string{
		"postgres":         "Postgres",
		"true":             "True",
		"true_random":      "true_random",
		"random":           "Random",
		"true_rank":        "true_rank",
		"true_rank_tables": "true_rank_tables",
		"saved":            "SavedAlg",
		"xgboost":          "XGBoost",
		"rf":               "RandomForest",
		"fcnn":             "FCNN",
		"mscn":             "MSCN",
	}
	require.Len(t, Algorithms, len(names))
	for _, alg := range Algorithms {
		cfg := config.DefaultEstimator()
		cfg.Algorithm = alg
		cfg.ModelDir = t.TempDir()
		e, err := New(cfg)
		require.NoError(t, err, alg)
		assert.Equal(t, names[alg], e.String())
	}
}

func TestNewRejectsUnknown(t *testing.T) {
	cfg := config.DefaultEstimator()
	cfg.Algorithm = "lstm"
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrUnknownAlgorithm)

	cfg.Algorithm = "saved"
	cfg.ModelDir = ""
	_, err = New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestInstrumentedRecordsCalls(t *testing.T) {
	stats := monitor.NewRunStats()
	e := Instrument(NewGroundTruth(), stats)
	samples := synthetic(20, 3)

	require.NoError(t, e.Train(nil, samples, nil))
	out, err := e.Test(nil, samples)
	require.NoError(t, err)
	requireCoverage(t, samples, out)

	_, err = e.Test(nil, nil)
	assert.ErrorIs(t, err, ErrMalformedSample)

	assert.Equal(t, uint64(1), stats.TrainCalls)
	assert.Equal(t, uint64(1), stats.TestCalls)
	assert.Equal(t, uint64(1), stats.Failures)
	assert.Equal(t, uint64(3*11), stats.Estimates)
	assert.Equal(t, "True", e.ExpName())
}

func TestAsPersisterUnwraps(t *testing.T) {
	stats := monitor.NewRunStats()
	_, ok := AsPersister(Instrument(NewNativeEstimate(), stats))
	assert.False(t, ok)

	p, ok := AsPersister(Instrument(NewGradientBoostedTrees(config.DefaultEstimator()), stats))
	require.True(t, ok)
	_, isGBT := p.(*GradientBoostedTrees)
	assert.True(t, isGBT)
}

func TestExpNameSuffixFixedPerInstance(t *testing.T) {
	a, b := NewRankRepair(), NewRankRepair()
	for i := 0; i < 3; i++ {
		assert.Equal(t, a.ExpName(), a.ExpName())
	}
	// two instances draw independent suffixes; a collision is a 1 in 2^32 event
	assert.NotEqual(t, a.ExpName(), b.ExpName())
}

func TestEnvDefaults(t *testing.T) {
	var nilEnv *Env
	assert.Equal(t, 1, nilEnv.workers())
	assert.NotNil(t, nilEnv.log())
	assert.Nil(t, nilEnv.journal())

	env := NewEnv(config.RuntimeConfig{Workers: 0}, nil)
	assert.Equal(t, 1, env.Workers)
}
