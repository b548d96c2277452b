package estimator

import (
	"math/rand"

	"cardbench/pkg/config"
	"cardbench/pkg/featurize"
	"cardbench/pkg/query"
)

// mapNodes applies f to every non-root node in sorted key order and floors the
// result at query.MinEstimate.
func mapNodes(samples []*query.Sample, f func(query.Node) float64) ([]query.Estimates, error) {
	if err := validateTest(samples); err != nil {
		return nil, err
	}
	out := make([]query.Estimates, 0, len(samples))
	for _, s := range samples {
		nodes := s.SortedNodes()
		est := make(query.Estimates, len(nodes))
		for _, n := range nodes {
			est[n.Key] = query.FloorEstimate(f(n))
		}
		out = append(out, est)
	}
	return out, nil
}

// untrained is embedded by estimators that only validate their training input.
type untrained struct{}

func (untrained) Train(_ *Env, samples []*query.Sample, _ featurize.Featurizer) error {
	return validateTrain(samples)
}

func (untrained) NumParameters() float64 { return 0 }

// NativeEstimate reports the optimizer's own estimate.
type NativeEstimate struct {
	untrained
}

func NewNativeEstimate() *NativeEstimate { return &NativeEstimate{} }

func (e *NativeEstimate) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	return mapNodes(samples, func(n query.Node) float64 { return n.Card.Expected })
}

func (e *NativeEstimate) ExpName() string { return e.String() }
func (e *NativeEstimate) String() string  { return "Postgres" }

// GroundTruth reports the true cardinality.
type GroundTruth struct {
	untrained
}

func NewGroundTruth() *GroundTruth { return &GroundTruth{} }

func (e *GroundTruth) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	return mapNodes(samples, func(n query.Node) float64 { return n.Card.Actual })
}

func (e *GroundTruth) ExpName() string { return e.String() }
func (e *GroundTruth) String() string  { return "True" }

// NoisyGroundTruth moves each true value up or down by a random percentage in
// [1, MaxNoise]. MaxNoise is fixed for the lifetime of the instance.
type NoisyGroundTruth struct {
	untrained
	maxNoise int
	rng      *rand.Rand
	namer    expNamer
}

func NewNoisyGroundTruth(cfg config.EstimatorConfig) *NoisyGroundTruth {
	rng := newRand(cfg.Seed)
	maxNoise := cfg.MaxNoise
	if maxNoise <= 0 {
		maxNoise = 1 + rng.Intn(500)
	}
	return &NoisyGroundTruth{maxNoise: maxNoise, rng: rng}
}

func (e *NoisyGroundTruth) MaxNoise() int { return e.maxNoise }

func (e *NoisyGroundTruth) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	return mapNodes(samples, func(n query.Node) float64 {
		pct := 1 + e.rng.Intn(e.maxNoise)
		noise := n.Card.Actual * float64(pct) / 100
		if e.rng.Intn(2) == 0 {
			return n.Card.Actual + noise
		}
		return n.Card.Actual - noise
	})
}

func (e *NoisyGroundTruth) ExpName() string { return e.namer.get(e.String()) }
func (e *NoisyGroundTruth) String() string  { return "true_random" }

// UniformRandom guesses uniformly below the subplan's cardinality bound.
type UniformRandom struct {
	untrained
	rng   *rand.Rand
	namer expNamer
}

func NewUniformRandom(cfg config.EstimatorConfig) *UniformRandom {
	return &UniformRandom{rng: newRand(cfg.Seed)}
}

func (e *UniformRandom) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	return mapNodes(samples, func(n query.Node) float64 {
		return e.rng.Float64() * n.Card.Total
	})
}

func (e *UniformRandom) ExpName() string { return e.namer.get(e.String()) }
func (e *UniformRandom) String() string  { return "Random" }
