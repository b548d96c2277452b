package estimator

import (
	"time"

	"cardbench/pkg/featurize"
	"cardbench/pkg/monitor"
	"cardbench/pkg/query"
)

// Instrumented records call timings and failures of the wrapped estimator.
type Instrumented struct {
	Estimator
	stats *monitor.RunStats
}

func Instrument(e Estimator, stats *monitor.RunStats) *Instrumented {
	return &Instrumented{Estimator: e, stats: stats}
}

func (i *Instrumented) Train(env *Env, samples []*query.Sample, fz featurize.Featurizer) error {
	start := time.Now()
	if err := i.Estimator.Train(env, samples, fz); err != nil {
		i.stats.RecordFailure(i.String(), "train")
		return err
	}
	i.stats.RecordTrain(i.String(), time.Since(start))
	return nil
}

func (i *Instrumented) Test(env *Env, samples []*query.Sample) ([]query.Estimates, error) {
	start := time.Now()
	out, err := i.Estimator.Test(env, samples)
	if err != nil {
		i.stats.RecordFailure(i.String(), "test")
		return nil, err
	}
	n := 0
	for _, est := range out {
		n += len(est)
	}
	i.stats.RecordTest(i.String(), time.Since(start), len(samples), n)
	return out, nil
}

func (i *Instrumented) Unwrap() Estimator { return i.Estimator }
