// Package estimator holds the cardinality estimators and the contract they share.
//
// Every estimator returns one query.Estimates per input sample, in input order,
// keyed by every non-root subplan of that sample. Estimates are strictly positive.
package estimator

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"cardbench/pkg/config"
	"cardbench/pkg/featurize"
	"cardbench/pkg/query"
	"cardbench/pkg/storage"
)

var (
	ErrNoSamples           = errors.New("estimator: no training samples")
	ErrMalformedSample     = errors.New("estimator: malformed sample")
	ErrNonPositiveEstimate = errors.New("estimator: non-positive estimate")
	ErrUnknownQuery        = errors.New("estimator: query not in saved predictions")
	ErrNotImplemented      = errors.New("estimator: not implemented")
	ErrNotTrained          = errors.New("estimator: not trained")
	ErrUnknownAlgorithm    = errors.New("estimator: unknown algorithm")
	ErrFeatureMismatch     = errors.New("estimator: featurizer does not match model")
)

type Estimator interface {
	// Train fits the estimator. Retraining means building a fresh instance.
	Train(env *Env, samples []*query.Sample, fz featurize.Featurizer) error
	// Test never mutates samples.
	Test(env *Env, samples []*query.Sample) ([]query.Estimates, error)
	ExpName() string
	// NumParameters is the model size in MB at four bytes per parameter.
	NumParameters() float64
	String() string
}

// Persister is implemented by estimators with a fitted model worth saving.
type Persister interface {
	SaveModel(dir string) error
	LoadModel(dir string, fz featurize.Featurizer) error
}

// Env is the execution context chosen once at process start.
type Env struct {
	Workers int
	Logger  *slog.Logger
	Journal *storage.Journal // optional per-epoch training log
}

func NewEnv(rt config.RuntimeConfig, logger *slog.Logger) *Env {
	return &Env{Workers: max(1, rt.Workers), Logger: logger}
}

func (e *Env) log() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Env) workers() int {
	if e == nil || e.Workers <= 0 {
		return 1
	}
	return e.Workers
}

func (e *Env) journal() *storage.Journal {
	if e == nil {
		return nil
	}
	return e.Journal
}

// expNamer appends a random suffix to a name the first time it is asked for.
type expNamer struct {
	once sync.Once
	name string
}

func (n *expNamer) get(base string) string {
	n.once.Do(func() {
		n.name = fmt.Sprintf("%s%d", base, rand.Uint32())
		slog.Info("experiment name", "name", n.name)
	})
	return n.name
}

// newRand seeds from the clock when seed is zero.
func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// AsPersister looks through wrappers for a Persister.
func AsPersister(e Estimator) (Persister, bool) {
	for {
		if p, ok := e.(Persister); ok {
			return p, true
		}
		u, ok := e.(interface{ Unwrap() Estimator })
		if !ok {
			return nil, false
		}
		e = u.Unwrap()
	}
}
