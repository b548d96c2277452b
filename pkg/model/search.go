package model

import (
	"math"
	"math/rand"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// GBGrid lists the candidate values of each boosting hyperparameter.
type GBGrid struct {
	LR          []float64
	NEstimators []int
	MaxDepth    []int
	Subsample   []float64
}

func DefaultGBGrid() GBGrid {
	return GBGrid{
		LR:          []float64{0.001, 0.01},
		NEstimators: []int{100, 250, 500, 1000},
		MaxDepth:    []int{3, 6, 8, 10},
		Subsample:   []float64{1.0, 0.8, 0.5},
	}
}

func (g GBGrid) candidates(base GBParams) []GBParams {
	var out []GBParams
	for _, lr := range g.LR {
		for _, n := range g.NEstimators {
			for _, d := range g.MaxDepth {
				for _, s := range g.Subsample {
					p := base
					p.LR, p.NEstimators, p.MaxDepth, p.Subsample = lr, n, d, s
					out = append(out, p)
				}
			}
		}
	}
	return out
}

// SearchResult is one scored candidate.
type SearchResult struct {
	Params GBParams
	MSE    float64
}

// RandomizedSearch scores iters random grid points on an 80/20 holdout split and
// returns them with the best first. Candidates are fitted up to workers at a time.
func RandomizedSearch(X [][]float64, y []float64, grid GBGrid, base GBParams, iters, workers int, rng *rand.Rand) ([]SearchResult, error) {
	if _, err := checkTrainingSet(X, y); err != nil {
		return nil, err
	}
	if len(y) < 2 {
		return nil, ErrEmptyTrainingSet
	}

	perm := rng.Perm(len(y))
	cut := max(1, int(math.Round(0.8*float64(len(y)))))
	if cut == len(y) {
		cut--
	}
	trainX, trainY := gather(X, y, perm[:cut])
	holdX, holdY := gather(X, y, perm[cut:])

	all := grid.candidates(base)
	rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if iters > 0 && iters < len(all) {
		all = all[:iters]
	}

	results := make([]SearchResult, len(all))
	var g errgroup.Group
	g.SetLimit(max(1, workers))
	for i, p := range all {
		i, p := i, p
		g.Go(func() error {
			gb := NewGradientBoosting(p)
			if err := gb.Fit(trainX, trainY); err != nil {
				return err
			}
			results[i] = SearchResult{Params: p, MSE: MeanSquaredError(PredictAll(gb, holdX), holdY)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// stable so ties keep sampling order
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		switch {
		case a.MSE < b.MSE:
			return -1
		case a.MSE > b.MSE:
			return 1
		}
		return 0
	})
	return results, nil
}

func gather(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	gx := make([][]float64, len(idx))
	gy := make([]float64, len(idx))
	for i, j := range idx {
		gx[i], gy[i] = X[j], y[j]
	}
	return gx, gy
}
