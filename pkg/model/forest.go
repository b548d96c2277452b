package model

import (
	"math/rand"

	"golang.org/x/sync/errgroup"
)

type RFParams struct {
	NEstimators    int
	MaxDepth       int
	MinChildWeight float64
	Seed           int64
	Workers        int
}

// RandomForest averages trees fitted on bootstrap resamples.
type RandomForest struct {
	Params      RFParams
	NumFeatures int
	Trees       []Tree
}

var _ Regressor = (*RandomForest)(nil)

func NewRandomForest(p RFParams) *RandomForest {
	return &RandomForest{Params: p}
}

// Fit grows the trees concurrently, at most Workers at a time. Every tree draws
// its seed up front, so the forest does not depend on scheduling.
func (f *RandomForest) Fit(X [][]float64, y []float64) error {
	width, err := checkTrainingSet(X, y)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(f.Params.Seed))
	seeds := make([]int64, f.Params.NEstimators)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}
	tp := TreeParams{MaxDepth: f.Params.MaxDepth, MinChildWeight: f.Params.MinChildWeight}
	trees := make([]Tree, len(seeds))

	var g errgroup.Group
	g.SetLimit(max(1, f.Params.Workers))
	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			local := rand.New(rand.NewSource(seed))
			idx := make([]int, len(y))
			for j := range idx {
				idx[j] = local.Intn(len(y))
			}
			trees[i] = FitTree(X, y, idx, tp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.NumFeatures, f.Trees = width, trees
	return nil
}

func (f *RandomForest) Predict(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for i := range f.Trees {
		sum += f.Trees[i].Predict(x)
	}
	return sum / float64(len(f.Trees))
}
