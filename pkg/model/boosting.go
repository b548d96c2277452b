package model

import (
	"math"
	"math/rand"
)

type GBParams struct {
	LR             float64
	NEstimators    int
	MaxDepth       int
	Subsample      float64
	MinChildWeight float64
	Seed           int64
}

// GradientBoosting fits squared-error boosted trees: each round fits a tree to
// the current residuals on a row subsample and adds it scaled by LR.
type GradientBoosting struct {
	Params      GBParams
	NumFeatures int
	Base        float64
	Trees       []Tree
}

var _ Regressor = (*GradientBoosting)(nil)

func NewGradientBoosting(p GBParams) *GradientBoosting {
	return &GradientBoosting{Params: p}
}

func (g *GradientBoosting) Fit(X [][]float64, y []float64) error {
	width, err := checkTrainingSet(X, y)
	if err != nil {
		return err
	}
	g.NumFeatures = width
	rng := rand.New(rand.NewSource(g.Params.Seed))
	n := len(y)

	g.Base = 0
	for _, v := range y {
		g.Base += v
	}
	g.Base /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = g.Base
	}
	residual := make([]float64, n)
	tp := TreeParams{MaxDepth: g.Params.MaxDepth, MinChildWeight: g.Params.MinChildWeight}
	sub := g.Params.Subsample
	if sub <= 0 || sub > 1 {
		sub = 1
	}
	take := max(1, int(math.Round(sub*float64(n))))

	g.Trees = make([]Tree, 0, g.Params.NEstimators)
	for m := 0; m < g.Params.NEstimators; m++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		idx := rng.Perm(n)[:take]
		tree := FitTree(X, residual, idx, tp)
		for i, x := range X {
			pred[i] += g.Params.LR * tree.Predict(x)
		}
		g.Trees = append(g.Trees, tree)
	}
	return nil
}

func (g *GradientBoosting) Predict(x []float64) float64 {
	out := g.Base
	for i := range g.Trees {
		out += g.Params.LR * g.Trees[i].Predict(x)
	}
	return out
}
