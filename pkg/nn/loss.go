package nn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrUnknownLoss = errors.New("nn: unknown loss function")

// Loss returns the mean loss over a column of predictions and its gradient with
// respect to each prediction.
type Loss interface {
	Name() string
	Compute(pred, y *mat.Dense) (float64, *mat.Dense)
}

func ParseLoss(tag string) (Loss, error) {
	switch tag {
	case "mse":
		return MSE{}, nil
	case "qloss":
		return QLoss{Eps: 1e-4}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLoss, tag)
}

type MSE struct{}

func (MSE) Name() string { return "mse" }

func (MSE) Compute(pred, y *mat.Dense) (float64, *mat.Dense) {
	r, c := pred.Dims()
	n := float64(r * c)
	var diff mat.Dense
	diff.Sub(pred, y)

	total := 0.0
	var grad mat.Dense
	grad.Apply(func(_, _ int, d float64) float64 {
		total += d * d
		return 2 * d / n
	}, &diff)
	return total / n, &grad
}

// QLoss is the mean q-error max(y/p, p/y), with both sides clamped at Eps.
type QLoss struct {
	Eps float64
}

func (QLoss) Name() string { return "qloss" }

func (q QLoss) Compute(pred, y *mat.Dense) (float64, *mat.Dense) {
	r, c := pred.Dims()
	n := float64(r * c)
	total := 0.0
	var grad mat.Dense
	grad.Apply(func(i, j int, p float64) float64 {
		t := math.Max(y.At(i, j), q.Eps)
		clamped := p < q.Eps
		p = math.Max(p, q.Eps)
		if t/p >= p/t {
			total += t / p
			if clamped {
				return 0
			}
			return -t / (p * p) / n
		}
		total += p / t
		return 1 / t / n
	}, pred)
	return total / n, &grad
}
