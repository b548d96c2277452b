package model

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyTrainingSet = errors.New("model: empty training set")
	ErrShape            = errors.New("model: inconsistent feature rows")
)

// Regressor maps a feature row to one value. Fitted regressors are plain structs
// with exported fields so they can be persisted with gob.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) float64
}

func checkTrainingSet(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 {
		return 0, ErrEmptyTrainingSet
	}
	if len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows, %d targets", ErrShape, len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), width)
		}
	}
	return width, nil
}

// PredictAll runs r over every row.
func PredictAll(r Regressor, X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = r.Predict(x)
	}
	return out
}

func MeanSquaredError(pred, y []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	sum := 0.0
	for i := range y {
		d := pred[i] - y[i]
		sum += d * d
	}
	return sum / float64(len(y))
}
