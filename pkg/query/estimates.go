package query

import (
	"math"

	"golang.org/x/exp/slices"
)

// MinEstimate is the floor applied to heuristic estimates; a row count below one
// row is never reported.
const MinEstimate = 1.0

// Estimates maps every non-root subplan of one sample to its predicted cardinality.
type Estimates map[SubplanKey]float64

func FloorEstimate(v float64) float64 {
	if math.IsNaN(v) || v < MinEstimate {
		return MinEstimate
	}
	return v
}

func (e Estimates) Clone() Estimates {
	out := make(Estimates, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func (e Estimates) Keys() []SubplanKey {
	keys := make([]SubplanKey, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b SubplanKey) int {
		return a.Compare(b)
	})
	return keys
}
