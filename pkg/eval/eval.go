// Package eval scores estimates against true cardinalities.
package eval

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/slices"

	"cardbench/pkg/query"
)

var ErrMissingEstimate = errors.New("eval: subplan has no estimate")

// QError is max(t/e, e/t) with both sides floored at one row.
func QError(truth, est float64) float64 {
	t, e := query.FloorEstimate(truth), query.FloorEstimate(est)
	return math.Max(t/e, e/t)
}

type Summary struct {
	Count  int
	Mean   float64
	Median float64
	P90    float64
	P99    float64
	Max    float64
}

// Evaluate returns the q-error of every non-root subplan, samples in input order
// and keys in sorted order. A container missing any subplan is an error.
func Evaluate(samples []*query.Sample, ests []query.Estimates) ([]float64, error) {
	if len(samples) != len(ests) {
		return nil, fmt.Errorf("eval: %d samples, %d estimate containers", len(samples), len(ests))
	}
	var errs []float64
	for i, s := range samples {
		for _, n := range s.SortedNodes() {
			e, ok := ests[i][n.Key]
			if !ok {
				return nil, fmt.Errorf("%w: %s in %s", ErrMissingEstimate, n.Key, s.Name)
			}
			errs = append(errs, QError(n.Card.Actual, e))
		}
		if extra := len(ests[i]) - s.NumSubplans(); extra > 0 {
			return nil, fmt.Errorf("eval: %s has %d estimates for unknown subplans", s.Name, extra)
		}
	}
	return errs, nil
}

func Summarize(qerrs []float64) Summary {
	if len(qerrs) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(qerrs)
	slices.Sort(sorted)
	sum := 0.0
	for _, q := range sorted {
		sum += q
	}
	return Summary{
		Count:  len(sorted),
		Mean:   sum / float64(len(sorted)),
		Median: percentile(sorted, 50),
		P90:    percentile(sorted, 90),
		P99:    percentile(sorted, 99),
		Max:    sorted[len(sorted)-1],
	}
}

// percentile interpolates linearly between closest ranks of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := min(lo+1, len(sorted)-1)
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
