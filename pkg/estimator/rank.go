package estimator

import (
	"fmt"

	"golang.org/x/exp/slices"

	"cardbench/pkg/query"
)

// RankEntry is one subplan's true value and its (possibly repaired) estimate.
type RankEntry struct {
	Key      query.SubplanKey
	Actual   float64
	Estimate float64
}

// RepairRanks makes estimates non-decreasing in true-value order. Entries are
// stable-sorted by Actual, then walked forward: an estimate smaller than its
// predecessor's is raised to it, and the raised value is what the next entry
// compares against. The input slice is not modified.
func RepairRanks(entries []RankEntry) []RankEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b RankEntry) int {
		switch {
		case a.Actual < b.Actual:
			return -1
		case a.Actual > b.Actual:
			return 1
		}
		return 0
	})
	for i := 1; i < len(out); i++ {
		if out[i].Estimate < out[i-1].Estimate {
			out[i].Estimate = out[i-1].Estimate
		}
	}
	return out
}

// rankEntries collects the non-root nodes in iteration order.
func rankEntries(s *query.Sample) ([]RankEntry, error) {
	var entries []RankEntry
	for _, n := range s.Nodes() {
		if n.Key.IsRoot() {
			continue
		}
		entries = append(entries, RankEntry{
			Key:      n.Key,
			Actual:   n.Card.Actual,
			Estimate: query.FloorEstimate(n.Card.Expected),
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s has no subplans", ErrMalformedSample, s.Name)
	}
	return entries, nil
}

// RankRepair repairs native estimates across the whole query.
type RankRepair struct {
	untrained
	namer expNamer
}

func NewRankRepair() *RankRepair { return &RankRepair{} }

func (e *RankRepair) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	if err := validateTest(samples); err != nil {
		return nil, err
	}
	out := make([]query.Estimates, 0, len(samples))
	for _, s := range samples {
		entries, err := rankEntries(s)
		if err != nil {
			return nil, err
		}
		est := make(query.Estimates, len(entries))
		for _, r := range RepairRanks(entries) {
			est[r.Key] = r.Estimate
		}
		out = append(out, est)
	}
	return out, nil
}

func (e *RankRepair) ExpName() string { return e.namer.get(e.String()) }
func (e *RankRepair) String() string  { return "true_rank" }

// RankRepairPerTableCount repairs each group of equally wide subplans on its own.
type RankRepairPerTableCount struct {
	untrained
	namer expNamer
}

func NewRankRepairPerTableCount() *RankRepairPerTableCount { return &RankRepairPerTableCount{} }

func (e *RankRepairPerTableCount) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	if err := validateTest(samples); err != nil {
		return nil, err
	}
	out := make([]query.Estimates, 0, len(samples))
	for _, s := range samples {
		entries, err := rankEntries(s)
		if err != nil {
			return nil, err
		}
		groups := map[int][]RankEntry{}
		for _, r := range entries {
			groups[r.Key.Len()] = append(groups[r.Key.Len()], r)
		}
		est := make(query.Estimates, len(entries))
		for _, group := range groups {
			for _, r := range RepairRanks(group) {
				est[r.Key] = r.Estimate
			}
		}
		out = append(out, est)
	}
	return out, nil
}

func (e *RankRepairPerTableCount) ExpName() string { return e.namer.get(e.String()) }
func (e *RankRepairPerTableCount) String() string  { return "true_rank_tables" }
