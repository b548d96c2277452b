// Package querytest builds query samples for tests.
package querytest

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"cardbench/pkg/query"
)

func Node(actual, expected, total float64, aliases ...string) query.Node {
	return query.Node{
		Key: query.NewSubplanKey(aliases...),
		Card: query.Cardinality{
			Actual:   actual,
			Expected: expected,
			Total:    total,
		},
	}
}

func MustSample(tb testing.TB, name string, nodes ...query.Node) *query.Sample {
	tb.Helper()
	s, err := query.NewSample(name, query.Meta{}, nodes)
	if err != nil {
		tb.Fatalf("build sample %s: %v", name, err)
	}
	return s
}

var starTables = map[string]string{
	"t":  "title",
	"mi": "movie_info",
	"ci": "cast_info",
	"mk": "movie_keyword",
}

var starSizes = map[string]float64{
	"t":  2000,
	"mi": 8000,
	"ci": 20000,
	"mk": 5000,
}

// Synthetic generates n star-join queries centred on title. Every connected
// subset of aliases becomes a node, plus the root. The same rng seed always yields
// the same samples.
func Synthetic(rng *rand.Rand, n int) []*query.Sample {
	dims := []string{"mi", "ci", "mk"}
	samples := make([]*query.Sample, 0, n)

	for i := 0; i < n; i++ {
		year := float64(1950 + rng.Intn(70))
		op := ">"
		sel := (2020 - year) / 70
		if rng.Intn(2) == 0 {
			op = "<"
			sel = 1 - sel
		}
		sel = math.Max(sel, 0.01)

		fanout := map[string]float64{}
		for _, d := range dims {
			fanout[d] = 1 + rng.Float64()*4
		}

		base := starSizes["t"] * sel
		nodes := []query.Node{Node(1, 1, 1)}
		for _, d := range dims {
			nodes = append(nodes, noisy(rng, starSizes[d], starSizes[d], d))
		}
		for mask := 0; mask < 1<<len(dims); mask++ {
			aliases := []string{"t"}
			actual, total := base, starSizes["t"]
			for b, d := range dims {
				if mask&(1<<b) != 0 {
					aliases = append(aliases, d)
					actual *= fanout[d]
					total *= starSizes[d]
				}
			}
			nodes = append(nodes, noisy(rng, math.Round(actual), total, aliases...))
		}

		meta := query.Meta{
			Tables: starTables,
			Joins:  []query.Join{{"t", "mi"}, {"t", "ci"}, {"t", "mk"}},
			Predicates: []query.Predicate{
				{Alias: "t", Column: "production_year", Op: op, Value: year},
			},
		}
		s, err := query.NewSample(fmt.Sprintf("q%d.sql", i), meta, nodes)
		if err != nil {
			panic(err)
		}
		samples = append(samples, s)
	}
	return samples
}

// noisy attaches an optimizer-style estimate: the true value off by a log-normal factor.
func noisy(rng *rand.Rand, actual, total float64, aliases ...string) query.Node {
	expected := math.Max(1, math.Round(actual*math.Exp(rng.NormFloat64())))
	return Node(actual, expected, total, aliases...)
}
