package featurize

import (
	"fmt"
	"math"

	mapset "github.com/deckarep/golang-set"
	"golang.org/x/exp/slices"

	"cardbench/pkg/query"
)

// Ops are the predicate operators that get their own one-hot slot.
var Ops = []string{"=", "<", ">", "<=", ">=", "!=", "like", "in"}

// Basic is the reference featurizer: bag-of-tables, bag-of-joins, per-column
// predicate slots and log-scaled flow values. Targets are log(actual) min-max
// scaled into [0,1] over the training set.
//
// All fields are exported so a fitted Basic can be persisted with gob.
type Basic struct {
	Tables    []string
	Columns   []string // "table.column"
	JoinEdges []string // "tableA=tableB", sorted pair

	TableIndex  map[string]int
	ColumnIndex map[string]int
	JoinIndex   map[string]int

	ColumnMin map[string]float64
	ColumnMax map[string]float64

	MinLog    float64
	MaxLog    float64
	MaxTables int
}

var _ Featurizer = (*Basic)(nil)

// Fit builds the vocabularies and the normalization range from training samples.
func Fit(samples []*query.Sample) (*Basic, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	tables := map[string]struct{}{}
	columns := map[string]struct{}{}
	joins := map[string]struct{}{}
	b := &Basic{
		ColumnMin: map[string]float64{},
		ColumnMax: map[string]float64{},
		MinLog:    math.Inf(1),
		MaxLog:    math.Inf(-1),
	}

	for _, s := range samples {
		if s == nil {
			return nil, fmt.Errorf("featurize: nil sample")
		}
		for alias := range s.Meta.Tables {
			tables[s.TableOf(alias)] = struct{}{}
		}
		for _, j := range s.Meta.Joins {
			joins[joinKey(s, j)] = struct{}{}
		}
		for _, p := range s.Meta.Predicates {
			col := columnKey(s, p)
			columns[col] = struct{}{}
			if lo, ok := b.ColumnMin[col]; !ok || p.Value < lo {
				b.ColumnMin[col] = p.Value
			}
			if hi, ok := b.ColumnMax[col]; !ok || p.Value > hi {
				b.ColumnMax[col] = p.Value
			}
		}
		for _, n := range s.SortedNodes() {
			for _, alias := range n.Key.Aliases() {
				tables[s.TableOf(alias)] = struct{}{}
			}
			if n.Key.Len() > b.MaxTables {
				b.MaxTables = n.Key.Len()
			}
			l := logCard(n.Card.Actual)
			b.MinLog = math.Min(b.MinLog, l)
			b.MaxLog = math.Max(b.MaxLog, l)
		}
	}
	if math.IsInf(b.MinLog, 1) {
		b.MinLog, b.MaxLog = 0, 1
	}
	if b.MaxTables == 0 {
		b.MaxTables = 1
	}

	b.Tables, b.TableIndex = vocab(tables)
	b.Columns, b.ColumnIndex = vocab(columns)
	b.JoinEdges, b.JoinIndex = vocab(joins)
	return b, nil
}

func vocab(set map[string]struct{}) ([]string, map[string]int) {
	words := make([]string, 0, len(set))
	for w := range set {
		words = append(words, w)
	}
	slices.Sort(words)
	idx := make(map[string]int, len(words))
	for i, w := range words {
		idx[w] = i
	}
	return words, idx
}

func logCard(v float64) float64 {
	return math.Log(math.Max(v, 1))
}

func columnKey(s *query.Sample, p query.Predicate) string {
	return s.TableOf(p.Alias) + "." + p.Column
}

func joinKey(s *query.Sample, j query.Join) string {
	l, r := s.TableOf(j[0]), s.TableOf(j[1])
	if r < l {
		l, r = r, l
	}
	return l + "=" + r
}

func (b *Basic) logRange() float64 {
	r := b.MaxLog - b.MinLog
	if r <= 0 {
		return 1
	}
	return r
}

func (b *Basic) Normalize(card float64) float64 {
	return (logCard(card) - b.MinLog) / b.logRange()
}

func (b *Basic) Unnormalize(v float64) float64 {
	return math.Exp(v*b.logRange() + b.MinLog)
}

func (b *Basic) predWidth() int {
	return max(len(b.Columns), 1) + len(Ops) + 1
}

func (b *Basic) tableWidth() int { return max(len(b.Tables), 1) }

func (b *Basic) joinWidth() int { return max(len(b.JoinEdges), 1) }

const flowWidth = 3

// NumFeatures is the width of a flat row: tables, joins, one predicate block per
// column, then the flow values.
func (b *Basic) NumFeatures() int {
	return b.tableWidth() + b.joinWidth() + max(len(b.Columns), 1)*(2+len(Ops)) + flowWidth
}

func (b *Basic) normValue(col string, v float64) float64 {
	lo, hi := b.ColumnMin[col], b.ColumnMax[col]
	if hi <= lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

func (b *Basic) flow(n query.Node) []float64 {
	return []float64{
		b.Normalize(n.Card.Expected),
		b.Normalize(n.Card.Total),
		float64(n.Key.Len()) / float64(b.MaxTables),
	}
}

func aliasSet(key query.SubplanKey) mapset.Set {
	set := mapset.NewSet()
	for _, a := range key.Aliases() {
		set.Add(a)
	}
	return set
}

func (b *Basic) Featurize(samples []*query.Sample) ([][]float64, []float64, error) {
	var X [][]float64
	var Y []float64
	numCols := max(len(b.Columns), 1)
	predBlock := 2 + len(Ops)
	joinOff := b.tableWidth()
	predOff := joinOff + b.joinWidth()
	flowOff := predOff + numCols*predBlock

	for _, s := range samples {
		if s == nil {
			return nil, nil, fmt.Errorf("featurize: nil sample")
		}
		for _, n := range s.SortedNodes() {
			row := make([]float64, b.NumFeatures())
			in := aliasSet(n.Key)

			for _, alias := range n.Key.Aliases() {
				if i, ok := b.TableIndex[s.TableOf(alias)]; ok {
					row[i] = 1
				}
			}
			for _, j := range s.Meta.Joins {
				if !in.Contains(j[0], j[1]) {
					continue
				}
				if i, ok := b.JoinIndex[joinKey(s, j)]; ok {
					row[joinOff+i] = 1
				}
			}
			for _, p := range s.Meta.Predicates {
				if !in.Contains(p.Alias) {
					continue
				}
				col := columnKey(s, p)
				ci, ok := b.ColumnIndex[col]
				if !ok {
					continue
				}
				base := predOff + ci*predBlock
				row[base] = 1
				if oi := slices.Index(Ops, p.Op); oi >= 0 {
					row[base+1+oi] = 1
				}
				row[base+1+len(Ops)] = b.normValue(col, p.Value)
			}
			copy(row[flowOff:], b.flow(n))

			X = append(X, row)
			Y = append(Y, b.Normalize(n.Card.Actual))
		}
	}
	return X, Y, nil
}

func (b *Basic) FeaturizeSets(samples []*query.Sample) ([]SetFeatures, []float64, error) {
	var out []SetFeatures
	var Y []float64
	numCols := max(len(b.Columns), 1)

	for _, s := range samples {
		if s == nil {
			return nil, nil, fmt.Errorf("featurize: nil sample")
		}
		for _, n := range s.SortedNodes() {
			in := aliasSet(n.Key)
			sf := SetFeatures{Flow: b.flow(n)}

			for _, alias := range n.Key.Aliases() {
				vec := make([]float64, b.tableWidth())
				if i, ok := b.TableIndex[s.TableOf(alias)]; ok {
					vec[i] = 1
				}
				sf.Tables = append(sf.Tables, vec)
			}
			for _, p := range s.Meta.Predicates {
				if !in.Contains(p.Alias) {
					continue
				}
				col := columnKey(s, p)
				vec := make([]float64, b.predWidth())
				if ci, ok := b.ColumnIndex[col]; ok {
					vec[ci] = 1
				}
				if oi := slices.Index(Ops, p.Op); oi >= 0 {
					vec[numCols+oi] = 1
				}
				vec[numCols+len(Ops)] = b.normValue(col, p.Value)
				sf.Preds = append(sf.Preds, vec)
			}
			for _, j := range s.Meta.Joins {
				if !in.Contains(j[0], j[1]) {
					continue
				}
				vec := make([]float64, b.joinWidth())
				if i, ok := b.JoinIndex[joinKey(s, j)]; ok {
					vec[i] = 1
				}
				sf.Joins = append(sf.Joins, vec)
			}

			// empty sets still contribute one zero element so pooling has
			// something to average
			if len(sf.Tables) == 0 {
				sf.Tables = [][]float64{make([]float64, b.tableWidth())}
			}
			if len(sf.Preds) == 0 {
				sf.Preds = [][]float64{make([]float64, b.predWidth())}
			}
			if len(sf.Joins) == 0 {
				sf.Joins = [][]float64{make([]float64, b.joinWidth())}
			}

			out = append(out, sf)
			Y = append(Y, b.Normalize(n.Card.Actual))
		}
	}
	return out, Y, nil
}

// SetWidths reports the element widths of the table, predicate, join and flow sets.
func (b *Basic) SetWidths() (tables, preds, joins, flow int) {
	return b.tableWidth(), b.predWidth(), b.joinWidth(), flowWidth
}
