package query

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `{
  "name": "1a.sql",
  "tables": {"t": "title", "mi": "movie_info", "ci": "cast_info"},
  "joins": [["t", "mi"], ["t", "ci"]],
  "predicates": [{"alias": "t", "column": "production_year", "op": ">", "value": 2000}],
  "nodes": [
    {"aliases": [], "cardinality": {"actual": 1, "expected": 1, "total": 1}},
    {"aliases": ["t", "mi"], "cardinality": {"actual": 50, "expected": 40, "total": 1000}},
    {"aliases": ["t"], "cardinality": {"actual": 10, "expected": 12, "total": 100}},
    {"aliases": ["mi"], "cardinality": {"actual": 30, "expected": 25, "total": 300}},
    {"aliases": ["ci", "t"], "cardinality": {"actual": 70, "expected": 90, "total": 2000}}
  ]
}`

func TestSubplanKeyCanonical(t *testing.T) {
	assert.Equal(t, SubplanKey("a b c"), NewSubplanKey("c", "a", "b", "a"))
	assert.Equal(t, RootKey, NewSubplanKey())
	assert.True(t, NewSubplanKey().IsRoot())
	assert.Equal(t, 3, NewSubplanKey("x", "y", "z").Len())
	assert.True(t, NewSubplanKey("mi", "t").Contains("t"))
	assert.False(t, NewSubplanKey("mi", "t").Contains("m"))
}

func TestSubplanKeyCompareIsTupleOrder(t *testing.T) {
	a := NewSubplanKey("a")
	ab := NewSubplanKey("a", "b")
	abWord := NewSubplanKey("ab")

	assert.Negative(t, a.Compare(ab))
	assert.Negative(t, ab.Compare(abWord))
	assert.Zero(t, ab.Compare(NewSubplanKey("b", "a")))
	assert.Negative(t, RootKey.Compare(a))
}

func TestSampleDecodeAndSortedTraversal(t *testing.T) {
	var s Sample
	require.NoError(t, json.Unmarshal([]byte(sampleDoc), &s))

	assert.Equal(t, "1a.sql", s.Name)
	assert.Equal(t, "title", s.TableOf("t"))
	assert.Equal(t, "x", s.TableOf("x"))
	assert.Len(t, s.Nodes(), 5)
	assert.Equal(t, 4, s.NumSubplans())

	assert.Equal(t, []SubplanKey{"ci t", "mi", "mi t", "t"}, s.SortedKeys())

	nodes := s.SortedNodes()
	require.Len(t, nodes, 4)
	assert.Equal(t, 70.0, nodes[0].Card.Actual)

	n, ok := s.Node(NewSubplanKey("mi", "t"))
	require.True(t, ok)
	assert.Equal(t, 40.0, n.Card.Expected)

	_, ok = s.Node(NewSubplanKey("zz"))
	assert.False(t, ok)
}

func TestSampleNodesKeepIterationOrder(t *testing.T) {
	var s Sample
	require.NoError(t, json.Unmarshal([]byte(sampleDoc), &s))

	nodes := s.Nodes()
	assert.True(t, nodes[0].Key.IsRoot())
	assert.Equal(t, SubplanKey("mi t"), nodes[1].Key)
	assert.Equal(t, SubplanKey("t"), nodes[2].Key)

	// the returned slice is a copy
	nodes[1].Card.Actual = -1
	again := s.Nodes()
	assert.Equal(t, 50.0, again[1].Card.Actual)
}

func TestNewSampleRejectsDuplicates(t *testing.T) {
	_, err := NewSample("dup", Meta{}, []Node{
		{Key: NewSubplanKey("a", "b")},
		{Key: NewSubplanKey("b", "a")},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateNode))
}

func TestSampleJSONRoundTrip(t *testing.T) {
	var s Sample
	require.NoError(t, json.Unmarshal([]byte(sampleDoc), &s))

	data, err := json.Marshal(&s)
	require.NoError(t, err)

	var back Sample
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s.Nodes(), back.Nodes())
	assert.Equal(t, s.Meta.Joins, back.Meta.Joins)
}

func TestLoadFileAndDir(t *testing.T) {
	dir := t.TempDir()
	single := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(single, []byte(sampleDoc), 0644))
	many := filepath.Join(dir, "b.json")
	require.NoError(t, os.WriteFile(many, []byte("["+sampleDoc+","+sampleDoc+"]"), 0644))

	one, err := LoadFile(single)
	require.NoError(t, err)
	assert.Len(t, one, 1)

	all, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("  "), 0644))
	_, err = LoadFile(empty)
	assert.Error(t, err)
}

func TestFloorEstimate(t *testing.T) {
	assert.Equal(t, 1.0, FloorEstimate(0))
	assert.Equal(t, 1.0, FloorEstimate(-5))
	assert.Equal(t, 1.0, FloorEstimate(0.3))
	assert.Equal(t, 42.5, FloorEstimate(42.5))
}
