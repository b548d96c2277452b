package query

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrDuplicateNode = errors.New("query: duplicate subplan node")

// Cardinality 是子计划节点上的基数记录。
type Cardinality struct {
	Actual   float64 `json:"actual"`
	Expected float64 `json:"expected"`
	Total    float64 `json:"total"`
}

type Node struct {
	Key  SubplanKey
	Card Cardinality
}

// Join is an equi-join edge between two aliases.
type Join [2]string

type Predicate struct {
	Alias  string  `json:"alias"`
	Column string  `json:"column"`
	Op     string  `json:"op"`
	Value  float64 `json:"value"`
}

// Meta carries the parts of the parsed query a featurizer looks at.
type Meta struct {
	Tables     map[string]string // alias -> table
	Joins      []Join
	Predicates []Predicate
}

// Sample is one parsed query. It is immutable once built; estimators share it
// read-only.
type Sample struct {
	Name string
	Meta Meta

	nodes []Node // iteration order, as loaded
	index *nodeIndex
}

func NewSample(name string, meta Meta, nodes []Node) (*Sample, error) {
	s := &Sample{
		Name:  name,
		Meta:  meta,
		nodes: make([]Node, 0, len(nodes)),
		index: newNodeIndex(8),
	}
	for _, n := range nodes {
		key := NewSubplanKey(n.Key.Aliases()...)
		if !s.index.insert(key, len(s.nodes)) {
			return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateNode, key, name)
		}
		s.nodes = append(s.nodes, Node{Key: key, Card: n.Card})
	}
	return s, nil
}

// Nodes returns a copy of every node, root included, in iteration order.
func (s *Sample) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

func (s *Sample) Node(key SubplanKey) (Node, bool) {
	pos, ok := s.index.get(key)
	if !ok {
		return Node{}, false
	}
	return s.nodes[pos], true
}

// SortedKeys lists the non-root keys in ascending key order. Featurization and
// estimate reassembly both walk this order.
func (s *Sample) SortedKeys() []SubplanKey {
	keys := make([]SubplanKey, 0, s.index.len())
	s.index.ascend(func(key SubplanKey, _ int) bool {
		if !key.IsRoot() {
			keys = append(keys, key)
		}
		return true
	})
	return keys
}

// SortedNodes is SortedKeys with the cardinality records attached.
func (s *Sample) SortedNodes() []Node {
	nodes := make([]Node, 0, s.index.len())
	s.index.ascend(func(key SubplanKey, pos int) bool {
		if !key.IsRoot() {
			nodes = append(nodes, s.nodes[pos])
		}
		return true
	})
	return nodes
}

// NumSubplans counts the non-root nodes.
func (s *Sample) NumSubplans() int {
	n := 0
	for _, node := range s.nodes {
		if !node.Key.IsRoot() {
			n++
		}
	}
	return n
}

// TableOf resolves an alias to its table name, falling back to the alias.
func (s *Sample) TableOf(alias string) string {
	if t, ok := s.Meta.Tables[alias]; ok && t != "" {
		return t
	}
	return alias
}

type nodeJSON struct {
	Aliases     []string    `json:"aliases"`
	Cardinality Cardinality `json:"cardinality"`
}

type sampleJSON struct {
	Name       string            `json:"name"`
	Tables     map[string]string `json:"tables,omitempty"`
	Joins      []Join            `json:"joins,omitempty"`
	Predicates []Predicate       `json:"predicates,omitempty"`
	Nodes      []nodeJSON        `json:"nodes"`
}

func (s *Sample) MarshalJSON() ([]byte, error) {
	raw := sampleJSON{
		Name:       s.Name,
		Tables:     s.Meta.Tables,
		Joins:      s.Meta.Joins,
		Predicates: s.Meta.Predicates,
		Nodes:      make([]nodeJSON, 0, len(s.nodes)),
	}
	for _, n := range s.nodes {
		aliases := n.Key.Aliases()
		if aliases == nil {
			aliases = []string{}
		}
		raw.Nodes = append(raw.Nodes, nodeJSON{Aliases: aliases, Cardinality: n.Card})
	}
	return json.Marshal(raw)
}

func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw sampleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	nodes := make([]Node, 0, len(raw.Nodes))
	for _, n := range raw.Nodes {
		nodes = append(nodes, Node{Key: NewSubplanKey(n.Aliases...), Card: n.Cardinality})
	}
	built, err := NewSample(raw.Name, Meta{
		Tables:     raw.Tables,
		Joins:      raw.Joins,
		Predicates: raw.Predicates,
	}, nodes)
	if err != nil {
		return err
	}
	*s = *built
	return nil
}
