package model

import (
	"golang.org/x/exp/slices"
)

// TreeParams bound the growth of one regression tree.
type TreeParams struct {
	MaxDepth       int     // <= 0 means unlimited
	MinChildWeight float64 // minimum rows on each side of a split
}

// TreeNode 是扁平存储的树节点，叶子节点只使用 Value。
type TreeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
}

// Tree is a CART regression tree split on variance reduction.
type Tree struct {
	Nodes []TreeNode
}

func (t *Tree) Predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for !t.Nodes[i].Leaf {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// depth is the longest root-to-leaf edge count.
func (t *Tree) depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// FitTree grows a tree over the rows listed in idx. idx is reordered in place.
func FitTree(X [][]float64, y []float64, idx []int, p TreeParams) Tree {
	b := treeBuilder{X: X, y: y, p: p, minLeaf: max(1, int(p.MinChildWeight))}
	if len(idx) > 0 {
		b.grow(idx, 0)
	}
	return Tree{Nodes: b.nodes}
}

type treeBuilder struct {
	X       [][]float64
	y       []float64
	p       TreeParams
	minLeaf int
	nodes   []TreeNode
}

type split struct {
	feature   int
	threshold float64
	pos       int // rows [0,pos) go left after sorting on feature
	gain      float64
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	self := len(b.nodes)
	b.nodes = append(b.nodes, TreeNode{Leaf: true, Value: b.mean(idx)})

	if b.p.MaxDepth > 0 && depth >= b.p.MaxDepth {
		return self
	}
	if len(idx) < 2*b.minLeaf {
		return self
	}
	best, ok := b.bestSplit(idx)
	if !ok {
		return self
	}

	// 1. 按最佳特征重新排序，切分左右
	sortByFeature(b.X, idx, best.feature)
	left, right := idx[:best.pos], idx[best.pos:]

	// 2. 递归构建子树
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[self] = TreeNode{
		Feature:   best.feature,
		Threshold: best.threshold,
		Left:      l,
		Right:     r,
	}
	return self
}

func (b *treeBuilder) mean(idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += b.y[i]
	}
	return sum / float64(len(idx))
}

func sortByFeature(X [][]float64, idx []int, f int) {
	slices.SortStableFunc(idx, func(a, c int) int {
		switch {
		case X[a][f] < X[c][f]:
			return -1
		case X[a][f] > X[c][f]:
			return 1
		}
		return 0
	})
}

// bestSplit scans every feature for the threshold that maximizes the reduction
// in squared error. Candidate thresholds sit halfway between distinct values.
func (b *treeBuilder) bestSplit(idx []int) (split, bool) {
	n := len(idx)
	total := 0.0
	for _, i := range idx {
		total += b.y[i]
	}
	parentScore := total * total / float64(n)

	best := split{gain: 1e-12}
	found := false
	sorted := slices.Clone(idx)

	for f := range b.X[idx[0]] {
		sortByFeature(b.X, sorted, f)
		leftSum := 0.0
		for pos := 1; pos < n; pos++ {
			leftSum += b.y[sorted[pos-1]]
			lo, hi := b.X[sorted[pos-1]][f], b.X[sorted[pos]][f]
			if lo == hi {
				continue
			}
			if pos < b.minLeaf || n-pos < b.minLeaf {
				continue
			}
			rightSum := total - leftSum
			score := leftSum*leftSum/float64(pos) + rightSum*rightSum/float64(n-pos)
			if gain := score - parentScore; gain > best.gain {
				best = split{feature: f, threshold: (lo + hi) / 2, pos: pos, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
