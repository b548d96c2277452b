package query

import (
	"github.com/google/btree"
)

type nodeItem struct {
	key SubplanKey
	pos int
}

func (i nodeItem) Less(than btree.Item) bool {
	return i.key.Compare(than.(nodeItem).key) < 0
}

// nodeIndex keeps node positions ordered by key. It is built once per sample and
// only read afterwards, so it carries no lock.
type nodeIndex struct {
	tree *btree.BTree
}

func newNodeIndex(degree int) *nodeIndex {
	return &nodeIndex{
		tree: btree.New(degree),
	}
}

// insert reports false when the key was already present.
func (ix *nodeIndex) insert(key SubplanKey, pos int) bool {
	if ix.tree.Has(nodeItem{key: key}) {
		return false
	}
	ix.tree.ReplaceOrInsert(nodeItem{key: key, pos: pos})
	return true
}

func (ix *nodeIndex) get(key SubplanKey) (int, bool) {
	res := ix.tree.Get(nodeItem{key: key})
	if res == nil {
		return 0, false
	}
	return res.(nodeItem).pos, true
}

func (ix *nodeIndex) ascend(fn func(key SubplanKey, pos int) bool) {
	ix.tree.Ascend(func(i btree.Item) bool {
		item := i.(nodeItem)
		return fn(item.key, item.pos)
	})
}

func (ix *nodeIndex) len() int {
	return ix.tree.Len()
}
