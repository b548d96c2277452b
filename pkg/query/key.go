package query

import (
	"strings"

	"golang.org/x/exp/slices"
)

// SubplanKey 标识一个子计划：排序去重后的别名，以空格连接。
type SubplanKey string

// RootKey is the trivial empty-join subplan. It never appears in estimates.
const RootKey SubplanKey = ""

func NewSubplanKey(aliases ...string) SubplanKey {
	if len(aliases) == 0 {
		return RootKey
	}
	sorted := slices.Clone(aliases)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return SubplanKey(strings.Join(sorted, " "))
}

func (k SubplanKey) Aliases() []string {
	return strings.Fields(string(k))
}

// Len is the number of tables joined by the subplan.
func (k SubplanKey) Len() int {
	return len(k.Aliases())
}

func (k SubplanKey) IsRoot() bool {
	return len(strings.TrimSpace(string(k))) == 0
}

func (k SubplanKey) Contains(alias string) bool {
	return slices.Contains(k.Aliases(), alias)
}

// Compare orders keys by their sorted alias tuples, so ("a") < ("a", "b") < ("ab").
func (k SubplanKey) Compare(other SubplanKey) int {
	return slices.Compare(k.Aliases(), other.Aliases())
}

func (k SubplanKey) String() string {
	if k.IsRoot() {
		return "<root>"
	}
	return string(k)
}
