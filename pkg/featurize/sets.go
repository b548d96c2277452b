package featurize

import (
	"github.com/bits-and-blooms/bitset"
)

// SetFeatures is one subplan as variable-length sets plus its flow values.
type SetFeatures struct {
	Tables [][]float64
	Preds  [][]float64
	Joins  [][]float64
	Flow   []float64
}

// PaddedSet holds one set type of a batch as a dense (Size*MaxLen) x Width
// row-major block. Bit b*MaxLen+l of Mask is set when element l of row b is real.
type PaddedSet struct {
	Data   []float64
	Mask   *bitset.BitSet
	MaxLen int
	Width  int
}

// Valid reports whether element l of batch row b is real data.
func (p PaddedSet) Valid(b, l int) bool {
	return p.Mask.Test(uint(b*p.MaxLen + l))
}

// Count is the number of real elements in batch row b.
func (p PaddedSet) Count(b int) int {
	n := 0
	for l := 0; l < p.MaxLen; l++ {
		if p.Valid(b, l) {
			n++
		}
	}
	return n
}

type SetBatch struct {
	Size      int
	Tables    PaddedSet
	Preds     PaddedSet
	Joins     PaddedSet
	Flow      []float64 // Size x FlowWidth
	FlowWidth int
}

// Collate pads every set type to the longest set of its kind in this batch.
func Collate(batch []SetFeatures) SetBatch {
	out := SetBatch{Size: len(batch)}
	out.Tables = padSets(batch, func(sf SetFeatures) [][]float64 { return sf.Tables })
	out.Preds = padSets(batch, func(sf SetFeatures) [][]float64 { return sf.Preds })
	out.Joins = padSets(batch, func(sf SetFeatures) [][]float64 { return sf.Joins })

	for _, sf := range batch {
		if len(sf.Flow) > out.FlowWidth {
			out.FlowWidth = len(sf.Flow)
		}
	}
	out.Flow = make([]float64, len(batch)*out.FlowWidth)
	for b, sf := range batch {
		copy(out.Flow[b*out.FlowWidth:], sf.Flow)
	}
	return out
}

func padSets(batch []SetFeatures, pick func(SetFeatures) [][]float64) PaddedSet {
	maxLen, width := 1, 1
	for _, sf := range batch {
		set := pick(sf)
		if len(set) > maxLen {
			maxLen = len(set)
		}
		for _, elem := range set {
			if len(elem) > width {
				width = len(elem)
			}
		}
	}

	ps := PaddedSet{
		Data:   make([]float64, len(batch)*maxLen*width),
		Mask:   bitset.New(uint(len(batch) * maxLen)),
		MaxLen: maxLen,
		Width:  width,
	}
	for b, sf := range batch {
		for l, elem := range pick(sf) {
			row := b*maxLen + l
			copy(ps.Data[row*width:], elem)
			ps.Mask.Set(uint(row))
		}
	}
	return ps
}
