package nn

import (
	"gonum.org/v1/gonum/mat"
)

// Mask reports which padded set elements carry data.
type Mask interface {
	Valid(b, l int) bool
}

// MaskedMeanPool averages the valid elements of each padded set. Input rows are
// laid out as batch*maxLen + element.
type MaskedMeanPool struct {
	mask   Mask
	batch  int
	maxLen int
	counts []float64
}

func (p *MaskedMeanPool) Forward(x *mat.Dense, mask Mask, batch, maxLen int) *mat.Dense {
	p.mask, p.batch, p.maxLen = mask, batch, maxLen
	_, width := x.Dims()
	out := mat.NewDense(batch, width, nil)
	p.counts = make([]float64, batch)

	for b := 0; b < batch; b++ {
		dst := out.RawRowView(b)
		for l := 0; l < maxLen; l++ {
			if !mask.Valid(b, l) {
				continue
			}
			p.counts[b]++
			for j, v := range x.RawRowView(b*maxLen + l) {
				dst[j] += v
			}
		}
		if p.counts[b] == 0 {
			// 空集合：输出保持为零
			p.counts[b] = 1
		}
		for j := range dst {
			dst[j] /= p.counts[b]
		}
	}
	return out
}

func (p *MaskedMeanPool) Backward(grad *mat.Dense) *mat.Dense {
	_, width := grad.Dims()
	dx := mat.NewDense(p.batch*p.maxLen, width, nil)
	for b := 0; b < p.batch; b++ {
		src := grad.RawRowView(b)
		for l := 0; l < p.maxLen; l++ {
			if !p.mask.Valid(b, l) {
				continue
			}
			dst := dx.RawRowView(b*p.maxLen + l)
			for j, g := range src {
				dst[j] = g / p.counts[b]
			}
		}
	}
	return dx
}

// ConcatCols joins matrices with equal row counts side by side.
func ConcatCols(ms ...*mat.Dense) *mat.Dense {
	rows, cols := 0, 0
	for _, m := range ms {
		r, c := m.Dims()
		rows = r
		cols += c
	}
	out := mat.NewDense(rows, cols, nil)
	off := 0
	for _, m := range ms {
		_, c := m.Dims()
		out.Slice(0, rows, off, off+c).(*mat.Dense).Copy(m)
		off += c
	}
	return out
}

// SplitCols is the inverse of ConcatCols for a gradient.
func SplitCols(m *mat.Dense, widths ...int) []*mat.Dense {
	rows, _ := m.Dims()
	parts := make([]*mat.Dense, len(widths))
	off := 0
	for i, w := range widths {
		parts[i] = mat.DenseCopyOf(m.Slice(0, rows, off, off+w))
		off += w
	}
	return parts
}
