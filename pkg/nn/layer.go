// Package nn is a small dense-matrix network runtime: layers with explicit
// backward passes, losses and first-order optimizers. Rows are examples.
package nn

import (
	"math"
	"math/rand"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Param is one trainable matrix and its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, r, c int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(r, c, nil),
		Grad:  mat.NewDense(r, c, nil),
	}
}

// Layer caches what it needs during Forward; Backward must follow the matching
// Forward and adds into the parameter gradients.
type Layer interface {
	Forward(x *mat.Dense) *mat.Dense
	Backward(grad *mat.Dense) *mat.Dense
	Params() []*Param
}

// Linear computes x·W + b.
type Linear struct {
	W, B *Param
	x    *mat.Dense
}

func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		W: newParam(name+".weight", in, out),
		B: newParam(name+".bias", 1, out),
	}
	bound := 1 / math.Sqrt(float64(in))
	uniform := func(_, _ int, _ float64) float64 {
		return (rng.Float64()*2 - 1) * bound
	}
	l.W.Value.Apply(uniform, l.W.Value)
	l.B.Value.Apply(uniform, l.B.Value)
	return l
}

func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	l.x = x
	var out mat.Dense
	out.Mul(x, l.W.Value)
	bias := l.B.Value.RawRowView(0)
	r, _ := out.Dims()
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += bias[j]
		}
	}
	return &out
}

func (l *Linear) Backward(grad *mat.Dense) *mat.Dense {
	var dw mat.Dense
	dw.Mul(l.x.T(), grad)
	l.W.Grad.Add(l.W.Grad, &dw)

	db := l.B.Grad.RawRowView(0)
	r, _ := grad.Dims()
	for i := 0; i < r; i++ {
		for j, g := range grad.RawRowView(i) {
			db[j] += g
		}
	}

	var dx mat.Dense
	dx.Mul(grad, l.W.Value.T())
	return &dx
}

func (l *Linear) Params() []*Param { return []*Param{l.W, l.B} }

type ReLU struct {
	x *mat.Dense
}

func (a *ReLU) Forward(x *mat.Dense) *mat.Dense {
	a.x = x
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, x)
	return &out
}

func (a *ReLU) Backward(grad *mat.Dense) *mat.Dense {
	var dx mat.Dense
	dx.Apply(func(i, j int, g float64) float64 {
		if a.x.At(i, j) > 0 {
			return g
		}
		return 0
	}, grad)
	return &dx
}

func (a *ReLU) Params() []*Param { return nil }

type Sigmoid struct {
	y *mat.Dense
}

func (s *Sigmoid) Forward(x *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return 1 / (1 + math.Exp(-v)) }, x)
	s.y = &out
	return &out
}

func (s *Sigmoid) Backward(grad *mat.Dense) *mat.Dense {
	var dx mat.Dense
	dx.Apply(func(i, j int, g float64) float64 {
		y := s.y.At(i, j)
		return g * y * (1 - y)
	}, grad)
	return &dx
}

func (s *Sigmoid) Params() []*Param { return nil }

// Sequential chains layers; Backward walks them in reverse.
type Sequential struct {
	Layers []Layer
}

func (s *Sequential) Forward(x *mat.Dense) *mat.Dense {
	for _, l := range s.Layers {
		x = l.Forward(x)
	}
	return x
}

func (s *Sequential) Backward(grad *mat.Dense) *mat.Dense {
	for i := len(s.Layers) - 1; i >= 0; i-- {
		grad = s.Layers[i].Backward(grad)
	}
	return grad
}

func (s *Sequential) Params() []*Param {
	var ps []*Param
	for _, l := range s.Layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}

// NewMLP builds in → hidden (numHidden times, ReLU after each) → out. With
// numHidden == 0 it is a single linear map.
func NewMLP(name string, in, hidden, numHidden, out int, rng *rand.Rand) *Sequential {
	seq := &Sequential{}
	width := in
	for i := 0; i < numHidden; i++ {
		seq.Layers = append(seq.Layers,
			NewLinear(layerName(name, i), width, hidden, rng),
			&ReLU{},
		)
		width = hidden
	}
	seq.Layers = append(seq.Layers, NewLinear(layerName(name, numHidden), width, out, rng))
	return seq
}

func layerName(prefix string, i int) string {
	return prefix + "." + strconv.Itoa(i)
}
