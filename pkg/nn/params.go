package nn

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var ErrShapeMismatch = errors.New("nn: parameter shape mismatch")

// raw exposes the backing slice. Parameters are always allocated with
// mat.NewDense, so the stride equals the column count.
func raw(m *mat.Dense) []float64 {
	return m.RawMatrix().Data
}

func ZeroGrad(params []*Param) {
	for _, p := range params {
		p.Grad.Zero()
	}
}

// ClipGradNorm rescales all gradients so their joint L2 norm is at most maxNorm
// and returns the norm before clipping. maxNorm <= 0 disables clipping.
func ClipGradNorm(params []*Param, maxNorm float64) float64 {
	sq := 0.0
	for _, p := range params {
		for _, g := range raw(p.Grad) {
			sq += g * g
		}
	}
	norm := math.Sqrt(sq)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}
	scale := maxNorm / (norm + 1e-6)
	for _, p := range params {
		p.Grad.Scale(scale, p.Grad)
	}
	return norm
}

// NumElements counts trainable scalars.
func NumElements(params []*Param) int {
	n := 0
	for _, p := range params {
		r, c := p.Value.Dims()
		n += r * c
	}
	return n
}

// ParamState is the gob-friendly form of one parameter.
type ParamState struct {
	Name string
	Rows int
	Cols int
	Data []float64
}

func SnapshotParams(params []*Param) []ParamState {
	out := make([]ParamState, len(params))
	for i, p := range params {
		r, c := p.Value.Dims()
		out[i] = ParamState{
			Name: p.Name,
			Rows: r,
			Cols: c,
			Data: append([]float64(nil), raw(p.Value)...),
		}
	}
	return out
}

// RestoreParams copies saved values into params, which must match in count,
// order and shape.
func RestoreParams(params []*Param, states []ParamState) error {
	if len(params) != len(states) {
		return fmt.Errorf("%w: have %d parameters, saved %d", ErrShapeMismatch, len(params), len(states))
	}
	for i, p := range params {
		r, c := p.Value.Dims()
		st := states[i]
		if st.Rows != r || st.Cols != c || len(st.Data) != r*c {
			return fmt.Errorf("%w: %s is %dx%d, saved %s is %dx%d",
				ErrShapeMismatch, p.Name, r, c, st.Name, st.Rows, st.Cols)
		}
		copy(raw(p.Value), st.Data)
	}
	return nil
}
