package nn

import (
	"errors"
	"fmt"
	"math"
)

var ErrUnknownOptimizer = errors.New("nn: unknown optimizer")

type OptimizerKind int

const (
	Adam OptimizerKind = iota
	AdamAMSGrad
	AdamW
	MomentumSGD
)

func (k OptimizerKind) String() string {
	switch k {
	case Adam:
		return "adam"
	case AdamAMSGrad:
		return "ams"
	case AdamW:
		return "adamw"
	case MomentumSGD:
		return "sgd"
	}
	return fmt.Sprintf("OptimizerKind(%d)", int(k))
}

func ParseOptimizer(tag string) (OptimizerKind, error) {
	for _, k := range []OptimizerKind{Adam, AdamAMSGrad, AdamW, MomentumSGD} {
		if k.String() == tag {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOptimizer, tag)
}

type OptimizerConfig struct {
	LR          float64
	WeightDecay float64
}

// Optimizer applies one update from the accumulated gradients.
type Optimizer interface {
	Step(params []*Param)
}

func NewOptimizer(kind OptimizerKind, cfg OptimizerConfig) Optimizer {
	switch kind {
	case MomentumSGD:
		return &sgd{cfg: cfg, momentum: 0.9, velocity: map[*Param][]float64{}}
	default:
		return &adam{
			cfg:   cfg,
			kind:  kind,
			beta1: 0.9,
			beta2: 0.999,
			eps:   1e-8,
			state: map[*Param]*adamState{},
		}
	}
}

type adamState struct {
	m, v, vmax []float64
}

type adam struct {
	cfg               OptimizerConfig
	kind              OptimizerKind
	beta1, beta2, eps float64
	step              int
	state             map[*Param]*adamState
}

func (a *adam) Step(params []*Param) {
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))

	for _, p := range params {
		w, g := raw(p.Value), raw(p.Grad)
		st, ok := a.state[p]
		if !ok {
			st = &adamState{m: make([]float64, len(w)), v: make([]float64, len(w))}
			if a.kind == AdamAMSGrad {
				st.vmax = make([]float64, len(w))
			}
			a.state[p] = st
		}
		for i := range w {
			gi := g[i]
			switch a.kind {
			case AdamW:
				w[i] -= a.cfg.LR * a.cfg.WeightDecay * w[i]
			default:
				gi += a.cfg.WeightDecay * w[i]
			}
			st.m[i] = a.beta1*st.m[i] + (1-a.beta1)*gi
			st.v[i] = a.beta2*st.v[i] + (1-a.beta2)*gi*gi
			v := st.v[i]
			if st.vmax != nil {
				st.vmax[i] = math.Max(st.vmax[i], v)
				v = st.vmax[i]
			}
			mhat := st.m[i] / bc1
			vhat := v / bc2
			w[i] -= a.cfg.LR * mhat / (math.Sqrt(vhat) + a.eps)
		}
	}
}

type sgd struct {
	cfg      OptimizerConfig
	momentum float64
	velocity map[*Param][]float64
}

func (s *sgd) Step(params []*Param) {
	for _, p := range params {
		w, g := raw(p.Value), raw(p.Grad)
		vel, ok := s.velocity[p]
		if !ok {
			vel = make([]float64, len(w))
			s.velocity[p] = vel
		}
		for i := range w {
			gi := g[i] + s.cfg.WeightDecay*w[i]
			vel[i] = s.momentum*vel[i] + gi
			w[i] -= s.cfg.LR * vel[i]
		}
	}
}
