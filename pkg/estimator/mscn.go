package estimator

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"cardbench/pkg/config"
	"cardbench/pkg/featurize"
	"cardbench/pkg/nn"
	"cardbench/pkg/query"
	"cardbench/pkg/storage"
)

const (
	mscnModelFile     = "mscn_model.gob"
	mscnEvalBatchSize = 2000
)

// setWidths are the element widths of one subplan's sets.
type setWidths struct {
	Table, Pred, Join, Flow int
}

func widthsOf(sf featurize.SetFeatures) setWidths {
	return setWidths{
		Table: elemWidth(sf.Tables),
		Pred:  elemWidth(sf.Preds),
		Join:  elemWidth(sf.Joins),
		Flow:  len(sf.Flow),
	}
}

// elemWidth is 0 for an unpadded empty set.
func elemWidth(set [][]float64) int {
	if len(set) == 0 {
		return 0
	}
	return len(set[0])
}

// setWidthReporter is implemented by featurizers that know their set widths
// without featurizing anything, such as featurize.Basic.
type setWidthReporter interface {
	SetWidths() (tables, preds, joins, flow int)
}

func checkSetWidths(got, want setWidths) error {
	if got != want {
		return fmt.Errorf("%w: set widths %+v, model expects %+v", ErrFeatureMismatch, got, want)
	}
	return nil
}

// setModule is Linear-ReLU-Linear-ReLU applied to every set element.
func setModule(name string, in, hidden int, rng *rand.Rand) *nn.Sequential {
	return &nn.Sequential{Layers: []nn.Layer{
		nn.NewLinear(name+".0", in, hidden, rng),
		&nn.ReLU{},
		nn.NewLinear(name+".1", hidden, hidden, rng),
		&nn.ReLU{},
	}}
}

// setConv embeds the table, predicate and join sets, mean-pools each over its
// real elements, embeds the flow values and maps the concatenation to (0,1).
type setConv struct {
	hidden int

	tables, preds, joins, flow *nn.Sequential
	out                        *nn.Sequential

	tpool, ppool, jpool nn.MaskedMeanPool
}

func newSetConv(w setWidths, hidden int, rng *rand.Rand) *setConv {
	return &setConv{
		hidden: hidden,
		tables: setModule("sample", w.Table, hidden, rng),
		preds:  setModule("predicate", w.Pred, hidden, rng),
		joins:  setModule("join", w.Join, hidden, rng),
		flow:   setModule("flow", w.Flow, hidden, rng),
		out: &nn.Sequential{Layers: []nn.Layer{
			nn.NewLinear("out.0", 4*hidden, hidden, rng),
			&nn.ReLU{},
			nn.NewLinear("out.1", hidden, 1, rng),
			&nn.Sigmoid{},
		}},
	}
}

func embedSet(mod *nn.Sequential, pool *nn.MaskedMeanPool, ps featurize.PaddedSet, size int) *mat.Dense {
	x := mat.NewDense(size*ps.MaxLen, ps.Width, ps.Data)
	return pool.Forward(mod.Forward(x), ps, size, ps.MaxLen)
}

func (s *setConv) forward(batch []featurize.SetFeatures) *mat.Dense {
	sb := featurize.Collate(batch)
	t := embedSet(s.tables, &s.tpool, sb.Tables, sb.Size)
	p := embedSet(s.preds, &s.ppool, sb.Preds, sb.Size)
	j := embedSet(s.joins, &s.jpool, sb.Joins, sb.Size)
	f := s.flow.Forward(mat.NewDense(sb.Size, sb.FlowWidth, sb.Flow))
	return s.out.Forward(nn.ConcatCols(t, p, j, f))
}

func (s *setConv) backward(grad *mat.Dense) {
	parts := nn.SplitCols(s.out.Backward(grad), s.hidden, s.hidden, s.hidden, s.hidden)
	s.tables.Backward(s.tpool.Backward(parts[0]))
	s.preds.Backward(s.ppool.Backward(parts[1]))
	s.joins.Backward(s.jpool.Backward(parts[2]))
	s.flow.Backward(parts[3])
}

func (s *setConv) params() []*nn.Param {
	var ps []*nn.Param
	for _, m := range []*nn.Sequential{s.tables, s.preds, s.joins, s.flow, s.out} {
		ps = append(ps, m.Params()...)
	}
	return ps
}

// MSCN is the multi-set convolutional regressor over per-subplan sets.
type MSCN struct {
	cfg   config.EstimatorConfig
	t     *trainer
	namer expNamer

	fz     featurize.Featurizer
	widths setWidths
	net    *setConv
}

// NewMSCN fails on an unknown loss or optimizer name.
func NewMSCN(cfg config.EstimatorConfig) (*MSCN, error) {
	e := &MSCN{cfg: cfg}
	t, err := newTrainer(e.String(), cfg)
	if err != nil {
		return nil, err
	}
	e.t = t
	return e, nil
}

func (e *MSCN) Train(env *Env, samples []*query.Sample, fz featurize.Featurizer) error {
	if err := validateTrain(samples); err != nil {
		return err
	}
	if fz == nil {
		return fmt.Errorf("%w: no featurizer", ErrMalformedSample)
	}
	sets, Y, err := fz.FeaturizeSets(samples)
	if err != nil {
		return err
	}
	if len(sets) == 0 {
		return fmt.Errorf("%w: training samples have no subplans", ErrNoSamples)
	}
	e.fz, e.widths = fz, widthsOf(sets[0])
	e.net = newSetConv(e.widths, e.cfg.HiddenLayerSize, e.t.rng)
	return fit[featurize.SetFeatures](e.t, env, e.net, sets, Y)
}

func (e *MSCN) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	if e.net == nil {
		return nil, ErrNotTrained
	}
	if err := validateTest(samples); err != nil {
		return nil, err
	}
	sets, _, err := e.fz.FeaturizeSets(samples)
	if err != nil {
		return nil, err
	}
	for _, sf := range sets {
		if err := checkSetWidths(widthsOf(sf), e.widths); err != nil {
			return nil, err
		}
	}
	preds := predict[featurize.SetFeatures](e.net, sets, evalBatchSize(e.cfg, mscnEvalBatchSize))
	return formatOutput(samples, preds, e.fz.Unnormalize)
}

type savedMSCN struct {
	Widths          setWidths
	HiddenLayerSize int
	Params          []nn.ParamState
}

func (e *MSCN) SaveModel(dir string) error {
	if e.net == nil {
		return ErrNotTrained
	}
	return storage.SaveModel(filepath.Join(dir, mscnModelFile), savedMSCN{
		Widths:          e.widths,
		HiddenLayerSize: e.net.hidden,
		Params:          nn.SnapshotParams(e.net.params()),
	})
}

func (e *MSCN) LoadModel(dir string, fz featurize.Featurizer) error {
	var saved savedMSCN
	if err := storage.LoadModel(filepath.Join(dir, mscnModelFile), &saved); err != nil {
		return err
	}
	if fz == nil {
		return fmt.Errorf("%w: no featurizer", ErrFeatureMismatch)
	}
	if r, ok := fz.(setWidthReporter); ok {
		var w setWidths
		w.Table, w.Pred, w.Join, w.Flow = r.SetWidths()
		if err := checkSetWidths(w, saved.Widths); err != nil {
			return err
		}
	}
	net := newSetConv(saved.Widths, saved.HiddenLayerSize, e.t.rng)
	if err := nn.RestoreParams(net.params(), saved.Params); err != nil {
		return err
	}
	e.cfg.HiddenLayerSize = saved.HiddenLayerSize
	e.fz, e.widths, e.net = fz, saved.Widths, net
	return nil
}

func (e *MSCN) NumParameters() float64 {
	if e.net == nil {
		return 0
	}
	return paramsMB(e.net.params())
}

func (e *MSCN) ExpName() string { return e.namer.get(e.String()) }
func (e *MSCN) String() string  { return "MSCN" }
