package estimator

import (
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"cardbench/pkg/config"
	"cardbench/pkg/featurize"
	"cardbench/pkg/nn"
	"cardbench/pkg/query"
	"cardbench/pkg/storage"
)

const (
	fcnnModelFile     = "fcnn_model.gob"
	fcnnEvalBatchSize = 5000
)

type mlpNet struct {
	seq *nn.Sequential
}

func newMLPNet(numFeatures int, cfg config.EstimatorConfig, t *trainer) *mlpNet {
	return &mlpNet{seq: nn.NewMLP("fc", numFeatures, cfg.HiddenLayerSize, cfg.NumHiddenLayers, 1, t.rng)}
}

func (m *mlpNet) forward(batch [][]float64) *mat.Dense {
	x := mat.NewDense(len(batch), len(batch[0]), nil)
	for i, row := range batch {
		x.SetRow(i, row)
	}
	return m.seq.Forward(x)
}

func (m *mlpNet) backward(grad *mat.Dense) { m.seq.Backward(grad) }
func (m *mlpNet) params() []*nn.Param      { return m.seq.Params() }

// FCNN is a fully connected regressor over the flat subplan features.
type FCNN struct {
	cfg   config.EstimatorConfig
	t     *trainer
	namer expNamer

	fz          featurize.Featurizer
	numFeatures int
	net         *mlpNet
}

// NewFCNN fails on an unknown loss or optimizer name.
func NewFCNN(cfg config.EstimatorConfig) (*FCNN, error) {
	e := &FCNN{cfg: cfg}
	t, err := newTrainer(e.String(), cfg)
	if err != nil {
		return nil, err
	}
	e.t = t
	return e, nil
}

func (e *FCNN) Train(env *Env, samples []*query.Sample, fz featurize.Featurizer) error {
	X, Y, err := featurizeTrain(samples, fz)
	if err != nil {
		return err
	}
	e.fz, e.numFeatures = fz, len(X[0])
	e.net = newMLPNet(e.numFeatures, e.cfg, e.t)
	env.log().Debug("feature length", "estimator", e.String(), "features", e.numFeatures)
	return fit[[]float64](e.t, env, e.net, X, Y)
}

func (e *FCNN) Test(_ *Env, samples []*query.Sample) ([]query.Estimates, error) {
	if e.net == nil {
		return nil, ErrNotTrained
	}
	if err := validateTest(samples); err != nil {
		return nil, err
	}
	X, _, err := e.fz.Featurize(samples)
	if err != nil {
		return nil, err
	}
	if len(X) == 0 {
		return formatOutput(samples, nil, e.fz.Unnormalize)
	}
	if err := checkRowWidth(X, e.numFeatures); err != nil {
		return nil, err
	}
	preds := predict[[]float64](e.net, X, evalBatchSize(e.cfg, fcnnEvalBatchSize))
	return formatOutput(samples, preds, e.fz.Unnormalize)
}

type savedFCNN struct {
	NumFeatures     int
	HiddenLayerSize int
	NumHiddenLayers int
	Params          []nn.ParamState
}

func (e *FCNN) SaveModel(dir string) error {
	if e.net == nil {
		return ErrNotTrained
	}
	return storage.SaveModel(filepath.Join(dir, fcnnModelFile), savedFCNN{
		NumFeatures:     e.numFeatures,
		HiddenLayerSize: e.cfg.HiddenLayerSize,
		NumHiddenLayers: e.cfg.NumHiddenLayers,
		Params:          nn.SnapshotParams(e.net.params()),
	})
}

func (e *FCNN) LoadModel(dir string, fz featurize.Featurizer) error {
	var saved savedFCNN
	if err := storage.LoadModel(filepath.Join(dir, fcnnModelFile), &saved); err != nil {
		return err
	}
	if err := checkLoadedWidth(fz, saved.NumFeatures); err != nil {
		return err
	}
	e.cfg.HiddenLayerSize, e.cfg.NumHiddenLayers = saved.HiddenLayerSize, saved.NumHiddenLayers
	net := newMLPNet(saved.NumFeatures, e.cfg, e.t)
	if err := nn.RestoreParams(net.params(), saved.Params); err != nil {
		return err
	}
	e.fz, e.numFeatures, e.net = fz, saved.NumFeatures, net
	return nil
}

func (e *FCNN) NumParameters() float64 {
	if e.net == nil {
		return 0
	}
	return paramsMB(e.net.params())
}

func (e *FCNN) ExpName() string { return e.namer.get(e.String()) }
func (e *FCNN) String() string  { return "FCNN" }
