package estimator

import (
	"fmt"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"cardbench/pkg/config"
	"cardbench/pkg/nn"
	"cardbench/pkg/storage"
)

// network is a model over batches of T. forward returns a column of predictions;
// backward takes the loss gradient for the same batch.
type network[T any] interface {
	forward(batch []T) *mat.Dense
	backward(grad *mat.Dense)
	params() []*nn.Param
}

// trainer holds the resolved training strategy of a neural estimator.
type trainer struct {
	name      string
	loss      nn.Loss
	optimizer nn.OptimizerKind
	cfg       config.EstimatorConfig
	rng       *rand.Rand
}

func newTrainer(name string, cfg config.EstimatorConfig) (*trainer, error) {
	loss, err := nn.ParseLoss(cfg.LossFunc)
	if err != nil {
		return nil, err
	}
	opt, err := nn.ParseOptimizer(cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	return &trainer{name: name, loss: loss, optimizer: opt, cfg: cfg, rng: newRand(cfg.Seed)}, nil
}

// fit runs max_epochs passes of shuffled mini-batches over data.
func fit[T any](t *trainer, env *Env, net network[T], data []T, y []float64) error {
	if len(data) != len(y) {
		return fmt.Errorf("estimator: %d feature rows for %d targets", len(data), len(y))
	}
	logger := env.log().With("estimator", t.name)
	params := net.params()
	opt := nn.NewOptimizer(t.optimizer, nn.OptimizerConfig{LR: t.cfg.LR, WeightDecay: t.cfg.WeightDecay})
	mb := max(1, t.cfg.MBSize)

	logger.Info("training",
		"samples", len(data),
		"model_mb", paramsMB(params),
		"hidden_layer_size", t.cfg.HiddenLayerSize,
		"loss", t.loss.Name(),
		"optimizer", t.optimizer.String(),
	)

	batch := make([]T, 0, mb)
	for epoch := 0; epoch < t.cfg.MaxEpochs; epoch++ {
		start := time.Now()
		perm := t.rng.Perm(len(data))
		total, steps := 0.0, 0

		for lo := 0; lo < len(perm); lo += mb {
			hi := min(lo+mb, len(perm))
			batch = batch[:0]
			yb := mat.NewDense(hi-lo, 1, nil)
			for i, idx := range perm[lo:hi] {
				batch = append(batch, data[idx])
				yb.Set(i, 0, y[idx])
			}

			nn.ZeroGrad(params)
			loss, grad := t.loss.Compute(net.forward(batch), yb)
			net.backward(grad)
			if t.cfg.ClipGradient > 0 {
				nn.ClipGradNorm(params, t.cfg.ClipGradient)
			}
			opt.Step(params)
			total += loss
			steps++
		}

		took := time.Since(start)
		mean := total / float64(max(steps, 1))
		logger.Info("train epoch", "epoch", epoch, "loss", mean, "took", took)
		if j := env.journal(); j != nil {
			rec := storage.EpochRecord{Estimator: t.name, Epoch: epoch, Loss: mean, Seconds: took.Seconds()}
			if err := j.Append(rec); err != nil {
				return fmt.Errorf("estimator: journal epoch %d: %w", epoch, err)
			}
		}
	}
	return nil
}

// predict runs fixed, unshuffled batches and concatenates the outputs, so
// position i of the result belongs to data[i].
func predict[T any](net network[T], data []T, batchSize int) []float64 {
	out := make([]float64, 0, len(data))
	for lo := 0; lo < len(data); lo += batchSize {
		hi := min(lo+batchSize, len(data))
		pred := net.forward(data[lo:hi])
		for i := 0; i < hi-lo; i++ {
			out = append(out, pred.At(i, 0))
		}
	}
	return out
}

func evalBatchSize(cfg config.EstimatorConfig, def int) int {
	if cfg.EvalBatchSize > 0 {
		return cfg.EvalBatchSize
	}
	return def
}

func paramsMB(params []*nn.Param) float64 {
	return float64(nn.NumElements(params)) * 4 / 1e6
}
