package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"

	"cardbench/pkg/config"
	"cardbench/pkg/estimator"
	"cardbench/pkg/eval"
	"cardbench/pkg/featurize"
	"cardbench/pkg/logging"
	"cardbench/pkg/monitor"
	"cardbench/pkg/query"
	"cardbench/pkg/storage"
)

const featurizerFile = "featurizer.gob"

func main() {
	configPath := flag.String("config", "", "path to cardbench.yaml")
	trainPath := flag.String("train", "", "training samples, file or directory (overrides data.train)")
	testPath := flag.String("test", "", "test samples, file or directory (overrides data.test)")
	alg := flag.String("alg", "", "estimator tag (overrides estimator.algs)")
	dumpMetrics := flag.Bool("metrics", false, "print prometheus metrics after the run")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *trainPath != "" {
		cfg.Data.Train = *trainPath
	}
	if *testPath != "" {
		cfg.Data.Test = *testPath
	}
	if *alg != "" {
		cfg.Estimator.Algorithm = *alg
	}

	logger, closeLog := logging.SetupLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *dumpMetrics); err != nil {
		logger.Error("run failed", "err", err)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

func run(cfg *config.Config, logger *slog.Logger, dumpMetrics bool) error {
	if cfg.Data.Train == "" || cfg.Data.Test == "" {
		return errors.New("both training and test samples are required")
	}
	train, err := query.Load(cfg.Data.Train)
	if err != nil {
		return fmt.Errorf("load training samples: %w", err)
	}
	test, err := query.Load(cfg.Data.Test)
	if err != nil {
		return fmt.Errorf("load test samples: %w", err)
	}
	logger.Info("loaded samples", "train", len(train), "test", len(test))

	est, err := estimator.New(cfg.Estimator)
	if err != nil {
		return err
	}
	stats := monitor.NewRunStats()
	inst := estimator.Instrument(est, stats)
	env := estimator.NewEnv(cfg.Runtime, logger)

	var runDir string
	if cfg.Storage.ResultDir != "" {
		runDir = filepath.Join(cfg.Storage.ResultDir, est.ExpName())
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return err
		}
		j, err := storage.OpenJournal(filepath.Join(runDir, storage.JournalFile))
		if err != nil {
			return err
		}
		defer j.Close()
		env.Journal = j
	}

	fz, err := prepare(cfg, env, inst, train)
	if err != nil {
		return err
	}

	ests, err := inst.Test(env, test)
	if err != nil {
		return fmt.Errorf("test %s: %w", est, err)
	}
	qerrs, err := eval.Evaluate(test, ests)
	if err != nil {
		return err
	}
	printSummary(os.Stdout, est, eval.Summarize(qerrs), stats)

	if runDir != "" {
		if err := persist(runDir, test, ests, est, fz); err != nil {
			return err
		}
		logger.Info("saved run", "dir", runDir)
	}
	if dumpMetrics {
		return stats.WriteMetrics(os.Stdout)
	}
	return nil
}

// prepare trains the estimator, or restores a saved model and featurizer when
// model_dir points at a previous run of a persistable estimator.
func prepare(cfg *config.Config, env *estimator.Env, inst *estimator.Instrumented, train []*query.Sample) (*featurize.Basic, error) {
	if p, ok := estimator.AsPersister(inst); ok && cfg.Estimator.ModelDir != "" {
		var fz featurize.Basic
		if err := storage.LoadModel(filepath.Join(cfg.Estimator.ModelDir, featurizerFile), &fz); err != nil {
			return nil, fmt.Errorf("load featurizer: %w", err)
		}
		if err := p.LoadModel(cfg.Estimator.ModelDir, &fz); err != nil {
			return nil, fmt.Errorf("load model: %w", err)
		}
		env.Logger.Info("restored model", "dir", cfg.Estimator.ModelDir)
		return &fz, nil
	}

	fz, err := featurize.Fit(train)
	if err != nil {
		return nil, err
	}
	if err := inst.Train(env, train, fz); err != nil {
		return nil, fmt.Errorf("train %s: %w", inst, err)
	}
	return fz, nil
}

func persist(dir string, test []*query.Sample, ests []query.Estimates, est estimator.Estimator, fz *featurize.Basic) error {
	store, err := storage.OpenPredictionStore(dir)
	if err != nil {
		return err
	}
	defer store.Close()

	// a rerun into the same directory replaces the previous predictions
	if err := store.Truncate(); err != nil {
		return fmt.Errorf("clear predictions: %w", err)
	}
	preds := make(map[string]query.Estimates, len(test))
	for i, s := range test {
		preds[s.Name] = ests[i]
	}
	if err := store.BatchPut(preds); err != nil {
		return fmt.Errorf("save predictions: %w", err)
	}

	p, ok := estimator.AsPersister(est)
	if !ok {
		return nil
	}
	if err := p.SaveModel(dir); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return storage.SaveModel(filepath.Join(dir, featurizerFile), fz)
}

func printSummary(w io.Writer, est estimator.Estimator, s eval.Summary, stats *monitor.RunStats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("q-error: " + est.ExpName())
	t.AppendHeader(table.Row{"estimator", "subplans", "mean", "median", "90th", "99th", "max", "size (MB)"})
	t.AppendRow(table.Row{
		est.String(),
		s.Count,
		fmt.Sprintf("%.2f", s.Mean),
		fmt.Sprintf("%.2f", s.Median),
		fmt.Sprintf("%.2f", s.P90),
		fmt.Sprintf("%.2f", s.P99),
		fmt.Sprintf("%.2f", s.Max),
		fmt.Sprintf("%.3f", est.NumParameters()),
	})
	t.AppendFooter(table.Row{"", fmt.Sprintf("%.1f / query", stats.EstimatesPerQuery())})
	t.SetStyle(table.StyleLight)
	t.Render()
}
