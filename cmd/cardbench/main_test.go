package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"cardbench/pkg/config"
	"cardbench/pkg/estimator"
	"cardbench/pkg/featurize"
	"cardbench/pkg/query"
	"cardbench/pkg/query/querytest"
	"cardbench/pkg/storage"
)

func writeSamples(t *testing.T, path string, seed int64, n int) {
	t.Helper()
	data, err := json.Marshal(querytest.Synthetic(rand.New(rand.NewSource(seed)), n))
	if err != nil {
		t.Fatalf("marshal samples: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write samples: %v", err)
	}
}

func testConfig(t *testing.T, alg string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Data.Train = filepath.Join(dir, "train.json")
	cfg.Data.Test = filepath.Join(dir, "test.json")
	cfg.Storage.ResultDir = filepath.Join(dir, "results")
	cfg.Estimator.Algorithm = alg
	cfg.Estimator.Seed = 1
	writeSamples(t, cfg.Data.Train, 1, 6)
	writeSamples(t, cfg.Data.Test, 2, 3)
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunPersistsPredictions(t *testing.T) {
	cfg := testConfig(t, "true")
	if err := run(cfg, quietLogger(), false); err != nil {
		t.Fatalf("run: %v", err)
	}

	runDir := filepath.Join(cfg.Storage.ResultDir, "True")
	store, err := storage.OpenExistingPredictionStore(runDir)
	if err != nil {
		t.Fatalf("open predictions: %v", err)
	}
	defer store.Close()
	all, err := store.LoadAll()
	if err != nil {
		t.Fatalf("load predictions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 saved containers, got %d", len(all))
	}

	// replay the run just written
	cfg.Estimator.Algorithm = "saved"
	cfg.Estimator.ModelDir = runDir
	cfg.Storage.ResultDir = ""
	if err := run(cfg, quietLogger(), false); err != nil {
		t.Fatalf("replay run: %v", err)
	}
}

func TestRunReplacesPreviousPredictions(t *testing.T) {
	cfg := testConfig(t, "true")
	if err := run(cfg, quietLogger(), false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	writeSamples(t, cfg.Data.Test, 3, 1)
	if err := run(cfg, quietLogger(), false); err != nil {
		t.Fatalf("second run: %v", err)
	}

	store, err := storage.OpenExistingPredictionStore(filepath.Join(cfg.Storage.ResultDir, "True"))
	if err != nil {
		t.Fatalf("open predictions: %v", err)
	}
	defer store.Close()
	all, err := store.LoadAll()
	if err != nil {
		t.Fatalf("load predictions: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected only the second run's container, got %d", len(all))
	}
	if _, ok := all["q0.sql"]; !ok {
		t.Fatalf("missing q0.sql in %v", all)
	}
}

func TestRunSavesAndRestoresModel(t *testing.T) {
	cfg := testConfig(t, "xgboost")
	cfg.Estimator.NEstimators = 5
	if err := run(cfg, quietLogger(), false); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries, err := os.ReadDir(cfg.Storage.ResultDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one run directory, got %v (%v)", entries, err)
	}
	runDir := filepath.Join(cfg.Storage.ResultDir, entries[0].Name())
	for _, name := range []string{storage.PredictionsFile, "xgb_model.gob", featurizerFile, storage.JournalFile} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}

	cfg.Estimator.ModelDir = runDir
	cfg.Storage.ResultDir = ""
	if err := run(cfg, quietLogger(), false); err != nil {
		t.Fatalf("restore run: %v", err)
	}

	// a featurizer fitted on other data must not reach the model
	stale, err := featurize.Fit([]*query.Sample{
		querytest.MustSample(t, "one_table", querytest.Node(1, 1, 1), querytest.Node(5, 5, 10, "x")),
	})
	if err != nil {
		t.Fatalf("fit featurizer: %v", err)
	}
	if err := storage.SaveModel(filepath.Join(runDir, featurizerFile), stale); err != nil {
		t.Fatalf("overwrite featurizer: %v", err)
	}
	if err := run(cfg, quietLogger(), false); !errors.Is(err, estimator.ErrFeatureMismatch) {
		t.Fatalf("expected feature mismatch, got %v", err)
	}
}

func TestRunRequiresData(t *testing.T) {
	cfg := config.Default()
	if err := run(cfg, quietLogger(), false); err == nil {
		t.Fatalf("expected error without sample paths")
	}
}
