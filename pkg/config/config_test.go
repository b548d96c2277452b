package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	_, err := Load("/nonexistent/path/cardbench.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
	// Load with empty path uses default search (may use defaults if no config file)
	cfg, _ := Load("")
	if cfg.Log.Level != "info" {
		t.Errorf("default log level: got %s", cfg.Log.Level)
	}
	if cfg.Runtime.Workers != 4 {
		t.Errorf("default workers: got %d", cfg.Runtime.Workers)
	}
	if cfg.Estimator.Algorithm != "postgres" {
		t.Errorf("default algs: got %s", cfg.Estimator.Algorithm)
	}
	if cfg.Estimator.MBSize != 1024 {
		t.Errorf("default mb_size: got %d", cfg.Estimator.MBSize)
	}
	if cfg.Estimator.ClipGradient != 10 {
		t.Errorf("default clip_gradient: got %v", cfg.Estimator.ClipGradient)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	content := `
log:
  level: debug
runtime:
  workers: 2
data:
  train: data/train
  test: data/test
storage:
  result_dir: results
estimator:
  algs: mscn
  loss_func: qloss
  optimizer: ams
  lr: 0.0001
  hidden_layer_size: 128
  mb_size: 256
  max_epochs: 3
  subsample: 0.8
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runtime.Workers != 2 {
		t.Errorf("workers: got %d", cfg.Runtime.Workers)
	}
	if cfg.Data.Train != "data/train" || cfg.Data.Test != "data/test" {
		t.Errorf("data: got %+v", cfg.Data)
	}
	if cfg.Storage.ResultDir != "results" {
		t.Errorf("result_dir: got %s", cfg.Storage.ResultDir)
	}
	ec := cfg.Estimator
	if ec.Algorithm != "mscn" || ec.LossFunc != "qloss" || ec.Optimizer != "ams" {
		t.Errorf("estimator tags: got %s/%s/%s", ec.Algorithm, ec.LossFunc, ec.Optimizer)
	}
	if ec.HiddenLayerSize != 128 {
		t.Errorf("hidden_layer_size: got %d", ec.HiddenLayerSize)
	}
	if ec.MBSize != 256 || ec.MaxEpochs != 3 {
		t.Errorf("mb_size/max_epochs: got %d/%d", ec.MBSize, ec.MaxEpochs)
	}
	if ec.Subsample != 0.8 {
		t.Errorf("subsample: got %v", ec.Subsample)
	}
	// untouched options keep their defaults
	if ec.NumHiddenLayers != 2 || ec.NEstimators != 100 {
		t.Errorf("defaults not applied: %+v", ec)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := `
estimator:
  algs: fcnn
  learning_rate: 0.1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "learning_rate") {
		t.Errorf("error should name the key, got %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	content := `
estimator:
  subsample: 1.5
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, err := Load(path)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Estimator.MaxDepth != 6 {
		t.Errorf("max_depth: got %d", cfg.Estimator.MaxDepth)
	}
}
