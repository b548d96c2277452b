package storage

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// SaveModel gob-encodes v into path, creating parent directories.
func SaveModel(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("storage: encode model %s: %w", path, err)
	}
	return f.Sync()
}

func LoadModel(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("storage: decode model %s: %w", path, err)
	}
	return nil
}
