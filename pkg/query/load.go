package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Load reads samples from a JSON file or from every *.json file in a directory.
func Load(path string) ([]*Sample, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}

// LoadFile accepts either a single sample object or an array of them.
func LoadFile(path string) ([]*Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("query: empty file %s", path)
	}

	if trimmed[0] == '[' {
		var samples []*Sample
		if err := json.Unmarshal(trimmed, &samples); err != nil {
			return nil, fmt.Errorf("query: decode %s: %w", path, err)
		}
		return samples, nil
	}

	var s Sample
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, fmt.Errorf("query: decode %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}
	return []*Sample{&s}, nil
}

func LoadDir(dir string) ([]*Sample, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var samples []*Sample
	for _, f := range files {
		batch, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		samples = append(samples, batch...)
	}
	return samples, nil
}
