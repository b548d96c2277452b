package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"cardbench/pkg/query"
)

// PredictionsFile is the database name inside a run directory.
const PredictionsFile = "preds.db"

var ErrNotFound = errors.New("storage: no predictions for query")

// PredictionStore keeps one Estimates container per query name.
type PredictionStore interface {
	Put(name string, est query.Estimates) error
	BatchPut(preds map[string]query.Estimates) error // [批量] 单事务写入
	Get(name string) (query.Estimates, error)
	LoadAll() (map[string]query.Estimates, error)
	Truncate() error // 清空整个 run 的预测
	Close() error
}

type SQLitePredictionStore struct {
	db *sql.DB
	mu sync.Mutex
}

var _ PredictionStore = (*SQLitePredictionStore)(nil)

// OpenPredictionStore opens (creating if needed) dir/preds.db.
func OpenPredictionStore(dir string) (*SQLitePredictionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return openSQLite(filepath.Join(dir, PredictionsFile))
}

// OpenExistingPredictionStore fails when dir/preds.db does not exist yet.
func OpenExistingPredictionStore(dir string) (*SQLitePredictionStore, error) {
	path := filepath.Join(dir, PredictionsFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("storage: open predictions: %w", err)
	}
	return openSQLite(path)
}

func openSQLite(path string) (*SQLitePredictionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS preds (
		name TEXT PRIMARY KEY,
		ests BLOB
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: init table: %w", err)
	}

	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
	`)
	if err != nil {
		slog.Warn("failed to set sqlite pragma", "path", path, "err", err)
	}

	return &SQLitePredictionStore{db: db}, nil
}

// wire form: map keys must be plain strings for msgpack
func encodeEstimates(est query.Estimates) ([]byte, error) {
	m := make(map[string]float64, len(est))
	for k, v := range est {
		m[string(k)] = v
	}
	return msgpack.Marshal(m)
}

func decodeEstimates(b []byte) (query.Estimates, error) {
	var m map[string]float64
	if err := msgpack.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	est := make(query.Estimates, len(m))
	for k, v := range m {
		est[query.SubplanKey(k)] = v
	}
	return est, nil
}

func (s *SQLitePredictionStore) Put(name string, est query.Estimates) error {
	blob, err := encodeEstimates(est)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec("INSERT OR REPLACE INTO preds (name, ests) VALUES (?, ?)", name, blob)
	return err
}

func (s *SQLitePredictionStore) BatchPut(preds map[string]query.Estimates) error {
	if len(preds) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO preds (name, ests) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for name, est := range preds {
		blob, err := encodeEstimates(est)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: encode %s: %w", name, err)
		}
		if _, err := stmt.Exec(name, blob); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLitePredictionStore) Get(name string) (query.Estimates, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT ests FROM preds WHERE name = ?", name).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return decodeEstimates(blob)
}

func (s *SQLitePredictionStore) LoadAll() (map[string]query.Estimates, error) {
	rows, err := s.db.Query("SELECT name, ests FROM preds ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]query.Estimates{}
	for rows.Next() {
		var name string
		var blob []byte
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, err
		}
		est, err := decodeEstimates(blob)
		if err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", name, err)
		}
		out[name] = est
	}
	return out, rows.Err()
}

func (s *SQLitePredictionStore) Truncate() error {
	_, err := s.db.Exec("DELETE FROM preds")
	return err
}

func (s *SQLitePredictionStore) Close() error {
	return s.db.Close()
}
