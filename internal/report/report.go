// Package report persists importance-run results. Runs are stored as JSON
// records in BoltDB under "name_timestamp" keys, which makes time-range
// listing of a study's history a cursor scan, and can also be written to a
// standalone JSON file for downstream tooling.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"condimp/internal/cpi"
)

const runsBucket = "runs"

// Run is one persisted importance result.
type Run struct {
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
	Loss      string      `json:"loss"`
	NPerm     int         `json:"n_perm"`
	Seed      int64       `json:"seed"`
	Result    *cpi.Result `json:"result"`
}

// Store keeps importance-run history in BoltDB.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the run store under dataPath.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "condimp-runs.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores a run under its name and creation time.
func (s *Store) Save(run Run) error {
	if run.Name == "" {
		return fmt.Errorf("run name is required")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))

		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}

		key := fmt.Sprintf("%s_%d", run.Name, run.CreatedAt.UnixNano())
		return b.Put([]byte(key), data)
	})
}

// List returns the runs recorded under name within [start, end], oldest
// first.
func (s *Store) List(name string, start, end time.Time) ([]Run, error) {
	var runs []Run

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(runsBucket))
		c := b.Cursor()

		prefix := []byte(name + "_")
		startKey := []byte(fmt.Sprintf("%s_%d", name, start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%s_%d", name, end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !bytes.HasPrefix(k, prefix) {
				continue
			}
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				continue // skip malformed records
			}
			runs = append(runs, run)
		}
		return nil
	})

	return runs, err
}

// WriteJSON writes a run to a standalone indented JSON file.
func WriteJSON(path string, run Run) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
