package checkpoints

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/brunaafl/braindecode/training"
)

var runsBucket = []byte("Runs")

// RunStore keeps run checkpoints in a bbolt database, keyed by run id. It
// implements training.CheckpointSink, so a trainer given a store persists
// its history after every epoch.
type RunStore struct {
	db *bbolt.DB
}

// OpenRunStore opens (creating if needed) a run store at the given path
func OpenRunStore(path string) (*RunStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &RunStore{db: db}, nil
}

// Close closes the underlying database
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Put stores a checkpoint, replacing any previous state for the same run
func (s *RunStore) Put(c *RunCheckpoint) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runsBucket)
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}
		return b.Put([]byte(c.RunID), data)
	})
}

// Get loads the checkpoint for the given run id
func (s *RunStore) Get(runID string) (*RunCheckpoint, error) {
	var c *RunCheckpoint
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runsBucket)
		v := b.Get([]byte(runID))
		if v == nil {
			return fmt.Errorf("run %q not found", runID)
		}
		c = &RunCheckpoint{}
		return json.Unmarshal(v, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the ids of all stored runs
func (s *RunStore) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(runsBucket)
		return b.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Delete removes a stored run
func (s *RunStore) Delete(runID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(runsBucket).Delete([]byte(runID))
	})
}

// SaveEpoch implements training.CheckpointSink
func (s *RunStore) SaveEpoch(runID string, epoch int, history *training.History) error {
	return s.Put(NewRunCheckpoint(runID, epoch, history))
}
