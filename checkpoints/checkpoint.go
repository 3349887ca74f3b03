// Package checkpoints persists training-run state: the per-epoch score
// history plus run metadata, either as standalone JSON files or in a
// bbolt-backed run store.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/brunaafl/braindecode/training"
)

// RunCheckpoint represents the persisted state of one training run
type RunCheckpoint struct {
	RunID    string                 `json:"run_id"`
	Epoch    int                    `json:"epoch"`
	History  []training.EpochRecord `json:"history"`
	Metadata CheckpointMetadata     `json:"metadata"`
}

// CheckpointMetadata carries provenance information for a checkpoint
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// NewRunCheckpoint builds a checkpoint from a run's current history
func NewRunCheckpoint(runID string, epoch int, history *training.History) *RunCheckpoint {
	return &RunCheckpoint{
		RunID:   runID,
		Epoch:   epoch,
		History: history.Records(),
		Metadata: CheckpointMetadata{
			Version:   "1.0.0",
			Framework: "braindecode",
			CreatedAt: time.Now(),
		},
	}
}

// SaveJSON writes the checkpoint to a JSON file
func (c *RunCheckpoint) SaveJSON(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %v", err)
	}
	return nil
}

// LoadJSON reads a checkpoint from a JSON file
func LoadJSON(path string) (*RunCheckpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %v", err)
	}
	var c RunCheckpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %v", err)
	}
	return &c, nil
}
