package checkpoints

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunaafl/braindecode/training"
)

func sampleHistory() *training.History {
	h := training.NewHistory()
	h.NewEpoch(0)
	h.RecordScore("valid_trial_accuracy", 0.25)
	h.NewEpoch(1)
	h.RecordScore("valid_trial_accuracy", 0.5)
	return h
}

func TestRunCheckpointJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")

	ckpt := NewRunCheckpoint("run-1", 1, sampleHistory())
	require.NoError(t, ckpt.SaveJSON(path))

	loaded, err := LoadJSON(path)
	require.NoError(t, err)

	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, 1, loaded.Epoch)
	require.Len(t, loaded.History, 2)
	assert.Equal(t, 0.5, loaded.History[1].Scores["valid_trial_accuracy"])
	assert.Equal(t, "braindecode", loaded.Metadata.Framework)
}

func TestLoadJSONMissingFile(t *testing.T) {
	_, err := LoadJSON(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestRunStore(t *testing.T) {
	store, err := OpenRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put(NewRunCheckpoint("run-a", 0, sampleHistory())))
	require.NoError(t, store.Put(NewRunCheckpoint("run-b", 3, sampleHistory())))

	loaded, err := store.Get("run-b")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Epoch)
	assert.Len(t, loaded.History, 2)

	ids, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-a", "run-b"}, ids)

	require.NoError(t, store.Delete("run-a"))
	_, err = store.Get("run-a")
	assert.Error(t, err)
}

func TestRunStoreOverwritesSameRun(t *testing.T) {
	store, err := OpenRunStore(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	// SaveEpoch replaces the stored state, keeping one entry per run.
	require.NoError(t, store.SaveEpoch("run-a", 0, sampleHistory()))
	require.NoError(t, store.SaveEpoch("run-a", 1, sampleHistory()))

	ids, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"run-a"}, ids)

	loaded, err := store.Get("run-a")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Epoch)
}
