package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "eegtrain", cfg.AppName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Training.Epochs)
	assert.Equal(t, 16, cfg.Training.BatchSize)
	assert.Equal(t, 22, cfg.Data.NumChannels)
	assert.Equal(t, 500, cfg.Data.WindowLen)
	assert.Equal(t, 250, cfg.Data.Stride)
	assert.False(t, cfg.CheckpointEnabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Setenv("TRAIN_EPOCHS", "12")
	t.Setenv("TRAIN_BATCH_SIZE", "8")
	t.Setenv("DATA_NUM_CLASSES", "2")
	t.Setenv("CHECKPOINT_ENABLED", "true")
	t.Setenv("CHECKPOINT_PATH", "/tmp/runs.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Training.Epochs)
	assert.Equal(t, 8, cfg.Training.BatchSize)
	assert.Equal(t, 2, cfg.Data.NumClasses)
	assert.True(t, cfg.CheckpointEnabled)
	assert.Equal(t, "/tmp/runs.db", cfg.CheckpointPath)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"NonPositiveEpochs", map[string]string{"TRAIN_EPOCHS": "0"}},
		{"NonPositiveBatchSize", map[string]string{"TRAIN_BATCH_SIZE": "-1"}},
		{"StrideExceedsWindow", map[string]string{"DATA_STRIDE": "600"}},
		{"CheckpointWithoutPath", map[string]string{"CHECKPOINT_ENABLED": "true"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			viper.Reset()
			for k, v := range test.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
