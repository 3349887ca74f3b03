// Package config loads training-run configuration from environment
// variables via viper.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the full configuration of a training run
type Config struct {
	AppName  string `mapstructure:"app_name"`
	LogLevel string `mapstructure:"app_log_level"`

	Training TrainingConfig `mapstructure:",squash"`
	Data     DataConfig     `mapstructure:",squash"`

	CheckpointEnabled bool   `mapstructure:"checkpoint_enabled"`
	CheckpointPath    string `mapstructure:"checkpoint_path"`
}

// TrainingConfig holds loop parameters
type TrainingConfig struct {
	Epochs    int    `mapstructure:"train_epochs"`
	BatchSize int    `mapstructure:"train_batch_size"`
	Seed      int64  `mapstructure:"train_seed"`
	RunID     string `mapstructure:"train_run_id"`
}

// DataConfig describes the synthetic cropped dataset used by the demo
type DataConfig struct {
	NumTrials   int `mapstructure:"data_num_trials"`
	NumChannels int `mapstructure:"data_num_channels"`
	TrialLen    int `mapstructure:"data_trial_len"`
	WindowLen   int `mapstructure:"data_window_len"`
	Stride      int `mapstructure:"data_stride"`
	NumClasses  int `mapstructure:"data_num_classes"`
}

// Load reads configuration from the environment, applying defaults
func Load() (*Config, error) {
	setDefaults()
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Training.Epochs <= 0 {
		return fmt.Errorf("train_epochs must be positive, got %d", c.Training.Epochs)
	}
	if c.Training.BatchSize <= 0 {
		return fmt.Errorf("train_batch_size must be positive, got %d", c.Training.BatchSize)
	}
	if c.Data.Stride <= 0 || c.Data.Stride > c.Data.WindowLen {
		return fmt.Errorf("data_stride must be in (0, %d], got %d", c.Data.WindowLen, c.Data.Stride)
	}
	if c.CheckpointEnabled && c.CheckpointPath == "" {
		return fmt.Errorf("checkpoint_path is required when checkpointing is enabled")
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("app_name", "eegtrain")
	viper.SetDefault("app_log_level", "info")

	viper.SetDefault("train_epochs", 5)
	viper.SetDefault("train_batch_size", 16)
	viper.SetDefault("train_seed", 1)
	viper.SetDefault("train_run_id", "")

	viper.SetDefault("data_num_trials", 40)
	viper.SetDefault("data_num_channels", 22)
	viper.SetDefault("data_trial_len", 1000)
	viper.SetDefault("data_window_len", 500)
	viper.SetDefault("data_stride", 250)
	viper.SetDefault("data_num_classes", 4)

	viper.SetDefault("checkpoint_enabled", false)
	viper.SetDefault("checkpoint_path", "")
}

func bindEnvVars() {
	viper.BindEnv("app_name", "APP_NAME")
	viper.BindEnv("app_log_level", "APP_LOG_LEVEL")

	viper.BindEnv("train_epochs", "TRAIN_EPOCHS")
	viper.BindEnv("train_batch_size", "TRAIN_BATCH_SIZE")
	viper.BindEnv("train_seed", "TRAIN_SEED")
	viper.BindEnv("train_run_id", "TRAIN_RUN_ID")

	viper.BindEnv("data_num_trials", "DATA_NUM_TRIALS")
	viper.BindEnv("data_num_channels", "DATA_NUM_CHANNELS")
	viper.BindEnv("data_trial_len", "DATA_TRIAL_LEN")
	viper.BindEnv("data_window_len", "DATA_WINDOW_LEN")
	viper.BindEnv("data_stride", "DATA_STRIDE")
	viper.BindEnv("data_num_classes", "DATA_NUM_CLASSES")

	viper.BindEnv("checkpoint_enabled", "CHECKPOINT_ENABLED")
	viper.BindEnv("checkpoint_path", "CHECKPOINT_PATH")
}
