// Command eegtrain runs a demo training loop on a synthetic cropped EEG
// dataset, with trial-level scoring callbacks and optional run checkpointing.
package main

import (
	"math/rand"
	"os"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/brunaafl/braindecode/checkpoints"
	"github.com/brunaafl/braindecode/config"
	"github.com/brunaafl/braindecode/logger"
	"github.com/brunaafl/braindecode/training"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Init(cfg.AppName, cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("training run failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	rng := rand.New(rand.NewSource(cfg.Training.Seed))

	trainSet, err := training.NewSyntheticCroppedDataset(
		cfg.Data.NumTrials, cfg.Data.NumChannels, cfg.Data.TrialLen,
		cfg.Data.WindowLen, cfg.Data.Stride, cfg.Data.NumClasses, rng)
	if err != nil {
		return err
	}
	validSet, err := training.NewSyntheticCroppedDataset(
		cfg.Data.NumTrials/4+1, cfg.Data.NumChannels, cfg.Data.TrialLen,
		cfg.Data.WindowLen, cfg.Data.Stride, cfg.Data.NumClasses, rng)
	if err != nil {
		return err
	}

	trainLoader := training.NewDataLoader(trainSet, cfg.Training.BatchSize, false)
	validLoader := training.NewDataLoader(validSet, cfg.Training.BatchSize, false)

	model := newLinearReadout(cfg.Data.NumChannels, cfg.Data.NumClasses, rng)

	trainer := training.NewTrainer(model, training.TrainerConfig{
		Device: training.CPU,
		RunID:  cfg.Training.RunID,
		Seed:   cfg.Training.Seed,
	})
	trainer.SetLogger(log.Logger)

	trainer.AddCallback(training.NewCroppedTrialScoring("valid_trial_accuracy", nil, false))
	trainer.AddCallback(training.NewCroppedTrialScoring(
		"valid_trial_macro_f1", training.MetricScorer(training.MacroF1, cfg.Data.NumClasses), false))
	trainer.AddCallback(training.NewCroppedTrialScoring("train_trial_accuracy", nil, true))
	trainer.AddCallback(training.NewPostEpochTrainScoring("train_window_accuracy", nil))

	if cfg.CheckpointEnabled {
		store, err := checkpoints.OpenRunStore(cfg.CheckpointPath)
		if err != nil {
			return err
		}
		defer store.Close()
		trainer.SetCheckpointSink(store)
	}

	if err := trainer.Fit(trainLoader, validLoader, cfg.Training.Epochs); err != nil {
		return err
	}

	last, err := trainer.History().Last()
	if err != nil {
		return err
	}
	ev := log.Info().Str("run", trainer.RunID())
	for name, value := range last.Scores {
		ev = ev.Float64(name, value)
	}
	ev.Msg("final scores")
	return nil
}

// linearReadout is a deliberately small model for the demo: one linear map
// from channels to classes applied at every time-step, trained with a
// perceptron-style update on time-averaged features.
type linearReadout struct {
	weights *mat.Dense // classes x channels
	lr      float64
}

func newLinearReadout(numChannels, numClasses int, rng *rand.Rand) *linearReadout {
	w := mat.NewDense(numClasses, numChannels, nil)
	for i := 0; i < numClasses; i++ {
		for j := 0; j < numChannels; j++ {
			w.Set(i, j, rng.NormFloat64()*0.01)
		}
	}
	return &linearReadout{weights: w, lr: 0.01}
}

// Forward maps each window (channels x time) to class scores (classes x time)
func (m *linearReadout) Forward(inputs []*mat.Dense, train bool) ([]*mat.Dense, error) {
	preds := make([]*mat.Dense, len(inputs))
	for i, in := range inputs {
		var out mat.Dense
		out.Mul(m.weights, in)
		preds[i] = &out
	}
	return preds, nil
}

// TrainBatch nudges the weights toward the correct class using the
// time-averaged channel activity of each window
func (m *linearReadout) TrainBatch(inputs []*mat.Dense, labels []int) (float64, error) {
	numClasses, numChannels := m.weights.Dims()
	mistakes := 0

	for k, in := range inputs {
		feat := make([]float64, numChannels)
		rows, cols := in.Dims()
		for i := 0; i < rows; i++ {
			sum := 0.0
			for j := 0; j < cols; j++ {
				sum += in.At(i, j)
			}
			feat[i] = sum / float64(cols)
		}

		scores := make([]float64, numClasses)
		best := 0
		for c := 0; c < numClasses; c++ {
			for j := 0; j < numChannels; j++ {
				scores[c] += m.weights.At(c, j) * feat[j]
			}
			if scores[c] > scores[best] {
				best = c
			}
		}

		if best != labels[k] {
			mistakes++
			for j := 0; j < numChannels; j++ {
				m.weights.Set(labels[k], j, m.weights.At(labels[k], j)+m.lr*feat[j])
				m.weights.Set(best, j, m.weights.At(best, j)-m.lr*feat[j])
			}
		}
	}

	return float64(mistakes) / float64(len(inputs)), nil
}
