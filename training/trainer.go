package training

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// Predictor runs the model forward pass for one batch of windows. The
// training flag selects training-mode statistics (dropout active, batch norm
// using batch statistics) versus evaluation mode. Each returned prediction is
// a classes x time matrix, one per input window.
type Predictor interface {
	Forward(inputs []*mat.Dense, training bool) ([]*mat.Dense, error)
}

// Trainable is implemented by models that can learn from a batch
type Trainable interface {
	Predictor
	TrainBatch(inputs []*mat.Dense, labels []int) (loss float64, err error)
}

// Callback receives training-loop events. Callbacks attached to one trainer
// run strictly sequentially within each event, in attachment order.
type Callback interface {
	OnEpochBegin(t *Trainer, epoch int) error
	// OnEvalBatchEnd fires once per batch of the epoch's validation pass,
	// with the predictions computed for that batch.
	OnEvalBatchEnd(t *Trainer, batch *Batch, preds []*mat.Dense) error
	OnEpochEnd(t *Trainer, trainLoader, validLoader *DataLoader) error
}

// CheckpointSink persists per-epoch training state
type CheckpointSink interface {
	SaveEpoch(runID string, epoch int, history *History) error
}

// TrainerConfig holds configuration for a training run
type TrainerConfig struct {
	Device DeviceType
	RunID  string
	// Seed for the run's random source. Zero selects the default seed 1.
	Seed int64
}

// Trainer owns one training run: the model, the attached callbacks, the
// training history and the shared per-split scoring state. It is also the
// inference provider the scoring callbacks drive: its forward iteration can
// be temporarily overridden to replay cached predictions (see
// WithCachedForwardIter).
type Trainer struct {
	model     Predictor
	device    DeviceType
	runID     string
	callbacks []Callback
	history   *History
	forward   forwardStrategy
	rng       *rand.Rand
	log       zerolog.Logger
	sink      CheckpointSink

	// Shared scoring state, one context per (run, split) pair. Reset to
	// fresh at the start of every epoch.
	cropTrain *scoringContext
	cropValid *scoringContext
	postTrain *postTrainContext
}

// NewTrainer creates a new Trainer for the given model
func NewTrainer(model Predictor, config TrainerConfig) *Trainer {
	seed := config.Seed
	if seed == 0 {
		seed = 1
	}
	runID := config.RunID
	if runID == "" {
		runID = fmt.Sprintf("run-%d", time.Now().Unix())
	}

	return &Trainer{
		model:     model,
		device:    config.Device,
		runID:     runID,
		history:   NewHistory(),
		forward:   liveForward{},
		rng:       rand.New(rand.NewSource(seed)),
		log:       zerolog.Nop(),
		cropTrain: &scoringContext{},
		cropValid: &scoringContext{},
		postTrain: &postTrainContext{},
	}
}

// AddCallback attaches a callback to the run
func (t *Trainer) AddCallback(cb Callback) {
	t.callbacks = append(t.callbacks, cb)
}

// Callbacks returns the attached callbacks in attachment order
func (t *Trainer) Callbacks() []Callback {
	return t.callbacks
}

// History returns the training history
func (t *Trainer) History() *History {
	return t.history
}

// Device returns the trainer's compute device identifier
func (t *Trainer) Device() DeviceType {
	return t.device
}

// RunID returns the identifier of this training run
func (t *Trainer) RunID() string {
	return t.runID
}

// Rand returns the run's random source. Stochastic models should draw from
// it so that extra inference passes (like post-epoch train scoring) perturb
// randomness in a seedable, reproducible way instead of hitting process
// global state.
func (t *Trainer) Rand() *rand.Rand {
	return t.rng
}

// SetLogger replaces the trainer's logger
func (t *Trainer) SetLogger(log zerolog.Logger) {
	t.log = log
}

// SetCheckpointSink makes the trainer persist its history after every epoch
func (t *Trainer) SetCheckpointSink(sink CheckpointSink) {
	t.sink = sink
}

// Fit runs the training loop for the given number of epochs. Each epoch:
// train pass (if the model is Trainable), evaluation pass over the
// validation loader firing per-batch callback hooks, then the epoch-end
// callbacks, then optional checkpointing.
func (t *Trainer) Fit(trainLoader, validLoader *DataLoader, epochs int) error {
	for epoch := 0; epoch < epochs; epoch++ {
		epochStart := time.Now()
		t.history.NewEpoch(epoch)
		t.resetEpochState()

		for _, cb := range t.callbacks {
			if err := cb.OnEpochBegin(t, epoch); err != nil {
				return fmt.Errorf("epoch %d begin callback failed: %v", epoch, err)
			}
		}

		if trainable, ok := t.model.(Trainable); ok {
			trainLoss, err := t.trainEpoch(trainable, trainLoader)
			if err != nil {
				return fmt.Errorf("training epoch %d failed: %v", epoch, err)
			}
			if err := t.history.RecordScore("train_loss", trainLoss); err != nil {
				return err
			}
		}

		if validLoader != nil {
			if err := t.evalEpoch(validLoader); err != nil {
				return fmt.Errorf("validation epoch %d failed: %v", epoch, err)
			}
		}

		for _, cb := range t.callbacks {
			if err := cb.OnEpochEnd(t, trainLoader, validLoader); err != nil {
				return fmt.Errorf("epoch %d end callback failed: %v", epoch, err)
			}
		}

		t.history.SetDuration(time.Since(epochStart))
		t.logEpoch(epoch)

		if t.sink != nil {
			if err := t.sink.SaveEpoch(t.runID, epoch, t.history); err != nil {
				return fmt.Errorf("failed to checkpoint epoch %d: %v", epoch, err)
			}
		}
	}

	return nil
}

// trainEpoch runs one pass of weight updates over the training loader
func (t *Trainer) trainEpoch(model Trainable, trainLoader *DataLoader) (float64, error) {
	var totalLoss float64
	var totalSamples int

	trainLoader.Reset()
	for {
		batch, err := trainLoader.Next()
		if err != nil {
			return 0, err
		}
		if batch == nil {
			break
		}

		loss, err := model.TrainBatch(batch.Inputs, batch.Labels)
		if err != nil {
			return 0, fmt.Errorf("train step failed: %v", err)
		}
		totalLoss += loss * float64(batch.Size())
		totalSamples += batch.Size()
	}

	if totalSamples == 0 {
		return 0, fmt.Errorf("training loader produced no samples")
	}
	return totalLoss / float64(totalSamples), nil
}

// evalEpoch runs the epoch's evaluation pass, feeding per-batch predictions
// to the attached callbacks so they can accumulate window metadata.
func (t *Trainer) evalEpoch(validLoader *DataLoader) error {
	validLoader.Reset()
	for {
		batch, err := validLoader.Next()
		if err != nil {
			return err
		}
		if batch == nil {
			break
		}

		preds, err := t.EvaluationStep(batch, false)
		if err != nil {
			return err
		}

		for _, cb := range t.callbacks {
			if err := cb.OnEvalBatchEnd(t, batch, preds); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluationStep runs one forward pass for a batch with an explicit
// training/evaluation mode flag
func (t *Trainer) EvaluationStep(batch *Batch, training bool) ([]*mat.Dense, error) {
	return t.model.Forward(batch.Inputs, training)
}

// ForwardIter returns an iterator over per-batch predictions for the given
// loader, honoring any active cached-forward override.
func (t *Trainer) ForwardIter(loader *DataLoader, training bool) (ForwardIterator, error) {
	return t.forward.forwardIter(t, loader, training)
}

// PredictWithWindowInds runs inference in evaluation mode over the whole
// loader, returning flat per-window predictions together with labels and
// window position metadata, always in dataset order. A shuffling loader is
// replaced by an order-preserving view so the metadata stays in trial order.
func (t *Trainer) PredictWithWindowInds(loader *DataLoader) (preds []*mat.Dense, labels, windowInTrial, stopInTrial []int, err error) {
	loader = loader.Ordered()
	loader.Reset()
	for {
		batch, err := loader.Next()
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if batch == nil {
			break
		}

		batchPreds, err := t.EvaluationStep(batch, false)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if len(batchPreds) != batch.Size() {
			return nil, nil, nil, nil, fmt.Errorf("model returned %d predictions for a batch of %d windows", len(batchPreds), batch.Size())
		}

		preds = append(preds, batchPreds...)
		labels = append(labels, batch.Labels...)
		windowInTrial = append(windowInTrial, batch.WindowInTrial...)
		stopInTrial = append(stopInTrial, batch.StopInTrial...)
	}
	return preds, labels, windowInTrial, stopInTrial, nil
}

// swapForward installs a forward strategy and returns a function restoring
// the previous one
func (t *Trainer) swapForward(s forwardStrategy) func() {
	prev := t.forward
	t.forward = s
	return func() { t.forward = prev }
}

// resetEpochState returns the shared scoring contexts to fresh
func (t *Trainer) resetEpochState() {
	t.cropTrain.reset()
	t.cropValid.reset()
	t.postTrain.reset()
}

// cropContext returns the shared cropped-scoring context for a split
func (t *Trainer) cropContext(onTrain bool) *scoringContext {
	if onTrain {
		return t.cropTrain
	}
	return t.cropValid
}

// postTrainContext returns the shared post-epoch train scoring context
func (t *Trainer) postTrainContext() *postTrainContext {
	return t.postTrain
}

// logEpoch emits one structured summary line for the epoch
func (t *Trainer) logEpoch(epoch int) {
	rec, err := t.history.Last()
	if err != nil {
		return
	}
	ev := t.log.Info().Str("run", t.runID).Int("epoch", epoch).Dur("duration", rec.Duration)
	for name, value := range rec.Scores {
		ev = ev.Float64(name, value)
	}
	ev.Msg("epoch complete")
}
