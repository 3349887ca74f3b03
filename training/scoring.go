package training

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/brunaafl/braindecode/aggregation"
)

// scoringContext holds the trial-level results shared by every cropped
// scoring callback watching one data split. The first callback to reach
// epoch-end computes them; siblings read them. Reset to fresh each epoch by
// the trainer. Callbacks run sequentially within one epoch-end event, so no
// locking is needed; a concurrent scheduler would have to guard the
// fresh->computed transition per (run, split) pair.
type scoringContext struct {
	computed   bool
	trialPreds [][]*mat.Dense // replay batches: one batch of per-trial score vectors
	trialYs    []int
}

func (c *scoringContext) reset() {
	c.computed = false
	c.trialPreds = nil
	c.trialYs = nil
}

// postTrainContext holds the per-batch predictions recomputed on the
// training split after each epoch, shared by every PostEpochTrainScoring
// callback of one run.
type postTrainContext struct {
	computed bool
	preds    [][]*mat.Dense
	ys       []int
}

func (c *postTrainContext) reset() {
	c.computed = false
	c.preds = nil
	c.ys = nil
}

// Scorer computes one scalar from predictions driven through the trainer's
// forward iteration. During scoring the trainer's forward iteration replays
// cached predictions, so a Scorer never triggers a real forward pass.
type Scorer func(t *Trainer, loader *DataLoader, y []int) (float64, error)

// CroppedTrialScoring computes a per-epoch score on trial-level predictions
// reassembled from cropped (per-window) model outputs. Several instances may
// watch the same split with different scorers; the expensive reassembly runs
// once per epoch per split and is shared through the trainer's scoring
// context.
type CroppedTrialScoring struct {
	name       string
	scorer     Scorer
	onTrain    bool
	useCaching bool

	// Buffers accumulated during the epoch's evaluation passes, used for
	// the validation split. The training split re-runs inference instead,
	// since training-mode outputs were produced with different statistics.
	windowPreds   []*mat.Dense
	windowYs      []int
	windowInTrial []int
	stopInTrial   []int
}

// NewCroppedTrialScoring creates a cropped trial scoring callback recording
// under the given metric name. A nil scorer falls back to trial accuracy.
// onTrain selects the training split (re-running inference in evaluation
// mode) instead of the validation split.
func NewCroppedTrialScoring(name string, scorer Scorer, onTrain bool) *CroppedTrialScoring {
	return &CroppedTrialScoring{
		name:       name,
		scorer:     scorer,
		onTrain:    onTrain,
		useCaching: true,
	}
}

// DisableCaching turns prediction caching off. Cropped trial scoring cannot
// run without caching and will fail at epoch end; this exists so the misuse
// is reported instead of silently recomputing.
func (s *CroppedTrialScoring) DisableCaching() *CroppedTrialScoring {
	s.useCaching = false
	return s
}

// Name returns the metric name this callback records under
func (s *CroppedTrialScoring) Name() string {
	return s.name
}

// OnEpochBegin clears the per-epoch window buffers
func (s *CroppedTrialScoring) OnEpochBegin(t *Trainer, epoch int) error {
	s.windowPreds = nil
	s.windowYs = nil
	s.windowInTrial = nil
	s.stopInTrial = nil
	return nil
}

// OnEvalBatchEnd accumulates validation-pass predictions with their window
// metadata
func (s *CroppedTrialScoring) OnEvalBatchEnd(t *Trainer, batch *Batch, preds []*mat.Dense) error {
	if s.onTrain {
		return nil
	}
	s.windowPreds = append(s.windowPreds, preds...)
	s.windowYs = append(s.windowYs, batch.Labels...)
	s.windowInTrial = append(s.windowInTrial, batch.WindowInTrial...)
	s.stopInTrial = append(s.stopInTrial, batch.StopInTrial...)
	return nil
}

// OnEpochEnd reassembles trial predictions (once per epoch per split),
// shares them with sibling callbacks through the trainer's scoring context,
// and records this callback's score.
func (s *CroppedTrialScoring) OnEpochEnd(t *Trainer, trainLoader, validLoader *DataLoader) error {
	if !s.useCaching {
		return fmt.Errorf("cropped trial scoring %q requires caching: scoring replays one reassembled prediction batch instead of re-running inference", s.name)
	}

	ctx := t.cropContext(s.onTrain)
	if !ctx.computed {
		var preds []*mat.Dense
		var ys, windowInTrial, stopInTrial []int
		var err error

		if s.onTrain {
			preds, ys, windowInTrial, stopInTrial, err = t.PredictWithWindowInds(trainLoader)
			if err != nil {
				return fmt.Errorf("cropped trial scoring %q: %v", s.name, err)
			}
		} else {
			preds = s.windowPreds
			ys = s.windowYs
			windowInTrial = s.windowInTrial
			stopInTrial = s.stopInTrial
		}

		trialYs, err := aggregation.TrialLabels(ys, windowInTrial)
		if err != nil {
			return fmt.Errorf("cropped trial scoring %q: %v", s.name, err)
		}
		trialPreds, err := aggregation.TrialPredsFromWindowPreds(preds, windowInTrial, stopInTrial)
		if err != nil {
			return fmt.Errorf("cropped trial scoring %q: %v", s.name, err)
		}

		// One score vector per trial, packaged as a single replay batch.
		batch := make([]*mat.Dense, len(trialPreds))
		for i, tp := range trialPreds {
			scores := aggregation.MeanOverTime(tp)
			batch[i] = mat.NewDense(len(scores), 1, scores)
		}

		ctx.trialPreds = [][]*mat.Dense{batch}
		ctx.trialYs = trialYs
		ctx.computed = true
	}

	loader := validLoader
	if s.onTrain {
		loader = trainLoader
	}

	scorer := s.scorer
	if scorer == nil {
		scorer = AccuracyScorer
	}

	var score float64
	err := WithCachedForwardIter(t, true, ctx.trialPreds, func(cached *Trainer) error {
		var err error
		score, err = scorer(cached, loader, ctx.trialYs)
		return err
	})
	if err != nil {
		return fmt.Errorf("cropped trial scoring %q failed: %v", s.name, err)
	}

	return t.history.RecordScore(s.name, score)
}

// PostEpochTrainScoring recomputes predictions on the training split in
// evaluation mode after each epoch completes. Training-mode statistics
// (dropout, batch norm) differ from evaluation-mode statistics, so scores
// taken from the training pass itself would be optimistic and noisy. The
// recomputation happens once per epoch regardless of how many instances are
// attached; every instance replays the shared predictions through the cache.
type PostEpochTrainScoring struct {
	name            string
	scorer          Scorer
	targetExtractor func(batch *Batch) []int
}

// NewPostEpochTrainScoring creates a post-epoch train scoring callback
// recording under the given metric name. A nil scorer falls back to window
// accuracy.
func NewPostEpochTrainScoring(name string, scorer Scorer) *PostEpochTrainScoring {
	return &PostEpochTrainScoring{
		name:            name,
		scorer:          scorer,
		targetExtractor: func(batch *Batch) []int { return batch.Labels },
	}
}

// SetTargetExtractor replaces the function pulling scoring targets out of a
// batch
func (s *PostEpochTrainScoring) SetTargetExtractor(fn func(batch *Batch) []int) {
	s.targetExtractor = fn
}

// Name returns the metric name this callback records under
func (s *PostEpochTrainScoring) Name() string {
	return s.name
}

// OnEpochBegin implements Callback
func (s *PostEpochTrainScoring) OnEpochBegin(t *Trainer, epoch int) error {
	return nil
}

// OnEvalBatchEnd implements Callback
func (s *PostEpochTrainScoring) OnEvalBatchEnd(t *Trainer, batch *Batch, preds []*mat.Dense) error {
	return nil
}

// OnEpochEnd recomputes training-split predictions in evaluation mode (first
// sibling only), shares them, then scores through the prediction cache.
func (s *PostEpochTrainScoring) OnEpochEnd(t *Trainer, trainLoader, validLoader *DataLoader) error {
	ctx := t.postTrainContext()
	if !ctx.computed {
		trainLoader.Reset()
		for {
			batch, err := trainLoader.Next()
			if err != nil {
				return fmt.Errorf("post-epoch train scoring %q: %v", s.name, err)
			}
			if batch == nil {
				break
			}

			preds, err := t.EvaluationStep(batch, false)
			if err != nil {
				return fmt.Errorf("post-epoch train scoring %q: %v", s.name, err)
			}
			hostPreds, err := placeBatch(preds, CPU)
			if err != nil {
				return fmt.Errorf("post-epoch train scoring %q: %v", s.name, err)
			}

			ctx.preds = append(ctx.preds, hostPreds)
			ctx.ys = append(ctx.ys, s.targetExtractor(batch)...)
		}
		ctx.computed = true
	}

	scorer := s.scorer
	if scorer == nil {
		scorer = AccuracyScorer
	}

	var score float64
	err := WithCachedForwardIter(t, true, ctx.preds, func(cached *Trainer) error {
		var err error
		score, err = scorer(cached, trainLoader, ctx.ys)
		return err
	})
	if err != nil {
		return fmt.Errorf("post-epoch train scoring %q failed: %v", s.name, err)
	}

	return t.history.RecordScore(s.name, score)
}
