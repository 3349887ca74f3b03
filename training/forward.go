package training

import (
	"gonum.org/v1/gonum/mat"
)

// ForwardIterator yields one batch of per-window predictions at a time.
// Next returns nil, nil when the pass is exhausted.
type ForwardIterator interface {
	Next() ([]*mat.Dense, error)
}

// forwardStrategy produces ForwardIterators for a trainer. The live strategy
// drives real model inference; the replay strategy substitutes previously
// computed predictions so that scoring functions which expect to run
// inference themselves can consume cached results instead.
type forwardStrategy interface {
	forwardIter(t *Trainer, loader *DataLoader, training bool) (ForwardIterator, error)
}

// liveForward runs the model's forward pass batch by batch
type liveForward struct{}

func (liveForward) forwardIter(t *Trainer, loader *DataLoader, training bool) (ForwardIterator, error) {
	loader.Reset()
	return &liveIter{trainer: t, loader: loader, training: training}, nil
}

type liveIter struct {
	trainer  *Trainer
	loader   *DataLoader
	training bool
}

func (it *liveIter) Next() ([]*mat.Dense, error) {
	batch, err := it.loader.Next()
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, nil
	}
	return it.trainer.model.Forward(batch.Inputs, it.training)
}

// replayForward yields pre-computed per-batch predictions in order. The
// cursor is shared across forwardIter calls within one cache scope, so a
// scoring function that opens several iterators still consumes the cached
// batches exactly once each, in order.
type replayForward struct {
	preds [][]*mat.Dense
	pos   int
}

func (r *replayForward) forwardIter(t *Trainer, loader *DataLoader, training bool) (ForwardIterator, error) {
	return &replayIter{strategy: r, device: t.device}, nil
}

type replayIter struct {
	strategy *replayForward
	device   DeviceType
}

func (it *replayIter) Next() ([]*mat.Dense, error) {
	if it.strategy.pos >= len(it.strategy.preds) {
		return nil, nil
	}
	batch := it.strategy.preds[it.strategy.pos]
	it.strategy.pos++
	return placeBatch(batch, it.device)
}

// WithCachedForwardIter runs fn with the trainer's forward iteration
// temporarily replaced by replay of the given per-batch predictions. With
// enabled false, fn runs against the unmodified trainer. The live strategy is
// restored when fn returns, whether it succeeds or fails, so no override ever
// leaks past this call.
func WithCachedForwardIter(t *Trainer, enabled bool, preds [][]*mat.Dense, fn func(*Trainer) error) error {
	if !enabled {
		return fn(t)
	}
	restore := t.swapForward(&replayForward{preds: preds})
	defer restore()
	return fn(t)
}
