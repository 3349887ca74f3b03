package training

import (
	"fmt"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// stubModel bakes the label of each window into its input: every entry of a
// window equals its class index, and Forward returns a one-hot score matrix
// for that class. Forward invocations are counted so tests can verify how
// often real inference actually runs.
type stubModel struct {
	numClasses   int
	forwardCalls int
}

func (m *stubModel) Forward(inputs []*mat.Dense, training bool) ([]*mat.Dense, error) {
	m.forwardCalls++
	preds := make([]*mat.Dense, len(inputs))
	for i, in := range inputs {
		_, cols := in.Dims()
		cls := int(in.At(0, 0))
		if cls < 0 || cls >= m.numClasses {
			return nil, fmt.Errorf("stub input encodes class %d outside [0, %d)", cls, m.numClasses)
		}
		p := mat.NewDense(m.numClasses, cols, nil)
		for j := 0; j < cols; j++ {
			p.Set(cls, j, 1.0)
		}
		preds[i] = p
	}
	return preds, nil
}

// labeledCroppedDataset builds a 1-channel dataset whose window values encode
// the trial label, with fixed window length and stride metadata.
func labeledCroppedDataset(t *testing.T, trialLabels []int, windowsPerTrial, windowLen, stride int) *SliceDataset {
	t.Helper()

	var inputs []*mat.Dense
	var labels, windowInTrial, stopInTrial []int

	for _, label := range trialLabels {
		for w := 0; w < windowsPerTrial; w++ {
			in := mat.NewDense(1, windowLen, nil)
			for j := 0; j < windowLen; j++ {
				in.Set(0, j, float64(label))
			}
			inputs = append(inputs, in)
			labels = append(labels, label)
			windowInTrial = append(windowInTrial, w)
			stopInTrial = append(stopInTrial, windowLen+w*stride)
		}
	}

	ds, err := NewSliceDataset(inputs, labels, windowInTrial, stopInTrial)
	if err != nil {
		t.Fatalf("Failed to build dataset: %v", err)
	}
	return ds
}

// TestCacheDisabledIsTransparent tests that a disabled cache leaves the trainer unchanged
func TestCacheDisabledIsTransparent(t *testing.T) {
	model := &stubModel{numClasses: 2}
	trainer := NewTrainer(model, TrainerConfig{})
	ds := labeledCroppedDataset(t, []int{0, 1}, 2, 4, 2)
	loader := NewDataLoader(ds, 2, false)

	// Direct inference for reference.
	direct, _, _, _, err := trainer.PredictWithWindowInds(loader)
	if err != nil {
		t.Fatalf("Direct inference failed: %v", err)
	}

	var scoped []*mat.Dense
	err = WithCachedForwardIter(trainer, false, nil, func(tr *Trainer) error {
		preds, _, _, _, err := tr.PredictWithWindowInds(loader)
		scoped = preds
		return err
	})
	if err != nil {
		t.Fatalf("Scoped inference failed: %v", err)
	}

	if len(scoped) != len(direct) {
		t.Fatalf("Expected %d predictions, got %d", len(direct), len(scoped))
	}
	for i := range scoped {
		if !mat.EqualApprox(scoped[i], direct[i], 1e-12) {
			t.Errorf("Prediction %d differs between direct and scoped inference", i)
		}
	}
}

// TestCacheReplayInOrder tests that cached batches come back exactly in order
func TestCacheReplayInOrder(t *testing.T) {
	model := &stubModel{numClasses: 2}
	trainer := NewTrainer(model, TrainerConfig{})
	ds := labeledCroppedDataset(t, []int{0}, 2, 4, 2)
	loader := NewDataLoader(ds, 2, false)

	cached := [][]*mat.Dense{
		{mat.NewDense(2, 1, []float64{1, 0})},
		{mat.NewDense(2, 1, []float64{0, 1})},
		{mat.NewDense(2, 1, []float64{0.5, 0.5})},
	}

	callsBefore := model.forwardCalls
	err := WithCachedForwardIter(trainer, true, cached, func(tr *Trainer) error {
		iter, err := tr.ForwardIter(loader, false)
		if err != nil {
			return err
		}
		for i, want := range cached {
			got, err := iter.Next()
			if err != nil {
				return err
			}
			if len(got) != 1 || got[0] != want[0] {
				t.Errorf("Replay batch %d: expected the cached prediction, got %v", i, got)
			}
		}
		final, err := iter.Next()
		if err != nil {
			return err
		}
		if final != nil {
			t.Error("Expected nil after cached predictions are exhausted")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Cached scope failed: %v", err)
	}

	if model.forwardCalls != callsBefore {
		t.Errorf("Replay triggered %d real forward passes", model.forwardCalls-callsBefore)
	}
}

// TestCacheSharedCursorAcrossIterators tests that reopening the iterator inside one scope continues the sequence
func TestCacheSharedCursorAcrossIterators(t *testing.T) {
	model := &stubModel{numClasses: 2}
	trainer := NewTrainer(model, TrainerConfig{})
	ds := labeledCroppedDataset(t, []int{0}, 1, 4, 2)
	loader := NewDataLoader(ds, 1, false)

	first := []*mat.Dense{mat.NewDense(2, 1, []float64{1, 0})}
	second := []*mat.Dense{mat.NewDense(2, 1, []float64{0, 1})}

	err := WithCachedForwardIter(trainer, true, [][]*mat.Dense{first, second}, func(tr *Trainer) error {
		iterA, err := tr.ForwardIter(loader, false)
		if err != nil {
			return err
		}
		got, err := iterA.Next()
		if err != nil {
			return err
		}
		if got[0] != first[0] {
			t.Error("First iterator did not yield the first cached batch")
		}

		iterB, err := tr.ForwardIter(loader, false)
		if err != nil {
			return err
		}
		got, err = iterB.Next()
		if err != nil {
			return err
		}
		if got[0] != second[0] {
			t.Error("Second iterator did not continue from the shared cursor")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Cached scope failed: %v", err)
	}
}

// TestCacheRestoredAfterScope tests that the override is removed on exit, success or failure
func TestCacheRestoredAfterScope(t *testing.T) {
	model := &stubModel{numClasses: 2}
	trainer := NewTrainer(model, TrainerConfig{})
	ds := labeledCroppedDataset(t, []int{1}, 2, 4, 2)
	loader := NewDataLoader(ds, 2, false)

	t.Run("AfterSuccess", func(t *testing.T) {
		err := WithCachedForwardIter(trainer, true, nil, func(tr *Trainer) error { return nil })
		if err != nil {
			t.Fatalf("Scope failed: %v", err)
		}
		assertLiveInference(t, trainer, model, loader)
	})

	t.Run("AfterError", func(t *testing.T) {
		wantErr := fmt.Errorf("scoring blew up")
		err := WithCachedForwardIter(trainer, true, nil, func(tr *Trainer) error { return wantErr })
		if err != wantErr {
			t.Fatalf("Expected the scoring error to propagate, got %v", err)
		}
		assertLiveInference(t, trainer, model, loader)
	})
}

func assertLiveInference(t *testing.T, trainer *Trainer, model *stubModel, loader *DataLoader) {
	t.Helper()

	callsBefore := model.forwardCalls
	iter, err := trainer.ForwardIter(loader, false)
	if err != nil {
		t.Fatalf("ForwardIter failed: %v", err)
	}
	preds, err := iter.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if preds == nil {
		t.Fatal("Expected live predictions after the cache scope closed")
	}
	if model.forwardCalls != callsBefore+1 {
		t.Errorf("Expected exactly one real forward pass, got %d", model.forwardCalls-callsBefore)
	}
}
