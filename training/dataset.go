package training

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Dataset provides samples for training and evaluation. Each sample is one
// cropped window: a channels x time input matrix plus its trial label and its
// position metadata (index of the window within its trial and the index of
// the last trial time-step the window covers).
type Dataset interface {
	Len() int
	Get(idx int) (input *mat.Dense, label, windowInTrial, stopInTrial int, err error)
}

// Batch holds the samples of one loader step, kept in loader order
type Batch struct {
	Inputs        []*mat.Dense
	Labels        []int
	WindowInTrial []int
	StopInTrial   []int
}

// Size returns the number of windows in the batch
func (b *Batch) Size() int {
	return len(b.Inputs)
}

// SliceDataset is an in-memory Dataset over pre-cropped windows
type SliceDataset struct {
	inputs        []*mat.Dense
	labels        []int
	windowInTrial []int
	stopInTrial   []int
}

// NewSliceDataset creates a dataset from parallel slices of windows, labels
// and window metadata
func NewSliceDataset(inputs []*mat.Dense, labels, windowInTrial, stopInTrial []int) (*SliceDataset, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("empty dataset")
	}
	if len(inputs) != len(labels) || len(labels) != len(windowInTrial) || len(windowInTrial) != len(stopInTrial) {
		return nil, fmt.Errorf("length mismatch: %d inputs, %d labels, %d window indices, %d stop offsets",
			len(inputs), len(labels), len(windowInTrial), len(stopInTrial))
	}
	return &SliceDataset{
		inputs:        inputs,
		labels:        labels,
		windowInTrial: windowInTrial,
		stopInTrial:   stopInTrial,
	}, nil
}

// Len returns the number of windows in the dataset
func (d *SliceDataset) Len() int {
	return len(d.inputs)
}

// Get returns one window with its label and position metadata
func (d *SliceDataset) Get(idx int) (*mat.Dense, int, int, int, error) {
	if idx < 0 || idx >= len(d.inputs) {
		return nil, 0, 0, 0, fmt.Errorf("index %d out of range [0, %d)", idx, len(d.inputs))
	}
	return d.inputs[idx], d.labels[idx], d.windowInTrial[idx], d.stopInTrial[idx], nil
}

// NewSyntheticCroppedDataset generates random trial recordings and cuts each
// into overlapping windows of the given length and stride. The stride must
// tile the trial exactly so that the last window ends on the trial's final
// time-step.
func NewSyntheticCroppedDataset(numTrials, numChannels, trialLen, windowLen, stride, numClasses int, rng *rand.Rand) (*SliceDataset, error) {
	if numTrials <= 0 || numChannels <= 0 || numClasses <= 0 {
		return nil, fmt.Errorf("trials, channels and classes must be positive, got %d, %d, %d", numTrials, numChannels, numClasses)
	}
	if windowLen <= 0 || windowLen > trialLen {
		return nil, fmt.Errorf("window length %d must be in (0, %d]", windowLen, trialLen)
	}
	if stride <= 0 || (trialLen-windowLen)%stride != 0 {
		return nil, fmt.Errorf("stride %d does not tile a trial of length %d with windows of length %d", stride, trialLen, windowLen)
	}

	windowsPerTrial := (trialLen-windowLen)/stride + 1

	var inputs []*mat.Dense
	var labels, windowInTrial, stopInTrial []int

	for trial := 0; trial < numTrials; trial++ {
		recording := mat.NewDense(numChannels, trialLen, nil)
		for i := 0; i < numChannels; i++ {
			for j := 0; j < trialLen; j++ {
				recording.Set(i, j, rng.NormFloat64())
			}
		}
		label := rng.Intn(numClasses)

		for w := 0; w < windowsPerTrial; w++ {
			start := w * stride
			window := mat.DenseCopyOf(recording.Slice(0, numChannels, start, start+windowLen))
			inputs = append(inputs, window)
			labels = append(labels, label)
			windowInTrial = append(windowInTrial, w)
			stopInTrial = append(stopInTrial, start+windowLen)
		}
	}

	return NewSliceDataset(inputs, labels, windowInTrial, stopInTrial)
}
