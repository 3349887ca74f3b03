package training

import (
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// DataLoader provides batching and optional shuffling over a cropped Dataset.
// Shuffling is only sensible for training passes: trial reassembly requires
// windows delivered in trial order, so evaluation loaders must not shuffle.
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
	iterErr   error
	mutex     sync.Mutex
}

// NewDataLoader creates a new DataLoader
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool) *DataLoader {
	if batchSize <= 0 {
		batchSize = 1
	}

	datasetLen := dataset.Len()
	indices := make([]int, datasetLen)
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(1)),
		indices:   indices,
		position:  0,
	}
}

// SetRand replaces the random source used for shuffling
func (dl *DataLoader) SetRand(rng *rand.Rand) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	dl.rng = rng
}

// Len returns the number of batches in one pass
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// Ordered returns a loader over the same dataset and batch size that delivers
// windows in dataset order. Trial reassembly needs windows in trial order,
// which a shuffling loader destroys on every Reset.
func (dl *DataLoader) Ordered() *DataLoader {
	if !dl.shuffle {
		return dl
	}
	return NewDataLoader(dl.dataset, dl.batchSize, false)
}

// Reset resets the data loader for a new pass over the dataset
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0
	dl.iterErr = nil

	if dl.shuffle {
		for i := len(dl.indices) - 1; i > 0; i-- {
			j := dl.rng.Intn(i + 1)
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		}
	}
}

// Next returns the next batch or nil if the pass is complete
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil // End of pass
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	batch, err := dl.loadBatch(batchIndices)
	if err != nil {
		return nil, fmt.Errorf("failed to load batch: %v", err)
	}

	return batch, nil
}

// HasNext returns true if there are more batches in the current pass
func (dl *DataLoader) HasNext() bool {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.position < len(dl.indices)
}

// loadBatch gathers the samples for the given indices into one Batch
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("empty batch indices")
	}

	batch := &Batch{
		Inputs:        make([]*mat.Dense, 0, len(indices)),
		Labels:        make([]int, 0, len(indices)),
		WindowInTrial: make([]int, 0, len(indices)),
		StopInTrial:   make([]int, 0, len(indices)),
	}

	for _, idx := range indices {
		input, label, iWindow, iStop, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %v", idx, err)
		}
		batch.Inputs = append(batch.Inputs, input)
		batch.Labels = append(batch.Labels, label)
		batch.WindowInTrial = append(batch.WindowInTrial, iWindow)
		batch.StopInTrial = append(batch.StopInTrial, iStop)
	}

	return batch, nil
}

// Iterator returns a channel-based iterator for easy use in training loops.
// The loader is reset before iteration starts. When a batch fails to load the
// channel closes early; check IterErr to tell a failed pass from exhaustion.
func (dl *DataLoader) Iterator() <-chan *Batch {
	batchChan := make(chan *Batch, 1)

	go func() {
		defer close(batchChan)

		dl.Reset()

		for dl.HasNext() {
			batch, err := dl.Next()
			if err != nil {
				dl.mutex.Lock()
				dl.iterErr = err
				dl.mutex.Unlock()
				return
			}
			if batch == nil {
				break
			}
			batchChan <- batch
		}
	}()

	return batchChan
}

// IterErr reports the error that terminated the most recent Iterator pass,
// nil after a pass that ran to completion.
func (dl *DataLoader) IterErr() error {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()
	return dl.iterErr
}
