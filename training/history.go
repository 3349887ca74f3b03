package training

import (
	"fmt"
	"time"
)

// EpochRecord holds the scalar scores recorded during one epoch, keyed by
// metric name.
type EpochRecord struct {
	Epoch    int                `json:"epoch"`
	Scores   map[string]float64 `json:"scores"`
	Duration time.Duration      `json:"duration"`
}

// History is an append-only per-epoch record of training metrics. Each
// scoring callback writes one scalar per epoch under its own name.
type History struct {
	records []EpochRecord
}

// NewHistory creates an empty History
func NewHistory() *History {
	return &History{}
}

// NewEpoch opens a record for the given epoch. Scores recorded afterwards go
// into this record until the next NewEpoch call.
func (h *History) NewEpoch(epoch int) {
	h.records = append(h.records, EpochRecord{
		Epoch:  epoch,
		Scores: make(map[string]float64),
	})
}

// RecordScore records one scalar under the given metric name for the current
// epoch
func (h *History) RecordScore(name string, value float64) error {
	if len(h.records) == 0 {
		return fmt.Errorf("no open epoch to record %q into", name)
	}
	h.records[len(h.records)-1].Scores[name] = value
	return nil
}

// SetDuration stamps the current epoch's wall-clock duration
func (h *History) SetDuration(d time.Duration) {
	if len(h.records) == 0 {
		return
	}
	h.records[len(h.records)-1].Duration = d
}

// Len returns the number of recorded epochs
func (h *History) Len() int {
	return len(h.records)
}

// Records returns all epoch records in order
func (h *History) Records() []EpochRecord {
	return h.records
}

// Last returns the most recent epoch record
func (h *History) Last() (EpochRecord, error) {
	if len(h.records) == 0 {
		return EpochRecord{}, fmt.Errorf("history is empty")
	}
	return h.records[len(h.records)-1], nil
}

// Scores returns the per-epoch series recorded under the given name. Epochs
// where the metric is missing are skipped.
func (h *History) Scores(name string) []float64 {
	var out []float64
	for _, rec := range h.records {
		if v, ok := rec.Scores[name]; ok {
			out = append(out, v)
		}
	}
	return out
}
