package aggregation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FirstWindowMask returns a mask that is true at every window starting a new
// trial. A window starts a trial when its index is not one more than the
// previous window's index; for well-formed input this is exactly the windows
// with index 0.
func FirstWindowMask(windowInTrial []int) []bool {
	mask := make([]bool, len(windowInTrial))
	lastWindow := -1
	for i, iWindow := range windowInTrial {
		mask[i] = iWindow != lastWindow+1
		if i == 0 {
			// The very first window always opens a trial.
			mask[i] = true
		}
		lastWindow = iWindow
	}
	return mask
}

// TrialLabels extracts one label per trial: the label of the first window of
// each trial. Labels are assumed constant within a trial.
func TrialLabels(labels, windowInTrial []int) ([]int, error) {
	if len(labels) != len(windowInTrial) {
		return nil, fmt.Errorf("length mismatch: %d labels, %d window indices", len(labels), len(windowInTrial))
	}
	mask := FirstWindowMask(windowInTrial)
	var trialLabels []int
	for i, first := range mask {
		if first {
			trialLabels = append(trialLabels, labels[i])
		}
	}
	return trialLabels, nil
}

// MeanOverTime reduces one trial prediction (classes x time) to a per-class
// score vector by averaging over the time axis.
func MeanOverTime(p mat.Matrix) []float64 {
	rows, cols := p.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		sum := 0.0
		for j := 0; j < cols; j++ {
			sum += p.At(i, j)
		}
		out[i] = sum / float64(cols)
	}
	return out
}
