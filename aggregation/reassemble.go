// Package aggregation merges per-window ("supercrop") model predictions back
// into duplicate-free trial-level predictions. A trial is never represented
// explicitly: trial identity is inferred from the window-in-trial index
// sequence, which restarts at 0 whenever a new trial begins.
package aggregation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TrialPredsFromWindowPreds assigns window predictions to trials while
// removing duplicate predictions caused by window overlap.
//
// Each prediction is a classes x time matrix. The three slices must have
// equal length: windowInTrial[i] is the index of window i within its trial,
// stopInTrial[i] is the index (within the trial's timeline) of the last
// time-step window i covers. Windows must arrive in trial order, window
// indices within a trial increasing by one, and the first window of every
// trial must carry index 0.
//
// For each window after the first of a trial, only the trailing
// stopInTrial[i]-stopInTrial[i-1] columns are retained; the earlier columns
// duplicate predictions already contributed by the previous window. The
// retained pieces are concatenated along the time axis, one matrix per
// trial, in trial occurrence order.
func TrialPredsFromWindowPreds(preds []*mat.Dense, windowInTrial, stopInTrial []int) ([]*mat.Dense, error) {
	if len(preds) == 0 {
		return nil, fmt.Errorf("no window predictions given")
	}
	if len(preds) != len(windowInTrial) || len(windowInTrial) != len(stopInTrial) {
		return nil, fmt.Errorf("length mismatch: %d predictions, %d window indices, %d stop offsets",
			len(preds), len(windowInTrial), len(stopInTrial))
	}

	var trialPreds []*mat.Dense
	var curTrial []mat.Matrix
	lastStop := -1 // -1 means no previous window in the current trial
	lastWindow := -1

	for i, p := range preds {
		iWindow := windowInTrial[i]
		iStop := stopInTrial[i]

		if iWindow != lastWindow+1 {
			// Trial boundary: the first window of a new trial must be 0.
			if iWindow != 0 {
				return nil, fmt.Errorf("window %d: window index in new trial is %d, should start from 0", i, iWindow)
			}
			trial, err := concatTime(curTrial)
			if err != nil {
				return nil, err
			}
			trialPreds = append(trialPreds, trial)
			curTrial = curTrial[:0]
			lastStop = -1
		}

		var piece mat.Matrix = p
		if lastStop >= 0 {
			// Drop the overlap-duplicate prefix, keep the last `needed` steps.
			needed := iStop - lastStop
			rows, cols := p.Dims()
			if needed < 0 || needed > cols {
				return nil, fmt.Errorf("window %d: need %d time-steps from a window of length %d", i, needed, cols)
			}
			if needed == 0 {
				// Fully duplicated window, contributes nothing new.
				lastWindow = iWindow
				continue
			}
			piece = p.Slice(0, rows, cols-needed, cols)
		}
		curTrial = append(curTrial, piece)
		lastWindow = iWindow
		lastStop = iStop
	}

	trial, err := concatTime(curTrial)
	if err != nil {
		return nil, err
	}
	trialPreds = append(trialPreds, trial)

	return trialPreds, nil
}

// concatTime concatenates matrices along the time axis (columns). A nil
// result with nil error means there was nothing to flush (start of input).
func concatTime(pieces []mat.Matrix) (*mat.Dense, error) {
	if len(pieces) == 0 {
		return nil, nil
	}

	rows, _ := pieces[0].Dims()
	totalCols := 0
	for _, p := range pieces {
		r, c := p.Dims()
		if r != rows {
			return nil, fmt.Errorf("class dimension mismatch within trial: %d vs %d", rows, r)
		}
		totalCols += c
	}

	out := mat.NewDense(rows, totalCols, nil)
	col := 0
	for _, p := range pieces {
		r, c := p.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				out.Set(i, col+j, p.At(i, j))
			}
		}
		col += c
	}
	return out, nil
}
