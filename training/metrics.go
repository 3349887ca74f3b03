package training

import (
	"fmt"

	"github.com/brunaafl/braindecode/aggregation"
)

// MetricType represents different evaluation metrics
type MetricType int

const (
	// Binary classification metrics
	Precision MetricType = iota
	Recall
	F1Score
	Specificity

	// Multi-class metrics
	MacroPrecision
	MacroRecall
	MacroF1
	MicroF1
)

func (mt MetricType) String() string {
	switch mt {
	case Precision:
		return "Precision"
	case Recall:
		return "Recall"
	case F1Score:
		return "F1Score"
	case Specificity:
		return "Specificity"
	case MacroPrecision:
		return "MacroPrecision"
	case MacroRecall:
		return "MacroRecall"
	case MacroF1:
		return "MacroF1"
	case MicroF1:
		return "MicroF1"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// ConfusionMatrix accumulates classification outcomes for metric calculation
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int // [true_class][predicted_class]
	TotalSamples int
}

// NewConfusionMatrix creates a new confusion matrix
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}
	return &ConfusionMatrix{
		NumClasses: numClasses,
		Matrix:     matrix,
	}
}

// Add records one classified sample
func (cm *ConfusionMatrix) Add(trueClass, predClass int) error {
	if trueClass < 0 || trueClass >= cm.NumClasses {
		return fmt.Errorf("true class %d out of range [0, %d)", trueClass, cm.NumClasses)
	}
	if predClass < 0 || predClass >= cm.NumClasses {
		return fmt.Errorf("predicted class %d out of range [0, %d)", predClass, cm.NumClasses)
	}
	cm.Matrix[trueClass][predClass]++
	cm.TotalSamples++
	return nil
}

// Accuracy returns overall classification accuracy
func (cm *ConfusionMatrix) Accuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0.0
	}
	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

// Metric calculates the requested evaluation metric
func (cm *ConfusionMatrix) Metric(metric MetricType) float64 {
	switch metric {
	case Precision:
		return cm.binaryPrecision()
	case Recall:
		return cm.binaryRecall()
	case F1Score:
		return f1(cm.binaryPrecision(), cm.binaryRecall())
	case Specificity:
		return cm.specificity()
	case MacroPrecision:
		return cm.macroPrecision()
	case MacroRecall:
		return cm.macroRecall()
	case MacroF1:
		return f1(cm.macroPrecision(), cm.macroRecall())
	case MicroF1:
		// With single-label classification micro precision, recall and
		// F1 all reduce to accuracy.
		return cm.Accuracy()
	default:
		return 0.0
	}
}

// Binary metrics assume class 1 is positive
func (cm *ConfusionMatrix) binaryPrecision() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}
	tp := float64(cm.Matrix[1][1])
	fp := float64(cm.Matrix[0][1])
	if tp+fp == 0 {
		return 0.0
	}
	return tp / (tp + fp)
}

func (cm *ConfusionMatrix) binaryRecall() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}
	tp := float64(cm.Matrix[1][1])
	fn := float64(cm.Matrix[1][0])
	if tp+fn == 0 {
		return 0.0
	}
	return tp / (tp + fn)
}

func (cm *ConfusionMatrix) specificity() float64 {
	if cm.NumClasses != 2 {
		return 0.0
	}
	tn := float64(cm.Matrix[0][0])
	fp := float64(cm.Matrix[0][1])
	if tn+fp == 0 {
		return 0.0
	}
	return tn / (tn + fp)
}

func (cm *ConfusionMatrix) macroPrecision() float64 {
	sum := 0.0
	validClasses := 0
	for class := 0; class < cm.NumClasses; class++ {
		tp := float64(cm.Matrix[class][class])
		fp := 0.0
		for other := 0; other < cm.NumClasses; other++ {
			if other != class {
				fp += float64(cm.Matrix[other][class])
			}
		}
		if tp+fp > 0 {
			sum += tp / (tp + fp)
			validClasses++
		}
	}
	if validClasses == 0 {
		return 0.0
	}
	return sum / float64(validClasses)
}

func (cm *ConfusionMatrix) macroRecall() float64 {
	sum := 0.0
	validClasses := 0
	for class := 0; class < cm.NumClasses; class++ {
		tp := float64(cm.Matrix[class][class])
		fn := 0.0
		for other := 0; other < cm.NumClasses; other++ {
			if other != class {
				fn += float64(cm.Matrix[class][other])
			}
		}
		if tp+fn > 0 {
			sum += tp / (tp + fn)
			validClasses++
		}
	}
	if validClasses == 0 {
		return 0.0
	}
	return sum / float64(validClasses)
}

func f1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0.0
	}
	return 2 * (precision * recall) / (precision + recall)
}

// AccuracyScorer is the default scoring function: it drives the trainer's
// forward iteration over the loader, reduces each prediction to a class by
// argmax of the time-averaged scores and compares against y.
func AccuracyScorer(t *Trainer, loader *DataLoader, y []int) (float64, error) {
	classes, err := predictedClasses(t, loader)
	if err != nil {
		return 0, err
	}
	if len(classes) != len(y) {
		return 0, fmt.Errorf("got %d predictions for %d targets", len(classes), len(y))
	}
	if len(y) == 0 {
		return 0, fmt.Errorf("nothing to score")
	}

	correct := 0
	for i, c := range classes {
		if c == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(y)), nil
}

// MetricScorer builds a scoring function for the given confusion-matrix
// metric over numClasses classes
func MetricScorer(metric MetricType, numClasses int) Scorer {
	return func(t *Trainer, loader *DataLoader, y []int) (float64, error) {
		classes, err := predictedClasses(t, loader)
		if err != nil {
			return 0, err
		}
		if len(classes) != len(y) {
			return 0, fmt.Errorf("got %d predictions for %d targets", len(classes), len(y))
		}

		cm := NewConfusionMatrix(numClasses)
		for i, c := range classes {
			if err := cm.Add(y[i], c); err != nil {
				return 0, err
			}
		}
		return cm.Metric(metric), nil
	}
}

// predictedClasses drains the trainer's forward iteration for the loader and
// reduces every prediction to its argmax class over time-averaged scores
func predictedClasses(t *Trainer, loader *DataLoader) ([]int, error) {
	iter, err := t.ForwardIter(loader, false)
	if err != nil {
		return nil, err
	}

	var classes []int
	for {
		batch, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}
		for _, p := range batch {
			scores := aggregation.MeanOverTime(p)
			classes = append(classes, argmax(scores))
		}
	}
	return classes, nil
}

func argmax(scores []float64) int {
	maxIdx := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[maxIdx] {
			maxIdx = i
		}
	}
	return maxIdx
}
