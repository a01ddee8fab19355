package training

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// ConfusionMatrix accumulates classification results across batches
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

// Reset clears the confusion matrix
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// UpdateFromPredictions updates the matrix from a batch of per-class scores.
// predictions is row-major [batchSize, numClasses]; the predicted class is
// the row argmax. Samples with out-of-range labels are skipped.
func (cm *ConfusionMatrix) UpdateFromPredictions(predictions []float32, trueLabels []int32, batchSize, numClasses int) error {
	if len(predictions) != batchSize*numClasses {
		return fmt.Errorf("predictions length mismatch: expected %d, got %d", batchSize*numClasses, len(predictions))
	}
	if len(trueLabels) != batchSize {
		return fmt.Errorf("labels length mismatch: expected %d, got %d", batchSize, len(trueLabels))
	}
	if numClasses != cm.NumClasses {
		return fmt.Errorf("class count mismatch: expected %d, got %d", cm.NumClasses, numClasses)
	}

	for i := 0; i < batchSize; i++ {
		maxIdx := 0
		maxVal := predictions[i*numClasses]
		for j := 1; j < numClasses; j++ {
			if predictions[i*numClasses+j] > maxVal {
				maxVal = predictions[i*numClasses+j]
				maxIdx = j
			}
		}
		trueClass := int(trueLabels[i])
		if trueClass < 0 || trueClass >= cm.NumClasses {
			continue
		}
		cm.Matrix[trueClass][maxIdx]++
		cm.TotalSamples++
	}
	return nil
}

// GetAccuracy returns the fraction of samples on the matrix diagonal.
func (cm *ConfusionMatrix) GetAccuracy() float64 {
	if cm.TotalSamples == 0 {
		return 0.0
	}
	correct := 0
	for i := 0; i < cm.NumClasses; i++ {
		correct += cm.Matrix[i][i]
	}
	return float64(correct) / float64(cm.TotalSamples)
}

// ClassMetrics holds per-class evaluation results
type ClassMetrics struct {
	Precision float64
	Recall    float64
	F1        float64
	Support   int // Number of true samples of this class
}

// PerClassMetrics computes precision, recall, and F1 for each class. A class
// with no predicted samples gets zero precision; a class with no true samples
// gets zero recall.
func (cm *ConfusionMatrix) PerClassMetrics() []ClassMetrics {
	metrics := make([]ClassMetrics, cm.NumClasses)
	for c := 0; c < cm.NumClasses; c++ {
		tp := cm.Matrix[c][c]
		var predicted, actual int
		for i := 0; i < cm.NumClasses; i++ {
			predicted += cm.Matrix[i][c]
			actual += cm.Matrix[c][i]
		}
		m := ClassMetrics{Support: actual}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if actual > 0 {
			m.Recall = float64(tp) / float64(actual)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		metrics[c] = m
	}
	return metrics
}

// MacroF1 returns the unweighted mean of per-class F1 scores.
func (cm *ConfusionMatrix) MacroF1() float64 {
	perClass := cm.PerClassMetrics()
	scores := make([]float64, len(perClass))
	for i, m := range perClass {
		scores[i] = m.F1
	}
	if len(scores) == 0 {
		return 0.0
	}
	return floats.Sum(scores) / float64(len(scores))
}

// ClassificationReport renders per-class metrics as an aligned text table in
// the style of sklearn's classification_report.
func (cm *ConfusionMatrix) ClassificationReport(classNames []string) string {
	perClass := cm.PerClassMetrics()
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %9s %9s %9s %9s\n", "", "precision", "recall", "f1-score", "support")
	b.WriteString("\n")
	for c, m := range perClass {
		name := fmt.Sprintf("class %d", c)
		if c < len(classNames) {
			name = classNames[c]
		}
		fmt.Fprintf(&b, "%-14s %9.4f %9.4f %9.4f %9d\n", name, m.Precision, m.Recall, m.F1, m.Support)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-14s %29.4f %9d\n", "accuracy", cm.GetAccuracy(), cm.TotalSamples)
	fmt.Fprintf(&b, "%-14s %9.4f\n", "macro f1", cm.MacroF1())
	return b.String()
}

// ROCPoint represents a point on the ROC curve
type ROCPoint struct {
	Threshold float32
	TPR       float64 // True Positive Rate (Recall)
	FPR       float64 // False Positive Rate (1 - Specificity)
}

// CalculateROC computes the ROC curve and its AUC for binary classification.
// predictions holds the positive-class score per sample, trueLabels the
// binary labels. Returns nil points and zero AUC when either class is absent.
func CalculateROC(predictions []float32, trueLabels []int32) ([]ROCPoint, float64) {
	if len(predictions) != len(trueLabels) || len(predictions) == 0 {
		return nil, 0.0
	}

	type predLabel struct {
		score float32
		label int32
	}
	pairs := make([]predLabel, len(predictions))
	for i := range predictions {
		pairs[i] = predLabel{score: predictions[i], label: trueLabels[i]}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].score > pairs[j].score
	})

	totalPos, totalNeg := 0, 0
	for _, pair := range pairs {
		if pair.label == 1 {
			totalPos++
		} else {
			totalNeg++
		}
	}
	if totalPos == 0 || totalNeg == 0 {
		return nil, 0.0
	}

	points := make([]ROCPoint, 0, len(pairs)+1)
	points = append(points, ROCPoint{Threshold: pairs[0].score, TPR: 0, FPR: 0})

	// Trapezoidal rule over the curve swept from the highest threshold down.
	auc := 0.0
	tp, fp := 0, 0
	prevTPR, prevFPR := 0.0, 0.0
	for _, pair := range pairs {
		if pair.label == 1 {
			tp++
		} else {
			fp++
		}
		tpr := float64(tp) / float64(totalPos)
		fpr := float64(fp) / float64(totalNeg)
		auc += (fpr - prevFPR) * (tpr + prevTPR) / 2.0
		prevTPR = tpr
		prevFPR = fpr
		points = append(points, ROCPoint{Threshold: pair.score, TPR: tpr, FPR: fpr})
	}
	return points, auc
}
