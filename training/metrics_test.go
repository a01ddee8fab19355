package training

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfusionMatrixPerfectClassifier(t *testing.T) {
	cm := NewConfusionMatrix(3)
	predictions := []float32{
		0.9, 0.05, 0.05,
		0.1, 0.8, 0.1,
		0.0, 0.1, 0.9,
	}
	require.NoError(t, cm.UpdateFromPredictions(predictions, []int32{0, 1, 2}, 3, 3))

	require.InDelta(t, 1.0, cm.GetAccuracy(), 1e-9)
	for _, m := range cm.PerClassMetrics() {
		require.InDelta(t, 1.0, m.Precision, 1e-9)
		require.InDelta(t, 1.0, m.Recall, 1e-9)
		require.InDelta(t, 1.0, m.F1, 1e-9)
		require.Equal(t, 1, m.Support)
	}
}

func TestConfusionMatrixConstantClassifier(t *testing.T) {
	cm := NewConfusionMatrix(2)
	// Always predicts class 0.
	predictions := []float32{
		0.9, 0.1,
		0.9, 0.1,
		0.9, 0.1,
		0.9, 0.1,
	}
	require.NoError(t, cm.UpdateFromPredictions(predictions, []int32{0, 0, 1, 1}, 4, 2))

	require.InDelta(t, 0.5, cm.GetAccuracy(), 1e-9)
	perClass := cm.PerClassMetrics()
	require.InDelta(t, 0.5, perClass[0].Precision, 1e-9)
	require.InDelta(t, 1.0, perClass[0].Recall, 1e-9)
	// Class 1 is never predicted.
	require.Equal(t, 0.0, perClass[1].Precision)
	require.Equal(t, 0.0, perClass[1].Recall)
	require.Equal(t, 0.0, perClass[1].F1)
}

func TestConfusionMatrixSkipsInvalidLabels(t *testing.T) {
	cm := NewConfusionMatrix(2)
	predictions := []float32{0.9, 0.1, 0.1, 0.9}
	require.NoError(t, cm.UpdateFromPredictions(predictions, []int32{0, 7}, 2, 2))
	require.Equal(t, 1, cm.TotalSamples)
}

func TestConfusionMatrixValidation(t *testing.T) {
	cm := NewConfusionMatrix(2)
	require.Error(t, cm.UpdateFromPredictions([]float32{0.5}, []int32{0}, 1, 2))
	require.Error(t, cm.UpdateFromPredictions([]float32{0.5, 0.5}, []int32{0, 1}, 1, 2))
	require.Error(t, cm.UpdateFromPredictions([]float32{0.5, 0.3, 0.2}, []int32{0}, 1, 3))
}

func TestClassificationReportFormat(t *testing.T) {
	cm := NewConfusionMatrix(2)
	predictions := []float32{0.9, 0.1, 0.1, 0.9}
	require.NoError(t, cm.UpdateFromPredictions(predictions, []int32{0, 1}, 2, 2))

	text := cm.ClassificationReport([]string{"organic", "recyclable"})
	require.Contains(t, text, "organic")
	require.Contains(t, text, "recyclable")
	require.Contains(t, text, "precision")
	require.Contains(t, text, "accuracy")
}

func TestCalculateROCPerfectSeparation(t *testing.T) {
	scores := []float32{0.9, 0.8, 0.2, 0.1}
	labels := []int32{1, 1, 0, 0}

	points, auc := CalculateROC(scores, labels)
	require.InDelta(t, 1.0, auc, 1e-9)
	require.NotEmpty(t, points)
	first := points[0]
	last := points[len(points)-1]
	require.Equal(t, 0.0, first.TPR)
	require.Equal(t, 0.0, first.FPR)
	require.InDelta(t, 1.0, last.TPR, 1e-9)
	require.InDelta(t, 1.0, last.FPR, 1e-9)
}

func TestCalculateROCRandomScores(t *testing.T) {
	// Scores carry no information: AUC should be 0.5.
	scores := []float32{0.6, 0.6, 0.6, 0.6}
	labels := []int32{1, 0, 1, 0}
	_, auc := CalculateROC(scores, labels)
	require.InDelta(t, 0.5, auc, 1e-9)
}

func TestCalculateROCSingleClass(t *testing.T) {
	points, auc := CalculateROC([]float32{0.9, 0.1}, []int32{1, 1})
	require.Nil(t, points)
	require.Equal(t, 0.0, auc)
}
