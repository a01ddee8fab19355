package training

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"wastenet/tensor"
)

// Report holds the results of a full evaluation pass.
type Report struct {
	ClassNames    []string
	Accuracy      float64
	Loss          float64 // Mean cross-entropy over the pass
	Confusion     *ConfusionMatrix
	PerClass      []ClassMetrics
	ReportText    string
	Labels        []int32
	Predictions   []int32
	Probabilities []float32 // Row-major [samples, classes] softmax output

	// Binary classification only; nil points and zero AUC otherwise.
	ROC []ROCPoint
	AUC float64
}

// Evaluator runs a trained model over a held-out split and aggregates
// classification metrics.
type Evaluator struct {
	model  Module
	logger *zap.Logger
}

func NewEvaluator(model Module, logger *zap.Logger) (*Evaluator, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{model: model, logger: logger}, nil
}

// Evaluate predicts every sample in source and builds a Report. The ROC curve
// and AUC are computed only when exactly two classes are present, using the
// probability of class 1 as the positive score.
func (e *Evaluator) Evaluate(ctx context.Context, source BatchSource, classNames []string) (*Report, error) {
	numClasses := len(classNames)
	if numClasses < 2 {
		return nil, fmt.Errorf("at least 2 classes required, got %d", numClasses)
	}

	e.model.Eval()
	source.Reset()

	report := &Report{
		ClassNames: classNames,
		Confusion:  NewConfusionMatrix(numClasses),
	}
	var totalLoss float64

	for source.HasNext() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		batch, err := source.Next()
		if err != nil {
			return nil, err
		}
		logits, err := e.model.Forward(batch.Data)
		if err != nil {
			return nil, fmt.Errorf("forward pass failed: %v", err)
		}
		probs, err := tensor.Softmax(logits)
		if err != nil {
			return nil, fmt.Errorf("softmax failed: %v", err)
		}
		preds, err := tensor.ArgMax(probs)
		if err != nil {
			return nil, err
		}

		probData := probs.Float32s()
		labelData := batch.Labels.Int32s()
		if err := report.Confusion.UpdateFromPredictions(probData, labelData, batch.Size, numClasses); err != nil {
			return nil, err
		}
		for i, label := range labelData {
			p := float64(probData[i*numClasses+int(label)])
			if p < 1e-12 {
				p = 1e-12
			}
			totalLoss -= math.Log(p)
		}
		report.Probabilities = append(report.Probabilities, probData...)
		report.Labels = append(report.Labels, labelData...)
		for _, p := range preds {
			report.Predictions = append(report.Predictions, int32(p))
		}
	}

	if len(report.Labels) == 0 {
		return nil, fmt.Errorf("evaluation source produced no samples")
	}

	report.Accuracy = report.Confusion.GetAccuracy()
	report.Loss = totalLoss / float64(len(report.Labels))
	report.PerClass = report.Confusion.PerClassMetrics()
	report.ReportText = report.Confusion.ClassificationReport(classNames)

	if numClasses == 2 {
		scores := make([]float32, len(report.Labels))
		for i := range scores {
			scores[i] = report.Probabilities[i*2+1]
		}
		report.ROC, report.AUC = CalculateROC(scores, report.Labels)
	}

	e.logger.Info("evaluation complete",
		zap.Int("samples", len(report.Labels)),
		zap.Float64("loss", report.Loss),
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("macro_f1", report.Confusion.MacroF1()))
	return report, nil
}
