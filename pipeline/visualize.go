package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"wastenet/config"
	"wastenet/model"
	"wastenet/plot"
	"wastenet/tensor"
	"wastenet/training"
	"wastenet/vision/dataset"
)

const maxGridCells = 12

// renderCharts writes every result chart under the configured plot directory.
// A chart that fails to render is logged and skipped; visualization problems
// never abort a finished training run.
func renderCharts(cfg *config.Config, m *model.WasteNet, history *training.History,
	report *training.Report, testSet *dataset.Samples, counts map[string]int, logger *zap.Logger) {

	r, err := plot.NewRenderer(cfg.Output.PlotDir, logger)
	if err != nil {
		logger.Warn("plot directory unavailable, skipping charts", zap.Error(err))
		return
	}
	warn := func(chart string, err error) {
		if err != nil {
			logger.Warn("chart skipped", zap.String("chart", chart), zap.Error(err))
		}
	}

	classCounts := make([]int, len(report.ClassNames))
	distValues := make([]float64, len(report.ClassNames))
	for i, name := range report.ClassNames {
		classCounts[i] = counts[name]
		distValues[i] = float64(counts[name])
	}
	warn("class_distribution", r.SaveBarChart("class_distribution.png",
		"Class Distribution", "Samples", report.ClassNames, distValues))

	warn("training_curves", r.SaveTrainingCurves("training_curves.png", history))
	warn("confusion_matrix", r.SaveConfusionMatrix("confusion_matrix.png",
		report.Confusion.Matrix, report.ClassNames))

	perClassAcc := make([]float64, len(report.ClassNames))
	for i, row := range report.Confusion.Matrix {
		var total int
		for _, v := range row {
			total += v
		}
		if total > 0 {
			perClassAcc[i] = float64(row[i]) / float64(total)
		}
	}
	warn("per_class_accuracy", r.SaveBarChart("per_class_accuracy.png",
		"Per-Class Accuracy", "Accuracy", report.ClassNames, perClassAcc))

	if len(report.ROC) > 0 {
		warn("roc_curve", r.SaveROCCurve("roc_curve.png", report.ROC, report.AUC))
	}

	warn("sample_predictions", r.SaveImageGrid("sample_predictions.png",
		"Sample Predictions", predictionCells(report, testSet, false), testSet.Width, maxGridCells))
	misclassified := predictionCells(report, testSet, true)
	if len(misclassified) > 0 {
		warn("misclassified", r.SaveImageGrid("misclassified.png",
			"Misclassified Samples", misclassified, testSet.Width, maxGridCells))
	}

	warn("gradcam", renderGradCAM(cfg, r, m, report, testSet))
	warn("dashboard", r.SaveDashboard("dashboard.png", history,
		report.Confusion.Matrix, report.ClassNames, classCounts))

	saveChartData(r, history, report, classCounts, warn)
}

// predictionCells builds grid cells from the evaluation pass. The test batch
// source preserves sample order, so report rows line up with testSet indices.
func predictionCells(report *training.Report, testSet *dataset.Samples, misclassifiedOnly bool) []plot.GridCell {
	var cells []plot.GridCell
	for i := 0; i < len(report.Predictions) && i < testSet.Len(); i++ {
		trueLabel := report.Labels[i]
		pred := report.Predictions[i]
		if misclassifiedOnly && pred == trueLabel {
			continue
		}
		cells = append(cells, plot.GridCell{
			Pixels:    testSet.Data[i],
			Caption:   fmt.Sprintf("true: %s / pred: %s", className(report, trueLabel), className(report, pred)),
			Highlight: pred != trueLabel,
		})
		if len(cells) == maxGridCells {
			break
		}
	}
	return cells
}

func className(report *training.Report, idx int32) string {
	if idx < 0 || int(idx) >= len(report.ClassNames) {
		return fmt.Sprintf("class %d", idx)
	}
	return report.ClassNames[idx]
}

// renderGradCAM overlays the saliency map for the first misclassified test
// sample, falling back to the first sample when everything was correct.
func renderGradCAM(cfg *config.Config, r *plot.Renderer, m *model.WasteNet,
	report *training.Report, testSet *dataset.Samples) error {

	if testSet.Len() == 0 {
		return fmt.Errorf("test set is empty")
	}
	idx := 0
	for i := range report.Predictions {
		if i >= testSet.Len() {
			break
		}
		if report.Predictions[i] != report.Labels[i] {
			idx = i
			break
		}
	}

	input, err := tensor.NewTensor(
		[]int{1, testSet.Channels, testSet.Height, testSet.Width},
		tensor.Float32, testSet.Data[idx])
	if err != nil {
		return err
	}
	layer := cfg.Output.GradCAMLayer
	if layer == "" {
		layer = m.DefaultGradCAMLayer()
	}
	cam, err := model.GradCAM(m, input, layer, -1)
	if err != nil {
		return err
	}

	caption := fmt.Sprintf("attention at %s, predicted: %s", layer, className(report, int32(cam.Class)))
	return r.SaveGradCAMOverlay("gradcam.png", caption,
		testSet.Data[idx], testSet.Width, cam.Resize(testSet.Width))
}

// saveChartData writes the JSON payloads next to the PNGs.
func saveChartData(r *plot.Renderer, history *training.History, report *training.Report,
	classCounts []int, warn func(string, error)) {

	vc := plot.NewVisualizationCollector("wastenet")
	vc.RecordHistory(history)
	vc.RecordConfusionMatrix(report.Confusion.Matrix, report.ClassNames)
	vc.RecordClassDistribution(report.ClassNames, classCounts)

	warn("training_curves_json", r.SavePlotData("training_curves.json", vc.GenerateTrainingCurvesPlot()))
	warn("confusion_matrix_json", r.SavePlotData("confusion_matrix.json", vc.GenerateConfusionMatrixPlot()))
	warn("class_distribution_json", r.SavePlotData("class_distribution.json", vc.GenerateClassDistributionPlot()))
	if len(report.ROC) > 0 {
		vc.RecordROCData(report.ROC, report.AUC)
		warn("roc_curve_json", r.SavePlotData("roc_curve.json", vc.GenerateROCCurvePlot()))
	}
}
