package plot

import (
	"encoding/json"
	"fmt"
	"time"

	"wastenet/training"
)

// PlotType identifies the kind of chart a PlotData payload describes.
type PlotType string

const (
	TrainingCurves      PlotType = "training_curves"
	ROCCurve            PlotType = "roc_curve"
	ConfusionMatrixPlot PlotType = "confusion_matrix"
	ClassDistribution   PlotType = "class_distribution"
	PerClassAccuracy    PlotType = "per_class_accuracy"
)

// PlotData is a renderer-agnostic JSON description of a single chart, kept
// alongside the rendered PNGs so results can be replotted elsewhere.
type PlotData struct {
	PlotType  PlotType  `json:"plot_type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ModelName string    `json:"model_name"`

	Series []SeriesData `json:"series"`
	Config PlotConfig   `json:"config"`

	Metrics map[string]interface{} `json:"metrics,omitempty"`
}

// SeriesData represents a single data series in a plot
type SeriesData struct {
	Name string      `json:"name"`
	Type string      `json:"type"` // "line", "bar", "heatmap"
	Data []DataPoint `json:"data"`
}

// DataPoint represents a single data point - flexible for different plot types
type DataPoint struct {
	X     interface{} `json:"x"`
	Y     interface{} `json:"y"`
	Z     interface{} `json:"z,omitempty"`
	Label string      `json:"label,omitempty"`
}

// PlotConfig contains plot-specific configuration
type PlotConfig struct {
	XAxisLabel string `json:"x_axis_label"`
	YAxisLabel string `json:"y_axis_label"`
	ShowLegend bool   `json:"show_legend"`
	ShowGrid   bool   `json:"show_grid"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// VisualizationCollector gathers training and evaluation results and turns
// them into PlotData payloads.
type VisualizationCollector struct {
	modelName string

	epochs             []int
	trainingLoss       []float64
	trainingAccuracy   []float64
	validationLoss     []float64
	validationAccuracy []float64

	rocPoints       []training.ROCPoint
	rocAUC          float64
	confusionMatrix [][]int
	classNames      []string
	classCounts     []int
}

// NewVisualizationCollector creates a collector for the named model.
func NewVisualizationCollector(modelName string) *VisualizationCollector {
	return &VisualizationCollector{modelName: modelName}
}

// RecordEpoch appends one epoch of training curves.
func (vc *VisualizationCollector) RecordEpoch(epoch int, trainLoss, trainAcc, valLoss, valAcc float64) {
	vc.epochs = append(vc.epochs, epoch)
	vc.trainingLoss = append(vc.trainingLoss, trainLoss)
	vc.trainingAccuracy = append(vc.trainingAccuracy, trainAcc)
	vc.validationLoss = append(vc.validationLoss, valLoss)
	vc.validationAccuracy = append(vc.validationAccuracy, valAcc)
}

// RecordHistory replays a full training history into the collector.
func (vc *VisualizationCollector) RecordHistory(history *training.History) {
	for _, m := range history.Epochs {
		vc.RecordEpoch(m.Epoch, m.TrainLoss, m.TrainAccuracy, m.ValLoss, m.ValAccuracy)
	}
}

// RecordROCData stores a binary ROC curve.
func (vc *VisualizationCollector) RecordROCData(points []training.ROCPoint, auc float64) {
	vc.rocPoints = points
	vc.rocAUC = auc
}

// RecordConfusionMatrix stores evaluation confusion counts.
func (vc *VisualizationCollector) RecordConfusionMatrix(matrix [][]int, classNames []string) {
	vc.confusionMatrix = matrix
	vc.classNames = classNames
}

// RecordClassDistribution stores per-class sample counts, aligned with the
// class names passed to RecordConfusionMatrix.
func (vc *VisualizationCollector) RecordClassDistribution(classNames []string, counts []int) {
	vc.classNames = classNames
	vc.classCounts = counts
}

// GenerateTrainingCurvesPlot builds loss and accuracy line series over epochs.
func (vc *VisualizationCollector) GenerateTrainingCurvesPlot() PlotData {
	series := []SeriesData{
		{Name: "Training Loss", Type: "line", Data: vc.lineSeries(vc.trainingLoss)},
		{Name: "Validation Loss", Type: "line", Data: vc.lineSeries(vc.validationLoss)},
		{Name: "Training Accuracy", Type: "line", Data: vc.lineSeries(vc.trainingAccuracy)},
		{Name: "Validation Accuracy", Type: "line", Data: vc.lineSeries(vc.validationAccuracy)},
	}
	return vc.newPlot(TrainingCurves, "Training Curves", series, PlotConfig{
		XAxisLabel: "Epoch", YAxisLabel: "Value", ShowLegend: true, ShowGrid: true,
		Width: 800, Height: 600,
	})
}

func (vc *VisualizationCollector) lineSeries(values []float64) []DataPoint {
	points := make([]DataPoint, len(values))
	for i, v := range values {
		points[i] = DataPoint{X: vc.epochs[i], Y: v}
	}
	return points
}

// GenerateROCCurvePlot builds the ROC curve with the AUC in its metrics.
func (vc *VisualizationCollector) GenerateROCCurvePlot() PlotData {
	points := make([]DataPoint, len(vc.rocPoints))
	for i, p := range vc.rocPoints {
		points[i] = DataPoint{X: p.FPR, Y: p.TPR}
	}
	pd := vc.newPlot(ROCCurve, "ROC Curve", []SeriesData{
		{Name: "ROC", Type: "line", Data: points},
	}, PlotConfig{
		XAxisLabel: "False Positive Rate", YAxisLabel: "True Positive Rate",
		ShowGrid: true, Width: 600, Height: 600,
	})
	pd.Metrics = map[string]interface{}{"auc": vc.rocAUC}
	return pd
}

// GenerateConfusionMatrixPlot builds a heatmap of true vs predicted counts.
func (vc *VisualizationCollector) GenerateConfusionMatrixPlot() PlotData {
	var points []DataPoint
	for i, row := range vc.confusionMatrix {
		for j, count := range row {
			point := DataPoint{X: j, Y: i, Z: count}
			if i < len(vc.classNames) && j < len(vc.classNames) {
				point.Label = fmt.Sprintf("%s -> %s", vc.classNames[i], vc.classNames[j])
			}
			points = append(points, point)
		}
	}
	return vc.newPlot(ConfusionMatrixPlot, "Confusion Matrix", []SeriesData{
		{Name: "Counts", Type: "heatmap", Data: points},
	}, PlotConfig{
		XAxisLabel: "Predicted", YAxisLabel: "True", Width: 600, Height: 600,
	})
}

// GenerateClassDistributionPlot builds a bar chart of per-class counts.
func (vc *VisualizationCollector) GenerateClassDistributionPlot() PlotData {
	points := make([]DataPoint, len(vc.classCounts))
	for i, count := range vc.classCounts {
		label := fmt.Sprintf("class %d", i)
		if i < len(vc.classNames) {
			label = vc.classNames[i]
		}
		points[i] = DataPoint{X: label, Y: count, Label: label}
	}
	return vc.newPlot(ClassDistribution, "Class Distribution", []SeriesData{
		{Name: "Samples", Type: "bar", Data: points},
	}, PlotConfig{
		XAxisLabel: "Class", YAxisLabel: "Count", Width: 600, Height: 400,
	})
}

func (vc *VisualizationCollector) newPlot(pt PlotType, title string, series []SeriesData, cfg PlotConfig) PlotData {
	return PlotData{
		PlotType:  pt,
		Title:     title,
		Timestamp: time.Now(),
		ModelName: vc.modelName,
		Series:    series,
		Config:    cfg,
	}
}

// ToJSON serializes the plot payload.
func (pd PlotData) ToJSON() (string, error) {
	data, err := json.MarshalIndent(pd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plot data: %v", err)
	}
	return string(data), nil
}
