package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"wastenet/checkpoints"
	"wastenet/config"
	"wastenet/model"
	"wastenet/training"
	"wastenet/vision/augment"
	"wastenet/vision/dataset"
	"wastenet/vision/preprocessing"
)

// Result bundles everything a training run produces.
type Result struct {
	Classes []string
	Weights []float32
	History *training.History
	Report  *training.Report
}

// Run executes the full pipeline: load and encode the dataset, estimate class
// weights, split, train with augmentation, evaluate on the held-out test set,
// and render result charts. Chart rendering is best effort and never fails
// the run.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	training.SetRandomSeed(cfg.Training.Seed)

	samples, encoder, counts, err := loadDataset(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Weights are estimated over the full label set, before splitting, so
	// they reflect the true class imbalance.
	weights, err := training.EstimateClassWeights(samples.Labels, encoder.NumClasses())
	if err != nil {
		return nil, err
	}
	logger.Info("class weights estimated",
		zap.Strings("classes", encoder.Classes()),
		zap.Float32s("weights", weights))

	split, err := dataset.ThreeWaySplit(samples.Len(), cfg.Training.HoldoutFraction, cfg.Training.Seed)
	if err != nil {
		return nil, err
	}
	trainSet, err := samples.Subset(split.Train)
	if err != nil {
		return nil, err
	}
	valSet, err := samples.Subset(split.Val)
	if err != nil {
		return nil, err
	}
	testSet, err := samples.Subset(split.Test)
	if err != nil {
		return nil, err
	}
	logger.Info("dataset split",
		zap.Int("train", trainSet.Len()),
		zap.Int("val", valSet.Len()),
		zap.Int("test", testSet.Len()))

	augmenter, err := augment.NewAugmenter(augment.Config{
		RotationDeg:    cfg.Augment.RotationDegrees,
		TranslateFrac:  cfg.Augment.TranslateFraction,
		ShearFrac:      cfg.Augment.ShearFraction,
		ZoomFrac:       cfg.Augment.ZoomFraction,
		HorizontalFlip: cfg.Augment.HorizontalFlip,
		VerticalFlip:   cfg.Augment.VerticalFlip,
		BrightnessMin:  cfg.Augment.BrightnessMin,
		BrightnessMax:  cfg.Augment.BrightnessMax,
	}, cfg.Training.Seed)
	if err != nil {
		return nil, err
	}

	trainGen, err := augment.NewBatchGenerator(trainSet, augmenter, cfg.Training.BatchSize, cfg.Training.Seed)
	if err != nil {
		return nil, err
	}
	valGen, err := augment.NewBatchGenerator(valSet, nil, cfg.Training.BatchSize, cfg.Training.Seed)
	if err != nil {
		return nil, err
	}
	testGen, err := augment.NewBatchGenerator(testSet, nil, cfg.Training.BatchSize, cfg.Training.Seed)
	if err != nil {
		return nil, err
	}

	m, err := buildModel(cfg, encoder, logger)
	if err != nil {
		return nil, err
	}

	history, err := trainModel(ctx, cfg, m, weights, encoder.Classes(), trainGen, valGen, logger)
	if err != nil {
		return nil, err
	}

	evaluator, err := training.NewEvaluator(m, logger)
	if err != nil {
		return nil, err
	}
	report, err := evaluator.Evaluate(ctx, testGen, encoder.Classes())
	if err != nil {
		return nil, fmt.Errorf("evaluation failed: %v", err)
	}
	fmt.Println(report.ReportText)

	renderCharts(cfg, m, history, report, testSet, counts, logger)

	return &Result{
		Classes: encoder.Classes(),
		Weights: weights,
		History: history,
		Report:  report,
	}, nil
}

// loadDataset reads the category directories, fits the label encoder, and
// shifts pixels from [0, 1] into the [-1, 1] range the model trains on.
func loadDataset(cfg *config.Config, logger *zap.Logger) (*dataset.Samples, *dataset.LabelEncoder, map[string]int, error) {
	loader, err := dataset.NewLoader(cfg.Data.ImageSize, cfg.Data.Workers, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	categories := make([]dataset.Category, len(cfg.Data.Categories))
	for i, cat := range cfg.Data.Categories {
		categories[i] = dataset.Category{Name: cat.Name, Dir: cat.Dir}
	}

	raw, err := loader.Load(categories)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dataset load failed: %v", err)
	}
	encoder, err := dataset.NewLabelEncoder(raw.Labels)
	if err != nil {
		return nil, nil, nil, err
	}
	samples, err := dataset.EncodeSamples(raw, encoder)
	if err != nil {
		return nil, nil, nil, err
	}
	for _, pixels := range samples.Data {
		preprocessing.Normalize(pixels)
	}
	return samples, encoder, raw.Counts, nil
}

// buildModel constructs the network, resuming from an existing checkpoint
// when one is found at the configured path.
func buildModel(cfg *config.Config, encoder *dataset.LabelEncoder, logger *zap.Logger) (*model.WasteNet, error) {
	m, err := model.New(model.Config{
		ImageSize:   cfg.Data.ImageSize,
		NumClasses:  encoder.NumClasses(),
		HiddenUnits: cfg.Model.HiddenUnits,
		DropoutRate: cfg.Model.DropoutRate,
	})
	if err != nil {
		return nil, err
	}

	saver := checkpoints.NewCheckpointSaver()
	ckpt, err := saver.LoadCheckpoint(cfg.Output.CheckpointPath)
	if err != nil {
		logger.Warn("no usable checkpoint, starting from fresh weights",
			zap.String("path", cfg.Output.CheckpointPath),
			zap.Error(err))
		return m, nil
	}
	if err := checkpoints.LoadWeights(ckpt.Weights, m.ParameterNames(), m.Parameters()); err != nil {
		logger.Warn("checkpoint incompatible with model, starting from fresh weights",
			zap.String("path", cfg.Output.CheckpointPath),
			zap.Error(err))
		return m, nil
	}
	logger.Info("resumed from checkpoint",
		zap.String("path", cfg.Output.CheckpointPath),
		zap.Int("epoch", ckpt.TrainingState.Epoch),
		zap.Float64("val_loss", ckpt.TrainingState.ValLoss))
	return m, nil
}

func trainModel(ctx context.Context, cfg *config.Config, m *model.WasteNet, weights []float32,
	classes []string, trainGen, valGen training.BatchSource, logger *zap.Logger) (*training.History, error) {

	loss, err := training.NewWeightedCrossEntropyLoss(weights)
	if err != nil {
		return nil, err
	}
	optimizer := training.NewAdam(m.Parameters(), cfg.Training.LearningRate, 0, 0, 0, 0)

	var penalty *training.L2Penalty
	if cfg.Model.L2Lambda > 0 {
		penalty, err = training.NewL2Penalty(cfg.Model.L2Lambda, m.DenseHead().Weight())
		if err != nil {
			return nil, err
		}
	}

	for _, path := range []string{cfg.Output.CheckpointPath, cfg.Output.ModelPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create checkpoint directory: %v", err)
		}
	}
	saveFn := func(epoch int, metrics training.EpochMetrics) error {
		return saveModelArtifact(cfg, m, classes, "best validation loss", epoch, metrics, cfg.Output.CheckpointPath)
	}

	earlyStop := training.NewEarlyStopping(cfg.Training.Patience, cfg.Training.MinDelta, true, m.Parameters(), logger)
	checkpoint := training.NewModelCheckpoint(saveFn, true, logger)

	trainer, err := training.NewTrainer(m, loss, optimizer, penalty,
		training.Config{Epochs: cfg.Training.Epochs, Logger: logger},
		earlyStop, checkpoint, training.NewEpochLogger(logger))
	if err != nil {
		return nil, err
	}

	history, err := trainer.Fit(ctx, trainGen, valGen)
	if err != nil {
		return nil, fmt.Errorf("training failed: %v", err)
	}

	// The best-validation checkpoint already exists; this is the model as it
	// stands when training ends, which differs unless early stopping restored
	// the best weights.
	final := history.Epochs[len(history.Epochs)-1]
	if err := saveModelArtifact(cfg, m, classes, "final weights, "+history.FinalState.String(),
		final.Epoch, final, cfg.Output.ModelPath); err != nil {
		return nil, fmt.Errorf("failed to save final model: %v", err)
	}
	logger.Info("final model saved", zap.String("path", cfg.Output.ModelPath))
	return history, nil
}

func saveModelArtifact(cfg *config.Config, m *model.WasteNet, classes []string,
	description string, epoch int, metrics training.EpochMetrics, path string) error {

	weights, err := checkpoints.ExtractWeights(m.ParameterNames(), m.Parameters())
	if err != nil {
		return err
	}
	saver := checkpoints.NewCheckpointSaver()
	return saver.SaveCheckpoint(&checkpoints.Checkpoint{
		Weights: weights,
		TrainingState: checkpoints.TrainingState{
			Epoch:        epoch,
			LearningRate: cfg.Training.LearningRate,
			ValLoss:      metrics.ValLoss,
			ValAccuracy:  metrics.ValAccuracy,
		},
		Metadata: checkpoints.CheckpointMetadata{
			Description: description,
			ClassNames:  classes,
		},
	}, path)
}
