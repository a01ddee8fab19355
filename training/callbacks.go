package training

import (
	"fmt"

	"go.uber.org/zap"

	"wastenet/tensor"
)

// Callback observes the training loop. OnEpochEnd runs after validation for
// the epoch; OnTrainEnd runs once after the final epoch, whether training
// completed or stopped early.
type Callback interface {
	OnEpochEnd(t *Trainer, metrics EpochMetrics) error
	OnTrainEnd(t *Trainer) error
}

// EarlyStopping stops training when the monitored validation loss has not
// improved by at least minDelta for patience consecutive epochs. When
// restoreBestWeights is set, the parameters from the best epoch are restored,
// but only if the stop actually triggered; a run that reaches the epoch limit
// keeps its final weights.
type EarlyStopping struct {
	patience           int
	minDelta           float64
	restoreBestWeights bool

	bestLoss     float64
	bestEpoch    int
	wait         int
	triggered    bool
	bestSnapshot []*tensor.Tensor
	params       []*tensor.Tensor
	logger       *zap.Logger
}

// NewEarlyStopping creates the callback. params are the model parameters to
// snapshot and restore.
func NewEarlyStopping(patience int, minDelta float64, restoreBestWeights bool, params []*tensor.Tensor, logger *zap.Logger) *EarlyStopping {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EarlyStopping{
		patience:           patience,
		minDelta:           minDelta,
		restoreBestWeights: restoreBestWeights,
		bestLoss:           float64(1e30),
		params:             params,
		logger:             logger,
	}
}

func (es *EarlyStopping) OnEpochEnd(t *Trainer, metrics EpochMetrics) error {
	if metrics.ValLoss < es.bestLoss-es.minDelta {
		es.bestLoss = metrics.ValLoss
		es.bestEpoch = metrics.Epoch
		es.wait = 0
		if es.restoreBestWeights {
			if err := es.snapshot(); err != nil {
				return fmt.Errorf("failed to snapshot best weights: %v", err)
			}
		}
		return nil
	}

	es.wait++
	if es.wait >= es.patience {
		es.triggered = true
		es.logger.Info("early stopping triggered",
			zap.Int("epoch", metrics.Epoch),
			zap.Int("best_epoch", es.bestEpoch),
			zap.Float64("best_val_loss", es.bestLoss))
		t.RequestStop()
	}
	return nil
}

func (es *EarlyStopping) OnTrainEnd(t *Trainer) error {
	if !es.triggered || !es.restoreBestWeights || es.bestSnapshot == nil {
		return nil
	}
	for i, param := range es.params {
		if err := param.SetData(es.bestSnapshot[i].Data); err != nil {
			return fmt.Errorf("failed to restore parameter %d: %v", i, err)
		}
	}
	es.logger.Info("restored best weights", zap.Int("epoch", es.bestEpoch))
	return nil
}

// Triggered reports whether the callback stopped training.
func (es *EarlyStopping) Triggered() bool {
	return es.triggered
}

// BestEpoch returns the epoch with the lowest monitored loss so far.
func (es *EarlyStopping) BestEpoch() int {
	return es.bestEpoch
}

func (es *EarlyStopping) snapshot() error {
	snap := make([]*tensor.Tensor, len(es.params))
	for i, param := range es.params {
		c, err := param.Clone()
		if err != nil {
			return err
		}
		snap[i] = c
	}
	es.bestSnapshot = snap
	return nil
}

// SaveFunc persists the model at an epoch boundary.
type SaveFunc func(epoch int, metrics EpochMetrics) error

// ModelCheckpoint saves the model after epochs that improve validation loss.
// With saveBestOnly disabled it saves after every epoch.
type ModelCheckpoint struct {
	save         SaveFunc
	saveBestOnly bool
	bestLoss     float64
	logger       *zap.Logger
}

func NewModelCheckpoint(save SaveFunc, saveBestOnly bool, logger *zap.Logger) *ModelCheckpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelCheckpoint{
		save:         save,
		saveBestOnly: saveBestOnly,
		bestLoss:     float64(1e30),
		logger:       logger,
	}
}

func (mc *ModelCheckpoint) OnEpochEnd(t *Trainer, metrics EpochMetrics) error {
	if mc.saveBestOnly && metrics.ValLoss >= mc.bestLoss {
		return nil
	}
	mc.bestLoss = metrics.ValLoss
	if err := mc.save(metrics.Epoch, metrics); err != nil {
		return fmt.Errorf("checkpoint save failed at epoch %d: %v", metrics.Epoch, err)
	}
	mc.logger.Info("checkpoint saved",
		zap.Int("epoch", metrics.Epoch),
		zap.Float64("val_loss", metrics.ValLoss))
	return nil
}

func (mc *ModelCheckpoint) OnTrainEnd(t *Trainer) error { return nil }

// EpochLogger logs one structured line per epoch.
type EpochLogger struct {
	logger *zap.Logger
}

func NewEpochLogger(logger *zap.Logger) *EpochLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EpochLogger{logger: logger}
}

func (el *EpochLogger) OnEpochEnd(t *Trainer, metrics EpochMetrics) error {
	el.logger.Info("epoch complete",
		zap.Int("epoch", metrics.Epoch),
		zap.Int("batches", metrics.TrainBatches),
		zap.Float64("train_loss", metrics.TrainLoss),
		zap.Float64("train_accuracy", metrics.TrainAccuracy),
		zap.Float64("val_loss", metrics.ValLoss),
		zap.Float64("val_accuracy", metrics.ValAccuracy),
		zap.Duration("duration", metrics.Duration))
	return nil
}

func (el *EpochLogger) OnTrainEnd(t *Trainer) error { return nil }
