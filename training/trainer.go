package training

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"wastenet/tensor"
)

// State tracks the trainer's position in its lifecycle.
type State int

const (
	StateInit State = iota
	StateRunning
	StateEarlyStopped
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateEarlyStopped:
		return "early-stopped"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// BatchSource yields mini-batches for one epoch at a time. Reset starts a
// fresh epoch; implementations backed by augmentation may produce different
// batches on every pass.
type BatchSource interface {
	Len() int
	Reset()
	HasNext() bool
	Next() (*Batch, error)
}

// EpochMetrics summarizes one training epoch.
type EpochMetrics struct {
	Epoch         int
	TrainBatches  int
	TrainLoss     float64
	TrainAccuracy float64
	ValLoss       float64
	ValAccuracy   float64
	Duration      time.Duration
}

// History accumulates per-epoch metrics across a training run.
type History struct {
	Epochs     []EpochMetrics
	FinalState State
}

// Config controls a training run.
type Config struct {
	Epochs int
	Logger *zap.Logger
}

// Trainer drives the fit loop: forward, loss, backward, optimizer step over
// the train source, then a full pass over the validation source, then
// callbacks. Callbacks can stop the run early via RequestStop.
type Trainer struct {
	model     Module
	loss      Loss
	optimizer Optimizer
	penalty   *L2Penalty
	callbacks []Callback
	config    Config
	logger    *zap.Logger

	state         State
	stopRequested bool
}

// NewTrainer assembles a trainer. penalty may be nil.
func NewTrainer(model Module, loss Loss, optimizer Optimizer, penalty *L2Penalty, config Config, callbacks ...Callback) (*Trainer, error) {
	if model == nil || loss == nil || optimizer == nil {
		return nil, fmt.Errorf("model, loss, and optimizer are required")
	}
	if config.Epochs < 1 {
		return nil, fmt.Errorf("epochs must be >= 1, got %d", config.Epochs)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		model:     model,
		loss:      loss,
		optimizer: optimizer,
		penalty:   penalty,
		callbacks: callbacks,
		config:    config,
		logger:    logger,
		state:     StateInit,
	}, nil
}

// State returns the trainer's current lifecycle state.
func (t *Trainer) State() State {
	return t.state
}

// RequestStop asks the fit loop to stop after the current epoch's callbacks.
func (t *Trainer) RequestStop() {
	t.stopRequested = true
}

// Fit trains for up to config.Epochs epochs, validating after each one.
// Returns the metric history together with the first error encountered.
func (t *Trainer) Fit(ctx context.Context, train, val BatchSource) (*History, error) {
	if t.state != StateInit {
		return nil, fmt.Errorf("trainer already used, state is %s", t.state)
	}
	t.state = StateRunning
	history := &History{}

	t.logger.Info("training started",
		zap.Int("epochs", t.config.Epochs),
		zap.Int("train_batches", train.Len()),
		zap.Int("val_batches", val.Len()))

	for epoch := 1; epoch <= t.config.Epochs; epoch++ {
		start := time.Now()

		trainLoss, trainAcc, err := t.runTrainEpoch(ctx, train)
		if err != nil {
			return history, fmt.Errorf("epoch %d training failed: %v", epoch, err)
		}
		valLoss, valAcc, err := t.Validate(ctx, val)
		if err != nil {
			return history, fmt.Errorf("epoch %d validation failed: %v", epoch, err)
		}

		metrics := EpochMetrics{
			Epoch:         epoch,
			TrainBatches:  train.Len(),
			TrainLoss:     trainLoss,
			TrainAccuracy: trainAcc,
			ValLoss:       valLoss,
			ValAccuracy:   valAcc,
			Duration:      time.Since(start),
		}
		history.Epochs = append(history.Epochs, metrics)

		for _, cb := range t.callbacks {
			if err := cb.OnEpochEnd(t, metrics); err != nil {
				return history, fmt.Errorf("callback failed at epoch %d: %v", epoch, err)
			}
		}
		if t.stopRequested {
			t.state = StateEarlyStopped
			break
		}
	}

	if t.state == StateRunning {
		t.state = StateCompleted
	}
	history.FinalState = t.state

	for _, cb := range t.callbacks {
		if err := cb.OnTrainEnd(t); err != nil {
			return history, fmt.Errorf("callback cleanup failed: %v", err)
		}
	}
	t.logger.Info("training finished",
		zap.String("state", t.state.String()),
		zap.Int("epochs_run", len(history.Epochs)))
	return history, nil
}

func (t *Trainer) runTrainEpoch(ctx context.Context, train BatchSource) (float64, float64, error) {
	t.model.Train()
	train.Reset()

	var totalLoss float64
	var correct, seen int

	for train.HasNext() {
		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		default:
		}

		batch, err := train.Next()
		if err != nil {
			return 0, 0, err
		}

		logits, err := t.model.Forward(batch.Data)
		if err != nil {
			return 0, 0, fmt.Errorf("forward pass failed: %v", err)
		}
		lossT, err := t.loss.Forward(logits, batch.Labels)
		if err != nil {
			return 0, 0, fmt.Errorf("loss computation failed: %v", err)
		}
		lossVal, err := lossT.Item()
		if err != nil {
			return 0, 0, err
		}
		if t.penalty != nil {
			lossVal += t.penalty.Penalty()
		}

		t.optimizer.ZeroGrad()
		if err := lossT.Backward(); err != nil {
			return 0, 0, fmt.Errorf("backward pass failed: %v", err)
		}
		if t.penalty != nil {
			if err := t.penalty.AddToGradients(); err != nil {
				return 0, 0, err
			}
		}
		if err := t.optimizer.Step(); err != nil {
			return 0, 0, fmt.Errorf("optimizer step failed: %v", err)
		}

		totalLoss += lossVal * float64(batch.Size)
		c, err := countCorrect(logits, batch.Labels)
		if err != nil {
			return 0, 0, err
		}
		correct += c
		seen += batch.Size
	}

	if seen == 0 {
		return 0, 0, fmt.Errorf("training source produced no samples")
	}
	return totalLoss / float64(seen), float64(correct) / float64(seen), nil
}

// Validate runs a forward-only pass over source and returns mean loss and
// accuracy. The model is left in eval mode.
func (t *Trainer) Validate(ctx context.Context, source BatchSource) (float64, float64, error) {
	t.model.Eval()
	source.Reset()

	var totalLoss float64
	var correct, seen int

	for source.HasNext() {
		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		default:
		}

		batch, err := source.Next()
		if err != nil {
			return 0, 0, err
		}
		logits, err := t.model.Forward(batch.Data)
		if err != nil {
			return 0, 0, fmt.Errorf("forward pass failed: %v", err)
		}
		lossT, err := t.loss.Forward(logits, batch.Labels)
		if err != nil {
			return 0, 0, fmt.Errorf("loss computation failed: %v", err)
		}
		lossVal, err := lossT.Item()
		if err != nil {
			return 0, 0, err
		}
		totalLoss += lossVal * float64(batch.Size)
		c, err := countCorrect(logits, batch.Labels)
		if err != nil {
			return 0, 0, err
		}
		correct += c
		seen += batch.Size
	}

	if seen == 0 {
		return 0, 0, fmt.Errorf("validation source produced no samples")
	}
	return totalLoss / float64(seen), float64(correct) / float64(seen), nil
}

func countCorrect(logits, labels *tensor.Tensor) (int, error) {
	preds, err := tensor.ArgMax(logits)
	if err != nil {
		return 0, err
	}
	labelData := labels.Int32s()
	correct := 0
	for i, p := range preds {
		if int32(p) == labelData[i] {
			correct++
		}
	}
	return correct, nil
}
