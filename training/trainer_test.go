package training

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"wastenet/tensor"
)

// twoClusterDataset builds a linearly separable 2D dataset: class 0 around
// (-1,-1), class 1 around (1,1).
func twoClusterDataset(t *testing.T, perClass int) *SimpleDataset {
	t.Helper()
	var data, labels []*tensor.Tensor
	for i := 0; i < perClass; i++ {
		jitter := float32(i%5) * 0.05
		for class := 0; class < 2; class++ {
			center := float32(1)
			if class == 0 {
				center = -1
			}
			sample, err := tensor.NewTensor([]int{2}, tensor.Float32, []float32{center + jitter, center - jitter})
			require.NoError(t, err)
			label, err := tensor.NewTensor([]int{1}, tensor.Int32, []int32{int32(class)})
			require.NoError(t, err)
			data = append(data, sample)
			labels = append(labels, label)
		}
	}
	ds, err := NewSimpleDataset(data, labels)
	require.NoError(t, err)
	return ds
}

func newTinyClassifier(t *testing.T) *Sequential {
	t.Helper()
	SetRandomSeed(42)
	l1, err := NewLinear(2, 8, true)
	require.NoError(t, err)
	l2, err := NewLinear(8, 2, true)
	require.NoError(t, err)
	return NewSequential(l1, NewReLU(), l2)
}

func TestTrainerFitConverges(t *testing.T) {
	model := newTinyClassifier(t)
	ds := twoClusterDataset(t, 20)
	train := NewDataLoader(ds, 8, true, 1)
	val := NewDataLoader(ds, 8, false, 1)

	opt := NewAdam(model.Parameters(), 0.01, 0, 0, 0, 0)
	trainer, err := NewTrainer(model, NewCrossEntropyLoss(), opt, nil, Config{Epochs: 15})
	require.NoError(t, err)

	history, err := trainer.Fit(context.Background(), train, val)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, trainer.State())
	require.Equal(t, StateCompleted, history.FinalState)
	require.Len(t, history.Epochs, 15)

	first := history.Epochs[0]
	last := history.Epochs[len(history.Epochs)-1]
	require.Equal(t, train.Len(), first.TrainBatches)
	require.Less(t, last.TrainLoss, first.TrainLoss)
	require.Greater(t, last.ValAccuracy, 0.95)
}

func TestTrainerEarlyStopping(t *testing.T) {
	model := newTinyClassifier(t)
	ds := twoClusterDataset(t, 10)
	train := NewDataLoader(ds, 8, true, 1)
	val := NewDataLoader(ds, 8, false, 1)

	opt := NewAdam(model.Parameters(), 0.01, 0, 0, 0, 0)
	// A minDelta no run can beat forces the stop after patience epochs.
	es := NewEarlyStopping(2, 1e9, true, model.Parameters(), nil)
	trainer, err := NewTrainer(model, NewCrossEntropyLoss(), opt, nil, Config{Epochs: 50}, es)
	require.NoError(t, err)

	history, err := trainer.Fit(context.Background(), train, val)
	require.NoError(t, err)
	require.Equal(t, StateEarlyStopped, trainer.State())
	require.True(t, es.Triggered())
	// Epoch 1 establishes the baseline, epochs 2 and 3 exhaust the patience.
	require.Len(t, history.Epochs, 3)
}

func TestEarlyStoppingRestoredWeightsMatchBestValLoss(t *testing.T) {
	model := newTinyClassifier(t)
	ds := twoClusterDataset(t, 10)
	train := NewDataLoader(ds, 8, true, 1)
	val := NewDataLoader(ds, 8, false, 1)

	// An oversized step keeps the validation loss oscillating, so the stop
	// triggers on an epoch worse than the best and the restore has work to do.
	opt := NewSGD(model.Parameters(), 25, 0, 0)
	es := NewEarlyStopping(3, 0, true, model.Parameters(), nil)
	trainer, err := NewTrainer(model, NewCrossEntropyLoss(), opt, nil, Config{Epochs: 30}, es)
	require.NoError(t, err)

	history, err := trainer.Fit(context.Background(), train, val)
	require.NoError(t, err)
	require.True(t, es.Triggered())

	best := history.Epochs[0].ValLoss
	for _, m := range history.Epochs {
		if m.ValLoss < best {
			best = m.ValLoss
		}
	}
	// The restored model can never validate worse than the best loss seen
	// during the run.
	restoredLoss, _, err := trainer.Validate(context.Background(), val)
	require.NoError(t, err)
	require.LessOrEqual(t, restoredLoss, best+1e-6)
}

func TestTrainerCompletedRunKeepsFinalWeights(t *testing.T) {
	model := newTinyClassifier(t)
	ds := twoClusterDataset(t, 10)
	train := NewDataLoader(ds, 8, true, 1)
	val := NewDataLoader(ds, 8, false, 1)

	opt := NewAdam(model.Parameters(), 0.01, 0, 0, 0, 0)
	es := NewEarlyStopping(50, 0, true, model.Parameters(), nil)
	trainer, err := NewTrainer(model, NewCrossEntropyLoss(), opt, nil, Config{Epochs: 3}, es)
	require.NoError(t, err)

	_, err = trainer.Fit(context.Background(), train, val)
	require.NoError(t, err)
	require.Equal(t, StateCompleted, trainer.State())
	require.False(t, es.Triggered())
}

func TestTrainerRejectsReuse(t *testing.T) {
	model := newTinyClassifier(t)
	ds := twoClusterDataset(t, 4)
	train := NewDataLoader(ds, 4, false, 1)

	opt := NewSGD(model.Parameters(), 0.01, 0, 0)
	trainer, err := NewTrainer(model, NewCrossEntropyLoss(), opt, nil, Config{Epochs: 1})
	require.NoError(t, err)

	_, err = trainer.Fit(context.Background(), train, train)
	require.NoError(t, err)
	_, err = trainer.Fit(context.Background(), train, train)
	require.Error(t, err)
}

func TestTrainerContextCancellation(t *testing.T) {
	model := newTinyClassifier(t)
	ds := twoClusterDataset(t, 10)
	train := NewDataLoader(ds, 4, false, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := NewSGD(model.Parameters(), 0.01, 0, 0)
	trainer, err := NewTrainer(model, NewCrossEntropyLoss(), opt, nil, Config{Epochs: 5})
	require.NoError(t, err)

	_, err = trainer.Fit(ctx, train, train)
	require.Error(t, err)
}

func TestModelCheckpointSavesOnImprovement(t *testing.T) {
	model := newTinyClassifier(t)
	ds := twoClusterDataset(t, 10)
	train := NewDataLoader(ds, 8, true, 1)
	val := NewDataLoader(ds, 8, false, 1)

	var savedEpochs []int
	mc := NewModelCheckpoint(func(epoch int, metrics EpochMetrics) error {
		savedEpochs = append(savedEpochs, epoch)
		return nil
	}, true, nil)

	opt := NewAdam(model.Parameters(), 0.01, 0, 0, 0, 0)
	trainer, err := NewTrainer(model, NewCrossEntropyLoss(), opt, nil, Config{Epochs: 5}, mc)
	require.NoError(t, err)

	_, err = trainer.Fit(context.Background(), train, val)
	require.NoError(t, err)
	require.NotEmpty(t, savedEpochs)
	require.Equal(t, 1, savedEpochs[0])
}

func TestWeightedLossPenalizesRareClassMore(t *testing.T) {
	logits, err := tensor.Zeros([]int{2, 2}, tensor.Float32)
	require.NoError(t, err)
	targets, err := tensor.NewTensor([]int{2}, tensor.Int32, []int32{0, 1})
	require.NoError(t, err)

	unweighted := NewCrossEntropyLoss()
	base, err := unweighted.Forward(logits, targets)
	require.NoError(t, err)
	baseVal, err := base.Item()
	require.NoError(t, err)

	weighted, err := NewWeightedCrossEntropyLoss([]float32{1, 3})
	require.NoError(t, err)
	wLoss, err := weighted.Forward(logits, targets)
	require.NoError(t, err)
	wVal, err := wLoss.Item()
	require.NoError(t, err)

	require.Greater(t, wVal, baseVal)
}

func TestWeightedLossRejectsBadWeights(t *testing.T) {
	_, err := NewWeightedCrossEntropyLoss(nil)
	require.Error(t, err)
	_, err = NewWeightedCrossEntropyLoss([]float32{1, 0})
	require.Error(t, err)
}

func TestL2PenaltyValueAndGradient(t *testing.T) {
	w, err := tensor.NewTensor([]int{2}, tensor.Float32, []float32{3, 4})
	require.NoError(t, err)
	w.SetRequiresGrad(true)

	penalty, err := NewL2Penalty(0.5, w)
	require.NoError(t, err)
	require.InDelta(t, 12.5, penalty.Penalty(), 1e-6)

	// Give the parameter a gradient, then add the penalty term.
	sum, err := tensor.SumAutograd(w)
	require.NoError(t, err)
	require.NoError(t, sum.Backward())
	require.NoError(t, penalty.AddToGradients())

	grad := w.Grad().Float32s()
	require.InDelta(t, 1+2*0.5*3, float64(grad[0]), 1e-6)
	require.InDelta(t, 1+2*0.5*4, float64(grad[1]), 1e-6)
}

func TestEvaluatorReport(t *testing.T) {
	model := newTinyClassifier(t)
	ds := twoClusterDataset(t, 20)
	train := NewDataLoader(ds, 8, true, 1)
	val := NewDataLoader(ds, 8, false, 1)

	opt := NewAdam(model.Parameters(), 0.01, 0, 0, 0, 0)
	trainer, err := NewTrainer(model, NewCrossEntropyLoss(), opt, nil, Config{Epochs: 15})
	require.NoError(t, err)
	_, err = trainer.Fit(context.Background(), train, val)
	require.NoError(t, err)

	eval, err := NewEvaluator(model, nil)
	require.NoError(t, err)
	report, err := eval.Evaluate(context.Background(), val, []string{"neg", "pos"})
	require.NoError(t, err)

	require.Greater(t, report.Accuracy, 0.95)
	// A well-fitted separable problem scores below the ln 2 guessing baseline.
	require.Greater(t, report.Loss, 0.0)
	require.Less(t, report.Loss, math.Log(2))
	require.Len(t, report.Labels, ds.Len())
	require.Len(t, report.Predictions, ds.Len())
	require.Len(t, report.Probabilities, ds.Len()*2)
	require.NotEmpty(t, report.ROC)
	require.Greater(t, report.AUC, 0.95)
	require.Contains(t, report.ReportText, "pos")
}

func TestEvaluatorLossOnUniformModel(t *testing.T) {
	model := newTinyClassifier(t)
	for _, p := range model.Parameters() {
		data := p.Float32s()
		for i := range data {
			data[i] = 0
		}
	}
	ds := twoClusterDataset(t, 5)
	dl := NewDataLoader(ds, 4, false, 1)

	eval, err := NewEvaluator(model, nil)
	require.NoError(t, err)
	report, err := eval.Evaluate(context.Background(), dl, []string{"neg", "pos"})
	require.NoError(t, err)

	// Zeroed weights emit uniform probabilities, so the mean loss is ln 2.
	require.InDelta(t, math.Log(2), report.Loss, 1e-5)
}

func TestDataLoaderBatching(t *testing.T) {
	ds := twoClusterDataset(t, 5) // 10 samples
	dl := NewDataLoader(ds, 4, false, 1)

	require.Equal(t, 3, dl.Len())
	sizes := []int{}
	for dl.HasNext() {
		batch, err := dl.Next()
		require.NoError(t, err)
		sizes = append(sizes, batch.Size)
		require.Equal(t, batch.Size, batch.Data.Shape[0])
		require.Equal(t, batch.Size, batch.Labels.Shape[0])
	}
	require.Equal(t, []int{4, 4, 2}, sizes)

	_, err := dl.Next()
	require.Error(t, err)
	dl.Reset()
	require.True(t, dl.HasNext())
}

func TestDataLoaderShuffleIsDeterministic(t *testing.T) {
	ds := twoClusterDataset(t, 10)
	a := NewDataLoader(ds, 20, true, 99)
	b := NewDataLoader(ds, 20, true, 99)

	ba, err := a.Next()
	require.NoError(t, err)
	bb, err := b.Next()
	require.NoError(t, err)
	require.Equal(t, ba.Labels.Int32s(), bb.Labels.Int32s())
	require.Equal(t, ba.Data.Float32s(), bb.Data.Float32s())
}
