package training

import (
	"fmt"

	"wastenet/tensor"
)

// Loss interface defines methods that loss functions must implement
type Loss interface {
	Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error)
}

// CrossEntropyLoss computes the mean sparse categorical cross entropy of
// logits against int32 class indices. Softmax is fused into the loss, so
// models should emit raw logits. Optional per-class weights rescale each
// example's contribution by the weight of its true class.
type CrossEntropyLoss struct {
	classWeights []float32
}

// NewCrossEntropyLoss creates an unweighted cross entropy loss.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

// NewWeightedCrossEntropyLoss creates a cross entropy loss with per-class
// weights, typically the balanced weights from EstimateClassWeights.
func NewWeightedCrossEntropyLoss(classWeights []float32) (*CrossEntropyLoss, error) {
	if len(classWeights) == 0 {
		return nil, fmt.Errorf("class weights must not be empty")
	}
	for i, w := range classWeights {
		if w <= 0 {
			return nil, fmt.Errorf("class weight %d must be positive, got %v", i, w)
		}
	}
	return &CrossEntropyLoss{classWeights: append([]float32(nil), classWeights...)}, nil
}

// Forward computes the loss. predicted is [batch, classes] Float32 logits,
// target is [batch] Int32 class indices. The returned scalar participates in
// autograd, so calling Backward on it populates logit gradients.
func (ce *CrossEntropyLoss) Forward(predicted, target *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.SoftmaxCrossEntropyAutograd(predicted, target, ce.classWeights)
}
