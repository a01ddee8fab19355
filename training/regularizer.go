package training

import (
	"fmt"

	"wastenet/tensor"
)

// L2Penalty applies weight decay to a specific set of parameters, leaving the
// rest of the model unpenalized. This matches architectures that regularize a
// single dense head while the convolutional backbone trains freely.
type L2Penalty struct {
	lambda float64
	params []*tensor.Tensor
}

// NewL2Penalty creates an L2 penalty with strength lambda over params.
func NewL2Penalty(lambda float64, params ...*tensor.Tensor) (*L2Penalty, error) {
	if lambda < 0 {
		return nil, fmt.Errorf("lambda must be non-negative, got %v", lambda)
	}
	return &L2Penalty{lambda: lambda, params: params}, nil
}

// Penalty returns lambda * sum of squared parameter values, the term the
// penalty adds to the reported loss.
func (p *L2Penalty) Penalty() float64 {
	var total float64
	for _, param := range p.params {
		for _, v := range param.Float32s() {
			total += float64(v) * float64(v)
		}
	}
	return p.lambda * total
}

// AddToGradients accumulates d(lambda*w^2)/dw = 2*lambda*w into each
// parameter's gradient. Call after loss.Backward and before optimizer.Step.
// Parameters the backward pass never reached are skipped.
func (p *L2Penalty) AddToGradients() error {
	for _, param := range p.params {
		grad := param.Grad()
		if grad == nil {
			continue
		}
		gd := grad.Float32s()
		pd := param.Float32s()
		scale := float32(2 * p.lambda)
		for i := range gd {
			gd[i] += scale * pd[i]
		}
	}
	return nil
}
