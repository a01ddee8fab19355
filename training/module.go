package training

import (
	"fmt"
	"math"
	"math/rand"

	"wastenet/tensor"
)

// Global random source for deterministic initialization
var globalRng *rand.Rand = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight
// initialization and dropout masks.
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// Module interface defines methods that all neural network layers must implement
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*tensor.Tensor // Returns trainable parameters (tensors with requiresGrad=true)
	Train()                       // Sets module to training mode
	Eval()                        // Sets module to evaluation mode
	IsTraining() bool             // Returns true if in training mode
}

// Linear implements a fully connected (dense) layer: y = xW + b
type Linear struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	training bool
}

// NewLinear creates a new Linear layer with Xavier/Glorot uniform
// initialization: W ~ U(-sqrt(6/(fan_in+fan_out)), sqrt(6/(fan_in+fan_out))).
func NewLinear(inputSize, outputSize int, bias bool) (*Linear, error) {
	bound := math.Sqrt(6.0 / float64(inputSize+outputSize))

	weightData := make([]float32, inputSize*outputSize)
	for i := range weightData {
		weightData[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}

	weight, err := tensor.NewTensor([]int{inputSize, outputSize}, tensor.Float32, weightData)
	if err != nil {
		return nil, fmt.Errorf("failed to create weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	linear := &Linear{
		weight:   weight,
		training: true,
	}

	if bias {
		biasT, err := tensor.Zeros([]int{outputSize}, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("failed to create bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		linear.bias = biasT
	}

	return linear, nil
}

// Forward performs the forward pass: y = xW + b
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("Linear layer expects 2D input [batch_size, input_size], got shape %v", input.Shape)
	}
	if input.Shape[1] != l.weight.Shape[0] {
		return nil, fmt.Errorf("input size mismatch: expected %d, got %d", l.weight.Shape[0], input.Shape[1])
	}

	output, err := tensor.MatMulAutograd(input, l.weight)
	if err != nil {
		return nil, fmt.Errorf("linear forward failed: %v", err)
	}
	if l.bias != nil {
		output, err = tensor.AddAutograd(output, l.bias)
		if err != nil {
			return nil, fmt.Errorf("bias addition failed: %v", err)
		}
	}
	return output, nil
}

// Weight returns the weight tensor, used by weight decay penalties that
// apply to specific layers only.
func (l *Linear) Weight() *tensor.Tensor {
	return l.weight
}

func (l *Linear) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{l.weight}
	if l.bias != nil {
		params = append(params, l.bias)
	}
	return params
}

func (l *Linear) Train() { l.training = true }

func (l *Linear) Eval() { l.training = false }

func (l *Linear) IsTraining() bool { return l.training }

// ReLU activation layer
type ReLU struct {
	training bool
}

func NewReLU() *ReLU {
	return &ReLU{training: true}
}

func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.ReLUAutograd(input)
}

func (r *ReLU) Parameters() []*tensor.Tensor { return nil }

func (r *ReLU) Train() { r.training = true }

func (r *ReLU) Eval() { r.training = false }

func (r *ReLU) IsTraining() bool { return r.training }

// Conv2D implements a 2D convolutional layer
type Conv2D struct {
	weight   *tensor.Tensor
	bias     *tensor.Tensor
	stride   int
	padding  int
	training bool
}

// NewConv2D creates a convolutional layer. Weights use Xavier uniform
// initialization scaled by the kernel's fan-in and fan-out.
func NewConv2D(inputChannels, outputChannels, kernelSize, stride, padding int, bias bool) (*Conv2D, error) {
	if kernelSize < 1 {
		return nil, fmt.Errorf("kernel size must be >= 1, got %d", kernelSize)
	}
	fanIn := inputChannels * kernelSize * kernelSize
	fanOut := outputChannels * kernelSize * kernelSize
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	weightData := make([]float32, outputChannels*inputChannels*kernelSize*kernelSize)
	for i := range weightData {
		weightData[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}
	weight, err := tensor.NewTensor([]int{outputChannels, inputChannels, kernelSize, kernelSize}, tensor.Float32, weightData)
	if err != nil {
		return nil, fmt.Errorf("failed to create conv weight tensor: %v", err)
	}
	weight.SetRequiresGrad(true)

	conv := &Conv2D{
		weight:   weight,
		stride:   stride,
		padding:  padding,
		training: true,
	}
	if bias {
		biasT, err := tensor.Zeros([]int{outputChannels}, tensor.Float32)
		if err != nil {
			return nil, fmt.Errorf("failed to create conv bias tensor: %v", err)
		}
		biasT.SetRequiresGrad(true)
		conv.bias = biasT
	}
	return conv, nil
}

func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.Conv2DAutograd(input, c.weight, c.bias, c.stride, c.padding)
}

func (c *Conv2D) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{c.weight}
	if c.bias != nil {
		params = append(params, c.bias)
	}
	return params
}

func (c *Conv2D) Train() { c.training = true }

func (c *Conv2D) Eval() { c.training = false }

func (c *Conv2D) IsTraining() bool { return c.training }

// MaxPool2D implements 2D max pooling
type MaxPool2D struct {
	kernelSize int
	stride     int
	training   bool
}

// NewMaxPool2D creates a max pooling layer. A stride of 0 defaults to the
// kernel size.
func NewMaxPool2D(kernelSize, stride int) *MaxPool2D {
	if stride < 1 {
		stride = kernelSize
	}
	return &MaxPool2D{kernelSize: kernelSize, stride: stride, training: true}
}

func (m *MaxPool2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.MaxPool2DAutograd(input, m.kernelSize, m.stride)
}

func (m *MaxPool2D) Parameters() []*tensor.Tensor { return nil }

func (m *MaxPool2D) Train() { m.training = true }

func (m *MaxPool2D) Eval() { m.training = false }

func (m *MaxPool2D) IsTraining() bool { return m.training }

// Flatten reshapes [batch, ...] into [batch, features]
type Flatten struct {
	training bool
}

func NewFlatten() *Flatten {
	return &Flatten{training: true}
}

func (f *Flatten) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) < 2 {
		return nil, fmt.Errorf("Flatten expects at least 2D input, got shape %v", input.Shape)
	}
	batch := input.Shape[0]
	features := input.NumElems / batch
	return tensor.ReshapeAutograd(input, []int{batch, features})
}

func (f *Flatten) Parameters() []*tensor.Tensor { return nil }

func (f *Flatten) Train() { f.training = true }

func (f *Flatten) Eval() { f.training = false }

func (f *Flatten) IsTraining() bool { return f.training }

// Dropout zeroes activations with probability rate during training and is a
// no-op during evaluation. Surviving activations are scaled by 1/(1-rate).
type Dropout struct {
	rate     float64
	training bool
}

func NewDropout(rate float64) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropout rate must be in [0, 1), got %v", rate)
	}
	return &Dropout{rate: rate, training: true}, nil
}

func (d *Dropout) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if !d.training || d.rate == 0 {
		return input, nil
	}
	return tensor.DropoutAutograd(input, d.rate, globalRng)
}

func (d *Dropout) Parameters() []*tensor.Tensor { return nil }

func (d *Dropout) Train() { d.training = true }

func (d *Dropout) Eval() { d.training = false }

func (d *Dropout) IsTraining() bool { return d.training }

// LayerNorm normalizes each example across its feature dimension, then
// applies a learnable affine transform.
type LayerNorm struct {
	gamma    *tensor.Tensor
	beta     *tensor.Tensor
	eps      float64
	training bool
}

func NewLayerNorm(numFeatures int, eps float64) (*LayerNorm, error) {
	if numFeatures < 1 {
		return nil, fmt.Errorf("numFeatures must be >= 1, got %d", numFeatures)
	}
	gamma, err := tensor.Ones([]int{numFeatures}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to create gamma tensor: %v", err)
	}
	gamma.SetRequiresGrad(true)
	beta, err := tensor.Zeros([]int{numFeatures}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to create beta tensor: %v", err)
	}
	beta.SetRequiresGrad(true)
	return &LayerNorm{gamma: gamma, beta: beta, eps: eps, training: true}, nil
}

func (ln *LayerNorm) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.LayerNormAutograd(input, ln.gamma, ln.beta, ln.eps)
}

func (ln *LayerNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{ln.gamma, ln.beta}
}

func (ln *LayerNorm) Train() { ln.training = true }

func (ln *LayerNorm) Eval() { ln.training = false }

func (ln *LayerNorm) IsTraining() bool { return ln.training }

// Sequential chains modules, feeding each output into the next input
type Sequential struct {
	modules  []Module
	training bool
}

func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules, training: true}
}

func (s *Sequential) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out := input
	var err error
	for i, m := range s.modules {
		out, err = m.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("sequential module %d failed: %v", i, err)
		}
	}
	return out, nil
}

func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, m := range s.modules {
		params = append(params, m.Parameters()...)
	}
	return params
}

func (s *Sequential) Train() {
	s.training = true
	for _, m := range s.modules {
		m.Train()
	}
}

func (s *Sequential) Eval() {
	s.training = false
	for _, m := range s.modules {
		m.Eval()
	}
}

func (s *Sequential) IsTraining() bool { return s.training }

func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}
