package model

import (
	"fmt"

	"wastenet/tensor"
	"wastenet/training"
)

// Config describes the classifier architecture.
type Config struct {
	ImageSize   int // Square input resolution
	NumClasses  int
	HiddenUnits int     // Dense head width
	DropoutRate float64 // Head dropout probability
}

// DefaultConfig matches the production training recipe: 512x512 RGB input,
// a 128-unit dense head, and 40% dropout.
func DefaultConfig(numClasses int) Config {
	return Config{
		ImageSize:   512,
		NumClasses:  numClasses,
		HiddenUnits: 128,
		DropoutRate: 0.4,
	}
}

// convBlock is one backbone stage: convolution, ReLU, then 2x2 max pooling,
// halving the spatial resolution.
type convBlock struct {
	name string
	conv *training.Conv2D
	relu *training.ReLU
	pool *training.MaxPool2D
}

func (b *convBlock) forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := b.conv.Forward(input)
	if err != nil {
		return nil, fmt.Errorf("%s conv failed: %v", b.name, err)
	}
	out, err = b.relu.Forward(out)
	if err != nil {
		return nil, fmt.Errorf("%s relu failed: %v", b.name, err)
	}
	out, err = b.pool.Forward(out)
	if err != nil {
		return nil, fmt.Errorf("%s pool failed: %v", b.name, err)
	}
	return out, nil
}

// WasteNet is the waste-photo classifier: a five-block convolutional
// backbone followed by a dense head with layer normalization and dropout.
// Forward emits raw logits; softmax is fused into the loss during training
// and applied explicitly by Predict.
type WasteNet struct {
	cfg      Config
	blocks   []*convBlock
	flatten  *training.Flatten
	dense1   *training.Linear
	headRelu *training.ReLU
	norm     *training.LayerNorm
	dropout  *training.Dropout
	dense2   *training.Linear
	training bool
}

var backboneChannels = []int{16, 32, 64, 128, 128}

// New builds a WasteNet. The image size must be divisible by 32 so the five
// pooling stages land on an integer resolution.
func New(cfg Config) (*WasteNet, error) {
	if cfg.NumClasses < 2 {
		return nil, fmt.Errorf("at least 2 classes required, got %d", cfg.NumClasses)
	}
	if cfg.ImageSize < 32 || cfg.ImageSize%32 != 0 {
		return nil, fmt.Errorf("image size must be a positive multiple of 32, got %d", cfg.ImageSize)
	}
	if cfg.HiddenUnits < 1 {
		return nil, fmt.Errorf("hidden units must be >= 1, got %d", cfg.HiddenUnits)
	}

	m := &WasteNet{cfg: cfg, training: true}

	inChannels := 3
	for i, outChannels := range backboneChannels {
		conv, err := training.NewConv2D(inChannels, outChannels, 3, 1, 1, true)
		if err != nil {
			return nil, fmt.Errorf("failed to build conv%d: %v", i+1, err)
		}
		m.blocks = append(m.blocks, &convBlock{
			name: fmt.Sprintf("conv%d", i+1),
			conv: conv,
			relu: training.NewReLU(),
			pool: training.NewMaxPool2D(2, 0),
		})
		inChannels = outChannels
	}

	finalSpatial := cfg.ImageSize / 32
	flatFeatures := inChannels * finalSpatial * finalSpatial

	var err error
	m.flatten = training.NewFlatten()
	m.dense1, err = training.NewLinear(flatFeatures, cfg.HiddenUnits, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build dense head: %v", err)
	}
	m.headRelu = training.NewReLU()
	m.norm, err = training.NewLayerNorm(cfg.HiddenUnits, 1e-5)
	if err != nil {
		return nil, err
	}
	m.dropout, err = training.NewDropout(cfg.DropoutRate)
	if err != nil {
		return nil, err
	}
	m.dense2, err = training.NewLinear(cfg.HiddenUnits, cfg.NumClasses, true)
	if err != nil {
		return nil, fmt.Errorf("failed to build output layer: %v", err)
	}
	return m, nil
}

// Config returns the architecture the model was built with.
func (m *WasteNet) Config() Config {
	return m.cfg
}

// Forward runs the full network and returns logits [batch, numClasses].
func (m *WasteNet) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	out := input
	var err error
	for _, block := range m.blocks {
		out, err = block.forward(out)
		if err != nil {
			return nil, err
		}
	}
	return m.forwardHead(out)
}

func (m *WasteNet) forwardHead(features *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := m.flatten.Forward(features)
	if err != nil {
		return nil, err
	}
	if out, err = m.dense1.Forward(out); err != nil {
		return nil, fmt.Errorf("dense head failed: %v", err)
	}
	if out, err = m.headRelu.Forward(out); err != nil {
		return nil, err
	}
	if out, err = m.norm.Forward(out); err != nil {
		return nil, fmt.Errorf("layer norm failed: %v", err)
	}
	if out, err = m.dropout.Forward(out); err != nil {
		return nil, err
	}
	if out, err = m.dense2.Forward(out); err != nil {
		return nil, fmt.Errorf("output layer failed: %v", err)
	}
	return out, nil
}

// Predict runs inference and returns softmax probabilities. The model is
// switched to eval mode so dropout is inactive.
func (m *WasteNet) Predict(input *tensor.Tensor) (*tensor.Tensor, error) {
	wasTraining := m.training
	m.Eval()
	defer func() {
		if wasTraining {
			m.Train()
		}
	}()

	logits, err := m.Forward(input)
	if err != nil {
		return nil, err
	}
	return tensor.Softmax(logits)
}

// DenseHead returns the 128-unit dense layer, the only layer the training
// recipe applies an L2 penalty to.
func (m *WasteNet) DenseHead() *training.Linear {
	return m.dense1
}

// ConvLayerNames lists the backbone layers available to Grad-CAM, shallow to
// deep.
func (m *WasteNet) ConvLayerNames() []string {
	names := make([]string, len(m.blocks))
	for i, b := range m.blocks {
		names[i] = b.name
	}
	return names
}

// DefaultGradCAMLayer returns the deepest convolutional layer, the usual
// target for saliency maps.
func (m *WasteNet) DefaultGradCAMLayer() string {
	return m.blocks[len(m.blocks)-1].name
}

func (m *WasteNet) blockIndex(layer string) (int, error) {
	for i, b := range m.blocks {
		if b.name == layer {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown conv layer %q (have %v)", layer, m.ConvLayerNames())
}

// ActivationAt runs the backbone through the named block (conv+relu, before
// pooling) and returns its activation map.
func (m *WasteNet) ActivationAt(input *tensor.Tensor, layer string) (*tensor.Tensor, error) {
	target, err := m.blockIndex(layer)
	if err != nil {
		return nil, err
	}
	out := input
	for i, block := range m.blocks {
		if out, err = block.conv.Forward(out); err != nil {
			return nil, err
		}
		if out, err = block.relu.Forward(out); err != nil {
			return nil, err
		}
		if i == target {
			return out, nil
		}
		if out, err = block.pool.Forward(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ForwardFromActivation resumes the forward pass from a named block's
// activation (as produced by ActivationAt) and returns logits. Passing a
// detached activation leaf with gradients enabled makes the logit gradient
// with respect to that activation recoverable, which is what Grad-CAM needs.
func (m *WasteNet) ForwardFromActivation(layer string, activation *tensor.Tensor) (*tensor.Tensor, error) {
	target, err := m.blockIndex(layer)
	if err != nil {
		return nil, err
	}
	out := activation
	for i := target; i < len(m.blocks); i++ {
		if out, err = m.blocks[i].pool.Forward(out); err != nil {
			return nil, err
		}
		if i+1 < len(m.blocks) {
			next := m.blocks[i+1]
			if out, err = next.conv.Forward(out); err != nil {
				return nil, err
			}
			if out, err = next.relu.Forward(out); err != nil {
				return nil, err
			}
		}
	}
	return m.forwardHead(out)
}

// Parameters returns all trainable tensors in a stable order.
func (m *WasteNet) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, block := range m.blocks {
		params = append(params, block.conv.Parameters()...)
	}
	params = append(params, m.dense1.Parameters()...)
	params = append(params, m.norm.Parameters()...)
	params = append(params, m.dense2.Parameters()...)
	return params
}

// ParameterNames returns names aligned with Parameters, used by checkpoints.
func (m *WasteNet) ParameterNames() []string {
	var names []string
	for _, block := range m.blocks {
		names = append(names, block.name+".weight")
		if len(block.conv.Parameters()) > 1 {
			names = append(names, block.name+".bias")
		}
	}
	names = append(names, "dense1.weight", "dense1.bias")
	names = append(names, "norm.gamma", "norm.beta")
	names = append(names, "dense2.weight", "dense2.bias")
	return names
}

func (m *WasteNet) Train() {
	m.training = true
	for _, b := range m.blocks {
		b.conv.Train()
		b.relu.Train()
		b.pool.Train()
	}
	m.flatten.Train()
	m.dense1.Train()
	m.headRelu.Train()
	m.norm.Train()
	m.dropout.Train()
	m.dense2.Train()
}

func (m *WasteNet) Eval() {
	m.training = false
	for _, b := range m.blocks {
		b.conv.Eval()
		b.relu.Eval()
		b.pool.Eval()
	}
	m.flatten.Eval()
	m.dense1.Eval()
	m.headRelu.Eval()
	m.norm.Eval()
	m.dropout.Eval()
	m.dense2.Eval()
}

func (m *WasteNet) IsTraining() bool { return m.training }
