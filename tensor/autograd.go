package tensor

import (
	"fmt"
	"math"
	"math/rand"
)

// Backward runs reverse-mode automatic differentiation from t, which must be
// a single-element Float32 tensor (a loss). Gradients accumulate into every
// tensor in the graph that has requiresGrad set.
func (t *Tensor) Backward() error {
	if t.DType != Float32 {
		return fmt.Errorf("Backward requires a Float32 root, got %s", t.DType)
	}
	if t.NumElems != 1 {
		return fmt.Errorf("Backward requires a scalar root, got shape %v", t.Shape)
	}

	seed, err := Ones(t.Shape, Float32)
	if err != nil {
		return err
	}

	// Topological order over the creator DAG.
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var visit func(n *Tensor)
	visit = func(n *Tensor) {
		if visited[n] {
			return
		}
		visited[n] = true
		if n.creator == nil {
			return
		}
		for _, in := range n.creator.Inputs() {
			visit(in)
		}
		order = append(order, n)
	}
	visit(t)

	grads := map[*Tensor]*Tensor{t: seed}
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		g := grads[node]
		if g == nil {
			continue
		}
		inGrads := node.creator.Backward(g)
		inputs := node.creator.Inputs()
		if len(inGrads) != len(inputs) {
			return fmt.Errorf("operation returned %d gradients for %d inputs", len(inGrads), len(inputs))
		}
		for j, in := range inputs {
			ig := inGrads[j]
			if ig == nil {
				continue
			}
			if !in.requiresGrad && in.creator == nil {
				continue
			}
			if existing := grads[in]; existing != nil {
				sum, err := Add(existing, ig)
				if err != nil {
					return fmt.Errorf("gradient accumulation failed: %v", err)
				}
				grads[in] = sum
			} else {
				grads[in] = ig
			}
		}
	}

	for node, g := range grads {
		if !node.requiresGrad {
			continue
		}
		if node.grad != nil {
			sum, err := Add(node.grad, g)
			if err != nil {
				return fmt.Errorf("gradient accumulation failed: %v", err)
			}
			node.grad = sum
		} else {
			node.grad = g
		}
	}
	return nil
}

func attach(out *Tensor, op Operation, inputs ...*Tensor) *Tensor {
	requires := false
	for _, in := range inputs {
		if in.requiresGrad || in.creator != nil {
			requires = true
			break
		}
	}
	if requires {
		out.creator = op
	}
	return out
}

// addOp: gradient flows unchanged to both inputs, reduced over broadcast dims.
type addOp struct {
	a, b *Tensor
}

func (op *addOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *addOp) Backward(gradOut *Tensor) []*Tensor {
	gradA, err := reduceToShape(gradOut, op.a.Shape)
	if err != nil {
		panic(fmt.Sprintf("addOp backward failed for input A: %v", err))
	}
	gradB, err := reduceToShape(gradOut, op.b.Shape)
	if err != nil {
		panic(fmt.Sprintf("addOp backward failed for input B: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// AddAutograd performs addition with gradient tracking.
func AddAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Add(a, b)
	if err != nil {
		return nil, err
	}
	return attach(out, &addOp{a: a, b: b}, a, b), nil
}

// mulOp: d(a*b)/da = b, d(a*b)/db = a.
type mulOp struct {
	a, b *Tensor
}

func (op *mulOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *mulOp) Backward(gradOut *Tensor) []*Tensor {
	gradAFull, err := Mul(gradOut, op.b)
	if err != nil {
		panic(fmt.Sprintf("mulOp backward failed for input A: %v", err))
	}
	gradA, err := reduceToShape(gradAFull, op.a.Shape)
	if err != nil {
		panic(fmt.Sprintf("mulOp gradient reduction failed for input A: %v", err))
	}
	gradBFull, err := Mul(gradOut, op.a)
	if err != nil {
		panic(fmt.Sprintf("mulOp backward failed for input B: %v", err))
	}
	gradB, err := reduceToShape(gradBFull, op.b.Shape)
	if err != nil {
		panic(fmt.Sprintf("mulOp gradient reduction failed for input B: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// MulAutograd performs elementwise multiplication with gradient tracking.
func MulAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	return attach(out, &mulOp{a: a, b: b}, a, b), nil
}

// matMulOp: d(A@B)/dA = gradOut @ B^T, d(A@B)/dB = A^T @ gradOut.
type matMulOp struct {
	a, b *Tensor
}

func (op *matMulOp) Inputs() []*Tensor { return []*Tensor{op.a, op.b} }

func (op *matMulOp) Backward(gradOut *Tensor) []*Tensor {
	bT, err := Transpose(op.b, 0, 1)
	if err != nil {
		panic(fmt.Sprintf("matMulOp transpose failed: %v", err))
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		panic(fmt.Sprintf("matMulOp backward failed for input A: %v", err))
	}
	aT, err := Transpose(op.a, 0, 1)
	if err != nil {
		panic(fmt.Sprintf("matMulOp transpose failed: %v", err))
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		panic(fmt.Sprintf("matMulOp backward failed for input B: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// MatMulAutograd performs matrix multiplication with gradient tracking.
func MatMulAutograd(a, b *Tensor) (*Tensor, error) {
	out, err := MatMul(a, b)
	if err != nil {
		return nil, err
	}
	return attach(out, &matMulOp{a: a, b: b}, a, b), nil
}

// reluOp: gradient passes where the input was positive.
type reluOp struct {
	in *Tensor
}

func (op *reluOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *reluOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("reluOp backward clone failed: %v", err))
	}
	in := op.in.Float32s()
	gd := grad.Float32s()
	for i := range gd {
		if in[i] <= 0 {
			gd[i] = 0
		}
	}
	return []*Tensor{grad}
}

// ReLUAutograd applies ReLU with gradient tracking.
func ReLUAutograd(a *Tensor) (*Tensor, error) {
	out, err := ReLU(a)
	if err != nil {
		return nil, err
	}
	return attach(out, &reluOp{in: a}, a), nil
}

// sumOp: gradient broadcasts back to the input shape.
type sumOp struct {
	in *Tensor
}

func (op *sumOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *sumOp) Backward(gradOut *Tensor) []*Tensor {
	g := gradOut.Float32s()[0]
	grad, err := Full(op.in.Shape, g)
	if err != nil {
		panic(fmt.Sprintf("sumOp backward failed: %v", err))
	}
	return []*Tensor{grad}
}

// SumAutograd reduces all elements to a scalar with gradient tracking.
func SumAutograd(a *Tensor) (*Tensor, error) {
	out, err := Sum(a)
	if err != nil {
		return nil, err
	}
	return attach(out, &sumOp{in: a}, a), nil
}

// reshapeOp: gradient is reshaped back to the input shape.
type reshapeOp struct {
	in *Tensor
}

func (op *reshapeOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *reshapeOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := gradOut.Reshape(op.in.Shape)
	if err != nil {
		panic(fmt.Sprintf("reshapeOp backward failed: %v", err))
	}
	return []*Tensor{grad}
}

// ReshapeAutograd reshapes with gradient tracking.
func ReshapeAutograd(a *Tensor, shape []int) (*Tensor, error) {
	out, err := a.Reshape(shape)
	if err != nil {
		return nil, err
	}
	return attach(out, &reshapeOp{in: a}, a), nil
}

// conv2dOp stores forward inputs for the convolution backward pass.
type conv2dOp struct {
	in, weight, bias *Tensor
	stride, padding  int
}

func (op *conv2dOp) Inputs() []*Tensor {
	if op.bias != nil {
		return []*Tensor{op.in, op.weight, op.bias}
	}
	return []*Tensor{op.in, op.weight}
}

func (op *conv2dOp) Backward(gradOut *Tensor) []*Tensor {
	gradIn, gradW, gradB, err := Conv2DBackward(op.in, op.weight, gradOut, op.stride, op.padding, op.bias != nil)
	if err != nil {
		panic(fmt.Sprintf("conv2dOp backward failed: %v", err))
	}
	if op.bias != nil {
		return []*Tensor{gradIn, gradW, gradB}
	}
	return []*Tensor{gradIn, gradW}
}

// Conv2DAutograd performs a 2D convolution with gradient tracking.
func Conv2DAutograd(input, weight, bias *Tensor, stride, padding int) (*Tensor, error) {
	out, err := Conv2DForward(input, weight, bias, stride, padding)
	if err != nil {
		return nil, err
	}
	op := &conv2dOp{in: input, weight: weight, bias: bias, stride: stride, padding: padding}
	inputs := op.Inputs()
	return attach(out, op, inputs...), nil
}

// maxPool2dOp replays the argmax selection in the backward pass.
type maxPool2dOp struct {
	in     *Tensor
	argmax []int
}

func (op *maxPool2dOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *maxPool2dOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := MaxPool2DBackward(op.in.Shape, op.argmax, gradOut)
	if err != nil {
		panic(fmt.Sprintf("maxPool2dOp backward failed: %v", err))
	}
	return []*Tensor{grad}
}

// MaxPool2DAutograd performs 2D max pooling with gradient tracking.
func MaxPool2DAutograd(input *Tensor, kernel, stride int) (*Tensor, error) {
	out, argmax, err := MaxPool2DForward(input, kernel, stride)
	if err != nil {
		return nil, err
	}
	return attach(out, &maxPool2dOp{in: input, argmax: argmax}, input), nil
}

// dropoutOp applies the same inverted-dropout mask in both directions.
type dropoutOp struct {
	in   *Tensor
	mask []float32
}

func (op *dropoutOp) Inputs() []*Tensor { return []*Tensor{op.in} }

func (op *dropoutOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := gradOut.Clone()
	if err != nil {
		panic(fmt.Sprintf("dropoutOp backward clone failed: %v", err))
	}
	gd := grad.Float32s()
	for i := range gd {
		gd[i] *= op.mask[i]
	}
	return []*Tensor{grad}
}

// DropoutAutograd applies inverted dropout with gradient tracking: each
// element is zeroed with probability rate and survivors are scaled by
// 1/(1-rate) so the expected activation is unchanged.
func DropoutAutograd(input *Tensor, rate float64, rng *rand.Rand) (*Tensor, error) {
	if input.DType != Float32 {
		return nil, fmt.Errorf("Dropout requires a Float32 tensor, got %s", input.DType)
	}
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropout rate must be in [0, 1), got %v", rate)
	}

	out, err := input.Clone()
	if err != nil {
		return nil, err
	}
	mask := make([]float32, input.NumElems)
	keepScale := float32(1.0 / (1.0 - rate))
	od := out.Float32s()
	for i := range od {
		if rng.Float64() < rate {
			mask[i] = 0
			od[i] = 0
		} else {
			mask[i] = keepScale
			od[i] *= keepScale
		}
	}
	return attach(out, &dropoutOp{in: input, mask: mask}, input), nil
}

// layerNormOp normalizes each example across its features.
type layerNormOp struct {
	in, gamma, beta *Tensor
	eps             float64
	xhat            []float32
	invStd          []float32
}

func (op *layerNormOp) Inputs() []*Tensor { return []*Tensor{op.in, op.gamma, op.beta} }

func (op *layerNormOp) Backward(gradOut *Tensor) []*Tensor {
	rows, cols := op.in.Shape[0], op.in.Shape[1]
	gout := gradOut.Float32s()
	gamma := op.gamma.Float32s()

	gradIn, err := Zeros(op.in.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("layerNormOp backward failed: %v", err))
	}
	gradGamma, err := Zeros(op.gamma.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("layerNormOp backward failed: %v", err))
	}
	gradBeta, err := Zeros(op.beta.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("layerNormOp backward failed: %v", err))
	}
	gin := gradIn.Float32s()
	gg := gradGamma.Float32s()
	gb := gradBeta.Float32s()

	for i := 0; i < rows; i++ {
		offset := i * cols
		var sumDxhat, sumDxhatXhat float32
		for j := 0; j < cols; j++ {
			dy := gout[offset+j]
			xh := op.xhat[offset+j]
			gg[j] += dy * xh
			gb[j] += dy
			dxhat := dy * gamma[j]
			sumDxhat += dxhat
			sumDxhatXhat += dxhat * xh
		}
		n := float32(cols)
		for j := 0; j < cols; j++ {
			dxhat := gout[offset+j] * gamma[j]
			xh := op.xhat[offset+j]
			gin[offset+j] = op.invStd[i] * (dxhat - sumDxhat/n - xh*sumDxhatXhat/n)
		}
	}
	return []*Tensor{gradIn, gradGamma, gradBeta}
}

// LayerNormAutograd normalizes a 2D tensor [batch, features] per example
// across features, then applies the learnable affine gamma*xhat + beta.
func LayerNormAutograd(input, gamma, beta *Tensor, eps float64) (*Tensor, error) {
	if len(input.Shape) != 2 {
		return nil, fmt.Errorf("LayerNorm requires a 2D input [batch, features], got shape %v", input.Shape)
	}
	rows, cols := input.Shape[0], input.Shape[1]
	if gamma.Shape[0] != cols || beta.Shape[0] != cols {
		return nil, fmt.Errorf("gamma/beta size mismatch: input has %d features", cols)
	}

	in := input.Float32s()
	g := gamma.Float32s()
	bt := beta.Float32s()
	outData := make([]float32, len(in))
	xhat := make([]float32, len(in))
	invStd := make([]float32, rows)

	for i := 0; i < rows; i++ {
		offset := i * cols
		var mean float32
		for j := 0; j < cols; j++ {
			mean += in[offset+j]
		}
		mean /= float32(cols)
		var variance float32
		for j := 0; j < cols; j++ {
			d := in[offset+j] - mean
			variance += d * d
		}
		variance /= float32(cols)
		inv := float32(1.0 / math.Sqrt(float64(variance)+eps))
		invStd[i] = inv
		for j := 0; j < cols; j++ {
			xh := (in[offset+j] - mean) * inv
			xhat[offset+j] = xh
			outData[offset+j] = g[j]*xh + bt[j]
		}
	}

	out, err := NewTensor(input.Shape, Float32, outData)
	if err != nil {
		return nil, err
	}
	op := &layerNormOp{in: input, gamma: gamma, beta: beta, eps: eps, xhat: xhat, invStd: invStd}
	return attach(out, op, input, gamma, beta), nil
}

// softmaxCrossEntropyOp fuses softmax and negative log likelihood so the
// logit gradient is the numerically stable (p - onehot) form, optionally
// scaled per example by the true class's weight.
type softmaxCrossEntropyOp struct {
	logits  *Tensor
	probs   []float32
	targets []int32
	weights []float32
}

func (op *softmaxCrossEntropyOp) Inputs() []*Tensor { return []*Tensor{op.logits} }

func (op *softmaxCrossEntropyOp) Backward(gradOut *Tensor) []*Tensor {
	batch := op.logits.Shape[0]
	classes := op.logits.Shape[1]
	g := gradOut.Float32s()[0]

	grad, err := Zeros(op.logits.Shape, Float32)
	if err != nil {
		panic(fmt.Sprintf("softmaxCrossEntropyOp backward failed: %v", err))
	}
	gd := grad.Float32s()
	for i := 0; i < batch; i++ {
		target := int(op.targets[i])
		w := float32(1)
		if op.weights != nil {
			w = op.weights[target]
		}
		scale := g * w / float32(batch)
		for j := 0; j < classes; j++ {
			p := op.probs[i*classes+j]
			if j == target {
				p -= 1
			}
			gd[i*classes+j] = scale * p
		}
	}
	return []*Tensor{grad}
}

// SoftmaxCrossEntropyAutograd computes the mean, optionally class-weighted,
// sparse categorical cross entropy of logits [batch, classes] against int32
// class indices [batch], with gradient tracking through the logits.
func SoftmaxCrossEntropyAutograd(logits, targets *Tensor, classWeights []float32) (*Tensor, error) {
	if logits.DType != Float32 || targets.DType != Int32 {
		return nil, fmt.Errorf("logits must be Float32 and targets Int32, got %s and %s", logits.DType, targets.DType)
	}
	if len(logits.Shape) != 2 {
		return nil, fmt.Errorf("logits must be 2D [batch, classes], got shape %v", logits.Shape)
	}
	if len(targets.Shape) != 1 || targets.Shape[0] != logits.Shape[0] {
		return nil, fmt.Errorf("targets must be 1D [batch=%d], got shape %v", logits.Shape[0], targets.Shape)
	}

	batch, classes := logits.Shape[0], logits.Shape[1]
	if classWeights != nil && len(classWeights) != classes {
		return nil, fmt.Errorf("class weight count %d does not match class count %d", len(classWeights), classes)
	}

	probsT, err := Softmax(logits)
	if err != nil {
		return nil, err
	}
	probs := probsT.Float32s()
	targetData := targets.Int32s()

	var total float32
	for i := 0; i < batch; i++ {
		target := targetData[i]
		if target < 0 || int(target) >= classes {
			return nil, fmt.Errorf("target class %d out of range [0, %d)", target, classes)
		}
		p := probs[i*classes+int(target)]
		if p < 1e-10 {
			p = 1e-10
		}
		w := float32(1)
		if classWeights != nil {
			w = classWeights[target]
		}
		total += -w * float32(math.Log(float64(p)))
	}
	loss, err := NewTensor([]int{1}, Float32, []float32{total / float32(batch)})
	if err != nil {
		return nil, err
	}

	op := &softmaxCrossEntropyOp{
		logits:  logits,
		probs:   probs,
		targets: append([]int32(nil), targetData...),
		weights: classWeights,
	}
	return attach(loss, op, logits), nil
}
