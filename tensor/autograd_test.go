package tensor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// numericGrad perturbs each element of param and compares the central
// difference of loss() against the analytic gradient on param.
func numericGrad(t *testing.T, param *Tensor, loss func() *Tensor, tol float64) {
	t.Helper()
	const h = 1e-2

	out := loss()
	require.NoError(t, out.Backward())
	grad := param.Grad()
	require.NotNil(t, grad)
	analytic := append([]float32(nil), grad.Float32s()...)

	data := param.Float32s()
	for i := range data {
		orig := data[i]
		data[i] = orig + h
		plus, err := loss().Item()
		require.NoError(t, err)
		data[i] = orig - h
		minus, err := loss().Item()
		require.NoError(t, err)
		data[i] = orig
		numeric := (plus - minus) / (2 * h)
		require.InDelta(t, numeric, float64(analytic[i]), tol, "element %d", i)
	}
}

func TestBackwardRequiresScalar(t *testing.T) {
	a, err := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	require.Error(t, a.Backward())
}

func TestAddBackward(t *testing.T) {
	a, err := NewTensor([]int{2, 2}, Float32, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	a.SetRequiresGrad(true)
	b, err := NewTensor([]int{2, 2}, Float32, []float32{5, 6, 7, 8})
	require.NoError(t, err)
	b.SetRequiresGrad(true)

	sum, err := AddAutograd(a, b)
	require.NoError(t, err)
	total, err := SumAutograd(sum)
	require.NoError(t, err)
	require.NoError(t, total.Backward())

	require.Equal(t, []float32{1, 1, 1, 1}, a.Grad().Float32s())
	require.Equal(t, []float32{1, 1, 1, 1}, b.Grad().Float32s())
}

func TestAddBackwardBroadcastReduces(t *testing.T) {
	a, err := NewTensor([]int{2, 3}, Float32, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	bias, err := NewTensor([]int{3}, Float32, []float32{1, 1, 1})
	require.NoError(t, err)
	bias.SetRequiresGrad(true)

	sum, err := AddAutograd(a, bias)
	require.NoError(t, err)
	total, err := SumAutograd(sum)
	require.NoError(t, err)
	require.NoError(t, total.Backward())

	// Each bias element feeds both rows.
	require.Equal(t, []int{3}, bias.Grad().Shape)
	require.Equal(t, []float32{2, 2, 2}, bias.Grad().Float32s())
}

func TestMulBackwardNumeric(t *testing.T) {
	a, err := NewTensor([]int{2, 2}, Float32, []float32{0.5, -1.5, 2.0, 0.25})
	require.NoError(t, err)
	a.SetRequiresGrad(true)
	b, err := NewTensor([]int{2, 2}, Float32, []float32{1.5, 0.5, -0.5, 2.0})
	require.NoError(t, err)

	numericGrad(t, a, func() *Tensor {
		prod, err := MulAutograd(a, b)
		require.NoError(t, err)
		total, err := SumAutograd(prod)
		require.NoError(t, err)
		return total
	}, 1e-2)
}

func TestMatMulBackwardNumeric(t *testing.T) {
	a, err := NewTensor([]int{2, 3}, Float32, []float32{0.1, -0.2, 0.3, 0.4, 0.5, -0.6})
	require.NoError(t, err)
	a.SetRequiresGrad(true)
	b, err := NewTensor([]int{3, 2}, Float32, []float32{0.7, -0.8, 0.9, 1.0, -1.1, 1.2})
	require.NoError(t, err)
	b.SetRequiresGrad(true)

	loss := func() *Tensor {
		out, err := MatMulAutograd(a, b)
		require.NoError(t, err)
		total, err := SumAutograd(out)
		require.NoError(t, err)
		return total
	}
	numericGrad(t, a, loss, 1e-2)
	ZeroGrad([]*Tensor{a, b})
	numericGrad(t, b, loss, 1e-2)
}

func TestReLUBackward(t *testing.T) {
	a, err := NewTensor([]int{1, 4}, Float32, []float32{-2, -0.5, 0.5, 2})
	require.NoError(t, err)
	a.SetRequiresGrad(true)

	out, err := ReLUAutograd(a)
	require.NoError(t, err)
	total, err := SumAutograd(out)
	require.NoError(t, err)
	require.NoError(t, total.Backward())

	require.Equal(t, []float32{0, 0, 1, 1}, a.Grad().Float32s())
}

func TestConv2DBackwardNumeric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	inData := make([]float32, 1*2*4*4)
	for i := range inData {
		inData[i] = float32(rng.NormFloat64()) * 0.5
	}
	wData := make([]float32, 3*2*3*3)
	for i := range wData {
		wData[i] = float32(rng.NormFloat64()) * 0.5
	}

	input, err := NewTensor([]int{1, 2, 4, 4}, Float32, inData)
	require.NoError(t, err)
	input.SetRequiresGrad(true)
	weight, err := NewTensor([]int{3, 2, 3, 3}, Float32, wData)
	require.NoError(t, err)
	weight.SetRequiresGrad(true)
	bias, err := NewTensor([]int{3}, Float32, []float32{0.1, -0.2, 0.3})
	require.NoError(t, err)
	bias.SetRequiresGrad(true)

	loss := func() *Tensor {
		out, err := Conv2DAutograd(input, weight, bias, 1, 1)
		require.NoError(t, err)
		total, err := SumAutograd(out)
		require.NoError(t, err)
		return total
	}
	numericGrad(t, weight, loss, 5e-2)
	ZeroGrad([]*Tensor{input, weight, bias})
	numericGrad(t, input, loss, 5e-2)
	ZeroGrad([]*Tensor{input, weight, bias})
	numericGrad(t, bias, loss, 5e-2)
}

func TestMaxPoolBackwardThroughGraph(t *testing.T) {
	input, err := NewTensor([]int{1, 1, 2, 2}, Float32, []float32{1, 4, 2, 3})
	require.NoError(t, err)
	input.SetRequiresGrad(true)

	out, err := MaxPool2DAutograd(input, 2, 2)
	require.NoError(t, err)
	total, err := SumAutograd(out)
	require.NoError(t, err)
	require.NoError(t, total.Backward())

	require.Equal(t, []float32{0, 1, 0, 0}, input.Grad().Float32s())
}

func TestDropoutTrainingBehavior(t *testing.T) {
	input, err := Full([]int{1, 1000}, 1)
	require.NoError(t, err)
	input.SetRequiresGrad(true)

	rng := rand.New(rand.NewSource(1))
	out, err := DropoutAutograd(input, 0.4, rng)
	require.NoError(t, err)

	var kept int
	for _, v := range out.Float32s() {
		if v != 0 {
			kept++
			require.InDelta(t, 1.0/0.6, float64(v), 1e-5)
		}
	}
	// Keep rate should be near 60%.
	require.InDelta(t, 600, float64(kept), 60)

	total, err := SumAutograd(out)
	require.NoError(t, err)
	require.NoError(t, total.Backward())
	grad := input.Grad().Float32s()
	for i, v := range out.Float32s() {
		if v == 0 {
			require.Equal(t, float32(0), grad[i])
		} else {
			require.InDelta(t, 1.0/0.6, float64(grad[i]), 1e-5)
		}
	}
}

func TestDropoutRejectsInvalidRate(t *testing.T) {
	input, _ := Full([]int{1, 4}, 1)
	rng := rand.New(rand.NewSource(1))
	_, err := DropoutAutograd(input, 1.0, rng)
	require.Error(t, err)
	_, err = DropoutAutograd(input, -0.1, rng)
	require.Error(t, err)
}

func TestLayerNormForwardStats(t *testing.T) {
	input, err := NewTensor([]int{2, 4}, Float32, []float32{1, 2, 3, 4, -1, 0, 1, 2})
	require.NoError(t, err)
	gamma, err := Ones([]int{4}, Float32)
	require.NoError(t, err)
	beta, err := Zeros([]int{4}, Float32)
	require.NoError(t, err)

	out, err := LayerNormAutograd(input, gamma, beta, 1e-5)
	require.NoError(t, err)
	data := out.Float32s()
	for i := 0; i < 2; i++ {
		var mean, variance float64
		for j := 0; j < 4; j++ {
			mean += float64(data[i*4+j])
		}
		mean /= 4
		for j := 0; j < 4; j++ {
			d := float64(data[i*4+j]) - mean
			variance += d * d
		}
		variance /= 4
		require.InDelta(t, 0, mean, 1e-4)
		require.InDelta(t, 1, variance, 1e-2)
	}
}

func TestLayerNormBackwardNumeric(t *testing.T) {
	input, err := NewTensor([]int{2, 3}, Float32, []float32{0.5, -1.0, 2.0, 1.5, 0.25, -0.75})
	require.NoError(t, err)
	input.SetRequiresGrad(true)
	gamma, err := NewTensor([]int{3}, Float32, []float32{1.2, 0.8, 1.0})
	require.NoError(t, err)
	gamma.SetRequiresGrad(true)
	beta, err := NewTensor([]int{3}, Float32, []float32{0.1, -0.1, 0})
	require.NoError(t, err)
	beta.SetRequiresGrad(true)

	// Square the output so the gradient is not trivially constant.
	loss := func() *Tensor {
		out, err := LayerNormAutograd(input, gamma, beta, 1e-5)
		require.NoError(t, err)
		sq, err := MulAutograd(out, out)
		require.NoError(t, err)
		total, err := SumAutograd(sq)
		require.NoError(t, err)
		return total
	}
	numericGrad(t, gamma, loss, 5e-2)
	ZeroGrad([]*Tensor{input, gamma, beta})
	numericGrad(t, beta, loss, 5e-2)
}

func TestSoftmaxCrossEntropyKnownValue(t *testing.T) {
	// Uniform logits over 3 classes: loss is ln(3) regardless of target.
	logits, err := Zeros([]int{2, 3}, Float32)
	require.NoError(t, err)
	targets, err := NewTensor([]int{2}, Int32, []int32{0, 2})
	require.NoError(t, err)

	loss, err := SoftmaxCrossEntropyAutograd(logits, targets, nil)
	require.NoError(t, err)
	v, err := loss.Item()
	require.NoError(t, err)
	require.InDelta(t, math.Log(3), v, 1e-5)
}

func TestSoftmaxCrossEntropyClassWeights(t *testing.T) {
	logits, err := Zeros([]int{2, 2}, Float32)
	require.NoError(t, err)
	targets, err := NewTensor([]int{2}, Int32, []int32{0, 1})
	require.NoError(t, err)

	loss, err := SoftmaxCrossEntropyAutograd(logits, targets, []float32{2, 4})
	require.NoError(t, err)
	v, err := loss.Item()
	require.NoError(t, err)
	// Mean of 2*ln(2) and 4*ln(2).
	require.InDelta(t, 3*math.Log(2), v, 1e-5)
}

func TestSoftmaxCrossEntropyGradientNumeric(t *testing.T) {
	logits, err := NewTensor([]int{2, 3}, Float32, []float32{0.2, -0.4, 0.6, 1.0, 0.0, -1.0})
	require.NoError(t, err)
	logits.SetRequiresGrad(true)
	targets, err := NewTensor([]int{2}, Int32, []int32{2, 0})
	require.NoError(t, err)

	numericGrad(t, logits, func() *Tensor {
		loss, err := SoftmaxCrossEntropyAutograd(logits, targets, []float32{1.5, 1.0, 0.5})
		require.NoError(t, err)
		return loss
	}, 1e-2)
}

func TestSoftmaxCrossEntropyValidation(t *testing.T) {
	logits, _ := Zeros([]int{2, 3}, Float32)
	badTargets, _ := NewTensor([]int{2}, Int32, []int32{0, 3})
	_, err := SoftmaxCrossEntropyAutograd(logits, badTargets, nil)
	require.Error(t, err)

	targets, _ := NewTensor([]int{2}, Int32, []int32{0, 1})
	_, err = SoftmaxCrossEntropyAutograd(logits, targets, []float32{1, 2})
	require.Error(t, err)
}

func TestGradientAccumulatesOnSharedInput(t *testing.T) {
	a, err := NewTensor([]int{1, 2}, Float32, []float32{2, 3})
	require.NoError(t, err)
	a.SetRequiresGrad(true)

	// a appears twice: d(a*a)/da = 2a.
	prod, err := MulAutograd(a, a)
	require.NoError(t, err)
	total, err := SumAutograd(prod)
	require.NoError(t, err)
	require.NoError(t, total.Backward())

	require.Equal(t, []float32{4, 6}, a.Grad().Float32s())
}
