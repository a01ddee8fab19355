package tensor

import (
	"fmt"
	"math"
)

type binaryFn func(a, b float32) float32

func elementwise(a, b *Tensor, fn binaryFn) (*Tensor, error) {
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("elementwise ops require Float32 tensors, got %s and %s", a.DType, b.DType)
	}

	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, err
	}

	ab, err := BroadcastTensor(a, outShape)
	if err != nil {
		return nil, err
	}
	bb, err := BroadcastTensor(b, outShape)
	if err != nil {
		return nil, err
	}

	out, err := Zeros(outShape, Float32)
	if err != nil {
		return nil, err
	}
	ad, bd, od := ab.Float32s(), bb.Float32s(), out.Float32s()
	for i := range od {
		od[i] = fn(ad[i], bd[i])
	}
	return out, nil
}

// Add performs elementwise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementwise(a, b, func(x, y float32) float32 { return x + y })
}

// Sub performs elementwise subtraction with broadcasting.
func Sub(a, b *Tensor) (*Tensor, error) {
	return elementwise(a, b, func(x, y float32) float32 { return x - y })
}

// Mul performs elementwise multiplication with broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	return elementwise(a, b, func(x, y float32) float32 { return x * y })
}

// Div performs elementwise division with broadcasting.
func Div(a, b *Tensor) (*Tensor, error) {
	return elementwise(a, b, func(x, y float32) float32 { return x / y })
}

// Sqrt computes the elementwise square root.
func Sqrt(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Sqrt requires a Float32 tensor, got %s", t.DType)
	}
	out, err := Zeros(t.Shape, Float32)
	if err != nil {
		return nil, err
	}
	in, od := t.Float32s(), out.Float32s()
	for i := range od {
		od[i] = float32(math.Sqrt(float64(in[i])))
	}
	return out, nil
}

// Scale multiplies every element by a scalar.
func Scale(t *Tensor, s float64) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Scale requires a Float32 tensor, got %s", t.DType)
	}
	out, err := Zeros(t.Shape, Float32)
	if err != nil {
		return nil, err
	}
	in, od := t.Float32s(), out.Float32s()
	f := float32(s)
	for i := range od {
		od[i] = in[i] * f
	}
	return out, nil
}

// ReLU computes max(x, 0) elementwise.
func ReLU(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("ReLU requires a Float32 tensor, got %s", t.DType)
	}
	out, err := Zeros(t.Shape, Float32)
	if err != nil {
		return nil, err
	}
	in, od := t.Float32s(), out.Float32s()
	for i := range od {
		if in[i] > 0 {
			od[i] = in[i]
		}
	}
	return out, nil
}

// Sum reduces all elements to a single-element tensor.
func Sum(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Sum requires a Float32 tensor, got %s", t.DType)
	}
	var s float32
	for _, v := range t.Float32s() {
		s += v
	}
	return NewTensor([]int{1}, Float32, []float32{s})
}

// Softmax applies a numerically stable row-wise softmax to a 2D tensor
// [batch, classes], producing a probability distribution per row.
func Softmax(t *Tensor) (*Tensor, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("Softmax requires a Float32 tensor, got %s", t.DType)
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("Softmax requires a 2D tensor [batch, classes], got shape %v", t.Shape)
	}

	rows, cols := t.Shape[0], t.Shape[1]
	in := t.Float32s()
	result := make([]float32, len(in))
	for i := 0; i < rows; i++ {
		offset := i * cols
		maxVal := in[offset]
		for j := 1; j < cols; j++ {
			if in[offset+j] > maxVal {
				maxVal = in[offset+j]
			}
		}
		var sum float32
		for j := 0; j < cols; j++ {
			e := float32(math.Exp(float64(in[offset+j] - maxVal)))
			result[offset+j] = e
			sum += e
		}
		for j := 0; j < cols; j++ {
			result[offset+j] /= sum
		}
	}
	return NewTensor(t.Shape, Float32, result)
}

// ArgMax returns the per-row index of the maximum value of a 2D tensor.
func ArgMax(t *Tensor) ([]int, error) {
	if t.DType != Float32 {
		return nil, fmt.Errorf("ArgMax requires a Float32 tensor, got %s", t.DType)
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("ArgMax requires a 2D tensor, got shape %v", t.Shape)
	}
	rows, cols := t.Shape[0], t.Shape[1]
	in := t.Float32s()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		offset := i * cols
		maxIdx := 0
		maxVal := in[offset]
		for j := 1; j < cols; j++ {
			if in[offset+j] > maxVal {
				maxVal = in[offset+j]
				maxIdx = j
			}
		}
		out[i] = maxIdx
	}
	return out, nil
}
