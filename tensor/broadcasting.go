package tensor

import (
	"fmt"
)

// broadcastShapes computes the result shape of broadcasting a against b
// using right-aligned numpy semantics: trailing dimensions must match or
// one of them must be 1.
func broadcastShapes(a, b []int) ([]int, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i < len(a) {
			da = a[len(a)-1-i]
		}
		if i < len(b) {
			db = b[len(b)-1-i]
		}
		switch {
		case da == db:
			out[n-1-i] = da
		case da == 1:
			out[n-1-i] = db
		case db == 1:
			out[n-1-i] = da
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable", a, b)
		}
	}
	return out, nil
}

// BroadcastTensor materializes t expanded to the target shape.
func BroadcastTensor(t *Tensor, shape []int) (*Tensor, error) {
	if shapesEqual(t.Shape, shape) {
		return t.Clone()
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("broadcast only supports Float32 tensors, got %s", t.DType)
	}

	// Left-pad the source shape with 1s to the target rank.
	src := make([]int, len(shape))
	pad := len(shape) - len(t.Shape)
	if pad < 0 {
		return nil, fmt.Errorf("cannot broadcast %v to lower-rank shape %v", t.Shape, shape)
	}
	for i := range src {
		if i < pad {
			src[i] = 1
		} else {
			src[i] = t.Shape[i-pad]
		}
	}
	for i := range shape {
		if src[i] != shape[i] && src[i] != 1 {
			return nil, fmt.Errorf("cannot broadcast %v to %v", t.Shape, shape)
		}
	}

	out, err := Zeros(shape, Float32)
	if err != nil {
		return nil, err
	}
	srcStrides := calculateStrides(src)
	outData := out.Float32s()
	inData := t.Float32s()
	coords := make([]int, len(shape))
	for idx := 0; idx < out.NumElems; idx++ {
		rem := idx
		for i := len(shape) - 1; i >= 0; i-- {
			coords[i] = rem % shape[i]
			rem /= shape[i]
		}
		srcIdx := 0
		for i := range coords {
			c := coords[i]
			if src[i] == 1 {
				c = 0
			}
			srcIdx += c * srcStrides[i]
		}
		outData[idx] = inData[srcIdx]
	}
	return out, nil
}

// reduceToShape sums grad over broadcast dimensions so it matches the target
// shape. Used by autograd backward passes after broadcasting forward passes.
func reduceToShape(grad *Tensor, target []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, target) {
		return grad.Clone()
	}
	if grad.DType != Float32 {
		return nil, fmt.Errorf("gradient reduction only supports Float32, got %s", grad.DType)
	}

	out, err := Zeros(target, Float32)
	if err != nil {
		return nil, err
	}

	// Left-pad target with 1s to grad's rank, then accumulate every grad
	// element into its reduced position.
	padded := make([]int, len(grad.Shape))
	pad := len(grad.Shape) - len(target)
	if pad < 0 {
		return nil, fmt.Errorf("cannot reduce gradient %v to higher-rank shape %v", grad.Shape, target)
	}
	for i := range padded {
		if i < pad {
			padded[i] = 1
		} else {
			padded[i] = target[i-pad]
		}
	}
	outStrides := calculateStrides(padded)
	gradData := grad.Float32s()
	outData := out.Float32s()
	coords := make([]int, len(grad.Shape))
	for idx := 0; idx < grad.NumElems; idx++ {
		rem := idx
		for i := len(grad.Shape) - 1; i >= 0; i-- {
			coords[i] = rem % grad.Shape[i]
			rem /= grad.Shape[i]
		}
		outIdx := 0
		for i := range coords {
			c := coords[i]
			if padded[i] == 1 {
				c = 0
			}
			outIdx += c * outStrides[i]
		}
		outData[outIdx] += gradData[idx]
	}
	return out, nil
}
