package tensor

import (
	"fmt"
)

// MatMul computes the matrix product of two 2D Float32 tensors.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if a.DType != Float32 || b.DType != Float32 {
		return nil, fmt.Errorf("MatMul requires Float32 tensors, got %s and %s", a.DType, b.DType)
	}
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("MatMul requires 2D tensors, got shapes %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, fmt.Errorf("MatMul dimension mismatch: %v x %v", a.Shape, b.Shape)
	}

	m, k, n := a.Shape[0], a.Shape[1], b.Shape[1]
	out, err := Zeros([]int{m, n}, Float32)
	if err != nil {
		return nil, err
	}

	ad, bd, od := a.Float32s(), b.Float32s(), out.Float32s()
	for i := 0; i < m; i++ {
		for p := 0; p < k; p++ {
			av := ad[i*k+p]
			if av == 0 {
				continue
			}
			row := bd[p*n : (p+1)*n]
			outRow := od[i*n : (i+1)*n]
			for j := range row {
				outRow[j] += av * row[j]
			}
		}
	}
	return out, nil
}

// Transpose swaps two dimensions of a 2D tensor.
func Transpose(t *Tensor, dim0, dim1 int) (*Tensor, error) {
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("Transpose requires a 2D tensor, got shape %v", t.Shape)
	}
	if (dim0 != 0 && dim0 != 1) || (dim1 != 0 && dim1 != 1) {
		return nil, fmt.Errorf("invalid transpose dimensions %d, %d", dim0, dim1)
	}
	if dim0 == dim1 {
		return t.Clone()
	}
	if t.DType != Float32 {
		return nil, fmt.Errorf("Transpose requires a Float32 tensor, got %s", t.DType)
	}

	rows, cols := t.Shape[0], t.Shape[1]
	out, err := Zeros([]int{cols, rows}, Float32)
	if err != nil {
		return nil, err
	}
	in, od := t.Float32s(), out.Float32s()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			od[j*rows+i] = in[i*cols+j]
		}
	}
	return out, nil
}
