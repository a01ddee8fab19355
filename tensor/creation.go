package tensor

import (
	"fmt"
)

// NewTensor creates a tensor from existing data. If data is nil, zeroed
// storage of the right size is allocated.
func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	t := &Tensor{
		Shape:    append([]int(nil), shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		NumElems: numElems,
	}

	switch dtype {
	case Float32:
		if data == nil {
			t.Data = make([]float32, numElems)
		} else {
			d, ok := data.([]float32)
			if !ok {
				return nil, fmt.Errorf("data type %T does not match dtype Float32", data)
			}
			if len(d) != numElems {
				return nil, fmt.Errorf("data size %d does not match shape %v (expected %d)", len(d), shape, numElems)
			}
			t.Data = d
		}
	case Int32:
		if data == nil {
			t.Data = make([]int32, numElems)
		} else {
			d, ok := data.([]int32)
			if !ok {
				return nil, fmt.Errorf("data type %T does not match dtype Int32", data)
			}
			if len(d) != numElems {
				return nil, fmt.Errorf("data size %d does not match shape %v (expected %d)", len(d), shape, numElems)
			}
			t.Data = d
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %s", dtype)
	}

	return t, nil
}

// Zeros creates a zero-filled tensor.
func Zeros(shape []int, dtype DType) (*Tensor, error) {
	return NewTensor(shape, dtype, nil)
}

// Ones creates a one-filled tensor.
func Ones(shape []int, dtype DType) (*Tensor, error) {
	t, err := NewTensor(shape, dtype, nil)
	if err != nil {
		return nil, err
	}
	switch dtype {
	case Float32:
		data := t.Float32s()
		for i := range data {
			data[i] = 1
		}
	case Int32:
		data := t.Int32s()
		for i := range data {
			data[i] = 1
		}
	}
	return t, nil
}

// Full creates a tensor filled with a constant value.
func Full(shape []int, value float32) (*Tensor, error) {
	t, err := NewTensor(shape, Float32, nil)
	if err != nil {
		return nil, err
	}
	data := t.Float32s()
	for i := range data {
		data[i] = value
	}
	return t, nil
}
