package tensor

import (
	"fmt"
)

type DType int

const (
	Float32 DType = iota
	Int32
)

func (d DType) String() string {
	switch d {
	case Float32:
		return "Float32"
	case Int32:
		return "Int32"
	default:
		return "Unknown"
	}
}

// Operation is a node in the reverse-mode autograd graph. Backward receives
// the gradient flowing into the operation's output and returns one gradient
// per input, in input order. A nil entry means "no gradient for this input".
type Operation interface {
	Inputs() []*Tensor
	Backward(gradOut *Tensor) []*Tensor
}

// Tensor is a dense, row-major, CPU-resident n-dimensional array. Data is
// either []float32 or []int32 depending on DType.
type Tensor struct {
	Shape        []int
	Strides      []int
	DType        DType
	Data         interface{}
	NumElems     int
	requiresGrad bool
	grad         *Tensor
	creator      Operation
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, dtype=%s, elements=%d)", t.Shape, t.DType, t.NumElems)
}

func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
}

// Grad returns the accumulated gradient, or nil if Backward has not reached
// this tensor since the last ZeroGrad.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// Float32s returns the underlying float32 storage.
func (t *Tensor) Float32s() []float32 {
	return t.Data.([]float32)
}

// Int32s returns the underlying int32 storage.
func (t *Tensor) Int32s() []int32 {
	return t.Data.([]int32)
}

// Item returns the value of a single-element tensor.
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("Item requires a single-element tensor, got shape %v", t.Shape)
	}
	switch t.DType {
	case Float32:
		return float64(t.Float32s()[0]), nil
	case Int32:
		return float64(t.Int32s()[0]), nil
	default:
		return 0, fmt.Errorf("unsupported dtype %s", t.DType)
	}
}

// SetData replaces the tensor's storage in place. The replacement must have
// the same element count and dtype.
func (t *Tensor) SetData(data interface{}) error {
	switch d := data.(type) {
	case []float32:
		if t.DType != Float32 {
			return fmt.Errorf("dtype mismatch: tensor is %s", t.DType)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data size mismatch: expected %d, got %d", t.NumElems, len(d))
		}
		copy(t.Float32s(), d)
	case []int32:
		if t.DType != Int32 {
			return fmt.Errorf("dtype mismatch: tensor is %s", t.DType)
		}
		if len(d) != t.NumElems {
			return fmt.Errorf("data size mismatch: expected %d, got %d", t.NumElems, len(d))
		}
		copy(t.Int32s(), d)
	default:
		return fmt.Errorf("unsupported data type %T", data)
	}
	return nil
}

// Detach returns a new leaf tensor sharing no autograd history with t.
// The storage is copied, so writes to one do not affect the other.
func (t *Tensor) Detach() (*Tensor, error) {
	c, err := t.Clone()
	if err != nil {
		return nil, err
	}
	c.creator = nil
	c.requiresGrad = false
	c.grad = nil
	return c, nil
}

// Clone returns a deep copy of the tensor's shape and data. Autograd state
// (creator, gradient) is not copied.
func (t *Tensor) Clone() (*Tensor, error) {
	switch t.DType {
	case Float32:
		data := make([]float32, t.NumElems)
		copy(data, t.Float32s())
		return NewTensor(t.Shape, Float32, data)
	case Int32:
		data := make([]int32, t.NumElems)
		copy(data, t.Int32s())
		return NewTensor(t.Shape, Int32, data)
	default:
		return nil, fmt.Errorf("unsupported dtype %s", t.DType)
	}
}

// Reshape returns a view-like tensor with a new shape and copied data.
func (t *Tensor) Reshape(shape []int) (*Tensor, error) {
	if calculateNumElements(shape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape %v to %v: element count mismatch", t.Shape, shape)
	}
	c, err := t.Clone()
	if err != nil {
		return nil, err
	}
	c.Shape = append([]int(nil), shape...)
	c.Strides = calculateStrides(c.Shape)
	return c, nil
}

// ZeroGrad clears the gradients of all given tensors.
func ZeroGrad(params []*Tensor) {
	for _, p := range params {
		p.grad = nil
	}
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
