package dataset

import (
	"fmt"

	"wastenet/tensor"
)

// Samples is an encoded, normalized dataset: flat CHW pixel data per sample
// with int32 class labels. It satisfies the training Dataset interface.
type Samples struct {
	Data     [][]float32
	Labels   []int32
	Channels int
	Height   int
	Width    int
}

// EncodeSamples converts a raw dataset into training-ready samples using a
// fitted label encoder. Pixel data is shared, not copied.
func EncodeSamples(raw *RawDataset, encoder *LabelEncoder) (*Samples, error) {
	if len(raw.Images) != len(raw.Labels) {
		return nil, fmt.Errorf("image count %d does not match label count %d", len(raw.Images), len(raw.Labels))
	}
	labels, err := encoder.EncodeAll(raw.Labels)
	if err != nil {
		return nil, err
	}
	return &Samples{
		Data:     raw.Images,
		Labels:   labels,
		Channels: 3,
		Height:   raw.ImageSize,
		Width:    raw.ImageSize,
	}, nil
}

func (s *Samples) Len() int {
	return len(s.Data)
}

// Get returns sample idx as a [C, H, W] tensor with a single-element label.
func (s *Samples) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= len(s.Data) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(s.Data))
	}
	data, err := tensor.NewTensor([]int{s.Channels, s.Height, s.Width}, tensor.Float32, s.Data[idx])
	if err != nil {
		return nil, nil, err
	}
	label, err := tensor.NewTensor([]int{1}, tensor.Int32, []int32{s.Labels[idx]})
	if err != nil {
		return nil, nil, err
	}
	return data, label, nil
}

// Subset returns a view over the given indices.
func (s *Samples) Subset(indices []int) (*Samples, error) {
	sub := &Samples{
		Data:     make([][]float32, len(indices)),
		Labels:   make([]int32, len(indices)),
		Channels: s.Channels,
		Height:   s.Height,
		Width:    s.Width,
	}
	for i, idx := range indices {
		if idx < 0 || idx >= len(s.Data) {
			return nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(s.Data))
		}
		sub.Data[i] = s.Data[idx]
		sub.Labels[i] = s.Labels[idx]
	}
	return sub, nil
}
