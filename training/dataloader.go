package training

import (
	"fmt"
	"math/rand"

	"wastenet/tensor"
)

// Dataset interface provides indexed access to samples
type Dataset interface {
	Len() int
	Get(idx int) (data *tensor.Tensor, label *tensor.Tensor, err error)
}

// Batch holds one mini-batch of stacked samples
type Batch struct {
	Data   *tensor.Tensor // [batchSize, ...sample shape]
	Labels *tensor.Tensor // [batchSize]
	Size   int
}

// DataLoader batches a dataset, optionally reshuffling the sample order at
// every Reset with a deterministic seed.
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
}

// NewDataLoader creates a loader over dataset. A non-positive batchSize
// defaults to 1.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, seed int64) *DataLoader {
	if batchSize < 1 {
		batchSize = 1
	}
	dl := &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
	}
	dl.Reset()
	return dl
}

// Len returns the number of batches per epoch, counting a final partial batch.
func (dl *DataLoader) Len() int {
	n := dl.dataset.Len()
	return (n + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds to the start of the dataset and reshuffles if enabled.
func (dl *DataLoader) Reset() {
	n := dl.dataset.Len()
	if len(dl.indices) != n {
		dl.indices = make([]int, n)
		for i := range dl.indices {
			dl.indices[i] = i
		}
	}
	if dl.shuffle {
		dl.rng.Shuffle(n, func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
	dl.position = 0
}

// HasNext reports whether another batch remains in the current epoch.
func (dl *DataLoader) HasNext() bool {
	return dl.position < dl.dataset.Len()
}

// Next returns the next batch. Call Reset before reusing the loader once
// HasNext returns false.
func (dl *DataLoader) Next() (*Batch, error) {
	if !dl.HasNext() {
		return nil, fmt.Errorf("no more batches, call Reset to start a new epoch")
	}
	end := dl.position + dl.batchSize
	if end > dl.dataset.Len() {
		end = dl.dataset.Len()
	}
	batch, err := dl.loadBatch(dl.indices[dl.position:end])
	if err != nil {
		return nil, err
	}
	dl.position = end
	return batch, nil
}

func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	batchSize := len(indices)
	var batchData *tensor.Tensor
	labels := make([]int32, batchSize)

	for i, idx := range indices {
		sample, label, err := dl.dataset.Get(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %v", idx, err)
		}
		if batchData == nil {
			shape := append([]int{batchSize}, sample.Shape...)
			batchData, err = tensor.Zeros(shape, tensor.Float32)
			if err != nil {
				return nil, fmt.Errorf("failed to allocate batch tensor: %v", err)
			}
		}
		if sample.NumElems*batchSize != batchData.NumElems {
			return nil, fmt.Errorf("sample %d shape %v does not match batch layout", idx, sample.Shape)
		}
		copy(batchData.Float32s()[i*sample.NumElems:(i+1)*sample.NumElems], sample.Float32s())

		v, err := label.Item()
		if err != nil {
			return nil, fmt.Errorf("failed to read label %d: %v", idx, err)
		}
		labels[i] = int32(v)
	}

	labelTensor, err := tensor.NewTensor([]int{batchSize}, tensor.Int32, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to create label tensor: %v", err)
	}
	return &Batch{Data: batchData, Labels: labelTensor, Size: batchSize}, nil
}

// SimpleDataset wraps parallel slices of sample and label tensors
type SimpleDataset struct {
	data   []*tensor.Tensor
	labels []*tensor.Tensor
}

// NewSimpleDataset creates a dataset from matching data and label slices
func NewSimpleDataset(data, labels []*tensor.Tensor) (*SimpleDataset, error) {
	if len(data) != len(labels) {
		return nil, fmt.Errorf("data and labels must have the same length: %d vs %d", len(data), len(labels))
	}
	return &SimpleDataset{data: data, labels: labels}, nil
}

func (ds *SimpleDataset) Len() int {
	return len(ds.data)
}

func (ds *SimpleDataset) Get(idx int) (*tensor.Tensor, *tensor.Tensor, error) {
	if idx < 0 || idx >= len(ds.data) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", idx, len(ds.data))
	}
	return ds.data[idx], ds.labels[idx], nil
}
