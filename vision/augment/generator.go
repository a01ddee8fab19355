package augment

import (
	"fmt"
	"math/rand"

	"wastenet/tensor"
	"wastenet/training"
	"wastenet/vision/dataset"
)

// BatchGenerator feeds augmented mini-batches to the trainer. Every Reset
// reshuffles the sample order and each pass draws fresh random transforms,
// so no two epochs see identical pixels. A nil augmenter passes samples
// through unchanged, which is how validation batches are produced.
type BatchGenerator struct {
	samples   *dataset.Samples
	augmenter *Augmenter
	batchSize int
	rng       *rand.Rand
	indices   []int
	position  int
}

// NewBatchGenerator creates a generator over samples. batchSize defaults to
// 64 when non-positive.
func NewBatchGenerator(samples *dataset.Samples, augmenter *Augmenter, batchSize int, seed int64) (*BatchGenerator, error) {
	if samples == nil || samples.Len() == 0 {
		return nil, fmt.Errorf("samples must not be empty")
	}
	if batchSize < 1 {
		batchSize = 64
	}
	g := &BatchGenerator{
		samples:   samples,
		augmenter: augmenter,
		batchSize: batchSize,
		rng:       rand.New(rand.NewSource(seed)),
	}
	g.Reset()
	return g, nil
}

// Len returns batches per epoch, counting a final partial batch.
func (g *BatchGenerator) Len() int {
	return (g.samples.Len() + g.batchSize - 1) / g.batchSize
}

// Reset starts a new epoch with a fresh shuffle. Generators without an
// augmenter keep the original order so evaluation stays deterministic.
func (g *BatchGenerator) Reset() {
	n := g.samples.Len()
	if len(g.indices) != n {
		g.indices = make([]int, n)
		for i := range g.indices {
			g.indices[i] = i
		}
	}
	if g.augmenter != nil {
		g.rng.Shuffle(n, func(i, j int) {
			g.indices[i], g.indices[j] = g.indices[j], g.indices[i]
		})
	}
	g.position = 0
}

func (g *BatchGenerator) HasNext() bool {
	return g.position < g.samples.Len()
}

// Next assembles the next batch, augmenting each sample when an augmenter is
// configured. Labels stay aligned with their transformed images.
func (g *BatchGenerator) Next() (*training.Batch, error) {
	if !g.HasNext() {
		return nil, fmt.Errorf("epoch exhausted, call Reset")
	}
	end := g.position + g.batchSize
	if end > g.samples.Len() {
		end = g.samples.Len()
	}
	indices := g.indices[g.position:end]
	batchSize := len(indices)

	sampleSize := g.samples.Channels * g.samples.Height * g.samples.Width
	data := make([]float32, batchSize*sampleSize)
	labels := make([]int32, batchSize)

	for i, idx := range indices {
		pixels := g.samples.Data[idx]
		if g.augmenter != nil {
			var err error
			pixels, err = g.augmenter.Apply(pixels, g.samples.Channels, g.samples.Height, g.samples.Width)
			if err != nil {
				return nil, fmt.Errorf("augmentation failed for sample %d: %v", idx, err)
			}
		}
		copy(data[i*sampleSize:(i+1)*sampleSize], pixels)
		labels[i] = g.samples.Labels[idx]
	}

	dataT, err := tensor.NewTensor([]int{batchSize, g.samples.Channels, g.samples.Height, g.samples.Width}, tensor.Float32, data)
	if err != nil {
		return nil, err
	}
	labelT, err := tensor.NewTensor([]int{batchSize}, tensor.Int32, labels)
	if err != nil {
		return nil, err
	}

	g.position = end
	return &training.Batch{Data: dataT, Labels: labelT, Size: batchSize}, nil
}
