package dataset

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"wastenet/tensor"
)

func TestThreeWaySplitProportions(t *testing.T) {
	split, err := ThreeWaySplit(100, 0.3, 42)
	require.NoError(t, err)

	require.Len(t, split.Train, 70)
	require.Len(t, split.Val, 15)
	require.Len(t, split.Test, 15)

	// Every index appears exactly once across the three splits.
	all := append(append(append([]int(nil), split.Train...), split.Val...), split.Test...)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(t, i, v)
	}
}

func TestThreeWaySplitDeterministic(t *testing.T) {
	a, err := ThreeWaySplit(50, 0.3, 7)
	require.NoError(t, err)
	b, err := ThreeWaySplit(50, 0.3, 7)
	require.NoError(t, err)
	require.Equal(t, a.Train, b.Train)
	require.Equal(t, a.Val, b.Val)
	require.Equal(t, a.Test, b.Test)

	c, err := ThreeWaySplit(50, 0.3, 8)
	require.NoError(t, err)
	require.NotEqual(t, a.Train, c.Train)
}

func TestThreeWaySplitValidation(t *testing.T) {
	_, err := ThreeWaySplit(0, 0.3, 1)
	require.Error(t, err)
	_, err = ThreeWaySplit(10, 0, 1)
	require.Error(t, err)
	_, err = ThreeWaySplit(10, 1, 1)
	require.Error(t, err)
}

func TestSamplesSubsetAndGet(t *testing.T) {
	raw := &RawDataset{
		Images: [][]float32{
			make([]float32, 3*2*2),
			make([]float32, 3*2*2),
			make([]float32, 3*2*2),
		},
		Labels:    []string{"b", "a", "b"},
		ImageSize: 2,
	}
	raw.Images[1][0] = 0.5

	enc, err := NewLabelEncoder(raw.Labels)
	require.NoError(t, err)
	samples, err := EncodeSamples(raw, enc)
	require.NoError(t, err)

	require.Equal(t, 3, samples.Len())
	require.Equal(t, []int32{1, 0, 1}, samples.Labels)

	data, label, err := samples.Get(1)
	require.NoError(t, err)
	require.Equal(t, []int{3, 2, 2}, data.Shape)
	require.Equal(t, float32(0.5), data.Float32s()[0])
	require.Equal(t, tensor.Int32, label.DType)
	require.Equal(t, []int32{0}, label.Int32s())

	sub, err := samples.Subset([]int{2, 0})
	require.NoError(t, err)
	require.Equal(t, 2, sub.Len())
	require.Equal(t, []int32{1, 1}, sub.Labels)

	_, err = samples.Subset([]int{9})
	require.Error(t, err)
	_, _, err = samples.Get(9)
	require.Error(t, err)
}
