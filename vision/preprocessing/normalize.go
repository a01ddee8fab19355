package preprocessing

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Normalize rescales pixel data from [0, 1] to [-1, 1] in place, the input
// range the classifier trains on.
func Normalize(data []float32) {
	for i, v := range data {
		data[i] = v*2 - 1
	}
}

// Denormalize maps [-1, 1] pixel data back to [0, 1] in place, for rendering
// samples and saliency overlays.
func Denormalize(data []float32) {
	for i, v := range data {
		data[i] = (v + 1) / 2
	}
}

// ChannelStats holds per-channel mean and standard deviation.
type ChannelStats struct {
	Mean   []float64
	StdDev []float64
}

// ComputeChannelStats calculates per-channel statistics over CHW image data,
// useful for sanity-checking a loaded dataset.
func ComputeChannelStats(data []float32, channels, height, width int) (*ChannelStats, error) {
	plane := height * width
	if len(data)%(channels*plane) != 0 {
		return nil, fmt.Errorf("data length %d is not a multiple of image size %d", len(data), channels*plane)
	}
	numImages := len(data) / (channels * plane)

	stats := &ChannelStats{
		Mean:   make([]float64, channels),
		StdDev: make([]float64, channels),
	}
	values := make([]float64, numImages*plane)
	for c := 0; c < channels; c++ {
		pos := 0
		for n := 0; n < numImages; n++ {
			offset := (n*channels + c) * plane
			for i := 0; i < plane; i++ {
				values[pos] = float64(data[offset+i])
				pos++
			}
		}
		mean, std := stat.MeanStdDev(values, nil)
		stats.Mean[c] = mean
		stats.StdDev[c] = std
	}
	return stats, nil
}
