package training

import (
	"fmt"
)

// EstimateClassWeights computes balanced class weights over a full label set:
// weight(c) = total / (numClasses * count(c)). Rare classes receive weights
// above 1 and common classes below 1, so the weighted loss treats every class
// as equally important. Returns an error if any class has no samples.
func EstimateClassWeights(labels []int32, numClasses int) ([]float32, error) {
	if numClasses < 1 {
		return nil, fmt.Errorf("numClasses must be >= 1, got %d", numClasses)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels must not be empty")
	}

	counts := make([]int, numClasses)
	for i, label := range labels {
		if label < 0 || int(label) >= numClasses {
			return nil, fmt.Errorf("label %d at index %d out of range [0, %d)", label, i, numClasses)
		}
		counts[label]++
	}

	weights := make([]float32, numClasses)
	total := float64(len(labels))
	for c, count := range counts {
		if count == 0 {
			return nil, fmt.Errorf("class %d has no samples, cannot estimate weights", c)
		}
		weights[c] = float32(total / (float64(numClasses) * float64(count)))
	}
	return weights, nil
}
