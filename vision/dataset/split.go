package dataset

import (
	"fmt"
	"math/rand"
)

// SplitIndices holds the sample indices of a three-way split.
type SplitIndices struct {
	Train []int
	Val   []int
	Test  []int
}

// ThreeWaySplit shuffles n sample indices with a seeded generator, holds out
// holdout of them, and divides the holdout evenly between validation and
// test. The default holdout of 0.3 yields a 70/15/15 split. Both stages use
// the same seed, so splits are reproducible.
func ThreeWaySplit(n int, holdout float64, seed int64) (*SplitIndices, error) {
	if n < 1 {
		return nil, fmt.Errorf("need at least 1 sample, got %d", n)
	}
	if holdout <= 0 || holdout >= 1 {
		return nil, fmt.Errorf("holdout fraction must be in (0, 1), got %v", holdout)
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(n, func(i, j int) {
		indices[i], indices[j] = indices[j], indices[i]
	})

	held := int(float64(n) * holdout)
	trainEnd := n - held
	mid := trainEnd + held/2

	split := &SplitIndices{
		Train: append([]int(nil), indices[:trainEnd]...),
		Val:   append([]int(nil), indices[trainEnd:mid]...),
		Test:  append([]int(nil), indices[mid:]...),
	}
	if len(split.Train) == 0 {
		return nil, fmt.Errorf("split produced an empty training set (%d samples, holdout %v)", n, holdout)
	}
	return split, nil
}
