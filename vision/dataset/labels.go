package dataset

import (
	"fmt"
	"sort"
)

// LabelEncoder maps category strings to dense integer indices. The mapping is
// fixed at construction (classes sorted lexicographically) so encodings stay
// consistent between training and evaluation.
type LabelEncoder struct {
	classes []string
	indices map[string]int32
}

// NewLabelEncoder fits an encoder over the distinct labels in the input.
func NewLabelEncoder(labels []string) (*LabelEncoder, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("cannot fit label encoder on empty label set")
	}

	seen := make(map[string]bool)
	var classes []string
	for _, label := range labels {
		if !seen[label] {
			seen[label] = true
			classes = append(classes, label)
		}
	}
	sort.Strings(classes)

	indices := make(map[string]int32, len(classes))
	for i, class := range classes {
		indices[class] = int32(i)
	}
	return &LabelEncoder{classes: classes, indices: indices}, nil
}

// Encode returns the index of a known label.
func (e *LabelEncoder) Encode(label string) (int32, error) {
	idx, ok := e.indices[label]
	if !ok {
		return 0, fmt.Errorf("unknown label %q", label)
	}
	return idx, nil
}

// EncodeAll encodes a label slice in order.
func (e *LabelEncoder) EncodeAll(labels []string) ([]int32, error) {
	encoded := make([]int32, len(labels))
	for i, label := range labels {
		idx, err := e.Encode(label)
		if err != nil {
			return nil, err
		}
		encoded[i] = idx
	}
	return encoded, nil
}

// Decode returns the label string for a valid index.
func (e *LabelEncoder) Decode(idx int32) (string, error) {
	if idx < 0 || int(idx) >= len(e.classes) {
		return "", fmt.Errorf("class index %d out of range [0, %d)", idx, len(e.classes))
	}
	return e.classes[idx], nil
}

// Classes returns the fitted class names in index order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// NumClasses returns the number of fitted classes.
func (e *LabelEncoder) NumClasses() int {
	return len(e.classes)
}
