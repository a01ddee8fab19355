package model

import (
	"fmt"
	"math"

	"wastenet/tensor"
)

// CAM is a Grad-CAM saliency map normalized to [0, 1].
type CAM struct {
	Heatmap []float32 // Row-major [Height, Width]
	Height  int
	Width   int
	Class   int // Class index the map explains
}

// GradCAM computes a gradient-weighted class activation map for a single
// image [1, 3, H, W]. The class score is back-propagated to the named
// convolutional layer's activation, the per-channel gradients are global-
// average-pooled into channel weights, the weighted activation maps are
// summed, negatives are clipped, and the result is normalized to [0, 1].
// classIdx of -1 explains the predicted class.
func GradCAM(m *WasteNet, input *tensor.Tensor, layer string, classIdx int) (*CAM, error) {
	if len(input.Shape) != 4 || input.Shape[0] != 1 {
		return nil, fmt.Errorf("GradCAM expects a single image [1, C, H, W], got shape %v", input.Shape)
	}

	wasTraining := m.IsTraining()
	m.Eval()
	defer func() {
		if wasTraining {
			m.Train()
		}
	}()

	activation, err := m.ActivationAt(input, layer)
	if err != nil {
		return nil, err
	}
	// Detach so the backward pass stops at the activation leaf.
	leaf, err := activation.Detach()
	if err != nil {
		return nil, err
	}
	leaf.SetRequiresGrad(true)

	logits, err := m.ForwardFromActivation(layer, leaf)
	if err != nil {
		return nil, err
	}

	if classIdx < 0 {
		preds, err := tensor.ArgMax(logits)
		if err != nil {
			return nil, err
		}
		classIdx = preds[0]
	}
	numClasses := logits.Shape[1]
	if classIdx >= numClasses {
		return nil, fmt.Errorf("class index %d out of range [0, %d)", classIdx, numClasses)
	}

	// Isolate the class score as a scalar the graph can run backward from.
	maskData := make([]float32, numClasses)
	maskData[classIdx] = 1
	mask, err := tensor.NewTensor([]int{1, numClasses}, tensor.Float32, maskData)
	if err != nil {
		return nil, err
	}
	masked, err := tensor.MulAutograd(logits, mask)
	if err != nil {
		return nil, err
	}
	score, err := tensor.SumAutograd(masked)
	if err != nil {
		return nil, err
	}
	if err := score.Backward(); err != nil {
		return nil, fmt.Errorf("saliency backward pass failed: %v", err)
	}

	grad := leaf.Grad()
	if grad == nil {
		return nil, fmt.Errorf("no gradient reached layer %q", layer)
	}

	channels, height, width := leaf.Shape[1], leaf.Shape[2], leaf.Shape[3]
	plane := height * width
	gradData := grad.Float32s()
	actData := leaf.Float32s()

	// Channel weights: global average pool of the gradients.
	weights := make([]float32, channels)
	for c := 0; c < channels; c++ {
		var sum float32
		for i := 0; i < plane; i++ {
			sum += gradData[c*plane+i]
		}
		weights[c] = sum / float32(plane)
	}

	heatmap := make([]float32, plane)
	var maxVal float32
	for i := 0; i < plane; i++ {
		var v float32
		for c := 0; c < channels; c++ {
			v += weights[c] * actData[c*plane+i]
		}
		if v < 0 {
			v = 0
		}
		heatmap[i] = v
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal > 0 {
		for i := range heatmap {
			heatmap[i] /= maxVal
		}
	}

	return &CAM{Heatmap: heatmap, Height: height, Width: width, Class: classIdx}, nil
}

// Resize returns the heatmap bilinearly upsampled to size x size, for
// overlaying on the original image.
func (c *CAM) Resize(size int) []float32 {
	out := make([]float32, size*size)
	scaleX := float64(c.Width) / float64(size)
	scaleY := float64(c.Height) / float64(size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			sx := (float64(x) + 0.5) * scaleX
			sy := (float64(y) + 0.5) * scaleY
			out[y*size+x] = c.sample(sx-0.5, sy-0.5)
		}
	}
	return out
}

func (c *CAM) sample(x, y float64) float32 {
	clamp := func(v, hi int) int {
		if v < 0 {
			return 0
		}
		if v >= hi {
			return hi - 1
		}
		return v
	}
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := float32(x - float64(x0))
	fy := float32(y - float64(y0))

	x0c, x1c := clamp(x0, c.Width), clamp(x0+1, c.Width)
	y0c, y1c := clamp(y0, c.Height), clamp(y0+1, c.Height)

	top := c.Heatmap[y0c*c.Width+x0c]*(1-fx) + c.Heatmap[y0c*c.Width+x1c]*fx
	bottom := c.Heatmap[y1c*c.Width+x0c]*(1-fx) + c.Heatmap[y1c*c.Width+x1c]*fx
	return top*(1-fy) + bottom*fy
}
