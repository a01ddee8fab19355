package tensor

import (
	"fmt"
)

// Conv2DForward computes a 2D convolution.
// input: [batch, inChannels, height, width]
// weight: [outChannels, inChannels, kernel, kernel]
// bias: [outChannels] or nil
func Conv2DForward(input, weight, bias *Tensor, stride, padding int) (*Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("Conv2DForward expects 4D input, got shape %v", input.Shape)
	}
	if len(weight.Shape) != 4 {
		return nil, fmt.Errorf("Conv2DForward expects 4D weight, got shape %v", weight.Shape)
	}
	if stride < 1 {
		return nil, fmt.Errorf("stride must be >= 1, got %d", stride)
	}

	batch, inC, inH, inW := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	outC, wC, kH, kW := weight.Shape[0], weight.Shape[1], weight.Shape[2], weight.Shape[3]
	if inC != wC {
		return nil, fmt.Errorf("channel mismatch: input has %d, weight expects %d", inC, wC)
	}
	if bias != nil && bias.Shape[0] != outC {
		return nil, fmt.Errorf("bias size %d does not match output channels %d", bias.Shape[0], outC)
	}

	outH := (inH+2*padding-kH)/stride + 1
	outW := (inW+2*padding-kW)/stride + 1
	if outH < 1 || outW < 1 {
		return nil, fmt.Errorf("kernel %dx%d too large for input %dx%d with padding %d", kH, kW, inH, inW, padding)
	}

	out, err := Zeros([]int{batch, outC, outH, outW}, Float32)
	if err != nil {
		return nil, err
	}

	in := input.Float32s()
	w := weight.Float32s()
	od := out.Float32s()
	var bd []float32
	if bias != nil {
		bd = bias.Float32s()
	}

	for b := 0; b < batch; b++ {
		for oc := 0; oc < outC; oc++ {
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					var acc float32
					for ic := 0; ic < inC; ic++ {
						for ky := 0; ky < kH; ky++ {
							iy := oy*stride + ky - padding
							if iy < 0 || iy >= inH {
								continue
							}
							for kx := 0; kx < kW; kx++ {
								ix := ox*stride + kx - padding
								if ix < 0 || ix >= inW {
									continue
								}
								acc += in[((b*inC+ic)*inH+iy)*inW+ix] * w[((oc*inC+ic)*kH+ky)*kW+kx]
							}
						}
					}
					if bd != nil {
						acc += bd[oc]
					}
					od[((b*outC+oc)*outH+oy)*outW+ox] = acc
				}
			}
		}
	}
	return out, nil
}

// Conv2DBackward computes gradients of a 2D convolution with respect to its
// input, weight, and bias. gradBias is nil when hasBias is false.
func Conv2DBackward(input, weight, gradOut *Tensor, stride, padding int, hasBias bool) (gradIn, gradW, gradBias *Tensor, err error) {
	batch, inC, inH, inW := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	outC, _, kH, kW := weight.Shape[0], weight.Shape[1], weight.Shape[2], weight.Shape[3]
	outH, outW := gradOut.Shape[2], gradOut.Shape[3]

	gradIn, err = Zeros(input.Shape, Float32)
	if err != nil {
		return nil, nil, nil, err
	}
	gradW, err = Zeros(weight.Shape, Float32)
	if err != nil {
		return nil, nil, nil, err
	}
	if hasBias {
		gradBias, err = Zeros([]int{outC}, Float32)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	in := input.Float32s()
	w := weight.Float32s()
	gout := gradOut.Float32s()
	gin := gradIn.Float32s()
	gw := gradW.Float32s()
	var gb []float32
	if hasBias {
		gb = gradBias.Float32s()
	}

	for b := 0; b < batch; b++ {
		for oc := 0; oc < outC; oc++ {
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					g := gout[((b*outC+oc)*outH+oy)*outW+ox]
					if gb != nil {
						gb[oc] += g
					}
					if g == 0 {
						continue
					}
					for ic := 0; ic < inC; ic++ {
						for ky := 0; ky < kH; ky++ {
							iy := oy*stride + ky - padding
							if iy < 0 || iy >= inH {
								continue
							}
							for kx := 0; kx < kW; kx++ {
								ix := ox*stride + kx - padding
								if ix < 0 || ix >= inW {
									continue
								}
								inIdx := ((b*inC+ic)*inH+iy)*inW + ix
								wIdx := ((oc*inC+ic)*kH+ky)*kW + kx
								gin[inIdx] += g * w[wIdx]
								gw[wIdx] += g * in[inIdx]
							}
						}
					}
				}
			}
		}
	}
	return gradIn, gradW, gradBias, nil
}

// MaxPool2DForward computes 2D max pooling and returns, alongside the pooled
// tensor, the flat input index chosen for every output element (needed for
// the backward pass).
func MaxPool2DForward(input *Tensor, kernel, stride int) (*Tensor, []int, error) {
	if len(input.Shape) != 4 {
		return nil, nil, fmt.Errorf("MaxPool2DForward expects 4D input, got shape %v", input.Shape)
	}
	if stride < 1 {
		stride = kernel
	}

	batch, ch, inH, inW := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	outH := (inH-kernel)/stride + 1
	outW := (inW-kernel)/stride + 1
	if outH < 1 || outW < 1 {
		return nil, nil, fmt.Errorf("pool kernel %d too large for input %dx%d", kernel, inH, inW)
	}

	out, err := Zeros([]int{batch, ch, outH, outW}, Float32)
	if err != nil {
		return nil, nil, err
	}
	in := input.Float32s()
	od := out.Float32s()
	argmax := make([]int, out.NumElems)

	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			for oy := 0; oy < outH; oy++ {
				for ox := 0; ox < outW; ox++ {
					best := float32(0)
					bestIdx := -1
					for ky := 0; ky < kernel; ky++ {
						iy := oy*stride + ky
						for kx := 0; kx < kernel; kx++ {
							ix := ox*stride + kx
							idx := ((b*ch+c)*inH+iy)*inW + ix
							if bestIdx == -1 || in[idx] > best {
								best = in[idx]
								bestIdx = idx
							}
						}
					}
					outIdx := ((b*ch+c)*outH+oy)*outW + ox
					od[outIdx] = best
					argmax[outIdx] = bestIdx
				}
			}
		}
	}
	return out, argmax, nil
}

// MaxPool2DBackward scatters output gradients back to the argmax positions.
func MaxPool2DBackward(inputShape []int, argmax []int, gradOut *Tensor) (*Tensor, error) {
	gradIn, err := Zeros(inputShape, Float32)
	if err != nil {
		return nil, err
	}
	gin := gradIn.Float32s()
	gout := gradOut.Float32s()
	if len(gout) != len(argmax) {
		return nil, fmt.Errorf("argmax length %d does not match gradient elements %d", len(argmax), len(gout))
	}
	for i, idx := range argmax {
		gin[idx] += gout[i]
	}
	return gradIn, nil
}
