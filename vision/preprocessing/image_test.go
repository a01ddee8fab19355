package preprocessing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodeTestPNG(t *testing.T, width, height int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeAndPreprocessShapeAndRange(t *testing.T) {
	data := encodeTestPNG(t, 20, 10, color.RGBA{R: 255, G: 0, B: 0, A: 255})

	p := NewImageProcessor(8)
	img, err := p.DecodeAndPreprocess(bytes.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, 8, img.Width)
	require.Equal(t, 8, img.Height)
	require.Equal(t, 3, img.Channels)
	require.Len(t, img.Data, 3*8*8)

	// Pure red image: R plane near 1, G and B planes near 0.
	plane := 8 * 8
	for i := 0; i < plane; i++ {
		require.InDelta(t, 1.0, float64(img.Data[i]), 0.02)
		require.InDelta(t, 0.0, float64(img.Data[plane+i]), 0.02)
		require.InDelta(t, 0.0, float64(img.Data[2*plane+i]), 0.02)
	}
}

func TestDecodeAndPreprocessRejectsGarbage(t *testing.T) {
	p := NewImageProcessor(8)
	_, err := p.DecodeAndPreprocess(bytes.NewReader([]byte("not an image")))
	require.Error(t, err)
}

func TestPreprocessBatch(t *testing.T) {
	dir := t.TempDir()
	colors := []color.RGBA{
		{R: 255, A: 255},
		{G: 255, A: 255},
		{B: 255, A: 255},
	}
	var paths []string
	for i, c := range colors {
		path := filepath.Join(dir, "img"+string(rune('a'+i))+".png")
		require.NoError(t, os.WriteFile(path, encodeTestPNG(t, 12, 12, c), 0o644))
		paths = append(paths, path)
	}

	images, err := PreprocessBatch(paths, 6, 2)
	require.NoError(t, err)
	require.Len(t, images, 3)
	for _, img := range images {
		require.Len(t, img.Data, 3*6*6)
	}
	// Order preserved: first image is red-dominant.
	require.Greater(t, images[0].Data[0], float32(0.9))
}

func TestPreprocessBatchPropagatesErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))

	_, err := PreprocessBatch([]string{bad}, 6, 1)
	require.Error(t, err)
}

func TestNormalizeRoundTrip(t *testing.T) {
	data := []float32{0, 0.25, 0.5, 0.75, 1}
	Normalize(data)
	require.Equal(t, []float32{-1, -0.5, 0, 0.5, 1}, data)
	Denormalize(data)
	require.Equal(t, []float32{0, 0.25, 0.5, 0.75, 1}, data)
}

func TestComputeChannelStats(t *testing.T) {
	// Two 2-channel 2x2 images: channel 0 all 0.5, channel 1 alternating 0/1.
	data := []float32{
		0.5, 0.5, 0.5, 0.5,
		0, 1, 0, 1,
		0.5, 0.5, 0.5, 0.5,
		1, 0, 1, 0,
	}
	stats, err := ComputeChannelStats(data, 2, 2, 2)
	require.NoError(t, err)
	require.InDelta(t, 0.5, stats.Mean[0], 1e-9)
	require.InDelta(t, 0.0, stats.StdDev[0], 1e-9)
	require.InDelta(t, 0.5, stats.Mean[1], 1e-9)
	require.Greater(t, stats.StdDev[1], 0.4)

	_, err = ComputeChannelStats(data[:7], 2, 2, 2)
	require.Error(t, err)
}
