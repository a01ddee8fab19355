package preprocessing

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"sync"

	"github.com/nfnt/resize"
)

// ImageProcessor decodes images and converts them to normalized tensors
type ImageProcessor struct {
	mu            sync.Mutex
	processBuffer []float32
	targetSize    int
}

// NewImageProcessor creates a new image processor with the specified target size
func NewImageProcessor(targetSize int) *ImageProcessor {
	return &ImageProcessor{
		targetSize: targetSize,
	}
}

// TargetSize returns the square resolution images are resized to.
func (p *ImageProcessor) TargetSize() int {
	return p.targetSize
}

// ProcessedImage represents a preprocessed image ready for neural network input
type ProcessedImage struct {
	Data     []float32
	Width    int
	Height   int
	Channels int
}

// DecodeAndPreprocess decodes a JPEG or PNG image, resizes it to the target
// square resolution with bilinear interpolation, and returns the pixels in
// CHW format (channels, height, width) normalized to [0, 1].
func (p *ImageProcessor) DecodeAndPreprocess(reader io.Reader) (*ProcessedImage, error) {
	img, _, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return p.FromImage(img), nil
}

// FromImage converts an already decoded image to CHW float32 data in [0, 1].
func (p *ImageProcessor) FromImage(img image.Image) *ProcessedImage {
	resized := resize.Resize(uint(p.targetSize), uint(p.targetSize), img, resize.Bilinear)

	p.mu.Lock()
	defer p.mu.Unlock()

	requiredSize := 3 * p.targetSize * p.targetSize
	if len(p.processBuffer) < requiredSize {
		p.processBuffer = make([]float32, requiredSize)
	}
	data := p.processBuffer[:requiredSize]

	plane := p.targetSize * p.targetSize
	for y := 0; y < p.targetSize; y++ {
		for x := 0; x < p.targetSize; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := y*p.targetSize + x
			data[idx] = float32(r) / 65535.0
			data[plane+idx] = float32(g) / 65535.0
			data[2*plane+idx] = float32(b) / 65535.0
		}
	}

	// Copy out of the reusable buffer.
	result := make([]float32, requiredSize)
	copy(result, data)
	return &ProcessedImage{
		Data:     result,
		Width:    p.targetSize,
		Height:   p.targetSize,
		Channels: 3,
	}
}

// PreprocessBatch preprocesses multiple images concurrently
func PreprocessBatch(imagePaths []string, targetSize int, maxWorkers int) ([]*ProcessedImage, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	results := make([]*ProcessedImage, len(imagePaths))
	errs := make([]error, len(imagePaths))

	type job struct {
		index int
		path  string
	}
	jobs := make(chan job, len(imagePaths))
	var wg sync.WaitGroup

	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processor := NewImageProcessor(targetSize)
			for j := range jobs {
				file, err := os.Open(j.path)
				if err != nil {
					errs[j.index] = err
					continue
				}
				img, err := processor.DecodeAndPreprocess(file)
				file.Close()
				if err != nil {
					errs[j.index] = err
				} else {
					results[j.index] = img
				}
			}
		}()
	}

	for i, path := range imagePaths {
		jobs <- job{index: i, path: path}
	}
	close(jobs)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to process image %q: %w", imagePaths[i], err)
		}
	}
	return results, nil
}
