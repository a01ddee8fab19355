package augment

import (
	"fmt"
	"math"
	"math/rand"
)

// Config bounds the random transforms applied to each training image. All
// fractions are of the image dimension; rotation is in degrees. Each draw
// samples uniformly from [-max, max] (or [min, max] for brightness).
type Config struct {
	RotationDeg    float64
	TranslateFrac  float64
	ShearFrac      float64
	ZoomFrac       float64
	HorizontalFlip bool
	VerticalFlip   bool
	BrightnessMin  float64
	BrightnessMax  float64
}

// DefaultConfig matches the training recipe: rotation up to 30 degrees,
// translation/shear/zoom up to 20%, both flips, brightness in [0.8, 1.2].
func DefaultConfig() Config {
	return Config{
		RotationDeg:    30,
		TranslateFrac:  0.2,
		ShearFrac:      0.2,
		ZoomFrac:       0.2,
		HorizontalFlip: true,
		VerticalFlip:   true,
		BrightnessMin:  0.8,
		BrightnessMax:  1.2,
	}
}

// Augmenter applies random affine transforms, flips, and brightness jitter
// to CHW image data in [-1, 1]. Out-of-frame samples replicate edge pixels.
type Augmenter struct {
	cfg Config
	rng *rand.Rand
}

func NewAugmenter(cfg Config, seed int64) (*Augmenter, error) {
	if cfg.BrightnessMin > cfg.BrightnessMax {
		return nil, fmt.Errorf("brightness range inverted: [%v, %v]", cfg.BrightnessMin, cfg.BrightnessMax)
	}
	if cfg.ZoomFrac < 0 || cfg.ZoomFrac >= 1 {
		return nil, fmt.Errorf("zoom fraction must be in [0, 1), got %v", cfg.ZoomFrac)
	}
	return &Augmenter{cfg: cfg, rng: rand.New(rand.NewSource(seed))}, nil
}

func (a *Augmenter) uniform(max float64) float64 {
	if max == 0 {
		return 0
	}
	return (a.rng.Float64()*2 - 1) * max
}

// Apply returns a newly allocated augmented copy of src.
func (a *Augmenter) Apply(src []float32, channels, height, width int) ([]float32, error) {
	if len(src) != channels*height*width {
		return nil, fmt.Errorf("data length %d does not match %dx%dx%d", len(src), channels, height, width)
	}

	theta := a.uniform(a.cfg.RotationDeg) * math.Pi / 180
	shear := a.uniform(a.cfg.ShearFrac)
	zoom := 1 + a.uniform(a.cfg.ZoomFrac)
	tx := a.uniform(a.cfg.TranslateFrac) * float64(width)
	ty := a.uniform(a.cfg.TranslateFrac) * float64(height)
	flipH := a.cfg.HorizontalFlip && a.rng.Float64() < 0.5
	flipV := a.cfg.VerticalFlip && a.rng.Float64() < 0.5
	brightness := a.cfg.BrightnessMin
	if a.cfg.BrightnessMax > a.cfg.BrightnessMin {
		brightness += a.rng.Float64() * (a.cfg.BrightnessMax - a.cfg.BrightnessMin)
	}

	// Forward transform about the image center: rotate, shear, zoom, then
	// translate. Output pixels are filled by the inverse mapping.
	cos, sin := math.Cos(theta), math.Sin(theta)
	m00 := zoom * (cos + shear*sin)
	m01 := zoom * (shear*cos - sin)
	m10 := zoom * sin
	m11 := zoom * cos
	det := m00*m11 - m01*m10
	if math.Abs(det) < 1e-9 {
		return nil, fmt.Errorf("degenerate affine transform")
	}
	i00, i01 := m11/det, -m01/det
	i10, i11 := -m10/det, m00/det

	cx, cy := float64(width-1)/2, float64(height-1)/2
	out := make([]float32, len(src))
	plane := height * width

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			ox, oy := float64(x), float64(y)
			if flipH {
				ox = float64(width-1) - ox
			}
			if flipV {
				oy = float64(height-1) - oy
			}
			dx := ox - cx - tx
			dy := oy - cy - ty
			sx := i00*dx + i01*dy + cx
			sy := i10*dx + i11*dy + cy

			for c := 0; c < channels; c++ {
				v := bilinearSample(src[c*plane:(c+1)*plane], height, width, sx, sy)
				// Brightness scales [0, 1] intensity, applied in [-1, 1]
				// space: v' = b*(v+1) - 1.
				v = float32(brightness)*(v+1) - 1
				if v < -1 {
					v = -1
				} else if v > 1 {
					v = 1
				}
				out[c*plane+y*width+x] = v
			}
		}
	}
	return out, nil
}

// bilinearSample reads plane at fractional coordinates, clamping to the edge.
func bilinearSample(plane []float32, height, width int, x, y float64) float32 {
	clampX := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= width {
			return width - 1
		}
		return v
	}
	clampY := func(v int) int {
		if v < 0 {
			return 0
		}
		if v >= height {
			return height - 1
		}
		return v
	}

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := float32(x - float64(x0))
	fy := float32(y - float64(y0))

	x0c, x1c := clampX(x0), clampX(x0+1)
	y0c, y1c := clampY(y0), clampY(y0+1)

	top := plane[y0c*width+x0c]*(1-fx) + plane[y0c*width+x1c]*fx
	bottom := plane[y1c*width+x0c]*(1-fx) + plane[y1c*width+x1c]*fx
	return top*(1-fy) + bottom*fy
}
