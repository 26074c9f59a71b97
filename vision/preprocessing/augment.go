package preprocessing

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// AugmentConfig bounds the random perturbations drawn per image per epoch.
// Shift, shear and zoom are fractions of the image dimension.
type AugmentConfig struct {
	MaxRotationDeg float64
	MaxShift       float64
	MaxShear       float64
	MaxZoom        float64
	HorizontalFlip bool
}

// DefaultAugmentConfig matches the training recipe: rotation up to 40
// degrees, 20% translation, 20% shear, 20% zoom, and a coin-flip
// horizontal mirror.
func DefaultAugmentConfig() AugmentConfig {
	return AugmentConfig{
		MaxRotationDeg: 40,
		MaxShift:       0.2,
		MaxShear:       0.2,
		MaxZoom:        0.2,
		HorizontalFlip: true,
	}
}

// Augmenter applies a freshly randomized affine transform to each image it
// is given. Safe for concurrent use.
type Augmenter struct {
	cfg AugmentConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAugmenter creates an augmenter; the seed fixes the draw sequence so
// augmentation is reproducible in tests.
func NewAugmenter(cfg AugmentConfig, seed int64) (*Augmenter, error) {
	if cfg.MaxRotationDeg < 0 || cfg.MaxShift < 0 || cfg.MaxShear < 0 || cfg.MaxZoom < 0 {
		return nil, fmt.Errorf("augmentation bounds cannot be negative: %+v", cfg)
	}
	if cfg.MaxZoom >= 1 {
		return nil, fmt.Errorf("max zoom %f must be below 1", cfg.MaxZoom)
	}
	return &Augmenter{cfg: cfg, rng: rand.New(rand.NewSource(seed))}, nil
}

type affineParams struct {
	theta  float64 // rotation, radians
	shiftX float64 // pixels
	shiftY float64
	shear  float64 // x-shear factor
	zoomX  float64
	zoomY  float64
	flip   bool
}

func (a *Augmenter) draw(size int) affineParams {
	a.mu.Lock()
	defer a.mu.Unlock()

	uniform := func(bound float64) float64 {
		if bound == 0 {
			return 0
		}
		return (a.rng.Float64()*2 - 1) * bound
	}

	return affineParams{
		theta:  uniform(a.cfg.MaxRotationDeg) * math.Pi / 180,
		shiftX: uniform(a.cfg.MaxShift) * float64(size),
		shiftY: uniform(a.cfg.MaxShift) * float64(size),
		shear:  uniform(a.cfg.MaxShear),
		zoomX:  1 + uniform(a.cfg.MaxZoom),
		zoomY:  1 + uniform(a.cfg.MaxZoom),
		flip:   a.cfg.HorizontalFlip && a.rng.Float64() < 0.5,
	}
}

// Apply transforms one HWC image of the given square size and returns a new
// buffer. The source image is not modified.
func (a *Augmenter) Apply(src []float32, size int) ([]float32, error) {
	if len(src) != size*size*Channels {
		return nil, fmt.Errorf("image buffer length %d doesn't match size %d", len(src), size)
	}
	return applyAffine(src, size, a.draw(size)), nil
}

// applyAffine warps the image by the inverse-mapped affine transform about
// the image center, sampling nearest-neighbor with edge clamping.
func applyAffine(src []float32, size int, p affineParams) []float32 {
	// Forward transform: dst = M*(pt - c) + c + shift, with M = R*Sh*Z.
	cos, sin := math.Cos(p.theta), math.Sin(p.theta)
	m00 := cos*p.zoomX + (-sin)*p.shear*p.zoomX
	m01 := -sin * p.zoomY
	m10 := sin*p.zoomX + cos*p.shear*p.zoomX
	m11 := cos * p.zoomY

	det := m00*m11 - m01*m10
	if det == 0 {
		det = 1e-12
	}
	i00 := m11 / det
	i01 := -m01 / det
	i10 := -m10 / det
	i11 := m00 / det

	c := float64(size-1) / 2
	dst := make([]float32, len(src))

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx := float64(x)
			if p.flip {
				dx = float64(size-1) - dx
			}
			rx := dx - c - p.shiftX
			ry := float64(y) - c - p.shiftY

			sx := int(math.Round(i00*rx + i01*ry + c))
			sy := int(math.Round(i10*rx + i11*ry + c))

			if sx < 0 {
				sx = 0
			} else if sx >= size {
				sx = size - 1
			}
			if sy < 0 {
				sy = 0
			} else if sy >= size {
				sy = size - 1
			}

			srcIdx := (sy*size + sx) * Channels
			dstIdx := (y*size + x) * Channels
			dst[dstIdx] = src[srcIdx]
			dst[dstIdx+1] = src[srcIdx+1]
			dst[dstIdx+2] = src[srcIdx+2]
		}
	}

	return dst
}
