package region

import (
	"math"

	"github.com/neurolens/fundus-extractor/pkg/raster"
)

// Region is a circular region of interest over a frame, in frame-pixel
// coordinates. ManuallyAdjusted distinguishes heuristic placement from user
// edits.
type Region struct {
	CenterX          float64
	CenterY          float64
	Radius           float64
	ManuallyAdjusted bool
}

// Contains reports whether a point lies inside the circle.
func (r Region) Contains(x, y float64) bool {
	dx := x - r.CenterX
	dy := y - r.CenterY
	return dx*dx+dy*dy <= r.Radius*r.Radius
}

// InBounds reports whether the circle lies fully inside a width×height frame.
func (r Region) InBounds(width, height int) bool {
	return r.Radius >= 0 &&
		r.CenterX-r.Radius >= 0 && r.CenterX+r.Radius <= float64(width) &&
		r.CenterY-r.Radius >= 0 && r.CenterY+r.Radius <= float64(height)
}

// MaxRadius returns the largest radius that keeps the circle inside a
// width×height frame given the region's current center.
func (r Region) MaxRadius(width, height int) float64 {
	return math.Min(
		math.Min(r.CenterX, float64(width)-r.CenterX),
		math.Min(r.CenterY, float64(height)-r.CenterY),
	)
}

// DetectionConfig holds the fundus detection thresholds. The defaults are
// tuned for retinal exam footage: pixels darker than MinBrightness are
// background, pixels brighter than MaxBrightness are glare or overexposure.
type DetectionConfig struct {
	MinBrightness  float64
	MaxBrightness  float64
	RadiusFraction float64
}

// Detector estimates the circular fundus region of a frame using a
// brightness-weighted centroid heuristic.
type Detector struct {
	config DetectionConfig
}

// New creates a Detector with the default thresholds.
func New() *Detector {
	return &Detector{
		config: DetectionConfig{
			MinBrightness:  50,
			MaxBrightness:  230,
			RadiusFraction: 0.35,
		},
	}
}

// NewWithConfig creates a Detector with custom thresholds.
func NewWithConfig(config DetectionConfig) *Detector {
	return &Detector{config: config}
}

// Detect estimates the fundus region of a frame. Pixels whose mean RGB
// brightness lies strictly between the thresholds vote for the centroid,
// weighted by that brightness. When no pixel qualifies the result falls back
// to a circle at the frame center.
func (d *Detector) Detect(f *raster.Frame) Region {
	width, height := f.Width, f.Height
	minSide := float64(width)
	if float64(height) < minSide {
		minSide = float64(height)
	}

	var sumX, sumY, sumW float64

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := f.Offset(x, y)
			brightness := (float64(f.Pix[i]) + float64(f.Pix[i+1]) + float64(f.Pix[i+2])) / 3.0

			if brightness > d.config.MinBrightness && brightness < d.config.MaxBrightness {
				sumX += float64(x) * brightness
				sumY += float64(y) * brightness
				sumW += brightness
			}
		}
	}

	if sumW == 0 {
		// No usable pixels, assume the fundus fills the frame center.
		return Region{
			CenterX: float64(width) / 2,
			CenterY: float64(height) / 2,
			Radius:  d.config.RadiusFraction * minSide,
		}
	}

	r := Region{
		CenterX: sumX / sumW,
		CenterY: sumY / sumW,
		Radius:  d.config.RadiusFraction * (minSide / 2),
	}

	// The centroid can land near an edge; shift the center the minimum
	// amount needed to keep the circle inside the frame.
	r.CenterX = clamp(r.CenterX, r.Radius, float64(width)-r.Radius)
	r.CenterY = clamp(r.CenterY, r.Radius, float64(height)-r.Radius)

	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
