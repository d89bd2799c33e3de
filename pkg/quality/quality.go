package quality

import (
	"math"

	"github.com/neurolens/fundus-extractor/pkg/raster"
)

// Metrics holds the per-frame quality scores. All values are in [0, 100]
// except Glare, which is the percentage of blown-out pixels.
type Metrics struct {
	Sharpness  float64 `json:"sharpness"`
	Contrast   float64 `json:"contrast"`
	Brightness float64 `json:"brightness"`
	Glare      float64 `json:"glare"`
	Total      float64 `json:"total"`
}

// Weights controls how the individual scores combine into Total.
type Weights struct {
	Sharpness  float64
	Contrast   float64
	Brightness float64
	Glare      float64
}

// Scorer computes quality metrics for a single frame. Scoring is a pure
// function of the pixel data: identical frames always produce identical
// metrics.
type Scorer struct {
	weights Weights
}

// New creates a Scorer with the default weighting.
func New() *Scorer {
	return &Scorer{
		weights: Weights{
			Sharpness:  0.4,
			Contrast:   0.3,
			Brightness: 0.2,
			Glare:      0.1,
		},
	}
}

// NewWithWeights creates a Scorer with custom weighting.
func NewWithWeights(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// Score computes the quality metrics for a frame.
func (s *Scorer) Score(f *raster.Frame) Metrics {
	width, height := f.Width, f.Height
	total := width * height

	luma := make([]float64, total)
	minLuma, maxLuma := 255.0, 0.0
	var sumLuma float64
	glareCount := 0

	for i := 0; i < total; i++ {
		p := i * 4
		r, g, b := f.Pix[p], f.Pix[p+1], f.Pix[p+2]

		l := raster.Luma(r, g, b)
		luma[i] = l
		sumLuma += l
		if l < minLuma {
			minLuma = l
		}
		if l > maxLuma {
			maxLuma = l
		}

		if r > 240 && g > 240 && b > 240 {
			glareCount++
		}
	}

	m := Metrics{
		Sharpness:  laplacianSharpness(luma, width, height),
		Contrast:   (maxLuma - minLuma) / 255.0 * 100.0,
		Brightness: 100.0 - math.Abs(128.0-sumLuma/float64(total))/1.28,
		Glare:      float64(glareCount) / float64(total) * 100.0,
	}

	m.Total = s.weights.Sharpness*m.Sharpness +
		s.weights.Contrast*m.Contrast +
		s.weights.Brightness*m.Brightness +
		s.weights.Glare*(100.0-m.Glare)

	return m
}

// laplacianSharpness estimates focus by averaging the squared discrete
// Laplacian of the luma plane over all interior pixels, excluding a
// one-pixel border.
func laplacianSharpness(luma []float64, width, height int) float64 {
	if width < 3 || height < 3 {
		return 0
	}

	var sum float64
	count := 0

	for y := 1; y < height-1; y++ {
		row := y * width
		for x := 1; x < width-1; x++ {
			i := row + x
			lap := luma[i-width] + luma[i+width] + luma[i-1] + luma[i+1] - 4*luma[i]
			sum += lap * lap
			count++
		}
	}

	score := sum / float64(count) * 10.0
	if score > 100 {
		score = 100
	}
	return score
}
