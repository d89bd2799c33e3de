// Package enhance implements the fixed seven-stage fundus image enhancement
// pipeline: crop to the circular region, remove glare, balance color,
// stretch contrast, denoise, boost vessel detail, and upscale to the
// canonical 1024×1024 output size.
//
// The stages must run in this exact order. Later stages assume properties
// established by earlier ones: the circular black-padded frame from the crop
// stage defines which pixels count as opaque for every stage after it.
package enhance

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/neurolens/fundus-extractor/pkg/raster"
	"github.com/neurolens/fundus-extractor/pkg/region"
)

// Config holds the pipeline tuning constants.
type Config struct {
	// GlareThreshold is the mean RGB brightness above which a pixel is
	// treated as specular glare.
	GlareThreshold float64
	// GlareFactor is the extra attenuation applied when scaling glare
	// pixels back to the threshold.
	GlareFactor float64
	// SampleFraction is the radius of the white-balance sample disc as a
	// fraction of the smaller frame side.
	SampleFraction float64
	// BalanceMin and BalanceMax bound the per-channel white-balance
	// correction factors.
	BalanceMin float64
	BalanceMax float64
	// BlurSigma is the Gaussian sigma of the denoise stage.
	BlurSigma float64
	// DetailGain is the unsharp-mask gain of the vessel boost stage.
	DetailGain float64
	// CanonicalSize is the square output size of the final upscale.
	CanonicalSize int
}

// DefaultConfig returns the pipeline constants used in production.
func DefaultConfig() Config {
	return Config{
		GlareThreshold: 235,
		GlareFactor:    0.9,
		SampleFraction: 0.3,
		BalanceMin:     0.7,
		BalanceMax:     1.3,
		BlurSigma:      0.5,
		DetailGain:     0.3,
		CanonicalSize:  1024,
	}
}

// StageNames lists the pipeline stages in execution order.
var StageNames = []string{
	"smart_crop",
	"deglare",
	"white_balance",
	"contrast_stretch",
	"denoise",
	"vessel_boost",
	"upscale",
}

// ProgressFunc is called before each stage runs, with the zero-based stage
// index and its name.
type ProgressFunc func(stage int, name string)

// Pipeline applies the enhancement stages to a cropped fundus frame.
type Pipeline struct {
	config Config
}

// New creates a Pipeline with the default configuration.
func New() *Pipeline {
	return &Pipeline{config: DefaultConfig()}
}

// NewWithConfig creates a Pipeline with custom constants.
func NewWithConfig(config Config) *Pipeline {
	return &Pipeline{config: config}
}

// Run executes all stages in order on a source frame and crop region and
// returns the final canonical-size frame. The source frame is not modified;
// intermediate frames are not retained. progress may be nil.
func (p *Pipeline) Run(src *raster.Frame, r region.Region, progress ProgressFunc) *raster.Frame {
	report := func(i int) {
		if progress != nil {
			progress(i, StageNames[i])
		}
	}

	report(0)
	frame := p.SmartCrop(src, r)
	report(1)
	frame = p.RemoveGlare(frame)
	report(2)
	frame = p.CorrectColor(frame)
	report(3)
	frame = p.StretchContrast(frame)
	report(4)
	frame = p.ReduceNoise(frame)
	report(5)
	frame = p.BoostVessels(frame)
	report(6)
	frame = p.Upscale(frame)

	return frame
}

// SmartCrop copies the circular crop region into a new square frame of side
// ceil(2×radius). Pixels outside the inscribed circle stay transparent
// black, which marks them as non-fundus for every later stage.
func (p *Pipeline) SmartCrop(src *raster.Frame, r region.Region) *raster.Frame {
	size := int(math.Ceil(2 * r.Radius))
	out := raster.New(size, size)

	center := float64(size) / 2
	srcX0 := int(math.Round(r.CenterX - r.Radius))
	srcY0 := int(math.Round(r.CenterY - r.Radius))
	radiusSq := r.Radius * r.Radius

	for y := 0; y < size; y++ {
		fy := float64(y) + 0.5 - center
		for x := 0; x < size; x++ {
			fx := float64(x) + 0.5 - center
			if fx*fx+fy*fy > radiusSq {
				continue
			}

			sx, sy := srcX0+x, srcY0+y
			if !src.In(sx, sy) {
				continue
			}

			cr, cg, cb, ca := src.At(sx, sy)
			out.Set(x, y, cr, cg, cb, ca)
		}
	}

	return out
}

// RemoveGlare darkens specular highlights in place: every opaque pixel whose
// mean RGB brightness exceeds the threshold is scaled back below it.
func (p *Pipeline) RemoveGlare(f *raster.Frame) *raster.Frame {
	for i := 0; i < len(f.Pix); i += 4 {
		if f.Pix[i+3] == 0 {
			continue
		}

		brightness := (float64(f.Pix[i]) + float64(f.Pix[i+1]) + float64(f.Pix[i+2])) / 3.0
		if brightness <= p.config.GlareThreshold {
			continue
		}

		factor := p.config.GlareThreshold / brightness * p.config.GlareFactor
		f.Pix[i] = raster.ClampU8(float64(f.Pix[i]) * factor)
		f.Pix[i+1] = raster.ClampU8(float64(f.Pix[i+1]) * factor)
		f.Pix[i+2] = raster.ClampU8(float64(f.Pix[i+2]) * factor)
	}
	return f
}

// CorrectColor white-balances the frame in place. Per-channel means are
// sampled from a central disc of opaque pixels; each channel is scaled
// toward the gray average of those means, with the correction factor bounded
// to avoid overshooting on strongly tinted frames. An empty sample disc
// leaves the frame unchanged.
func (p *Pipeline) CorrectColor(f *raster.Frame) *raster.Frame {
	width, height := f.Width, f.Height
	minSide := width
	if height < minSide {
		minSide = height
	}

	centerX := float64(width) / 2
	centerY := float64(height) / 2
	sampleRadius := p.config.SampleFraction * float64(minSide)
	sampleSq := sampleRadius * sampleRadius

	var sumR, sumG, sumB float64
	count := 0

	for y := 0; y < height; y++ {
		dy := float64(y) - centerY
		for x := 0; x < width; x++ {
			dx := float64(x) - centerX
			if dx*dx+dy*dy > sampleSq {
				continue
			}
			i := f.Offset(x, y)
			if f.Pix[i+3] == 0 {
				continue
			}
			sumR += float64(f.Pix[i])
			sumG += float64(f.Pix[i+1])
			sumB += float64(f.Pix[i+2])
			count++
		}
	}

	if count == 0 {
		return f
	}

	meanR := sumR / float64(count)
	meanG := sumG / float64(count)
	meanB := sumB / float64(count)
	gray := (meanR + meanG + meanB) / 3.0

	factorR := balanceFactor(gray, meanR, p.config.BalanceMin, p.config.BalanceMax)
	factorG := balanceFactor(gray, meanG, p.config.BalanceMin, p.config.BalanceMax)
	factorB := balanceFactor(gray, meanB, p.config.BalanceMin, p.config.BalanceMax)

	for i := 0; i < len(f.Pix); i += 4 {
		if f.Pix[i+3] == 0 {
			continue
		}
		f.Pix[i] = raster.ClampU8(float64(f.Pix[i]) * factorR)
		f.Pix[i+1] = raster.ClampU8(float64(f.Pix[i+1]) * factorG)
		f.Pix[i+2] = raster.ClampU8(float64(f.Pix[i+2]) * factorB)
	}

	return f
}

func balanceFactor(gray, mean, lo, hi float64) float64 {
	if mean == 0 {
		return 1
	}
	factor := gray / mean
	if factor < lo {
		return lo
	}
	if factor > hi {
		return hi
	}
	return factor
}

// StretchContrast linearly remaps every opaque pixel in place so that the
// luma range of the frame covers [0, 255]. All three channels use the same
// luma-derived bounds, which preserves hue better than independent
// per-channel stretching.
func (p *Pipeline) StretchContrast(f *raster.Frame) *raster.Frame {
	minLuma, maxLuma := 255.0, 0.0
	found := false

	for i := 0; i < len(f.Pix); i += 4 {
		if f.Pix[i+3] == 0 {
			continue
		}
		l := raster.Luma(f.Pix[i], f.Pix[i+1], f.Pix[i+2])
		if l < minLuma {
			minLuma = l
		}
		if l > maxLuma {
			maxLuma = l
		}
		found = true
	}

	if !found || maxLuma <= minLuma {
		return f
	}

	scale := 255.0 / (maxLuma - minLuma)
	for i := 0; i < len(f.Pix); i += 4 {
		if f.Pix[i+3] == 0 {
			continue
		}
		f.Pix[i] = raster.ClampU8((float64(f.Pix[i]) - minLuma) * scale)
		f.Pix[i+1] = raster.ClampU8((float64(f.Pix[i+1]) - minLuma) * scale)
		f.Pix[i+2] = raster.ClampU8((float64(f.Pix[i+2]) - minLuma) * scale)
	}

	return f
}

// ReduceNoise applies a mild Gaussian blur to the whole frame.
func (p *Pipeline) ReduceNoise(f *raster.Frame) *raster.Frame {
	blurred := imaging.Blur(f.ToNRGBA(), p.config.BlurSigma)
	return raster.FromImage(blurred)
}

// BoostVessels sharpens vascular detail with a 4-neighbor unsharp mask:
// each interior opaque pixel moves away from its neighborhood average by
// DetailGain of the difference. Border and transparent pixels pass through.
func (p *Pipeline) BoostVessels(f *raster.Frame) *raster.Frame {
	src := f.Clone()
	width, height := f.Width, f.Height

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := src.Offset(x, y)
			if src.Pix[i+3] == 0 {
				continue
			}

			up := i - width*4
			down := i + width*4
			for c := 0; c < 3; c++ {
				avg := (float64(src.Pix[up+c]) + float64(src.Pix[down+c]) +
					float64(src.Pix[i-4+c]) + float64(src.Pix[i+4+c])) / 4.0
				center := float64(src.Pix[i+c])
				f.Pix[i+c] = raster.ClampU8(center + p.config.DetailGain*(center-avg))
			}
		}
	}

	return f
}

// Upscale draws the frame centered and aspect-preserved onto a black
// CanonicalSize×CanonicalSize canvas using Catmull-Rom interpolation.
func (p *Pipeline) Upscale(f *raster.Frame) *raster.Frame {
	size := p.config.CanonicalSize
	out := raster.New(size, size)

	// Opaque black canvas; the letterbox must encode as black, not as
	// undefined transparent pixels.
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255
	}

	scale := float64(size) / float64(max(f.Width, f.Height))
	dstW := int(math.Round(float64(f.Width) * scale))
	dstH := int(math.Round(float64(f.Height) * scale))
	x0 := (size - dstW) / 2
	y0 := (size - dstH) / 2

	dst := out.ToNRGBA()
	src := f.ToNRGBA()
	xdraw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+dstW, y0+dstH), src, src.Bounds(), xdraw.Over, nil)

	return out
}
