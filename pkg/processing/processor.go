package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/neurolens/fundus-extractor/pkg/raster"
	"github.com/neurolens/fundus-extractor/pkg/region"
)

// DataURLQuality is the JPEG quality of the final pipeline output. The
// downstream risk predictor was validated against quality-95 input.
const DataURLQuality = 95

// Processor handles frame encoding and image file I/O.
type Processor struct{}

// NewProcessor creates a new processor
func NewProcessor() *Processor {
	return &Processor{}
}

// EncodeJPEG encodes a frame as JPEG bytes at the given quality.
func (p *Processor) EncodeJPEG(f *raster.Frame, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.ToNRGBA(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeDataURL serializes a frame as a quality-95 JPEG data URL, the sole
// externally observable artifact of the pipeline.
func (p *Processor) EncodeDataURL(f *raster.Frame) (string, error) {
	data, err := p.EncodeJPEG(f, DataURLQuality)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

// LoadImage loads a still image from a file path with WebP support. This is
// the direct-upload path: a pre-captured fundus photo skips frame selection.
func (p *Processor) LoadImage(path string) (*raster.Frame, error) {
	if img, err := imaging.Open(path); err == nil {
		return raster.FromImage(img), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if img, err := webp.Decode(f); err == nil {
		return raster.FromImage(img), nil
	}
	if _, err := f.Seek(0, 0); err == nil {
		if img, _, err := image.Decode(f); err == nil {
			return raster.FromImage(img), nil
		}
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// SaveFrame saves a raster frame to a file.
func (p *Processor) SaveFrame(f *raster.Frame, path, format string, quality int, lossless bool) error {
	return p.SaveImage(f.ToNRGBA(), path, format, quality, lossless)
}

// CreateDebugOverlay draws the crop region onto a copy of the frame: the
// circle outline, the circle center crosshair and the frame center marker.
func (p *Processor) CreateDebugOverlay(f *raster.Frame, r region.Region) *raster.Frame {
	nrgba := imaging.Clone(f.ToNRGBA())
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	gold := color.NRGBA{255, 204, 0, 255}                   // crop circle
	red := color.NRGBA{255, 0, 0, 255}                      // crop center
	blue := color.NRGBA{0, 170, 255, 255}                   // frame center
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h)))) // ~0.4% of min side
	cross := int(math.Max(4, 0.01*float64(minInt(w, h))))   // ~1% of min side

	for s := 0; s < stroke; s++ {
		drawCircle(nrgba, r.CenterX, r.CenterY, r.Radius+float64(s), gold)
	}

	px := int(r.CenterX + 0.5)
	py := int(r.CenterY + 0.5)
	drawHLine(nrgba, py, px-cross, px+cross, red)
	drawVLine(nrgba, px, py-cross, py+cross, red)

	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return raster.FromImage(nrgba)
}

// Helper functions
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// drawCircle plots a one-pixel circle outline with the midpoint algorithm.
func drawCircle(img *image.NRGBA, cx, cy, radius float64, c color.NRGBA) {
	x := int(radius + 0.5)
	y := 0
	err := 1 - x

	icx, icy := int(cx+0.5), int(cy+0.5)

	for x >= y {
		setPixel(img, icx+x, icy+y, c)
		setPixel(img, icx+y, icy+x, c)
		setPixel(img, icx-y, icy+x, c)
		setPixel(img, icx-x, icy+y, c)
		setPixel(img, icx-x, icy-y, c)
		setPixel(img, icx-y, icy-x, c)
		setPixel(img, icx+y, icy-x, c)
		setPixel(img, icx+x, icy-y, c)

		y++
		if err < 0 {
			err += 2*y + 1
		} else {
			x--
			err += 2*(y-x) + 1
		}
	}
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() || y < 0 || y >= img.Bounds().Dy() {
		return
	}
	i := y*img.Stride + x*4
	img.Pix[i+0] = c.R
	img.Pix[i+1] = c.G
	img.Pix[i+2] = c.B
	img.Pix[i+3] = c.A
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
