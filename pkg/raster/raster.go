package raster

import (
	"image"
	"image/draw"
	"math"
)

// Frame is a rectangular grid of 8-bit RGBA pixels. Pixel data is stored
// non-premultiplied in row-major order, four bytes per pixel, which matches
// both image.NRGBA and canvas-style pixel buffers. A zeroed buffer is
// transparent black.
type Frame struct {
	Pix    []uint8
	Width  int
	Height int
}

// New creates a frame of the given size filled with transparent black.
func New(width, height int) *Frame {
	return &Frame{
		Pix:    make([]uint8, width*height*4),
		Width:  width,
		Height: height,
	}
}

// FromImage converts any image into a frame, copying pixel data.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if src, ok := img.(*image.NRGBA); ok && src.Stride == width*4 && bounds.Min == (image.Point{}) {
		f := New(width, height)
		copy(f.Pix, src.Pix)
		return f
	}

	nrgba := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	return &Frame{Pix: nrgba.Pix, Width: width, Height: height}
}

// ToNRGBA wraps the frame's pixel buffer as an image.NRGBA without copying.
// Mutating the returned image mutates the frame.
func (f *Frame) ToNRGBA() *image.NRGBA {
	return &image.NRGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Clone returns an independent copy of the frame.
func (f *Frame) Clone() *Frame {
	c := New(f.Width, f.Height)
	copy(c.Pix, f.Pix)
	return c
}

// Offset returns the buffer index of the pixel at (x, y).
func (f *Frame) Offset(x, y int) int {
	return (y*f.Width + x) * 4
}

// At returns the RGBA channels of the pixel at (x, y).
func (f *Frame) At(x, y int) (r, g, b, a uint8) {
	i := f.Offset(x, y)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]
}

// Set stores the RGBA channels of the pixel at (x, y).
func (f *Frame) Set(x, y int, r, g, b, a uint8) {
	i := f.Offset(x, y)
	f.Pix[i] = r
	f.Pix[i+1] = g
	f.Pix[i+2] = b
	f.Pix[i+3] = a
}

// In reports whether (x, y) lies inside the frame.
func (f *Frame) In(x, y int) bool {
	return x >= 0 && x < f.Width && y >= 0 && y < f.Height
}

// Luma returns the ITU-R BT.601 luma of an RGB triple.
func Luma(r, g, b uint8) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

// ClampU8 rounds a value and clamps it to the [0, 255] channel range.
func ClampU8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
