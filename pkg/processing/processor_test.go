package processing

import (
	"bytes"
	"encoding/base64"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neurolens/fundus-extractor/pkg/raster"
	"github.com/neurolens/fundus-extractor/pkg/region"
)

// createGradientFrame creates an opaque frame with a horizontal gradient
func createGradientFrame(width, height int) *raster.Frame {
	f := raster.New(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x * 255 / (width - 1))
			f.Set(x, y, v, v/2, 255-v, 255)
		}
	}
	return f
}

func TestEncodeJPEG(t *testing.T) {
	p := NewProcessor()
	f := createGradientFrame(64, 48)

	data, err := p.EncodeJPEG(f, 90)
	if err != nil {
		t.Fatalf("EncodeJPEG failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Output is not decodable JPEG: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("Expected 64x48 image, got %v", img.Bounds())
	}
}

func TestEncodeDataURL(t *testing.T) {
	p := NewProcessor()
	f := createGradientFrame(32, 32)

	dataURL, err := p.EncodeDataURL(f)
	if err != nil {
		t.Fatalf("EncodeDataURL failed: %v", err)
	}

	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(dataURL, prefix) {
		t.Fatalf("Expected data URL prefix %q, got %q", prefix, dataURL[:min(len(dataURL), 40)])
	}

	// The payload round-trips through base64 back to a valid JPEG
	raw, err := base64.StdEncoding.DecodeString(dataURL[len(prefix):])
	if err != nil {
		t.Fatalf("Payload is not valid base64: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(raw)); err != nil {
		t.Fatalf("Payload is not valid JPEG: %v", err)
	}
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	f := createGradientFrame(40, 30)

	for _, format := range []string{"jpg", "png", "webp"} {
		path := filepath.Join(dir, "frame."+format)
		if err := p.SaveFrame(f, path, format, 90, false); err != nil {
			t.Fatalf("SaveFrame(%s) failed: %v", format, err)
		}

		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Fatalf("SaveFrame(%s) wrote no data: %v", format, err)
		}

		loaded, err := p.LoadImage(path)
		if err != nil {
			t.Fatalf("LoadImage(%s) failed: %v", format, err)
		}
		if loaded.Width != 40 || loaded.Height != 30 {
			t.Errorf("LoadImage(%s): expected 40x30, got %dx%d", format, loaded.Width, loaded.Height)
		}
	}
}

func TestLoadImageMissingFile(t *testing.T) {
	p := NewProcessor()
	if _, err := p.LoadImage(filepath.Join(t.TempDir(), "nope.jpg")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestCreateDebugOverlay(t *testing.T) {
	p := NewProcessor()
	f := createGradientFrame(200, 200)
	r := region.Region{CenterX: 90, CenterY: 80, Radius: 60}

	overlay := p.CreateDebugOverlay(f, r)

	if overlay.Width != 200 || overlay.Height != 200 {
		t.Fatalf("Expected 200x200 overlay, got %dx%d", overlay.Width, overlay.Height)
	}

	// The crop circle is drawn in gold at the region edge
	cr, cg, cb, _ := overlay.At(150, 80)
	if cr != 255 || cg != 204 || cb != 0 {
		t.Errorf("Expected gold circle pixel at (150,80), got (%d,%d,%d)", cr, cg, cb)
	}

	// The crop center crosshair is red
	cr, cg, cb, _ = overlay.At(90, 80)
	if cr != 255 || cg != 0 || cb != 0 {
		t.Errorf("Expected red crosshair at (90,80), got (%d,%d,%d)", cr, cg, cb)
	}

	// The frame center marker is blue
	cr, cg, cb, _ = overlay.At(100, 100)
	if cr != 0 || cg != 170 || cb != 255 {
		t.Errorf("Expected blue center marker at (100,100), got (%d,%d,%d)", cr, cg, cb)
	}

	// The source frame stays untouched
	or, _, _, _ := f.At(150, 80)
	if or == 255 {
		t.Error("Overlay drawing leaked into the source frame")
	}
}
