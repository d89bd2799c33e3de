package fundusextractor

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/neurolens/fundus-extractor/pkg/enhance"
	"github.com/neurolens/fundus-extractor/pkg/quality"
	"github.com/neurolens/fundus-extractor/pkg/raster"
	"github.com/neurolens/fundus-extractor/pkg/region"
	"github.com/neurolens/fundus-extractor/pkg/selector"
	"github.com/neurolens/fundus-extractor/pkg/video"
)

// createFundusFrame creates a frame with a warm disc on a dark background
func createFundusFrame(width, height int) *raster.Frame {
	f := raster.New(width, height)
	cx, cy := float64(width)/2, float64(height)/2
	discR := 0.4 * math.Min(float64(width), float64(height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy < discR*discR {
				f.Set(x, y, 175, 95, 65, 255)
			} else {
				f.Set(x, y, 14, 11, 11, 255)
			}
		}
	}
	return f
}

type stubSource struct {
	duration time.Duration
	frame    *raster.Frame
}

func (s *stubSource) Info() video.Info {
	return video.Info{Path: "exam.mp4", Duration: s.duration, Width: s.frame.Width, Height: s.frame.Height, FPS: 30}
}

func (s *stubSource) FrameAt(context.Context, time.Duration) (*raster.Frame, error) {
	return s.frame.Clone(), nil
}

func TestNew(t *testing.T) {
	e := New(zerolog.Nop())
	if e == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNewWithConfig(t *testing.T) {
	e := NewWithConfig(zerolog.Nop(),
		quality.Weights{Sharpness: 1},
		region.DetectionConfig{MinBrightness: 40, MaxBrightness: 240, RadiusFraction: 0.4},
		enhance.DefaultConfig())

	f := createFundusFrame(200, 200)
	r := e.DetectRegion(f)

	expected := 0.4 * 200.0 / 2
	if math.Abs(r.Radius-expected) > 1e-9 {
		t.Errorf("Expected radius %f from custom detection config, got %f", expected, r.Radius)
	}
}

func TestDetectRegion(t *testing.T) {
	e := New(zerolog.Nop())
	f := createFundusFrame(320, 240)

	r := e.DetectRegion(f)
	if math.Abs(r.CenterX-160) > 2 || math.Abs(r.CenterY-120) > 2 {
		t.Errorf("Expected region near (160,120), got (%f,%f)", r.CenterX, r.CenterY)
	}
}

func TestNewEditorSeedsDetectedRegion(t *testing.T) {
	e := New(zerolog.Nop())
	f := createFundusFrame(320, 240)

	editor := e.NewEditor(f)
	if editor.Region() != e.DetectRegion(f) {
		t.Error("Editor must start from the auto-detected region")
	}
}

func TestEnhance(t *testing.T) {
	e := New(zerolog.Nop())
	f := createFundusFrame(320, 240)

	out := e.Enhance(f, e.DetectRegion(f))
	if out.Width != 1024 || out.Height != 1024 {
		t.Errorf("Expected 1024x1024 output, got %dx%d", out.Width, out.Height)
	}
}

func TestEnhanceToDataURL(t *testing.T) {
	e := New(zerolog.Nop())
	f := createFundusFrame(320, 240)

	dataURL, err := e.EnhanceToDataURL(f, e.DetectRegion(f))
	if err != nil {
		t.Fatalf("EnhanceToDataURL failed: %v", err)
	}
	if !strings.HasPrefix(dataURL, "data:image/jpeg;base64,") {
		t.Errorf("Expected JPEG data URL, got %q", dataURL[:min(len(dataURL), 40)])
	}
}

func TestBestFrame(t *testing.T) {
	e := New(zerolog.Nop())
	src := &stubSource{duration: 2 * time.Second, frame: createFundusFrame(320, 240)}

	result, err := e.BestFrame(context.Background(), src)
	if err != nil {
		t.Fatalf("BestFrame failed: %v", err)
	}
	if result.Frame == nil {
		t.Fatal("Expected a winning frame")
	}
}

func TestProcessVideo(t *testing.T) {
	e := New(zerolog.Nop())
	src := &stubSource{duration: 2 * time.Second, frame: createFundusFrame(320, 240)}

	dataURL, err := e.ProcessVideo(context.Background(), src)
	if err != nil {
		t.Fatalf("ProcessVideo failed: %v", err)
	}
	if !strings.HasPrefix(dataURL, "data:image/jpeg;base64,") {
		t.Error("Expected JPEG data URL from ProcessVideo")
	}

	// Identical inputs produce identical output
	again, err := e.ProcessVideo(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if again != dataURL {
		t.Error("Expected deterministic output for identical input")
	}
}

func TestNewSession(t *testing.T) {
	e := New(zerolog.Nop())
	s := e.NewSession(nil)

	if err := s.UseFrame(createFundusFrame(320, 240)); err != nil {
		t.Fatalf("UseFrame failed: %v", err)
	}
	if _, err := s.Process(nil); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
}

func TestProcessVideoEmptySource(t *testing.T) {
	e := New(zerolog.Nop())
	src := &stubSource{duration: 0, frame: createFundusFrame(32, 32)}

	_, err := e.ProcessVideo(context.Background(), src)
	if !errors.Is(err, selector.ErrNoFrames) {
		t.Errorf("Expected ErrNoFrames, got %v", err)
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected version %s, got %s", Version, GetVersion())
	}
}
