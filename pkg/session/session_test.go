package session

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/neurolens/fundus-extractor/pkg/raster"
	"github.com/neurolens/fundus-extractor/pkg/video"
)

// testSource serves the same synthetic fundus frame at every offset.
type testSource struct {
	duration time.Duration
	frame    *raster.Frame
	fail     bool
	calls    int
}

func (s *testSource) Info() video.Info {
	return video.Info{Path: "exam.mp4", Duration: s.duration, Width: s.frame.Width, Height: s.frame.Height, FPS: 30}
}

func (s *testSource) FrameAt(_ context.Context, _ time.Duration) (*raster.Frame, error) {
	s.calls++
	if s.fail {
		return nil, errors.New("decode failed")
	}
	return s.frame.Clone(), nil
}

// createExamFrame creates a frame with a detectable mid-brightness disc
func createExamFrame(width, height int) *raster.Frame {
	f := raster.New(width, height)
	cx, cy := float64(width)/2, float64(height)/2
	discR := 0.4 * math.Min(float64(width), float64(height))

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy < discR*discR {
				f.Set(x, y, 170, 95, 70, 255)
			} else {
				f.Set(x, y, 12, 10, 10, 255)
			}
		}
	}
	return f
}

func newTestSource() *testSource {
	return &testSource{duration: 2 * time.Second, frame: createExamFrame(320, 240)}
}

func TestNewStartsAtUpload(t *testing.T) {
	s := New(zerolog.Nop(), nil)

	if s.Stage() != StageUpload {
		t.Errorf("Expected upload stage, got %s", s.Stage())
	}
	if s.Frame() != nil {
		t.Error("Expected no frame before selection")
	}
}

func TestLoadMovesToSelect(t *testing.T) {
	s := New(zerolog.Nop(), nil)

	if err := s.Load(newTestSource()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if s.Stage() != StageSelect {
		t.Errorf("Expected select stage, got %s", s.Stage())
	}

	// A second load is not a valid transition
	if err := s.Load(newTestSource()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
}

func TestAutoSelectMovesToCrop(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	if err := s.Load(newTestSource()); err != nil {
		t.Fatal(err)
	}

	if err := s.AutoSelect(context.Background(), nil); err != nil {
		t.Fatalf("AutoSelect failed: %v", err)
	}

	if s.Stage() != StageCrop {
		t.Errorf("Expected crop stage, got %s", s.Stage())
	}
	if s.Frame() == nil {
		t.Fatal("Expected a selected frame")
	}
	if s.Metrics().Total == 0 {
		t.Error("Expected quality metrics for the auto-selected frame")
	}

	editor, err := s.Editor()
	if err != nil {
		t.Fatalf("Editor failed: %v", err)
	}
	r := editor.Region()
	if math.Abs(r.CenterX-160) > 2 || math.Abs(r.CenterY-120) > 2 {
		t.Errorf("Expected auto-detected region near frame center, got (%f,%f)", r.CenterX, r.CenterY)
	}
}

func TestAutoSelectFailurePreservesStage(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	src := newTestSource()
	src.fail = true
	if err := s.Load(src); err != nil {
		t.Fatal(err)
	}

	if err := s.AutoSelect(context.Background(), nil); err == nil {
		t.Fatal("Expected AutoSelect to fail")
	}
	if s.Stage() != StageSelect {
		t.Errorf("Expected session to stay in select after failure, got %s", s.Stage())
	}
}

func TestSelectFrameByIndex(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	src := newTestSource()
	if err := s.Load(src); err != nil {
		t.Fatal(err)
	}

	if err := s.SelectFrame(context.Background(), 42); err != nil {
		t.Fatalf("SelectFrame failed: %v", err)
	}

	if s.Stage() != StageCrop {
		t.Errorf("Expected crop stage, got %s", s.Stage())
	}
	if s.FrameIndex() != 42 {
		t.Errorf("Expected frame index 42, got %d", s.FrameIndex())
	}
	if src.calls != 1 {
		t.Errorf("Expected one extraction, got %d", src.calls)
	}

	// Scrubbed frames carry no quality breakdown
	if s.Metrics().Total != 0 {
		t.Errorf("Expected zero metrics for scrubbed frame, got %f", s.Metrics().Total)
	}
}

func TestUseFrameSkipsVideo(t *testing.T) {
	s := New(zerolog.Nop(), nil)

	if err := s.UseFrame(createExamFrame(320, 240)); err != nil {
		t.Fatalf("UseFrame failed: %v", err)
	}
	if s.Stage() != StageCrop {
		t.Errorf("Expected crop stage, got %s", s.Stage())
	}
}

func TestProcessProducesDataURL(t *testing.T) {
	var sunk string
	s := New(zerolog.Nop(), func(dataURL string) { sunk = dataURL })

	if err := s.UseFrame(createExamFrame(320, 240)); err != nil {
		t.Fatal(err)
	}

	var stages int
	dataURL, err := s.Process(func(int, string) { stages++ })
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if s.Stage() != StageResult {
		t.Errorf("Expected result stage, got %s", s.Stage())
	}
	if !strings.HasPrefix(dataURL, "data:image/jpeg;base64,") {
		t.Errorf("Expected JPEG data URL, got %q", dataURL[:min(len(dataURL), 40)])
	}
	if sunk != dataURL {
		t.Error("Sink did not receive the data URL")
	}
	if stages != 7 {
		t.Errorf("Expected 7 stage reports, got %d", stages)
	}

	result, err := s.Result()
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if result.Width != 1024 || result.Height != 1024 {
		t.Errorf("Expected 1024x1024 result, got %dx%d", result.Width, result.Height)
	}
}

func TestAdjustCropKeepsRegion(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	if err := s.UseFrame(createExamFrame(320, 240)); err != nil {
		t.Fatal(err)
	}

	editor, err := s.Editor()
	if err != nil {
		t.Fatal(err)
	}
	auto := editor.Region()
	editor.PointerDown(auto.CenterX, auto.CenterY)
	editor.PointerMove(auto.CenterX+15, auto.CenterY-10)
	editor.PointerUp()
	adjusted := editor.Region()

	if _, err := s.Process(nil); err != nil {
		t.Fatal(err)
	}

	if err := s.AdjustCrop(); err != nil {
		t.Fatalf("AdjustCrop failed: %v", err)
	}
	if s.Stage() != StageCrop {
		t.Errorf("Expected crop stage, got %s", s.Stage())
	}

	// The manual region survives the round trip without re-detection
	editor, err = s.Editor()
	if err != nil {
		t.Fatal(err)
	}
	if editor.Region() != adjusted {
		t.Errorf("Expected region %+v preserved, got %+v", adjusted, editor.Region())
	}

	// The stale result is gone until the next process run
	if _, err := s.Result(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition for stale result, got %v", err)
	}
}

func TestResetCropDiscardsAdjustments(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	if err := s.UseFrame(createExamFrame(320, 240)); err != nil {
		t.Fatal(err)
	}

	editor, _ := s.Editor()
	auto := editor.Region()
	editor.PointerDown(auto.CenterX, auto.CenterY)
	editor.PointerMove(auto.CenterX+20, auto.CenterY)
	editor.PointerUp()

	if err := s.ResetCrop(); err != nil {
		t.Fatalf("ResetCrop failed: %v", err)
	}

	if r := editor.Region(); r.ManuallyAdjusted {
		t.Error("Expected reset to clear the manual flag")
	}
}

func TestResetReturnsToUpload(t *testing.T) {
	s := New(zerolog.Nop(), nil)
	if err := s.UseFrame(createExamFrame(320, 240)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Process(nil); err != nil {
		t.Fatal(err)
	}

	s.Reset()

	if s.Stage() != StageUpload {
		t.Errorf("Expected upload stage after reset, got %s", s.Stage())
	}
	if s.Frame() != nil {
		t.Error("Expected frame dropped on reset")
	}

	// The session is reusable after a reset
	if err := s.Load(newTestSource()); err != nil {
		t.Errorf("Load after reset failed: %v", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	s := New(zerolog.Nop(), nil)

	if err := s.AutoSelect(context.Background(), nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("AutoSelect at upload: expected ErrInvalidTransition, got %v", err)
	}
	if err := s.SelectFrame(context.Background(), 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SelectFrame at upload: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Editor(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Editor at upload: expected ErrInvalidTransition, got %v", err)
	}
	if err := s.ResetCrop(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ResetCrop at upload: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Process(nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Process at upload: expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Result(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Result at upload: expected ErrInvalidTransition, got %v", err)
	}
	if err := s.AdjustCrop(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("AdjustCrop at upload: expected ErrInvalidTransition, got %v", err)
	}
}

func TestStageString(t *testing.T) {
	tests := []struct {
		stage Stage
		want  string
	}{
		{StageUpload, "upload"},
		{StageSelect, "select"},
		{StageCrop, "crop"},
		{StageProcess, "process"},
		{StageResult, "result"},
	}

	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.want {
			t.Errorf("Stage(%d).String() = %q, want %q", tt.stage, got, tt.want)
		}
	}
}
