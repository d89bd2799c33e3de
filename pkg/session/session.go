// Package session drives one fundus extraction workflow from video upload
// to the final enhanced image. A session is a single-user state machine; it
// owns the selected frame and crop region exclusively and is not safe for
// concurrent use.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/neurolens/fundus-extractor/pkg/cropedit"
	"github.com/neurolens/fundus-extractor/pkg/enhance"
	"github.com/neurolens/fundus-extractor/pkg/processing"
	"github.com/neurolens/fundus-extractor/pkg/quality"
	"github.com/neurolens/fundus-extractor/pkg/raster"
	"github.com/neurolens/fundus-extractor/pkg/region"
	"github.com/neurolens/fundus-extractor/pkg/selector"
	"github.com/neurolens/fundus-extractor/pkg/video"
)

// Stage is the workflow position of a session.
type Stage int

const (
	StageUpload Stage = iota
	StageSelect
	StageCrop
	StageProcess
	StageResult
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageSelect:
		return "select"
	case StageCrop:
		return "crop"
	case StageProcess:
		return "process"
	case StageResult:
		return "result"
	default:
		return "upload"
	}
}

// ErrInvalidTransition is returned when an operation is not valid for the
// session's current stage.
var ErrInvalidTransition = errors.New("invalid session transition")

// SinkFunc receives the final JPEG data URL when processing completes.
type SinkFunc func(dataURL string)

// Session holds the state of one extraction workflow.
type Session struct {
	logger    zerolog.Logger
	selector  *selector.Selector
	detector  *region.Detector
	pipeline  *enhance.Pipeline
	processor *processing.Processor
	sink      SinkFunc

	stage      Stage
	source     video.FrameSource
	frame      *raster.Frame
	frameIndex int
	metrics    quality.Metrics
	editor     *cropedit.Editor
	result     *raster.Frame
}

// New creates a session with default components. sink may be nil.
func New(logger zerolog.Logger, sink SinkFunc) *Session {
	return NewWithComponents(logger, selector.New(logger), region.New(), enhance.New(), sink)
}

// NewWithComponents creates a session with custom components.
func NewWithComponents(logger zerolog.Logger, sel *selector.Selector, det *region.Detector, pipe *enhance.Pipeline, sink SinkFunc) *Session {
	return &Session{
		logger:    logger.With().Str("component", "session").Logger(),
		selector:  sel,
		detector:  det,
		pipeline:  pipe,
		processor: processing.NewProcessor(),
		sink:      sink,
		stage:     StageUpload,
	}
}

// Stage returns the session's current stage.
func (s *Session) Stage() Stage {
	return s.stage
}

// Load attaches an uploaded video source and moves to frame selection.
func (s *Session) Load(src video.FrameSource) error {
	if s.stage != StageUpload {
		return fmt.Errorf("load in stage %s: %w", s.stage, ErrInvalidTransition)
	}
	s.source = src
	s.stage = StageSelect
	s.logger.Info().Str("path", src.Info().Path).Msg("video loaded")
	return nil
}

// UseFrame adopts an already decoded frame, skipping video selection. This
// is the direct photo upload path.
func (s *Session) UseFrame(frame *raster.Frame) error {
	if s.stage != StageUpload && s.stage != StageSelect {
		return fmt.Errorf("use frame in stage %s: %w", s.stage, ErrInvalidTransition)
	}
	s.adoptFrame(frame, 0, quality.Metrics{})
	return nil
}

// AutoSelect runs the best-frame search over the loaded video and moves to
// cropping with an auto-detected region. progress may be nil.
func (s *Session) AutoSelect(ctx context.Context, progress selector.ProgressFunc) error {
	if s.stage != StageSelect {
		return fmt.Errorf("auto-select in stage %s: %w", s.stage, ErrInvalidTransition)
	}

	best, err := s.selector.BestFrame(ctx, s.source, progress)
	if err != nil {
		return fmt.Errorf("best-frame search failed: %w", err)
	}

	s.adoptFrame(best.Frame, best.Index, best.Metrics)
	return nil
}

// SelectFrame extracts the frame at a manually scrubbed index and moves to
// cropping with an auto-detected region.
func (s *Session) SelectFrame(ctx context.Context, index int) error {
	if s.stage != StageSelect {
		return fmt.Errorf("select frame in stage %s: %w", s.stage, ErrInvalidTransition)
	}

	frame, err := s.source.FrameAt(ctx, s.selector.OffsetForIndex(index))
	if err != nil {
		return fmt.Errorf("failed to extract frame %d: %w", index, err)
	}

	s.adoptFrame(frame, index, quality.Metrics{})
	return nil
}

func (s *Session) adoptFrame(frame *raster.Frame, index int, metrics quality.Metrics) {
	s.frame = frame
	s.frameIndex = index
	s.metrics = metrics
	s.editor = cropedit.New(frame.Width, frame.Height, s.detector.Detect(frame))
	s.result = nil
	s.stage = StageCrop
}

// Frame returns the selected source frame, or nil before selection.
func (s *Session) Frame() *raster.Frame {
	return s.frame
}

// FrameIndex returns the index of the selected frame.
func (s *Session) FrameIndex() int {
	return s.frameIndex
}

// Metrics returns the quality breakdown of the selected frame. It is zero
// for manually scrubbed or directly uploaded frames.
func (s *Session) Metrics() quality.Metrics {
	return s.metrics
}

// Editor returns the crop editor for the selected frame.
func (s *Session) Editor() (*cropedit.Editor, error) {
	if s.stage != StageCrop {
		return nil, fmt.Errorf("editor in stage %s: %w", s.stage, ErrInvalidTransition)
	}
	return s.editor, nil
}

// ResetCrop discards manual crop adjustments and re-detects the region.
func (s *Session) ResetCrop() error {
	if s.stage != StageCrop {
		return fmt.Errorf("reset crop in stage %s: %w", s.stage, ErrInvalidTransition)
	}
	s.editor.ResetToAuto(s.detector, s.frame)
	return nil
}

// Process runs the enhancement pipeline on the selected frame and crop
// region, moves the session to the result stage, and returns the final JPEG
// data URL. The data URL is also handed to the sink when one is set.
// progress may be nil.
func (s *Session) Process(progress enhance.ProgressFunc) (string, error) {
	if s.stage != StageCrop {
		return "", fmt.Errorf("process in stage %s: %w", s.stage, ErrInvalidTransition)
	}

	s.stage = StageProcess
	crop := s.editor.Region()

	s.logger.Info().
		Float64("center_x", crop.CenterX).
		Float64("center_y", crop.CenterY).
		Float64("radius", crop.Radius).
		Bool("manual", crop.ManuallyAdjusted).
		Msg("running enhancement pipeline")

	s.result = s.pipeline.Run(s.frame, crop, progress)

	dataURL, err := s.processor.EncodeDataURL(s.result)
	if err != nil {
		s.stage = StageCrop
		return "", fmt.Errorf("failed to encode result: %w", err)
	}

	s.stage = StageResult
	if s.sink != nil {
		s.sink(dataURL)
	}
	return dataURL, nil
}

// Result returns the enhanced frame after processing.
func (s *Session) Result() (*raster.Frame, error) {
	if s.stage != StageResult {
		return nil, fmt.Errorf("result in stage %s: %w", s.stage, ErrInvalidTransition)
	}
	return s.result, nil
}

// AdjustCrop moves back from the result to the crop stage, keeping the
// source frame and the current region without re-detection.
func (s *Session) AdjustCrop() error {
	if s.stage != StageResult {
		return fmt.Errorf("adjust crop in stage %s: %w", s.stage, ErrInvalidTransition)
	}
	s.result = nil
	s.stage = StageCrop
	return nil
}

// Reset abandons the session: all held frames are dropped and the stage
// returns to upload.
func (s *Session) Reset() {
	s.source = nil
	s.frame = nil
	s.editor = nil
	s.result = nil
	s.metrics = quality.Metrics{}
	s.frameIndex = 0
	s.stage = StageUpload
}
