// Package fundusextractor extracts the best fundus frame from an eye
// examination video and enhances it for stroke-risk assessment.
//
// The library samples the video for the sharpest, best-exposed frame,
// estimates the circular fundus region, optionally lets the user adjust the
// crop interactively, and runs the crop through a deterministic seven-stage
// enhancement pipeline (circular crop, glare removal, white balance,
// contrast stretch, denoise, vessel boost, canonical upscale).
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		fundusextractor "github.com/neurolens/fundus-extractor"
//		"github.com/neurolens/fundus-extractor/pkg/video"
//		"github.com/rs/zerolog"
//	)
//
//	func main() {
//		extractor := fundusextractor.New(zerolog.Nop())
//
//		src, err := video.Open(context.Background(), "exam.mp4", zerolog.Nop())
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		dataURL, err := extractor.ProcessVideo(context.Background(), src)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		fmt.Printf("enhanced image: %d bytes\n", len(dataURL))
//	}
//
// The package consists of the following components:
//
//  1. Quality (pkg/quality): per-frame sharpness/contrast/brightness/glare scoring
//  2. Selector (pkg/selector): best-frame search over a video source
//  3. Region (pkg/region): circular fundus region detection
//  4. Cropedit (pkg/cropedit): interactive crop editing state machine
//  5. Enhance (pkg/enhance): the seven-stage enhancement pipeline
//  6. Session (pkg/session): the upload-to-result workflow state machine
//  7. Predictor (pkg/predictor): client for the remote risk assessment API
//
// Every pipeline stage is deterministic pixel arithmetic: running the same
// video through the library twice produces byte-identical output.
package fundusextractor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/neurolens/fundus-extractor/pkg/cropedit"
	"github.com/neurolens/fundus-extractor/pkg/enhance"
	"github.com/neurolens/fundus-extractor/pkg/processing"
	"github.com/neurolens/fundus-extractor/pkg/quality"
	"github.com/neurolens/fundus-extractor/pkg/raster"
	"github.com/neurolens/fundus-extractor/pkg/region"
	"github.com/neurolens/fundus-extractor/pkg/selector"
	"github.com/neurolens/fundus-extractor/pkg/session"
	"github.com/neurolens/fundus-extractor/pkg/video"
)

// Version of the fundus extractor library
const Version = "1.0.0"

// Extractor provides a high-level interface for fundus frame extraction and
// enhancement.
type Extractor struct {
	logger    zerolog.Logger
	selector  *selector.Selector
	detector  *region.Detector
	pipeline  *enhance.Pipeline
	processor *processing.Processor
}

// New creates an Extractor with default configuration.
func New(logger zerolog.Logger) *Extractor {
	return &Extractor{
		logger:    logger,
		selector:  selector.New(logger),
		detector:  region.New(),
		pipeline:  enhance.New(),
		processor: processing.NewProcessor(),
	}
}

// NewWithConfig creates an Extractor with custom scoring weights, detection
// thresholds and pipeline constants.
func NewWithConfig(logger zerolog.Logger, weights quality.Weights, detection region.DetectionConfig, pipeline enhance.Config) *Extractor {
	return &Extractor{
		logger:    logger,
		selector:  selector.NewWithOptions(logger, quality.NewWithWeights(weights), 0, 0),
		detector:  region.NewWithConfig(detection),
		pipeline:  enhance.NewWithConfig(pipeline),
		processor: processing.NewProcessor(),
	}
}

// BestFrame runs the best-frame search over a video source.
func (e *Extractor) BestFrame(ctx context.Context, src video.FrameSource) (*selector.Result, error) {
	return e.selector.BestFrame(ctx, src, nil)
}

// DetectRegion estimates the circular fundus region of a frame.
func (e *Extractor) DetectRegion(f *raster.Frame) region.Region {
	return e.detector.Detect(f)
}

// NewEditor creates an interactive crop editor for a frame, seeded with the
// auto-detected region.
func (e *Extractor) NewEditor(f *raster.Frame) *cropedit.Editor {
	return cropedit.New(f.Width, f.Height, e.detector.Detect(f))
}

// Enhance runs the enhancement pipeline on a frame and crop region.
func (e *Extractor) Enhance(f *raster.Frame, r region.Region) *raster.Frame {
	return e.pipeline.Run(f, r, nil)
}

// EnhanceToDataURL runs the enhancement pipeline and serializes the result
// as a quality-95 JPEG data URL.
func (e *Extractor) EnhanceToDataURL(f *raster.Frame, r region.Region) (string, error) {
	return e.processor.EncodeDataURL(e.pipeline.Run(f, r, nil))
}

// NewSession creates an interactive workflow session using this extractor's
// components. sink may be nil.
func (e *Extractor) NewSession(sink session.SinkFunc) *session.Session {
	return session.NewWithComponents(e.logger, e.selector, e.detector, e.pipeline, sink)
}

// ProcessVideo is a convenience function that runs the full automatic
// workflow on a video source: best-frame search, region detection and
// enhancement, returning the final JPEG data URL.
func (e *Extractor) ProcessVideo(ctx context.Context, src video.FrameSource) (string, error) {
	best, err := e.BestFrame(ctx, src)
	if err != nil {
		return "", fmt.Errorf("best-frame search failed: %w", err)
	}

	dataURL, err := e.EnhanceToDataURL(best.Frame, e.detector.Detect(best.Frame))
	if err != nil {
		return "", fmt.Errorf("enhancement failed: %w", err)
	}

	return dataURL, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
