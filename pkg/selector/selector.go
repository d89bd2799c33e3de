// Package selector finds the sharpest, best-exposed frame of an exam video
// by sampling evenly spaced positions and scoring each candidate.
package selector

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/neurolens/fundus-extractor/pkg/quality"
	"github.com/neurolens/fundus-extractor/pkg/raster"
	"github.com/neurolens/fundus-extractor/pkg/video"
)

// DefaultFPS is the assumed frame rate used to convert frame indices to
// seek offsets when the source does not report one. The original capture
// pipeline records at a nominal 30 fps.
const DefaultFPS = 30.0

// DefaultMaxSamples bounds how many positions are scored per video.
const DefaultMaxSamples = 30

// ErrNoFrames is returned when no sampled position produced a scorable
// frame.
var ErrNoFrames = errors.New("no frames could be extracted")

// Result is the winning frame of a search together with its position and
// quality breakdown.
type Result struct {
	Frame   *raster.Frame
	Index   int
	Metrics quality.Metrics
}

// ProgressFunc reports search progress after each sampled position.
type ProgressFunc func(sampled, total int)

// Selector runs the best-frame search over a frame source.
type Selector struct {
	logger     zerolog.Logger
	scorer     *quality.Scorer
	fps        float64
	maxSamples int
}

// New creates a Selector with the default scorer, frame rate assumption and
// sample budget.
func New(logger zerolog.Logger) *Selector {
	return &Selector{
		logger:     logger.With().Str("component", "selector").Logger(),
		scorer:     quality.New(),
		fps:        DefaultFPS,
		maxSamples: DefaultMaxSamples,
	}
}

// NewWithOptions creates a Selector with a custom scorer, frame rate and
// sample budget. Zero values fall back to the defaults.
func NewWithOptions(logger zerolog.Logger, scorer *quality.Scorer, fps float64, maxSamples int) *Selector {
	if scorer == nil {
		scorer = quality.New()
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Selector{
		logger:     logger.With().Str("component", "selector").Logger(),
		scorer:     scorer,
		fps:        fps,
		maxSamples: maxSamples,
	}
}

// FrameCount derives the total frame count of a source from its duration and
// the assumed frame rate.
func (s *Selector) FrameCount(src video.FrameSource) int {
	return int(src.Info().Duration.Seconds() * s.fps)
}

// OffsetForIndex converts a frame index to a seek offset.
func (s *Selector) OffsetForIndex(index int) time.Duration {
	return time.Duration(float64(index) / s.fps * float64(time.Second))
}

// BestFrame samples at most maxSamples evenly spaced frame indices, scores
// each extracted frame, and returns the first frame reaching the maximum
// total score. Positions where extraction fails are skipped; if every
// position fails the search returns ErrNoFrames.
func (s *Selector) BestFrame(ctx context.Context, src video.FrameSource, progress ProgressFunc) (*Result, error) {
	totalFrames := s.FrameCount(src)
	if totalFrames <= 0 {
		return nil, ErrNoFrames
	}

	samples := s.maxSamples
	if totalFrames < samples {
		samples = totalFrames
	}
	stride := totalFrames / samples

	var best *Result

	for i := 0; i < samples; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		index := i * stride
		frame, err := src.FrameAt(ctx, s.OffsetForIndex(index))
		if err != nil {
			s.logger.Warn().Int("index", index).Err(err).Msg("skipping unreadable sample")
			if progress != nil {
				progress(i+1, samples)
			}
			continue
		}

		metrics := s.scorer.Score(frame)
		if best == nil || metrics.Total > best.Metrics.Total {
			best = &Result{Frame: frame, Index: index, Metrics: metrics}
		}

		if progress != nil {
			progress(i+1, samples)
		}
	}

	if best == nil {
		return nil, ErrNoFrames
	}

	s.logger.Info().
		Int("index", best.Index).
		Float64("score", best.Metrics.Total).
		Int("samples", samples).
		Msg("selected best frame")

	return best, nil
}
