// Package video provides random-access frame extraction from exam videos.
// A FrameSource turns a seek offset into a decoded raster frame; the
// ffmpeg-backed implementation covers the container formats seen in
// practice (MP4, QuickTime).
package video

import (
	"context"
	"errors"
	"time"

	"github.com/neurolens/fundus-extractor/pkg/raster"
)

// ErrNotVideo is returned when the input file is not a video.
var ErrNotVideo = errors.New("input is not a video file")

// Info contains metadata about a video source.
type Info struct {
	Path     string
	Duration time.Duration
	Width    int
	Height   int
	FPS      float64
	Codec    string
}

// FrameSource is the random-access frame extraction capability: given a seek
// offset, produce a raster frame at the video's native dimensions. A source
// that cannot produce a frame at a given offset returns an error for that
// call only; callers decide whether to skip or abort.
type FrameSource interface {
	Info() Info
	FrameAt(ctx context.Context, offset time.Duration) (*raster.Frame, error)
}
