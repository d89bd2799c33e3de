package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/neurolens/fundus-extractor/internal/utils"
	"github.com/neurolens/fundus-extractor/pkg/raster"
)

// FFmpegSource extracts frames from a video file with ffmpeg, seeking to the
// requested offset and decoding a single MJPEG frame from stdout.
type FFmpegSource struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	path        string
	info        Info
}

var _ FrameSource = (*FFmpegSource)(nil)

// Open probes a video file and returns a frame source for it. It fails with
// ErrNotVideo when the file is not video content, and with a wrapped error
// when ffmpeg or ffprobe are missing from PATH.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*FFmpegSource, error) {
	if !utils.IsVideoFile(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotVideo)
	}

	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	s := &FFmpegSource{
		logger:      logger.With().Str("component", "video").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		path:        path,
	}

	info, err := s.probe(ctx)
	if err != nil {
		return nil, err
	}
	s.info = *info

	s.logger.Debug().
		Str("path", path).
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("opened video source")

	return s, nil
}

// Info returns the probed video metadata.
func (s *FFmpegSource) Info() Info {
	return s.info
}

// FrameAt extracts the frame at the given offset.
func (s *FFmpegSource) FrameAt(ctx context.Context, offset time.Duration) (*raster.Frame, error) {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
		"-i", s.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"-",
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction at %s failed: %w (%s)",
			offset, err, strings.TrimSpace(stderr.String()))
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("no frame data at offset %s", offset)
	}

	img, err := jpeg.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame at %s: %w", offset, err)
	}

	s.logger.Debug().Dur("offset", offset).Msg("extracted frame")
	return raster.FromImage(img), nil
}

// probe runs ffprobe and parses the stream metadata.
func (s *FFmpegSource) probe(ctx context.Context) (*Info, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		s.path,
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		return nil, err
	}
	info.Path = s.path

	if info.Width == 0 || info.Height == 0 {
		return nil, fmt.Errorf("%s: no video stream: %w", s.path, ErrNotVideo)
	}

	return info, nil
}

// probeResult matches the ffprobe JSON output structure.
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

func parseProbeOutput(output []byte) (*Info, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{}

	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(dur * float64(time.Second))
	}

	for _, stream := range probe.Streams {
		if stream.CodecType != "video" {
			continue
		}
		info.Width = stream.Width
		info.Height = stream.Height
		info.Codec = stream.CodecName
		info.FPS = parseFrameRate(stream.RFrameRate)
		break
	}

	return info, nil
}

// parseFrameRate parses ffprobe rational frame rates like "30/1".
func parseFrameRate(rate string) float64 {
	parts := strings.SplitN(rate, "/", 2)
	if len(parts) != 2 {
		if v, err := strconv.ParseFloat(rate, 64); err == nil {
			return v
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
