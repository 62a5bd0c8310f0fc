package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keagan/playcut/pkg/util"
)

// Defaults applied when a stream omits fields, matching what most
// editors assume for broken containers.
const (
	defaultWidth  = 1920
	defaultHeight = 1080
	defaultFPS    = 30.0
)

var validExtensions = []string{".mp4", ".mov", ".webm", ".avi", ".mkv"}

// FFmpegBackend implements Backend on top of the ffmpeg and ffprobe
// binaries.
type FFmpegBackend struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	proxyWidth  int
	proxyFPSCap float64
}

// NewFFmpegBackend locates the binaries and returns a ready backend.
func NewFFmpegBackend(logger zerolog.Logger, ffmpegBin, ffprobeBin string, proxyWidth int, proxyFPSCap float64) (*FFmpegBackend, error) {
	ffmpegPath, err := exec.LookPath(ffmpegBin)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	ffprobePath, err := exec.LookPath(ffprobeBin)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}

	return &FFmpegBackend{
		logger:      logger.With().Str("component", "media").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		proxyWidth:  proxyWidth,
		proxyFPSCap: proxyFPSCap,
	}, nil
}

// Probe extracts metadata from a media file via ffprobe.
func (b *FFmpegBackend) Probe(ctx context.Context, path string) (Metadata, error) {
	if path == "" {
		return Metadata{}, fmt.Errorf("file path is required")
	}

	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return Metadata{}, err
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, b.ffprobePath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Metadata{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	meta, err := parseProbeOutput(output)
	if err != nil {
		return Metadata{}, err
	}
	meta.Path = path
	meta.FileSize = fi.Size()

	b.logger.Debug().
		Str("path", path).
		Float64("duration", meta.Duration).
		Int("width", meta.Width).
		Int("height", meta.Height).
		Float64("fps", meta.FPS).
		Msg("probed media file")

	return meta, nil
}

// parseProbeOutput decodes ffprobe's JSON report into Metadata.
func parseProbeOutput(output []byte) (Metadata, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	meta := Metadata{
		Width:  defaultWidth,
		Height: defaultHeight,
		FPS:    defaultFPS,
	}

	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		meta.Duration = dur
	}
	if br, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		meta.Bitrate = br
	}

	haveVideo := false
	for _, stream := range probe.Streams {
		if stream.CodecType == "video" && !haveVideo {
			haveVideo = true
			meta.Codec = stream.CodecName
			if stream.Width > 0 {
				meta.Width = stream.Width
			}
			if stream.Height > 0 {
				meta.Height = stream.Height
			}
			if stream.RFrameRate != "" {
				if fps := util.ParseFrameRate(stream.RFrameRate); fps > 0 {
					meta.FPS = fps
				}
			}
		} else if stream.CodecType == "audio" {
			meta.HasAudio = true
			meta.AudioCodec = stream.CodecName
		}
	}

	if !haveVideo {
		return Metadata{}, ErrNoVideoStream
	}

	return meta, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// OpenHandle probes the file and returns a seekable playback handle.
// Only metadata is loaded eagerly; frame data is pulled on demand by
// the render side.
func (b *FFmpegBackend) OpenHandle(ctx context.Context, path string) (Handle, error) {
	meta, err := b.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return NewClockHandle(meta), nil
}

// ReadBytes loads a whole file, for thumbnails and other small blobs.
func (b *FFmpegBackend) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	if !util.FileExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return os.ReadFile(path)
}

// ValidateSource rejects files whose extension is not a known
// container. Deliberately probe-free: the retried probe that follows
// an import is the single gate on file contents, so a just-written
// file failing its first read is not rejected here before the retry
// schedule gets a chance.
func ValidateSource(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	for _, valid := range validExtensions {
		if ext == valid {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedMedia, ext)
}

// CreateProxy renders a fast-seeking low-resolution preview of the
// source. High-fps sources are capped to keep proxies cheap.
func (b *FFmpegBackend) CreateProxy(ctx context.Context, srcPath, dstPath string, srcFPS float64) error {
	if err := util.EnsureDir(filepath.Dir(dstPath)); err != nil {
		return fmt.Errorf("failed to create proxy directory: %w", err)
	}

	filters := []string{fmt.Sprintf("scale=%d:-2", b.proxyWidth)}
	if b.proxyFPSCap > 0 && srcFPS > b.proxyFPSCap*2 {
		filters = append(filters, fmt.Sprintf("fps=%g", b.proxyFPSCap))
	}

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", srcPath,
		"-vf", strings.Join(filters, ","),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-crf", "28",
		"-c:a", "aac",
		dstPath,
	}

	b.logger.Debug().
		Str("src", srcPath).
		Str("dst", dstPath).
		Strs("args", args).
		Msg("generating proxy")

	cmd := exec.CommandContext(ctx, b.ffmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("proxy generation failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
