package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/go-kratos/kratos/v2/log"
)

// ProbeInfo is the subset of container metadata the analyzer cares about.
type ProbeInfo struct {
	DurationSeconds float64
	Width           int
	Height          int
	SizeBytes       int64
}

// Resolution renders "WxH", or "unknown" when the probe found no video stream.
func (p ProbeInfo) Resolution() string {
	if p.Width <= 0 || p.Height <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// FFmpegConfig holds binary locations for the external media tools.
type FFmpegConfig struct {
	FFmpegBin  string
	FFprobeBin string
}

// DefaultFFmpegConfig returns default configuration ($PATH lookup).
func DefaultFFmpegConfig() FFmpegConfig {
	return FFmpegConfig{
		FFmpegBin:  "ffmpeg",
		FFprobeBin: "ffprobe",
	}
}

// FFmpeg shells out to ffmpeg/ffprobe for frame grabs, audio extraction and
// container probing. Codec behavior stays entirely inside the binaries.
type FFmpeg struct {
	config FFmpegConfig
	log    *log.Helper
}

// NewFFmpeg creates a new FFmpeg toolkit.
func NewFFmpeg(config FFmpegConfig, logger log.Logger) *FFmpeg {
	if config.FFmpegBin == "" {
		config.FFmpegBin = "ffmpeg"
	}
	if config.FFprobeBin == "" {
		config.FFprobeBin = "ffprobe"
	}
	return &FFmpeg{config: config, log: log.NewHelper(logger)}
}

// ExtractFrame writes the still at atSeconds into outPath as JPEG.
func (f *FFmpeg) ExtractFrame(ctx context.Context, videoPath string, atSeconds float64, outPath string) error {
	args := []string{
		"-ss", strconv.FormatFloat(atSeconds, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", outPath,
	}
	return f.run(ctx, f.config.FFmpegBin, args)
}

// ExtractAudio writes the audio track into outPath as mono 16kHz MP3.
// Videos without an audio track fail here; callers degrade gracefully.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath, outPath string) error {
	args := []string{
		"-i", videoPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-ac", "1",
		"-ar", "16000",
		"-y", outPath,
	}
	return f.run(ctx, f.config.FFmpegBin, args)
}

// ffprobe -print_format json output, narrowed to the fields we read.
type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

// Probe returns duration, resolution and size for videoPath.
func (f *FFmpeg) Probe(ctx context.Context, videoPath string) (*ProbeInfo, error) {
	cmd := exec.CommandContext(ctx, f.config.FFprobeBin,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %w (%s)", ErrExtract, err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %w", ErrExtract, err)
	}

	info := &ProbeInfo{}
	info.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)
	info.SizeBytes, _ = strconv.ParseInt(out.Format.Size, 10, 64)
	for _, s := range out.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			break
		}
	}
	return info, nil
}

func (f *FFmpeg) run(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %w (%s)", ErrExtract, bin, err, lastLine(stderr.Bytes()))
	}
	return nil
}

// lastLine keeps error messages short; ffmpeg puts the cause on its last line.
func lastLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
