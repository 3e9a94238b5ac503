package sampler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// VideoInfo holds the probe metadata needed to plan an extraction run.
type VideoInfo struct {
	FPS         float64
	TotalFrames int
	Width       int
	Height      int
	Duration    float64
}

// Decoder abstracts frame-accurate video access. The real implementation
// shells out to ffmpeg/ffprobe; tests substitute a synthetic one.
type Decoder interface {
	Probe(ctx context.Context, path string) (*VideoInfo, error)
	// DecodeFrame returns the JPEG-encoded frame at the given timestamp.
	DecodeFrame(ctx context.Context, path string, seconds float64) ([]byte, error)
}

// FFmpegDecoder decodes frames by seeking with ffmpeg and probing with
// ffprobe. Decoding is sequential; the decoder holds no per-video state.
type FFmpegDecoder struct {
	logger *slog.Logger
}

func NewFFmpegDecoder(logger *slog.Logger) *FFmpegDecoder {
	return &FFmpegDecoder{logger: logger}
}

func (d *FFmpegDecoder) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("video file not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	info := &VideoInfo{}
	for _, line := range strings.Split(string(output), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok || value == "N/A" {
			continue
		}
		switch key {
		case "width":
			info.Width, _ = strconv.Atoi(value)
		case "height":
			info.Height, _ = strconv.Atoi(value)
		case "r_frame_rate":
			fps, err := parseFrameRate(value)
			if err != nil {
				return nil, fmt.Errorf("ffprobe frame rate for %s: %w", path, err)
			}
			info.FPS = fps
		case "nb_frames":
			info.TotalFrames, _ = strconv.Atoi(value)
		case "duration":
			info.Duration, _ = strconv.ParseFloat(value, 64)
		}
	}

	if info.FPS <= 0 {
		return nil, fmt.Errorf("ffprobe reported no frame rate for %s", path)
	}
	if info.TotalFrames == 0 && info.Duration > 0 {
		// Some containers omit nb_frames; derive it from the duration.
		info.TotalFrames = int(info.Duration * info.FPS)
	}
	if info.Duration == 0 && info.TotalFrames > 0 {
		info.Duration = float64(info.TotalFrames) / info.FPS
	}
	if info.TotalFrames == 0 {
		return nil, fmt.Errorf("could not determine frame count for %s", path)
	}

	return info, nil
}

func (d *FFmpegDecoder) DecodeFrame(ctx context.Context, path string, seconds float64) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-ss", strconv.FormatFloat(seconds, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg seek to %.3fs failed: %w, output: %s", seconds, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame at %.3fs", seconds)
	}
	return stdout.Bytes(), nil
}

// parseFrameRate parses ffprobe's rational frame rate (e.g. "30000/1001").
func parseFrameRate(s string) (float64, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
		}
		return f, nil
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, fmt.Errorf("invalid frame rate %q: zero denominator", s)
	}
	return n / d, nil
}
