// Package sampler selects a bounded, temporally well-separated set of
// representative frames from a surgical video. Extraction is a pure
// function of the video and its Config: the same input always yields the
// same frame sequence, and nothing is written to disk or the network.
package sampler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
)

type Sampler struct {
	decoder Decoder
	logger  *slog.Logger
}

func New(decoder Decoder, logger *slog.Logger) *Sampler {
	return &Sampler{decoder: decoder, logger: logger}
}

// Probe returns the video metadata without decoding any frames.
func (s *Sampler) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	return s.decoder.Probe(ctx, path)
}

// FrameAt decodes the single frame nearest the given timestamp, bypassing
// all filtering. Used to offer alternative key frames inside a phase range.
func (s *Sampler) FrameAt(ctx context.Context, path string, seconds float64) ([]byte, error) {
	return s.decoder.DecodeFrame(ctx, path, seconds)
}

// Extract decodes and filters frames according to cfg. A video that cannot
// be opened or probed is a fatal error; a run in which every candidate is
// filtered out returns an empty (non-nil) slice and no error, and the
// caller decides whether to relax filters and retry.
func (s *Sampler) Extract(ctx context.Context, path string, cfg Config) ([]Frame, error) {
	info, err := s.decoder.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("probe video: %w", err)
	}

	s.logger.Info("extracting frames",
		"path", path,
		"resolution", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"fps", info.FPS,
		"duration_s", info.Duration,
		"max_frames", cfg.MaxFrames,
		"min_separation_s", cfg.MinTimeSeparation,
	)

	candidates := s.candidateIndices(info, cfg)
	run := &extractionRun{
		cfg:  cfg,
		info: info,
		// Initialised one separation back so the first frame is admissible.
		lastAccepted: -cfg.MinTimeSeparation,
	}

	for _, idx := range candidates {
		if cfg.MaxFrames > 0 && len(run.frames) >= cfg.MaxFrames {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		timestamp := float64(idx) / info.FPS
		data, err := s.decoder.DecodeFrame(ctx, path, timestamp)
		if err != nil {
			s.logger.Warn("failed to decode frame, skipping", "frame", idx, "error", err)
			continue
		}

		run.consider(idx, data)
	}

	s.logger.Info("extraction complete",
		"accepted", len(run.frames),
		"filtered_text", run.filteredText,
		"filtered_duplicate", run.filteredDuplicate,
		"filtered_time_separation", run.filteredSeparation,
	)

	if run.frames == nil {
		run.frames = []Frame{}
	}
	return run.frames, nil
}

// candidateIndices plans which native frame positions to decode.
//
// Capped mode generates max_frames x multiplier equally spaced positions
// (5x when any filter can reject candidates, 2x otherwise) and drops
// positions closer than the separation's frame-count equivalent to the
// previous candidate, so obviously doomed decodes are never issued.
//
// Rate mode steps at max(fps/sample_rate, separation*fps) native frames, so
// the requested rate can never undercut the separation invariant.
func (s *Sampler) candidateIndices(info *VideoInfo, cfg Config) []int {
	if cfg.MaxFrames > 0 {
		multiplier := 2
		if cfg.FilterText || cfg.FilterDuplicates {
			multiplier = 5
		}
		candidateCount := cfg.MaxFrames * multiplier
		minFrameInterval := int(cfg.MinTimeSeparation * info.FPS)

		var indices []int
		for i := 0; i < candidateCount; i++ {
			idx := i * info.TotalFrames / candidateCount
			if len(indices) == 0 || idx-indices[len(indices)-1] >= minFrameInterval {
				indices = append(indices, idx)
			}
		}
		return indices
	}

	sampleRate := cfg.SampleRateFPS
	if sampleRate <= 0 {
		sampleRate = 1
	}
	interval := int(math.Max(info.FPS/sampleRate, cfg.MinTimeSeparation*info.FPS))
	if interval < 1 {
		interval = 1
	}

	var indices []int
	for idx := 0; idx < info.TotalFrames; idx += interval {
		indices = append(indices, idx)
	}
	return indices
}

// extractionRun threads the mutable acceptance state through one Extract
// call; nothing here is shared between invocations.
type extractionRun struct {
	cfg  Config
	info *VideoInfo

	frames       []Frame
	histograms   [][]float64
	lastAccepted float64

	filteredText       int
	filteredDuplicate  int
	filteredSeparation int
}

// consider runs the acceptance pipeline on one decoded candidate,
// short-circuiting at the first failing check.
func (r *extractionRun) consider(idx int, data []byte) {
	timestamp := round2(float64(idx) / r.info.FPS)

	if timestamp-r.lastAccepted < r.cfg.MinTimeSeparation {
		r.filteredSeparation++
		return
	}

	var decoded image.Image
	if r.cfg.FilterText || r.cfg.FilterDuplicates {
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			// Treat an unreadable raster like a decode failure: skip it.
			return
		}
		decoded = img
	}

	if r.cfg.FilterText {
		if isTextScreen(decoded) {
			r.filteredText++
			return
		}
		if !isPlausibleContent(decoded) {
			r.filteredText++
			return
		}
	}

	var hist []float64
	if r.cfg.FilterDuplicates {
		threshold := r.cfg.DuplicateThreshold
		if threshold == 0 {
			threshold = DefaultDuplicateThreshold
		}
		hist = colorHistogram(decoded)
		if isDuplicate(hist, r.histograms, threshold) {
			r.filteredDuplicate++
			return
		}
	}

	r.frames = append(r.frames, Frame{
		Timestamp:  timestamp,
		FrameIndex: idx,
		Image:      data,
		Width:      r.info.Width,
		Height:     r.info.Height,
	})
	r.lastAccepted = timestamp

	if r.cfg.FilterDuplicates {
		r.histograms = append(r.histograms, hist)
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
