package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/docuhelp/docuhelp-server/internal/logging"
	"github.com/docuhelp/docuhelp-server/internal/phases"
	"github.com/docuhelp/docuhelp-server/internal/sampler"
	"github.com/docuhelp/docuhelp-server/internal/vlm"
)

const (
	// Analysis frame budget when the caller does not set one: one frame
	// per 30 seconds, never fewer than 6 or more than 20.
	minAutoFrames = 6
	maxAutoFrames = 20
	autoFrameSpan = 30.0

	alternativeFrameCount = 5
)

// FrameExtractor selects representative frames from a video file.
type FrameExtractor interface {
	Probe(ctx context.Context, path string) (*sampler.VideoInfo, error)
	Extract(ctx context.Context, path string, cfg sampler.Config) ([]sampler.Frame, error)
	FrameAt(ctx context.Context, path string, seconds float64) ([]byte, error)
}

// VisionClient performs the model calls behind analysis and refinement.
type VisionClient interface {
	AnalyzeFrames(ctx context.Context, prompt string, frames [][]byte) (*vlm.Result, error)
	RefineDescription(ctx context.Context, frame []byte, procedure, current, feedback string) (string, error)
	DescribeFrame(ctx context.Context, frame []byte, procedure string, phaseNumber int) (string, error)
}

type Service struct {
	repo          Repository
	extractor     FrameExtractor
	vision        VisionClient
	reconstructor *phases.Reconstructor
	logger        *slog.Logger

	uploadsDir string
	maxFrames  int
	minSep     float64
}

func NewService(repo Repository, extractor FrameExtractor, vision VisionClient,
	reconstructor *phases.Reconstructor, uploadsDir string, maxFrames int, minSep float64,
	logger *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		extractor:     extractor,
		vision:        vision,
		reconstructor: reconstructor,
		uploadsDir:    uploadsDir,
		maxFrames:     maxFrames,
		minSep:        minSep,
		logger:        logger,
	}
}

// RegisterUpload stores the uploaded video on disk and queues an analysis
// job for the background runner.
func (s *Service) RegisterUpload(ctx context.Context, filename, procedure string, src io.Reader) (*Video, *Job, error) {
	if !IsVideoFile(filename) {
		return nil, nil, fmt.Errorf("unsupported file type: %s", filename)
	}

	id := NewID()
	if err := os.MkdirAll(s.uploadsDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create uploads dir: %w", err)
	}

	path := filepath.Join(s.uploadsDir, id+filepath.Ext(filename))
	dst, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return nil, nil, fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		return nil, nil, fmt.Errorf("close upload: %w", err)
	}

	now := time.Now()
	video := &Video{
		ID:        id,
		Filename:  filename,
		Path:      path,
		Procedure: procedure,
		Status:    StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateVideo(ctx, video); err != nil {
		os.Remove(path)
		return nil, nil, err
	}

	job := &Job{
		ID:        NewID(),
		VideoID:   id,
		Type:      JobTypeAnalyze,
		Status:    JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, nil, err
	}

	logging.WithVideoID(s.logger, id).Info("video uploaded",
		"filename", filename,
		"procedure", procedure,
		"path", logging.SanitizePath(path),
	)
	return video, job, nil
}

// ExecuteAnalysis runs the full pipeline for one queued job: frame
// extraction, the vision model call, phase reconstruction, and persistence.
func (s *Service) ExecuteAnalysis(ctx context.Context, jobID, videoID string) error {
	logger := logging.WithJobID(logging.WithVideoID(s.logger, videoID), jobID)

	video, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if video == nil {
		s.repo.UpdateJobStatus(ctx, jobID, JobStatusFailed, "video not found")
		return fmt.Errorf("video %s not found", videoID)
	}

	s.repo.UpdateJobStatus(ctx, jobID, JobStatusRunning, "")
	s.repo.UpdateVideoStatus(ctx, videoID, StatusProcessing, "")

	if err := s.analyze(ctx, video); err != nil {
		logger.Error("analysis failed", "error", err)
		s.repo.UpdateJobStatus(ctx, jobID, JobStatusFailed, err.Error())
		s.repo.UpdateVideoStatus(ctx, videoID, StatusError, err.Error())
		return err
	}

	s.repo.UpdateJobStatus(ctx, jobID, JobStatusCompleted, "")
	return nil
}

func (s *Service) analyze(ctx context.Context, video *Video) error {
	info, err := s.extractor.Probe(ctx, video.Path)
	if err != nil {
		return fmt.Errorf("probe video: %w", err)
	}

	maxFrames := s.maxFrames
	if maxFrames <= 0 {
		calculated := int(info.Duration / autoFrameSpan)
		if calculated < minAutoFrames {
			calculated = minAutoFrames
		}
		maxFrames = calculated
		if maxFrames > maxAutoFrames {
			maxFrames = maxAutoFrames
		}
	}

	cfg := sampler.Config{
		MaxFrames:         maxFrames,
		MinTimeSeparation: s.minSep,
		FilterText:        true,
		FilterDuplicates:  true,
	}

	frames, err := s.extractor.Extract(ctx, video.Path, cfg)
	if err != nil {
		return fmt.Errorf("extract frames: %w", err)
	}
	if len(frames) == 0 {
		// Heavily filtered footage, such as slideshows. Take whatever is
		// there rather than failing outright.
		s.logger.Warn("all frames filtered, retrying without filters", "video_id", video.ID)
		cfg.FilterText = false
		cfg.FilterDuplicates = false
		frames, err = s.extractor.Extract(ctx, video.Path, cfg)
		if err != nil {
			return fmt.Errorf("extract frames: %w", err)
		}
	}
	if len(frames) == 0 {
		return fmt.Errorf("no frames could be extracted")
	}

	images := make([][]byte, len(frames))
	for i := range frames {
		images[i] = frames[i].Image
	}

	result, err := s.vision.AnalyzeFrames(ctx, vlm.AnalysisPrompt(video.Procedure), images)
	if err != nil {
		return fmt.Errorf("vision analysis: %w", err)
	}

	parsed := s.reconstructor.Reconstruct(result.Summary, frames)

	stored := make([]*Phase, len(parsed))
	for i, p := range parsed {
		sp := &Phase{
			VideoID:             video.ID,
			Seq:                 i,
			TimestampRange:      p.TimestampRange,
			StartSeconds:        p.StartSeconds,
			EndSeconds:          p.EndSeconds,
			KeyTimestamp:        p.KeyTimestamp,
			KeyTimestampSeconds: p.KeyTimestampSeconds,
			Description:         p.Description,
			OriginalDescription: p.Description,
		}
		if p.KeyFrame != nil {
			sp.KeyFrame = p.KeyFrame.Image
		}
		stored[i] = sp
	}
	if err := s.repo.ReplacePhases(ctx, video.ID, stored); err != nil {
		return fmt.Errorf("store phases: %w", err)
	}

	video.Status = StatusCompleted
	video.DurationS = info.Duration
	video.Summary = result.Summary
	video.Model = result.Model
	video.LatencyS = result.LatencyS
	video.FramesAnalyzed = result.FramesAnalyzed
	if err := s.repo.UpdateVideoAnalysis(ctx, video); err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}

	s.logger.Info("analysis completed",
		"video_id", video.ID, "phases", len(stored), "frames", len(frames))
	return nil
}

func (s *Service) Video(ctx context.Context, id string) (*Video, error) {
	return s.repo.GetVideo(ctx, id)
}

func (s *Service) Videos(ctx context.Context) ([]*Video, error) {
	return s.repo.ListVideos(ctx)
}

func (s *Service) Phases(ctx context.Context, videoID string) ([]*Phase, error) {
	return s.repo.GetPhases(ctx, videoID)
}

func (s *Service) Phase(ctx context.Context, videoID string, seq int) (*Phase, error) {
	return s.repo.GetPhase(ctx, videoID, seq)
}

func (s *Service) JobForVideo(ctx context.Context, videoID string) (*Job, error) {
	return s.repo.GetLatestJobForVideo(ctx, videoID)
}

// RefinePhase rewrites one phase description around clinician feedback.
// When the model call fails the feedback is appended to the current
// description, so the clinician's input is never lost.
func (s *Service) RefinePhase(ctx context.Context, videoID string, seq int, feedback string) (*Phase, error) {
	video, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, fmt.Errorf("video %s not found", videoID)
	}
	phase, err := s.repo.GetPhase(ctx, videoID, seq)
	if err != nil {
		return nil, err
	}
	if phase == nil {
		return nil, fmt.Errorf("phase %d not found", seq)
	}

	refined, err := s.vision.RefineDescription(ctx, phase.KeyFrame, video.Procedure, phase.Description, feedback)
	if err != nil {
		s.logger.Warn("refinement call failed, merging feedback directly",
			"video_id", videoID, "phase", seq, "error", err)
		refined = phase.Description + " " + feedback
	}

	if err := s.repo.UpdatePhaseDescription(ctx, videoID, seq, refined, feedback); err != nil {
		return nil, err
	}

	phase.Description = refined
	phase.UserFeedback = feedback
	phase.Refined = true
	s.logger.Info("phase refined", "video_id", videoID, "phase", seq)
	return phase, nil
}

// AlternativeFrame is one replacement key frame candidate.
type AlternativeFrame struct {
	Timestamp        string  `json:"timestamp"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Image            []byte  `json:"-"`
}

// AlternativeFrames decodes five evenly spaced frames inside the phase's
// time range, for replacing a blurry or uninformative key frame.
func (s *Service) AlternativeFrames(ctx context.Context, videoID string, seq int) ([]AlternativeFrame, error) {
	video, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, fmt.Errorf("video %s not found", videoID)
	}
	phase, err := s.repo.GetPhase(ctx, videoID, seq)
	if err != nil {
		return nil, err
	}
	if phase == nil {
		return nil, fmt.Errorf("phase %d not found", seq)
	}

	step := (phase.EndSeconds - phase.StartSeconds) / float64(alternativeFrameCount+1)

	var alternatives []AlternativeFrame
	for i := 1; i <= alternativeFrameCount; i++ {
		ts := phase.StartSeconds + float64(i)*step
		img, err := s.extractor.FrameAt(ctx, video.Path, ts)
		if err != nil {
			s.logger.Warn("failed to decode alternative frame", "video_id", videoID, "seconds", ts, "error", err)
			continue
		}
		alternatives = append(alternatives, AlternativeFrame{
			Timestamp:        phases.FormatTimestamp(ts),
			TimestampSeconds: round2(ts),
			Image:            img,
		})
	}

	s.logger.Info("generated alternative frames",
		"video_id", videoID, "phase", seq, "count", len(alternatives))
	return alternatives, nil
}

// UpdateKeyFrame replaces a phase's key frame with a user-selected one and
// regenerates the description from the new image.
func (s *Service) UpdateKeyFrame(ctx context.Context, videoID string, seq int, newSeconds float64, image []byte) (*Phase, error) {
	video, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video == nil {
		return nil, fmt.Errorf("video %s not found", videoID)
	}
	phase, err := s.repo.GetPhase(ctx, videoID, seq)
	if err != nil {
		return nil, err
	}
	if phase == nil {
		return nil, fmt.Errorf("phase %d not found", seq)
	}

	procedure := video.Procedure
	if procedure == "" {
		procedure = "surgical procedure"
	}
	description, err := s.vision.DescribeFrame(ctx, image, procedure, seq+1)
	if err != nil {
		return nil, fmt.Errorf("describe frame: %w", err)
	}

	keyTimestamp := phases.FormatTimestamp(newSeconds)
	if err := s.repo.UpdatePhaseKeyFrame(ctx, videoID, seq, image, keyTimestamp, newSeconds, description); err != nil {
		return nil, err
	}

	phase.KeyFrame = image
	phase.KeyTimestamp = keyTimestamp
	phase.KeyTimestampSeconds = newSeconds
	phase.Description = description
	phase.KeyframeUpdated = true
	s.logger.Info("key frame updated", "video_id", videoID, "phase", seq, "seconds", newSeconds)
	return phase, nil
}

// GenerateReport renders the final text report from the video's phases and
// persists it alongside the video.
func (s *Service) GenerateReport(ctx context.Context, videoID string) (string, error) {
	video, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return "", err
	}
	if video == nil {
		return "", fmt.Errorf("video %s not found", videoID)
	}
	phaseList, err := s.repo.GetPhases(ctx, videoID)
	if err != nil {
		return "", err
	}
	if len(phaseList) == 0 {
		return "", fmt.Errorf("no phases found for video %s", videoID)
	}

	text := renderReport(video, phaseList)
	if err := s.repo.UpdateVideoReport(ctx, videoID, text); err != nil {
		return "", err
	}

	s.logger.Info("report generated", "video_id", videoID, "phases", len(phaseList))
	return text, nil
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
