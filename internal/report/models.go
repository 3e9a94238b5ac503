// Package report owns the video analysis workflow: uploaded videos, the
// background analysis jobs that turn them into phases, clinician
// refinement of those phases, and the final text report.
package report

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"

	JobTypeAnalyze = "analyze"

	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

type Video struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	Path           string    `json:"-"`
	Procedure      string    `json:"procedure,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	DurationS      float64   `json:"duration_seconds"`
	Summary        string    `json:"summary,omitempty"`
	Model          string    `json:"model,omitempty"`
	LatencyS       float64   `json:"latency,omitempty"`
	FramesAnalyzed int       `json:"frames_analyzed,omitempty"`
	ReportText     string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Phase is the stored form of one reconstructed segment. Seq preserves the
// order the phases came out of the analysis; KeyFrame holds the bound
// frame's JPEG bytes and never travels in JSON summaries.
type Phase struct {
	VideoID             string  `json:"-"`
	Seq                 int     `json:"phase_index"`
	TimestampRange      string  `json:"timestamp_range"`
	StartSeconds        float64 `json:"start_seconds"`
	EndSeconds          float64 `json:"end_seconds"`
	KeyTimestamp        string  `json:"key_timestamp"`
	KeyTimestampSeconds float64 `json:"key_timestamp_seconds"`
	KeyFrame            []byte  `json:"-"`
	Description         string  `json:"description"`
	OriginalDescription string  `json:"original_description,omitempty"`
	UserFeedback        string  `json:"-"`
	Refined             bool    `json:"refined"`
	KeyframeUpdated     bool    `json:"keyframe_updated"`
}

// HasKeyFrame is used by API summaries instead of shipping the image.
func (p *Phase) HasKeyFrame() bool {
	return len(p.KeyFrame) > 0
}

type Job struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"video_id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var VideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
}

func NewID() string {
	return uuid.NewString()
}

func IsVideoFile(filename string) bool {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return false
	}
	return VideoExtensions[strings.ToLower(filename[idx:])]
}
