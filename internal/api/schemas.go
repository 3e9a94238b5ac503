package api

import (
	"encoding/base64"
	"time"

	"github.com/docuhelp/docuhelp-server/internal/report"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type UploadResponse struct {
	VideoID string `json:"video_id"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
}

type VideoResponse struct {
	ID             string  `json:"id"`
	Filename       string  `json:"filename"`
	Procedure      string  `json:"procedure,omitempty"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	DurationS      float64 `json:"duration_seconds"`
	Model          string  `json:"model,omitempty"`
	LatencyS       float64 `json:"latency,omitempty"`
	FramesAnalyzed int     `json:"frames_analyzed,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

type VideosResponse struct {
	Videos []VideoResponse `json:"videos"`
}

type StatusResponse struct {
	VideoID   string `json:"video_id"`
	Status    string `json:"status"`
	JobStatus string `json:"job_status,omitempty"`
	Error     string `json:"error,omitempty"`
}

type PhaseResponse struct {
	PhaseIndex          int     `json:"phase_index"`
	TimestampRange      string  `json:"timestamp_range"`
	StartSeconds        float64 `json:"start_seconds"`
	EndSeconds          float64 `json:"end_seconds"`
	KeyTimestamp        string  `json:"key_timestamp"`
	KeyTimestampSeconds float64 `json:"key_timestamp_seconds"`
	Description         string  `json:"description"`
	HasKeyFrame         bool    `json:"has_key_frame"`
	Refined             bool    `json:"refined"`
	KeyframeUpdated     bool    `json:"keyframe_updated"`
}

type ResultsResponse struct {
	Video  VideoResponse   `json:"video"`
	Phases []PhaseResponse `json:"phases"`
}

type AlternativeFrameResponse struct {
	Timestamp        string  `json:"timestamp"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	ImageBase64      string  `json:"image_base64"`
}

type AlternativeFramesResponse struct {
	VideoID           string                     `json:"video_id"`
	PhaseIndex        int                        `json:"phase_index"`
	TimestampRange    string                     `json:"timestamp_range"`
	AlternativeFrames []AlternativeFrameResponse `json:"alternative_frames"`
}

type RefineRequest struct {
	Feedback string `json:"feedback"`
}

type RefineResponse struct {
	VideoID            string `json:"video_id"`
	PhaseIndex         int    `json:"phase_index"`
	RefinedDescription string `json:"refined_description"`
}

type UpdateKeyFrameRequest struct {
	TimestampSeconds float64 `json:"timestamp_seconds"`
	ImageBase64      string  `json:"image_base64"`
}

type UpdateKeyFrameResponse struct {
	VideoID        string `json:"video_id"`
	PhaseIndex     int    `json:"phase_index"`
	NewTimestamp   string `json:"new_timestamp"`
	NewDescription string `json:"new_description"`
}

type ReportResponse struct {
	VideoID     string `json:"video_id"`
	Procedure   string `json:"procedure,omitempty"`
	PhasesCount int    `json:"phases_count"`
	Report      string `json:"report"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func VideoToResponse(v *report.Video) VideoResponse {
	return VideoResponse{
		ID:             v.ID,
		Filename:       v.Filename,
		Procedure:      v.Procedure,
		Status:         v.Status,
		Error:          v.Error,
		DurationS:      v.DurationS,
		Model:          v.Model,
		LatencyS:       v.LatencyS,
		FramesAnalyzed: v.FramesAnalyzed,
		CreatedAt:      v.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      v.UpdatedAt.Format(time.RFC3339),
	}
}

func PhaseToResponse(p *report.Phase) PhaseResponse {
	return PhaseResponse{
		PhaseIndex:          p.Seq,
		TimestampRange:      p.TimestampRange,
		StartSeconds:        p.StartSeconds,
		EndSeconds:          p.EndSeconds,
		KeyTimestamp:        p.KeyTimestamp,
		KeyTimestampSeconds: p.KeyTimestampSeconds,
		Description:         p.Description,
		HasKeyFrame:         p.HasKeyFrame(),
		Refined:             p.Refined,
		KeyframeUpdated:     p.KeyframeUpdated,
	}
}

func AlternativeToResponse(a report.AlternativeFrame) AlternativeFrameResponse {
	return AlternativeFrameResponse{
		Timestamp:        a.Timestamp,
		TimestampSeconds: a.TimestampSeconds,
		ImageBase64:      base64.StdEncoding.EncodeToString(a.Image),
	}
}
