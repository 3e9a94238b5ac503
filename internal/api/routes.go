package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docuhelp/docuhelp-server/internal/config"
	"github.com/docuhelp/docuhelp-server/internal/report"
)

// Uploads are capped well above typical endoscopic clips; the handler
// streams to disk, so the cap bounds abuse rather than memory.
const maxUploadBytes = 2 << 30

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Route("/videos", func(r chi.Router) {
		r.Post("/upload", uploadHandler(cfg))
		r.Get("/", listVideosHandler(cfg))
		r.Get("/{id}", getVideoHandler(cfg))
		r.Get("/{id}/status", statusHandler(cfg))
		r.Get("/{id}/results", resultsHandler(cfg))
		r.Post("/{id}/report", reportHandler(cfg))

		r.Route("/{id}/phases/{index}", func(r chi.Router) {
			r.Get("/frame", keyFrameHandler(cfg))
			r.Get("/alternative-frames", alternativeFramesHandler(cfg))
			r.Post("/refine", refineHandler(cfg))
			r.Post("/keyframe", updateKeyFrameHandler(cfg))
		})
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid multipart form", "BAD_REQUEST")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "file is required", "BAD_REQUEST")
			return
		}
		defer file.Close()

		procedure := strings.TrimSpace(r.FormValue("procedure"))

		video, job, err := cfg.Service.RegisterUpload(r.Context(), header.Filename, procedure, file)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusAccepted, UploadResponse{
			VideoID: video.ID,
			JobID:   job.ID,
			Status:  video.Status,
		})
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := cfg.Service.Videos(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list videos", "INTERNAL_ERROR")
			return
		}

		resp := VideosResponse{Videos: make([]VideoResponse, len(videos))}
		for i, v := range videos {
			resp.Videos[i] = VideoToResponse(v)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getVideoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := lookupVideo(w, r, cfg)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, VideoToResponse(video))
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := lookupVideo(w, r, cfg)
		if !ok {
			return
		}

		resp := StatusResponse{
			VideoID: video.ID,
			Status:  video.Status,
			Error:   video.Error,
		}
		if job, err := cfg.Service.JobForVideo(r.Context(), video.ID); err == nil && job != nil {
			resp.JobStatus = job.Status
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func resultsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := lookupVideo(w, r, cfg)
		if !ok {
			return
		}

		if video.Status != report.StatusCompleted {
			WriteError(w, http.StatusConflict, "analysis not completed", "NOT_READY")
			return
		}

		phases, err := cfg.Service.Phases(r.Context(), video.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := ResultsResponse{
			Video:  VideoToResponse(video),
			Phases: make([]PhaseResponse, len(phases)),
		}
		for i, p := range phases {
			resp.Phases[i] = PhaseToResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func keyFrameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, seq, ok := lookupPhaseRef(w, r, cfg)
		if !ok {
			return
		}

		phase, err := cfg.Service.Phase(r.Context(), video.ID, seq)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if phase == nil {
			WriteError(w, http.StatusNotFound, "phase not found", "NOT_FOUND")
			return
		}
		if !phase.HasKeyFrame() {
			WriteError(w, http.StatusNotFound, "phase has no key frame", "NOT_FOUND")
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		w.Write(phase.KeyFrame)
	}
}

func alternativeFramesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, seq, ok := lookupPhaseRef(w, r, cfg)
		if !ok {
			return
		}

		phase, err := cfg.Service.Phase(r.Context(), video.ID, seq)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if phase == nil {
			WriteError(w, http.StatusNotFound, "phase not found", "NOT_FOUND")
			return
		}

		alternatives, err := cfg.Service.AlternativeFrames(r.Context(), video.ID, seq)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		resp := AlternativeFramesResponse{
			VideoID:           video.ID,
			PhaseIndex:        seq,
			TimestampRange:    phase.TimestampRange,
			AlternativeFrames: make([]AlternativeFrameResponse, len(alternatives)),
		}
		for i, a := range alternatives {
			resp.AlternativeFrames[i] = AlternativeToResponse(a)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func refineHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, seq, ok := lookupPhaseRef(w, r, cfg)
		if !ok {
			return
		}

		var req RefineRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.Feedback) == "" {
			WriteError(w, http.StatusBadRequest, "feedback is required", "BAD_REQUEST")
			return
		}

		phase, err := cfg.Service.RefinePhase(r.Context(), video.ID, seq, req.Feedback)
		if err != nil {
			WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, RefineResponse{
			VideoID:            video.ID,
			PhaseIndex:         seq,
			RefinedDescription: phase.Description,
		})
	}
}

func updateKeyFrameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, seq, ok := lookupPhaseRef(w, r, cfg)
		if !ok {
			return
		}

		var req UpdateKeyFrameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil || len(image) == 0 {
			WriteError(w, http.StatusBadRequest, "image_base64 must be valid base64", "BAD_REQUEST")
			return
		}

		phase, err := cfg.Service.UpdateKeyFrame(r.Context(), video.ID, seq, req.TimestampSeconds, image)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, UpdateKeyFrameResponse{
			VideoID:        video.ID,
			PhaseIndex:     seq,
			NewTimestamp:   phase.KeyTimestamp,
			NewDescription: phase.Description,
		})
	}
}

func reportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		video, ok := lookupVideo(w, r, cfg)
		if !ok {
			return
		}

		text, err := cfg.Service.GenerateReport(r.Context(), video.ID)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		phases, _ := cfg.Service.Phases(r.Context(), video.ID)
		WriteJSON(w, http.StatusOK, ReportResponse{
			VideoID:     video.ID,
			Procedure:   video.Procedure,
			PhasesCount: len(phases),
			Report:      text,
		})
	}
}

func lookupVideo(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*report.Video, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "video id required", "BAD_REQUEST")
		return nil, false
	}

	video, err := cfg.Service.Video(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
		return nil, false
	}
	if video == nil {
		WriteError(w, http.StatusNotFound, "video not found", "NOT_FOUND")
		return nil, false
	}
	return video, true
}

func lookupPhaseRef(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*report.Video, int, bool) {
	video, ok := lookupVideo(w, r, cfg)
	if !ok {
		return nil, 0, false
	}

	seq, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || seq < 0 {
		WriteError(w, http.StatusBadRequest, "phase index must be a non-negative integer", "BAD_REQUEST")
		return nil, 0, false
	}
	return video, seq, true
}
