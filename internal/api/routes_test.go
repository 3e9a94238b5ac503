package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docuhelp/docuhelp-server/internal/db"
	"github.com/docuhelp/docuhelp-server/internal/phases"
	"github.com/docuhelp/docuhelp-server/internal/report"
	"github.com/docuhelp/docuhelp-server/internal/sampler"
	"github.com/docuhelp/docuhelp-server/internal/vlm"
)

type fakeExtractor struct{}

func (f *fakeExtractor) Probe(ctx context.Context, path string) (*sampler.VideoInfo, error) {
	return &sampler.VideoInfo{FPS: 30, TotalFrames: 4050, Width: 640, Height: 480, Duration: 135}, nil
}

func (f *fakeExtractor) Extract(ctx context.Context, path string, cfg sampler.Config) ([]sampler.Frame, error) {
	return []sampler.Frame{
		{Timestamp: 10, FrameIndex: 300, Image: []byte("jpeg-0")},
		{Timestamp: 60, FrameIndex: 1800, Image: []byte("jpeg-1")},
		{Timestamp: 110, FrameIndex: 3300, Image: []byte("jpeg-2")},
	}, nil
}

func (f *fakeExtractor) FrameAt(ctx context.Context, path string, seconds float64) ([]byte, error) {
	return []byte(fmt.Sprintf("alt@%.2f", seconds)), nil
}

type fakeVision struct{}

func (f *fakeVision) AnalyzeFrames(ctx context.Context, prompt string, frames [][]byte) (*vlm.Result, error) {
	summary := `**SURGICAL PHASES**

0:00-0:45
Trocar placement and camera insertion.

0:45-1:30
Dissection of the hepatocystic triangle.

1:30-2:15
Clipping and division of the cystic duct.`
	return &vlm.Result{Summary: summary, Model: "test-model", LatencyS: 1, FramesAnalyzed: len(frames)}, nil
}

func (f *fakeVision) RefineDescription(ctx context.Context, frame []byte, procedure, current, feedback string) (string, error) {
	return "Refined: " + feedback, nil
}

func (f *fakeVision) DescribeFrame(ctx context.Context, frame []byte, procedure string, phaseNumber int) (string, error) {
	return "Regenerated description.", nil
}

type testEnv struct {
	cfg     ServerConfig
	service *report.Service
	router  http.Handler
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	repo := report.NewRepository(database.Conn())
	service := report.NewService(repo, &fakeExtractor{}, &fakeVision{},
		phases.NewReconstructor(logger), t.TempDir(), 20, 30, logger)

	cfg := ServerConfig{
		Port:      0,
		Service:   service,
		Runner:    report.NewRunner(service, repo, logger),
		Logger:    logger,
		StartTime: time.Now(),
	}
	return &testEnv{cfg: cfg, service: service, router: NewRouter(cfg)}
}

func multipartUpload(t *testing.T, filename, procedure string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	fw.Write([]byte("fake video payload"))
	if procedure != "" {
		mw.WriteField("procedure", procedure)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

// uploadAndAnalyze drives the upload plus the analysis the runner would
// normally perform in the background.
func uploadAndAnalyze(t *testing.T, env *testEnv) string {
	t.Helper()
	body, contentType := multipartUpload(t, "chole.mp4", "cholecystectomy")
	req := httptest.NewRequest(http.MethodPost, "/videos/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d: %s", rr.Code, rr.Body.String())
	}

	var resp UploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}

	if err := env.service.ExecuteAnalysis(context.Background(), resp.JobID, resp.VideoID); err != nil {
		t.Fatalf("ExecuteAnalysis() error = %v", err)
	}
	return resp.VideoID
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestHealthHandler(t *testing.T) {
	env := setupEnv(t)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != "ok" {
		t.Errorf("health status = %v", body["status"])
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestUploadHandler_RejectsNonVideo(t *testing.T) {
	env := setupEnv(t)

	body, contentType := multipartUpload(t, "notes.txt", "")
	req := httptest.NewRequest(http.MethodPost, "/videos/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestUploadHandler_MissingFile(t *testing.T) {
	env := setupEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("procedure", "appendectomy")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/videos/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/"+videoID+"/status", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["status"] != report.StatusCompleted {
		t.Errorf("video status = %v, want completed", body["status"])
	}
	if body["job_status"] != report.JobStatusCompleted {
		t.Errorf("job status = %v, want completed", body["job_status"])
	}
}

func TestResultsHandler(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/"+videoID+"/results", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	var resp ResultsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(resp.Phases) != 3 {
		t.Fatalf("phases = %d, want 3", len(resp.Phases))
	}
	if !resp.Phases[0].HasKeyFrame {
		t.Error("phase 0 should have a key frame")
	}
	if resp.Phases[0].TimestampRange != "0:00-0:45" {
		t.Errorf("phase 0 range = %s", resp.Phases[0].TimestampRange)
	}
}

func TestResultsHandler_NotReady(t *testing.T) {
	env := setupEnv(t)

	body, contentType := multipartUpload(t, "chole.mp4", "")
	req := httptest.NewRequest(http.MethodPost, "/videos/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	var up UploadResponse
	json.Unmarshal(rr.Body.Bytes(), &up)

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/"+up.VideoID+"/results", nil))

	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
}

func TestVideoHandlers_NotFound(t *testing.T) {
	env := setupEnv(t)

	for _, path := range []string{
		"/videos/nope",
		"/videos/nope/status",
		"/videos/nope/results",
		"/videos/nope/phases/0/frame",
	} {
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rr.Code)
		}
	}
}

func TestKeyFrameHandler(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/"+videoID+"/phases/0/frame", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("content type = %s", ct)
	}
	if rr.Body.Len() == 0 {
		t.Error("empty frame body")
	}
}

func TestKeyFrameHandler_BadIndex(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/"+videoID+"/phases/abc/frame", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("non-numeric index status = %d, want 400", rr.Code)
	}

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/"+videoID+"/phases/99/frame", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("out-of-range index status = %d, want 404", rr.Code)
	}
}

func TestAlternativeFramesHandler(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/"+videoID+"/phases/0/alternative-frames", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}

	var resp AlternativeFramesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.AlternativeFrames) != 5 {
		t.Fatalf("alternatives = %d, want 5", len(resp.AlternativeFrames))
	}
	for i, a := range resp.AlternativeFrames {
		if _, err := base64.StdEncoding.DecodeString(a.ImageBase64); err != nil {
			t.Errorf("alternative %d image not base64: %v", i, err)
		}
	}
}

func TestRefineHandler(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	payload := `{"feedback": "mention the critical view"}`
	req := httptest.NewRequest(http.MethodPost, "/videos/"+videoID+"/phases/1/refine", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["refined_description"] != "Refined: mention the critical view" {
		t.Errorf("refined_description = %v", body["refined_description"])
	}
}

func TestRefineHandler_EmptyFeedback(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	req := httptest.NewRequest(http.MethodPost, "/videos/"+videoID+"/phases/0/refine", strings.NewReader(`{"feedback": "  "}`))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestUpdateKeyFrameHandler(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	image := base64.StdEncoding.EncodeToString([]byte("new-frame"))
	payload := fmt.Sprintf(`{"timestamp_seconds": 15, "image_base64": %q}`, image)
	req := httptest.NewRequest(http.MethodPost, "/videos/"+videoID+"/phases/0/keyframe", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["new_timestamp"] != "0:15" {
		t.Errorf("new_timestamp = %v", body["new_timestamp"])
	}
	if body["new_description"] != "Regenerated description." {
		t.Errorf("new_description = %v", body["new_description"])
	}
}

func TestUpdateKeyFrameHandler_InvalidImage(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	payload := `{"timestamp_seconds": 15, "image_base64": "not valid!!!"}`
	req := httptest.NewRequest(http.MethodPost, "/videos/"+videoID+"/phases/0/keyframe", strings.NewReader(payload))
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestReportHandler(t *testing.T) {
	env := setupEnv(t)
	videoID := uploadAndAnalyze(t, env)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/videos/"+videoID+"/report", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	reportText, _ := body["report"].(string)
	if !strings.Contains(reportText, "SURGICAL PROCEDURE DOCUMENTATION REPORT") {
		t.Error("report text missing header")
	}
	if body["phases_count"].(float64) != 3 {
		t.Errorf("phases_count = %v", body["phases_count"])
	}
}

func TestReportHandler_NoPhases(t *testing.T) {
	env := setupEnv(t)

	body, contentType := multipartUpload(t, "chole.mp4", "")
	req := httptest.NewRequest(http.MethodPost, "/videos/upload", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	var up UploadResponse
	json.Unmarshal(rr.Body.Bytes(), &up)

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/videos/"+up.VideoID+"/report", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestListVideosHandler(t *testing.T) {
	env := setupEnv(t)
	uploadAndAnalyze(t, env)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/videos/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp VideosResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode videos: %v", err)
	}
	if len(resp.Videos) != 1 {
		t.Errorf("videos = %d, want 1", len(resp.Videos))
	}
}
