package vlm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func completionResponse(text string) string {
	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": text}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestAnalyzeFramesSuccess(t *testing.T) {
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Write([]byte(completionResponse("**SURGICAL PHASES** analysis text")))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-key", "", testLogger())
	frames := [][]byte{{0xFF, 0xD8, 0x01}, {0xFF, 0xD8, 0x02}}

	result, err := c.AnalyzeFrames(context.Background(), "analyze this", frames)
	if err != nil {
		t.Fatalf("AnalyzeFrames: %v", err)
	}

	if result.Summary != "**SURGICAL PHASES** analysis text" {
		t.Errorf("summary = %q", result.Summary)
	}
	if result.FramesAnalyzed != 2 {
		t.Errorf("frames analyzed = %d, want 2", result.FramesAnalyzed)
	}
	if result.Model != DefaultModel {
		t.Errorf("model = %q, want default", result.Model)
	}

	if len(gotReq.Messages) != 1 {
		t.Fatalf("message count = %d", len(gotReq.Messages))
	}
	parts := gotReq.Messages[0].Content
	if len(parts) != 3 {
		t.Fatalf("content parts = %d, want prompt + 2 images", len(parts))
	}
	if parts[0].Type != "text" || parts[0].Text != "analyze this" {
		t.Errorf("first part = %+v, want the prompt", parts[0])
	}
	for i, p := range parts[1:] {
		if p.Type != "image_url" || p.ImageURL == nil {
			t.Fatalf("part %d is not an image", i+1)
		}
		if !strings.HasPrefix(p.ImageURL.URL, "data:image/jpeg;base64,") {
			t.Errorf("part %d url = %q, want jpeg data url", i+1, p.ImageURL.URL)
		}
	}
}

func TestAnalyzeFramesRetriesRateLimit(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error": "rate limited"}`))
			return
		}
		w.Write([]byte(completionResponse("done")))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "", testLogger())
	c.retryDelay = time.Millisecond

	result, err := c.AnalyzeFrames(context.Background(), "p", nil)
	if err != nil {
		t.Fatalf("AnalyzeFrames: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if result.Summary != "done" {
		t.Errorf("summary = %q", result.Summary)
	}
}

func TestAnalyzeFramesPermanentErrorNoRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "bad key"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad", "", testLogger())
	c.retryDelay = time.Millisecond

	_, err := c.AnalyzeFrames(context.Background(), "p", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.IsRetryable() {
		t.Error("401 should not be retryable")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestAnalyzeFramesRetriesExhausted(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "", testLogger())
	c.retryDelay = time.Millisecond

	_, err := c.AnalyzeFrames(context.Background(), "p", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != maxRetries {
		t.Errorf("attempts = %d, want %d", attempts, maxRetries)
	}
}

func TestRefineDescriptionStripsLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionResponse("**REFINED DESCRIPTION**: Careful dissection of the triangle.")))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "", testLogger())

	got, err := c.RefineDescription(context.Background(), []byte{1}, "cholecystectomy", "old", "mention the triangle")
	if err != nil {
		t.Fatalf("RefineDescription: %v", err)
	}
	if got != "Careful dissection of the triangle." {
		t.Errorf("refined = %q", got)
	}
}

func TestDescribeFrame(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionResponse("  Clips applied to the cystic duct.\n")))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "", testLogger())

	got, err := c.DescribeFrame(context.Background(), []byte{1}, "cholecystectomy", 2)
	if err != nil {
		t.Fatalf("DescribeFrame: %v", err)
	}
	if got != "Clips applied to the cystic duct." {
		t.Errorf("description = %q", got)
	}
}

func TestAnalyzeFramesEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", "", testLogger())
	if _, err := c.AnalyzeFrames(context.Background(), "p", nil); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
