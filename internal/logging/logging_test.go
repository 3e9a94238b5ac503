package logging

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestWithHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	WithRequestID(logger, "req-1").Info("a")
	WithComponent(logger, "runner").Info("b")
	WithJobID(logger, "job-1").Info("c")
	WithVideoID(logger, "vid-1").Info("d")

	out := buf.String()
	for _, attr := range []string{
		"request_id=req-1",
		"component=runner",
		"job_id=job-1",
		"video_id=vid-1",
	} {
		if !strings.Contains(out, attr) {
			t.Errorf("log output missing %q: %s", attr, out)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "****"},
		{"short", "****"},
		{"12345678", "****"},
		{"sk-or-v1-abcdef123456", "sk-o...3456"},
	}
	for _, tc := range cases {
		if got := SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}

	got := SanitizePath(home + "/videos/case.mp4")
	if got != "~/videos/case.mp4" {
		t.Errorf("SanitizePath() = %q", got)
	}

	if got := SanitizePath("/srv/uploads/case.mp4"); got != "/srv/uploads/case.mp4" {
		t.Errorf("SanitizePath() altered non-home path: %q", got)
	}
}
