// Package phases recovers a structured, temporally ordered list of
// surgical phases from the free-text response of a vision model. Parsing
// never fails: when the response has no recoverable structure the
// reconstructor synthesizes phases from the frame sequence, and any
// unexpected parsing error degrades to a single full-video phase. The
// caller always gets a usable (possibly degraded) phase list.
package phases

import (
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/docuhelp/docuhelp-server/internal/sampler"
)

var (
	timestampRangePattern = regexp.MustCompile(`(\d{1,2}):(\d{2})-(\d{1,2}):(\d{2})`)
	numberedBoldMarker    = regexp.MustCompile(`^\d+\.\s*\*\*`)
	markerOnlyLine        = regexp.MustCompile(`^[\d.\-*#>]+\s*$`)
	greetingLine          = regexp.MustCompile(`(?m)^(Okay[,.]|I'm ready|Here is).*$`)
)

// phasesSectionHeader marks the section whose body carries the phase list;
// any other recognized header ends phase collection.
const phasesSectionHeader = "SURGICAL PHASES"

var sectionHeaders = []string{
	"PROCEDURE OVERVIEW",
	"SURGICAL PHASES",
	"CLINICAL OBSERVATIONS",
	"ACCOUNTABILITY MARKERS",
	"TECHNICAL QUALITY",
	"PROCEDURE-SPECIFIC",
}

const (
	degradedDescriptionLimit = 500
	summaryLengthBudget      = 300
	fallbackSummarySnippet   = 100
	minMeaningfulLineLength  = 20
)

type Reconstructor struct {
	logger *slog.Logger
}

func NewReconstructor(logger *slog.Logger) *Reconstructor {
	return &Reconstructor{logger: logger}
}

// Reconstruct parses the raw analysis text into ordered phases, binding
// each one to a key frame from the sequence that produced the analysis.
// The result preserves response order; it is never empty when text or
// frames exist, and this method never returns an error or panics.
func (r *Reconstructor) Reconstruct(raw string, frames []sampler.Frame) (result []Phase) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("phase parsing failed, returning degraded output", "panic", rec)
			result = []Phase{degradedPhase(raw)}
		}
	}()

	clean := stripPreamble(raw)
	parsed := r.scan(clean, frames)

	for i := range parsed {
		parsed[i].Description = normalizeDescription(parsed[i].Description)
	}

	if len(parsed) == 0 {
		r.logger.Warn("no structured phases found, synthesizing from frames",
			"frames", len(frames), "response_preview", preview(raw, 200))
		return r.fallback(raw, frames)
	}

	r.logger.Info("parsed phases from analysis", "count", len(parsed))
	return parsed
}

// stripPreamble removes conversational text ahead of the first recognized
// section header, plus common greeting lines.
func stripPreamble(text string) string {
	for _, anchor := range []string{"**PROCEDURE", "**SURGICAL"} {
		if idx := strings.Index(text, anchor); idx > 0 {
			text = text[idx:]
			break
		}
	}
	return greetingLine.ReplaceAllString(text, "")
}

// scan is the line-oriented structural pass. It is a small state machine:
// outside the phases section, inside it, and (implicitly) collecting a
// description while a phase is open.
func (r *Reconstructor) scan(text string, frames []sampler.Frame) []Phase {
	var (
		result   []Phase
		current  *Phase
		inPhases bool
		used     = make(map[int]bool)
	)

	finalize := func() {
		if current != nil && strings.TrimSpace(current.Description) != "" {
			result = append(result, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.Contains(line, "**"+phasesSectionHeader+"**") {
			inPhases = true
			continue
		}
		if isOtherSectionHeader(line) {
			finalize()
			inPhases = false
			continue
		}

		if !inPhases {
			continue
		}

		if m := timestampRangePattern.FindStringSubmatch(line); m != nil {
			finalize()

			start := parseMinSec(m[1], m[2])
			end := parseMinSec(m[3], m[4])
			keyTime := (start + end) / 2

			current = &Phase{
				TimestampRange:      m[0],
				StartSeconds:        start,
				EndSeconds:          end,
				KeyTimestamp:        FormatTimestamp(keyTime),
				KeyTimestampSeconds: keyTime,
				KeyFrame:            bindKeyFrame(frames, keyTime, used),
			}
			continue
		}

		if current == nil {
			continue
		}

		// Numbered bold markers and bold-only lines are structural noise.
		if numberedBoldMarker.MatchString(line) {
			continue
		}
		if strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") {
			continue
		}

		if cleaned := cleanDescriptionLine(line); cleaned != "" {
			if current.Description != "" {
				current.Description += " " + cleaned
			} else {
				current.Description = cleaned
			}
		}
	}

	finalize()
	return result
}

func isOtherSectionHeader(line string) bool {
	for _, header := range sectionHeaders {
		if header == phasesSectionHeader {
			continue
		}
		if strings.Contains(line, "**"+header+"**") {
			return true
		}
	}
	return false
}

// bindKeyFrame picks the frame nearest the target second among frames not
// yet bound to a phase, marking it consumed. When every frame is already
// consumed it returns the globally nearest frame instead, so a phase is
// left without a key frame only when no frames exist at all.
func bindKeyFrame(frames []sampler.Frame, target float64, used map[int]bool) *sampler.Frame {
	if len(frames) == 0 {
		return nil
	}

	best := -1
	bestDist := math.Inf(1)
	for i := range frames {
		if used[i] {
			continue
		}
		if d := math.Abs(frames[i].Timestamp - target); d < bestDist {
			best, bestDist = i, d
		}
	}

	if best < 0 {
		// Every frame consumed: duplicate binding as a last resort.
		for i := range frames {
			if d := math.Abs(frames[i].Timestamp - target); d < bestDist {
				best, bestDist = i, d
			}
		}
		return &frames[best]
	}

	used[best] = true
	return &frames[best]
}

// fallback synthesizes phases when the structural scan recovered nothing.
// With three or more frames the sequence is split into 3-5 contiguous
// groups; with fewer, a single phase spans the whole video.
func (r *Reconstructor) fallback(raw string, frames []sampler.Frame) []Phase {
	summary := generalSummary(raw)

	if len(frames) < 3 {
		phase := Phase{
			TimestampRange: FullVideoRange,
			Description:    summary,
			KeyTimestamp:   "0:00",
		}
		if len(frames) > 0 {
			mid := &frames[len(frames)/2]
			phase.KeyFrame = mid
			phase.KeyTimestamp = FormatTimestamp(mid.Timestamp)
			phase.KeyTimestampSeconds = mid.Timestamp
			phase.EndSeconds = frames[len(frames)-1].Timestamp
		}
		return []Phase{phase}
	}

	numPhases := len(frames) / 3
	if numPhases < 3 {
		numPhases = 3
	}
	if numPhases > 5 {
		numPhases = 5
	}
	perPhase := len(frames) / numPhases

	var result []Phase
	for i := 0; i < numPhases; i++ {
		startIdx := i * perPhase
		if startIdx >= len(frames) {
			break
		}
		endIdx := (i + 1) * perPhase
		if endIdx > len(frames) {
			endIdx = len(frames)
		}

		startFrame := frames[startIdx]
		endFrame := frames[endIdx-1]
		key := frames[(startIdx+endIdx)/2]

		result = append(result, Phase{
			TimestampRange:      FormatTimestamp(startFrame.Timestamp) + "-" + FormatTimestamp(endFrame.Timestamp),
			StartSeconds:        startFrame.Timestamp,
			EndSeconds:          endFrame.Timestamp,
			KeyTimestamp:        FormatTimestamp(key.Timestamp),
			KeyTimestampSeconds: key.Timestamp,
			KeyFrame:            &key,
			Description:         "Surgical procedure phase " + strconv.Itoa(i+1) + ". " + preview(summary, fallbackSummarySnippet),
		})
	}

	r.logger.Info("created fallback phases", "count", len(result), "frames", len(frames))
	return result
}

// generalSummary extracts a best-effort free-text summary: meaningful lines
// that are not headers or markup, concatenated up to a length budget.
func generalSummary(text string) string {
	var parts []string
	total := 0

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") {
			continue
		}
		if markerOnlyLine.MatchString(line) {
			continue
		}

		clean := leadingMarkup.ReplaceAllString(line, "")
		if len(clean) <= minMeaningfulLineLength {
			continue
		}

		parts = append(parts, clean)
		total += len(clean) + 1
		if total > summaryLengthBudget {
			break
		}
	}

	if len(parts) == 0 {
		return preview(text, summaryLengthBudget)
	}
	return strings.Join(parts, " ")
}

// degradedPhase is the total-failure output: the raw response, truncated,
// as a single phase with no key frame.
func degradedPhase(raw string) Phase {
	return Phase{
		TimestampRange: FullVideoRange,
		Description:    preview(raw, degradedDescriptionLimit),
		KeyTimestamp:   "0:00",
	}
}

// parseMinSec converts already regex-validated minute/second captures.
func parseMinSec(min, sec string) float64 {
	m, _ := strconv.Atoi(min)
	s, _ := strconv.Atoi(sec)
	return float64(m*60 + s)
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
