// Package vlm calls a vision-language model through the OpenRouter chat
// completions API, sending video frames as base64 data URLs.
package vlm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "google/gemini-2.0-flash-exp:free"

	maxRetries     = 5
	baseRetryDelay = 2 * time.Second
)

// APIError represents a non-2xx response from the completions endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vlm request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether the request is worth repeating. Only rate
// limiting is; other client and server errors are treated as permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// Result is the outcome of one analysis call.
type Result struct {
	Summary        string  `json:"summary"`
	Model          string  `json:"model"`
	LatencyS       float64 `json:"latency"`
	FramesAnalyzed int     `json:"frames_analyzed"`
}

type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger

	// retryDelay is overridable so tests do not sleep.
	retryDelay time.Duration
}

func NewClient(baseURL, apiKey, model string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger:     logger,
		retryDelay: baseRetryDelay,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// AnalyzeFrames sends the prompt and every frame image in one multimodal
// message and returns the model's full text response.
func (c *Client) AnalyzeFrames(ctx context.Context, prompt string, frames [][]byte) (*Result, error) {
	parts := make([]contentPart, 0, len(frames)+1)
	parts = append(parts, contentPart{Type: "text", Text: prompt})
	for _, img := range frames {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURL(img)},
		})
	}

	c.logger.Info("analyzing frames", "frames", len(frames), "model", c.model)

	start := time.Now()
	text, err := c.complete(ctx, parts)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	c.logger.Info("analysis completed", "latency_s", latency.Seconds())

	return &Result{
		Summary:        text,
		Model:          c.model,
		LatencyS:       math.Round(latency.Seconds()*100) / 100,
		FramesAnalyzed: len(frames),
	}, nil
}

// RefineDescription rewrites a phase description around expert feedback,
// grounded in the phase's key frame image.
func (c *Client) RefineDescription(ctx context.Context, frame []byte, procedure, current, feedback string) (string, error) {
	parts := []contentPart{
		{Type: "text", Text: RefinementPrompt(procedure, current, feedback)},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL(frame)}},
	}

	text, err := c.complete(ctx, parts)
	if err != nil {
		return "", err
	}
	return stripResponseLabels(text), nil
}

// DescribeFrame generates a fresh description for a phase from a single
// key frame image.
func (c *Client) DescribeFrame(ctx context.Context, frame []byte, procedure string, phaseNumber int) (string, error) {
	parts := []contentPart{
		{Type: "text", Text: DescribeFramePrompt(procedure, phaseNumber)},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL(frame)}},
	}

	text, err := c.complete(ctx, parts)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// complete performs the chat completion request with exponential backoff
// on rate limiting.
func (c *Client) complete(ctx context.Context, parts []contentPart) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: []chatMessage{{Role: "user", Content: parts}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * (1 << (attempt - 1))
			c.logger.Warn("rate limited, retrying",
				"attempt", attempt+1, "max_attempts", maxRetries, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.IsRetryable() {
			return "", err
		}
	}
	return "", fmt.Errorf("rate limit retries exhausted: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat response contained no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func dataURL(img []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img)
}

// stripResponseLabels removes label artifacts the model sometimes echoes
// back despite instructions.
func stripResponseLabels(text string) string {
	text = strings.TrimSpace(text)
	for _, label := range []string{"**REFINED DESCRIPTION**:", "Refined Description:", "Description:"} {
		text = strings.TrimSpace(strings.ReplaceAll(text, label, ""))
	}
	return text
}
