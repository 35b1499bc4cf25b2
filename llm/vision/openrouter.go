// Package vision provides image analysis backed by multimodal chat models.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/visualflow/internal/tlsutil"
)

// ErrEmptyResponse 模型未返回任何内容
var ErrEmptyResponse = errors.New("vision model returned no content")

// OpenRouterConfig configures the OpenRouter analyzer.
type OpenRouterConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Referer string        `json:"referer,omitempty" yaml:"referer,omitempty"`
	Title   string        `json:"title,omitempty" yaml:"title,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultOpenRouterConfig returns the default OpenRouter settings.
func DefaultOpenRouterConfig() OpenRouterConfig {
	return OpenRouterConfig{
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "google/gemini-2.0-flash-exp:free",
		Referer: "https://github.com/BaSui01/visualflow",
		Title:   "visualflow",
		Timeout: 60 * time.Second,
	}
}

// StatusError is a non-2xx response from the chat completions endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openrouter error: status=%d body=%s", e.StatusCode, e.Body)
}

// OpenRouterAnalyzer sends images to a vision model through OpenRouter's
// OpenAI compatible chat completions API.
type OpenRouterAnalyzer struct {
	cfg    OpenRouterConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenRouterAnalyzer creates an analyzer. Empty config fields take defaults.
func NewOpenRouterAnalyzer(cfg OpenRouterConfig, logger *zap.Logger) *OpenRouterAnalyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOpenRouterConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Referer == "" {
		cfg.Referer = def.Referer
	}
	if cfg.Title == "" {
		cfg.Title = def.Title
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &OpenRouterAnalyzer{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "openrouter_vision")),
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// AnalyzeImage submits a base64 PNG with an instruction prompt and returns
// the model's JSON text.
func (a *OpenRouterAnalyzer) AnalyzeImage(ctx context.Context, imageBase64 string, prompt string) (string, error) {
	body := chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: "data:image/png;base64," + imageBase64}},
			},
		}},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(a.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("HTTP-Referer", a.cfg.Referer)
	req.Header.Set("X-Title", a.cfg.Title)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode openrouter response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}

	a.logger.Debug("vision analysis complete",
		zap.String("model", a.cfg.Model),
		zap.Duration("latency", time.Since(start)))
	return StripCodeFence(out.Choices[0].Message.Content), nil
}

// StripCodeFence removes a surrounding markdown code fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
