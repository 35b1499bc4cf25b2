package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/visualflow/internal/tlsutil"
)

// ReplicateProvider implements image generation using hosted Replicate models.
// API Docs: https://replicate.com/docs/reference/http
type ReplicateProvider struct {
	cfg    ReplicateConfig
	client *http.Client
}

// NewReplicateProvider creates a new Replicate image provider.
func NewReplicateProvider(cfg ReplicateConfig) *ReplicateProvider {
	def := DefaultReplicateConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = def.MaxPollAttempts
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = def.Timeout
	}

	return &ReplicateProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(timeout),
	}
}

func (p *ReplicateProvider) Name() string { return "replicate" }

type replicatePredictionRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  any             `json:"error,omitempty"`
	URLs   struct {
		Get    string `json:"get"`
		Cancel string `json:"cancel"`
	} `json:"urls"`
}

func (p *replicatePrediction) terminal() bool {
	switch p.Status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// firstOutput extracts the first URL from a string or list output.
func (p *replicatePrediction) firstOutput() (string, error) {
	if len(p.Output) == 0 || string(p.Output) == "null" {
		return "", ErrNoImage
	}
	var single string
	if err := json.Unmarshal(p.Output, &single); err == nil {
		if single == "" {
			return "", ErrNoImage
		}
		return single, nil
	}
	var list []string
	if err := json.Unmarshal(p.Output, &list); err != nil {
		return "", fmt.Errorf("unexpected replicate output: %s", string(p.Output))
	}
	if len(list) == 0 || list[0] == "" {
		return "", ErrNoImage
	}
	return list[0], nil
}

// Generate creates a prediction and waits for its output.
// Endpoint: POST /v1/models/{owner}/{name}/predictions, or /v1/predictions for pinned versions.
// Auth: Bearer token
func (p *ReplicateProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	name := req.Model
	if name == "" {
		name = p.cfg.Model
	}
	model, err := LookupModel(name)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(p.cfg.BaseURL, "/")
	body := replicatePredictionRequest{Input: BuildInput(model, req)}
	endpoint := fmt.Sprintf("%s/v1/models/%s/%s/predictions", base, model.Owner(), model.ModelName())
	if v := model.Version(); v != "" {
		body.Version = v
		endpoint = base + "/v1/predictions"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal replicate input: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait")

	prediction, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	if !prediction.terminal() {
		if prediction, err = p.poll(ctx, prediction); err != nil {
			return nil, err
		}
	}
	if prediction.Status != "succeeded" {
		return nil, fmt.Errorf("replicate prediction %s %s: %v", prediction.ID, prediction.Status, prediction.Error)
	}

	url, err := prediction.firstOutput()
	if err != nil {
		return nil, err
	}

	return &GenerateResponse{
		Provider: p.Name(),
		Model:    model.Name,
		Images:   []ImageData{{URL: url, Seed: req.Seed}},
		Usage: ImageUsage{
			ImagesGenerated: 1,
			Cost:            model.CostPerImage,
		},
		CreatedAt: time.Now(),
	}, nil
}

func (p *ReplicateProvider) do(httpReq *http.Request) (*replicatePrediction, error) {
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIToken)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("replicate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	var prediction replicatePrediction
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return nil, fmt.Errorf("failed to decode replicate response: %w", err)
	}
	return &prediction, nil
}

// poll checks the prediction until it reaches a terminal status.
func (p *ReplicateProvider) poll(ctx context.Context, prediction *replicatePrediction) (*replicatePrediction, error) {
	if prediction.URLs.Get == "" {
		return nil, fmt.Errorf("replicate prediction %s has no polling url", prediction.ID)
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for i := 0; i < p.cfg.MaxPollAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, prediction.URLs.Get, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create poll request: %w", err)
		}
		next, err := p.do(httpReq)
		if err != nil {
			// transient poll failures are retried until attempts run out
			continue
		}
		if next.terminal() {
			return next, nil
		}
	}

	return nil, fmt.Errorf("replicate prediction %s timed out", prediction.ID)
}
