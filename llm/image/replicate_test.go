package image

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestLookupModel(t *testing.T) {
	tests := []struct {
		name    string
		family  ModelFamily
		cost    float64
		owner   string
		model   string
		version string
	}{
		{ModelFlux11Pro, FamilyFlux, 0.04, "black-forest-labs", "flux-1.1-pro", ""},
		{ModelFluxPro, FamilyFlux, 0.05, "black-forest-labs", "flux-pro", ""},
		{ModelFluxDev, FamilyFlux, 0.025, "black-forest-labs", "flux-dev", ""},
		{ModelFluxSchnell, FamilyFlux, 0.003, "black-forest-labs", "flux-schnell", ""},
		{ModelSDXL, FamilySDXL, 0.01, "stability-ai", "sdxl", "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := LookupModel(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.family, m.Family)
			assert.Equal(t, tt.cost, m.CostPerImage)
			assert.Equal(t, tt.owner, m.Owner())
			assert.Equal(t, tt.model, m.ModelName())
			assert.Equal(t, tt.version, m.Version())
		})
	}

	_, err := LookupModel("dall-e")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestBuildInput(t *testing.T) {
	flux, _ := LookupModel(ModelFluxSchnell)
	in := BuildInput(flux, &GenerateRequest{Prompt: "p", AspectRatio: "16:9", CFGScale: 7.5, Seed: int64Ptr(42)})
	assert.Equal(t, map[string]any{
		"prompt":           "p",
		"guidance":         7.5,
		"num_outputs":      1,
		"aspect_ratio":     "16:9",
		"output_format":    "png",
		"output_quality":   100,
		"safety_tolerance": 2,
		"seed":             int64(42),
	}, in)

	in = BuildInput(flux, &GenerateRequest{Prompt: "p", Width: 1024, Height: 1024, Quality: 90})
	assert.Equal(t, 1024, in["width"])
	assert.Equal(t, 90, in["output_quality"])
	assert.NotContains(t, in, "aspect_ratio")
	assert.NotContains(t, in, "seed")

	sdxl, _ := LookupModel(ModelSDXL)
	in = BuildInput(sdxl, &GenerateRequest{Prompt: "p", Seed: int64Ptr(7)})
	assert.Equal(t, map[string]any{
		"prompt":              "p",
		"negative_prompt":     DefaultSDXLNegativePrompt,
		"width":               1920,
		"height":              1080,
		"guidance_scale":      7.5,
		"num_inference_steps": 50,
		"seed":                int64(7),
	}, in)
}

func TestReplicateProvider_GenerateSync(t *testing.T) {
	var gotPath, gotAuth, gotPrefer string
	var gotBody replicatePredictionRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotPrefer = r.Header.Get("Prefer")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "p1",
			"status": "succeeded",
			"output": []string{"https://replicate.delivery/out.png"},
		})
	}))
	defer srv.Close()

	p := NewReplicateProvider(ReplicateConfig{APIToken: "tok", BaseURL: srv.URL})
	resp, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "a cloud", Width: 1024, Height: 1024})
	require.NoError(t, err)

	assert.Equal(t, "/v1/models/black-forest-labs/flux-1.1-pro/predictions", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "wait", gotPrefer)
	assert.Equal(t, "a cloud", gotBody.Input["prompt"])
	assert.Empty(t, gotBody.Version)

	img, err := resp.First()
	require.NoError(t, err)
	assert.Equal(t, "https://replicate.delivery/out.png", img.URL)
	assert.Equal(t, ModelFlux11Pro, resp.Model)
	assert.Equal(t, 0.04, resp.Usage.Cost)
}

func TestReplicateProvider_VersionedModelAndPolling(t *testing.T) {
	var polls int32
	var srvURL string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/predictions":
			var body replicatePredictionRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "39ed52f2a78e934b3ba6e2a89f5b1c712de7dfea535525255b1aa35c5565e08b", body.Version)
			assert.Equal(t, DefaultSDXLNegativePrompt, body.Input["negative_prompt"])
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "p2", "status": "starting",
				"urls": map[string]string{"get": srvURL + "/v1/predictions/p2"},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/predictions/p2":
			if atomic.AddInt32(&polls, 1) < 3 {
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "p2", "status": "processing"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "p2", "status": "succeeded", "output": "https://replicate.delivery/sdxl.png"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	p := NewReplicateProvider(ReplicateConfig{BaseURL: srv.URL, Model: ModelSDXL, PollInterval: 5 * time.Millisecond})
	resp, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "rain"})
	require.NoError(t, err)
	assert.Equal(t, "https://replicate.delivery/sdxl.png", resp.Images[0].URL)
	assert.Equal(t, int32(3), atomic.LoadInt32(&polls))
}

func TestReplicateProvider_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "http error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"detail":"unauthenticated"}`, http.StatusUnauthorized)
			},
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
			},
		},
		{
			name: "prediction failed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "x", "status": "failed", "error": "nsfw"})
			},
			check: func(t *testing.T, err error) { assert.Contains(t, err.Error(), "failed") },
		},
		{
			name: "empty output",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"id": "x", "status": "succeeded", "output": []string{}})
			},
			check: func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrNoImage) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			p := NewReplicateProvider(ReplicateConfig{BaseURL: srv.URL})
			_, err := p.Generate(context.Background(), &GenerateRequest{Prompt: "x"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestReplicateProvider_PollRespectsContext(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "slow", "status": "processing",
			"urls": map[string]string{"get": srvURL + "/v1/predictions/slow"},
		})
	}))
	defer srv.Close()
	srvURL = srv.URL

	p := NewReplicateProvider(ReplicateConfig{BaseURL: srv.URL, PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Generate(ctx, &GenerateRequest{Prompt: "x"})
	assert.Error(t, err)
}
