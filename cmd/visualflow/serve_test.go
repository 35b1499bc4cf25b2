package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/visualflow/agents/batch"
	"github.com/BaSui01/visualflow/internal/metrics"
	"github.com/BaSui01/visualflow/storage"
)

// =============================================================================
// 🧪 serve 路由测试
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *storage.MemoryStore, *metrics.Collector) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	var srv *httptest.Server
	mux := http.NewServeMux()
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	signer, err := storage.NewURLSigner(srv.URL+"/objects", "test-secret")
	require.NoError(t, err)
	store := storage.NewMemoryStore(signer)
	collector := metrics.NewCollector("visualflow", nil, logger)

	mux.Handle("/", newServeHandler("/objects", storage.NewHandler(store, signer, logger), collector, logger))
	return srv, store, collector
}

func TestServeHandler_Objects(t *testing.T) {
	srv, store, _ := newTestServer(t)
	ctx := context.Background()

	key := storage.AgentKey("u1", "s1", 3, "diagram.png")
	require.NoError(t, store.PutObject(ctx, key, []byte("png-bytes"), "image/png"))

	signed, err := store.PresignURL(ctx, key, time.Hour)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(signed, srv.URL+"/objects/"))

	resp, err := http.Get(signed)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "png-bytes", string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	unsigned, err := http.Get(srv.URL + "/objects/" + key)
	require.NoError(t, err)
	defer unsigned.Body.Close()
	assert.Equal(t, http.StatusForbidden, unsigned.StatusCode)
}

func TestServeHandler_HealthAndMetrics(t *testing.T) {
	srv, _, collector := newTestServer(t)
	collector.RecordGeneration("replicate", "flux-schnell", "success", time.Second, 0.003)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, Version, health["version"])

	mresp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()

	body, _ := io.ReadAll(mresp.Body)
	assert.Equal(t, http.StatusOK, mresp.StatusCode)
	assert.Contains(t, string(body), "visualflow_image_generations_total")
}

func TestObjectPrefix(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://localhost:8080/objects", "/objects", false},
		{"https://cdn.example.com/media/objects/", "/media/objects", false},
		{"http://localhost:8080", "", true},
		{"://bad", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := objectPrefix(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSegmentPrompts(t *testing.T) {
	script := batch.Script{
		"conclusion": {VisualGuidance: "kids waving"},
		"hook":       {VisualGuidance: "a storm cloud", KeyConcepts: []string{"rain"}},
	}

	prompts := segmentPrompts(script)
	require.Len(t, prompts, 2)
	assert.Equal(t, "hook", prompts[0].Segment)
	assert.Equal(t, "a storm cloud, featuring: rain", prompts[0].Prompt)
	assert.Equal(t, "conclusion", prompts[1].Segment)
	assert.Equal(t, "kids waving", prompts[1].Prompt)
}
