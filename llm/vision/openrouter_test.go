package vision

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenRouterAnalyzer_AnalyzeImage(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("HTTP-Referer"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` +
			"```json\\n{\\\"art_style\\\": \\\"cartoon\\\"}\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	a := NewOpenRouterAnalyzer(OpenRouterConfig{APIKey: "secret", BaseURL: srv.URL}, zaptest.NewLogger(t))
	out, err := a.AnalyzeImage(context.Background(), "QUJD", "describe")
	require.NoError(t, err)
	assert.Equal(t, `{"art_style": "cartoon"}`, out)

	assert.Equal(t, "google/gemini-2.0-flash-exp:free", got.Model)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "text", got.Messages[0].Content[0].Type)
	assert.Equal(t, "describe", got.Messages[0].Content[0].Text)
	assert.Equal(t, "image_url", got.Messages[0].Content[1].Type)
	assert.Equal(t, "data:image/png;base64,QUJD", got.Messages[0].Content[1].ImageURL.URL)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
}

func TestOpenRouterAnalyzer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(t *testing.T, err error)
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, func(t *testing.T, err error) {
			var statusErr *StatusError
			require.True(t, errors.As(err, &statusErr))
			assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
		}},
		{"no choices", http.StatusOK, `{"choices":[]}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ErrEmptyResponse)
		}},
		{"garbage", http.StatusOK, `<html>`, func(t *testing.T, err error) {
			assert.Error(t, err)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewOpenRouterAnalyzer(OpenRouterConfig{BaseURL: srv.URL}, nil)
			_, err := a.AnalyzeImage(context.Background(), "QUJD", "describe")
			tt.wantErr(t, err)
		})
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		`{"a":1}`:                 `{"a":1}`,
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		"  ```json{\"a\":1}```  ": `{"a":1}`,
	}
	for in, want := range tests {
		assert.Equal(t, want, StripCodeFence(in), in)
	}
}
