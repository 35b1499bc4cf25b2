package consistency

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAnalyzer struct {
	response  string
	err       error
	gotImage  string
	gotPrompt string
}

func (f *fakeAnalyzer) AnalyzeImage(ctx context.Context, imageBase64, prompt string) (string, error) {
	f.gotImage = imageBase64
	f.gotPrompt = prompt
	return f.response, f.err
}

type countingRecorder struct {
	extractions  []string
	loads        []string
	enhancements map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{enhancements: make(map[string]int)}
}

func (r *countingRecorder) RecordExtraction(outcome string) {
	r.extractions = append(r.extractions, outcome)
}
func (r *countingRecorder) RecordStateLoad(outcome string) { r.loads = append(r.loads, outcome) }
func (r *countingRecorder) RecordEnhancement(segment string, enhanced bool) {
	if enhanced {
		r.enhancements[segment]++
	}
}

func imageServer(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/diagram.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("fake-png-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStyleExtractor_FallbackWithoutAnalyzer(t *testing.T) {
	srv := imageServer(t)
	rec := newCountingRecorder()
	ex := NewStyleExtractor(nil, zaptest.NewLogger(t), WithExtractorRecorder(rec))

	attrs := ex.ExtractStyle(context.Background(), srv.URL+"/diagram.png")

	assert.Equal(t, FallbackStyle(), attrs)
	require.NotNil(t, attrs.ArtStyle)
	assert.Equal(t, "illustrated, colorful, kid-friendly", *attrs.ArtStyle)
	assert.Equal(t, []string{"vibrant", "saturated"}, attrs.PrimaryColors)
	assert.Equal(t, "educational, engaging", *attrs.Atmosphere)
	assert.Nil(t, attrs.Subjects)
	assert.Equal(t, []string{"fallback"}, rec.extractions)
}

func TestStyleExtractor_FetchFailures(t *testing.T) {
	srv := imageServer(t)

	tests := []struct {
		name string
		url  string
	}{
		{"non-2xx", srv.URL + "/missing.png"},
		{"unreachable", "http://127.0.0.1:1/diagram.png"},
		{"invalid url", "://bad"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analyzer := &fakeAnalyzer{response: `{"art_style": "x"}`}
			rec := newCountingRecorder()
			ex := NewStyleExtractor(nil, zaptest.NewLogger(t),
				WithVisionAnalyzer(analyzer), WithExtractorRecorder(rec))

			attrs := ex.ExtractStyle(context.Background(), tt.url)
			assert.True(t, attrs.IsEmpty())
			assert.Empty(t, analyzer.gotImage)
			assert.Equal(t, []string{"fetch"}, rec.extractions)
		})
	}
}

func TestStyleExtractor_WithAnalyzer(t *testing.T) {
	srv := imageServer(t)
	analyzer := &fakeAnalyzer{response: `{
		"art_style": "flat vector",
		"primary_colors": ["navy", "gold"],
		"atmosphere": "curious",
		"subjects": "a water cycle diagram"
	}`}
	ex := NewStyleExtractor(nil, zaptest.NewLogger(t), WithVisionAnalyzer(analyzer))

	attrs := ex.ExtractStyle(context.Background(), srv.URL+"/diagram.png")

	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("fake-png-bytes")), analyzer.gotImage)
	assert.Equal(t, StyleInstructionPrompt, analyzer.gotPrompt)
	assert.Equal(t, "flat vector", *attrs.ArtStyle)
	assert.Equal(t, []string{"navy", "gold"}, attrs.PrimaryColors)
	assert.Equal(t, "curious", *attrs.Atmosphere)
	assert.Equal(t, "a water cycle diagram", *attrs.Subjects)
}

func TestStyleExtractor_AnalyzerFailuresDegrade(t *testing.T) {
	srv := imageServer(t)

	tests := []struct {
		name     string
		analyzer *fakeAnalyzer
		outcome  string
	}{
		{"analyzer error", &fakeAnalyzer{err: errors.New("status 500")}, "analyze"},
		{"not json", &fakeAnalyzer{response: "I think it is a cartoon"}, "decode"},
		{"json array", &fakeAnalyzer{response: `["a"]`}, "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newCountingRecorder()
			ex := NewStyleExtractor(nil, zaptest.NewLogger(t),
				WithVisionAnalyzer(tt.analyzer), WithExtractorRecorder(rec))

			attrs := ex.ExtractStyle(context.Background(), srv.URL+"/diagram.png")
			assert.True(t, attrs.IsEmpty())
			assert.Equal(t, []string{tt.outcome}, rec.extractions)
		})
	}
}

func TestParseStyleAttributes(t *testing.T) {
	attrs, err := ParseStyleAttributes(`{"atmosphere": "calm"}`)
	require.NoError(t, err)
	assert.Nil(t, attrs.ArtStyle)
	assert.Nil(t, attrs.PrimaryColors)
	assert.Equal(t, "calm", *attrs.Atmosphere)

	attrs, err = ParseStyleAttributes(`{"art_style": 12, "primary_colors": "red, blue ,", "subjects": ["sun", "sea"]}`)
	require.NoError(t, err)
	assert.Nil(t, attrs.ArtStyle)
	assert.Equal(t, []string{"red", "blue"}, attrs.PrimaryColors)
	assert.Equal(t, "sun, sea", *attrs.Subjects)

	attrs, err = ParseStyleAttributes(`{"primary_colors": []}`)
	require.NoError(t, err)
	assert.NotNil(t, attrs.PrimaryColors)
	assert.Empty(t, attrs.PrimaryColors)

	_, err = ParseStyleAttributes(`null`)
	assert.Error(t, err)
}

func TestParseStyleAttributes_NullAndAbsentKeys(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"absent keys", `{}`},
		{"null values", `{"art_style": null, "primary_colors": null, "atmosphere": null, "subjects": null}`},
		{"object and number shapes", `{"art_style": {"name": "flat"}, "primary_colors": 3, "atmosphere": false, "subjects": {}}`},
		{"mixed list", `{"primary_colors": ["red", 7], "subjects": [null]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs, err := ParseStyleAttributes(tt.raw)
			require.NoError(t, err)
			assert.Nil(t, attrs.ArtStyle)
			assert.Nil(t, attrs.PrimaryColors)
			assert.Nil(t, attrs.Atmosphere)
			assert.Nil(t, attrs.Subjects)
			assert.True(t, attrs.IsEmpty())

			mgr := NewManager(zaptest.NewLogger(t))
			mgr.InitializeFromSession("Water Cycle", "8", "space")
			mgr.ApplyStyle("https://cdn.example.com/seed.png", StyleAttributes{PrimaryColors: []string{"teal", "sand"}})

			mgr.ApplyStyle("https://cdn.example.com/diagram.png", attrs)

			s := mgr.State()
			assert.Equal(t, ArtStyleMiddle, s.ArtStyle)
			assert.Equal(t, "engaging, space themed", s.Atmosphere)
			assert.Equal(t, []string{"teal", "sand"}, s.PrimaryColors)
		})
	}
}

func TestManager_ExtractStyleFromDiagram(t *testing.T) {
	srv := imageServer(t)
	mgr := NewManager(nil)
	ex := NewStyleExtractor(nil, nil)

	attrs := mgr.ExtractStyleFromDiagram(context.Background(), ex, srv.URL+"/diagram.png")
	assert.False(t, attrs.IsEmpty())

	s := mgr.State()
	assert.Equal(t, FallbackArtStyle, s.ArtStyle)
	assert.Equal(t, FallbackPrimaryColors, s.PrimaryColors)
	assert.Equal(t, FallbackAtmosphere, s.Atmosphere)
	assert.Equal(t, srv.URL+"/diagram.png", *s.ReferenceImageURL)
}

func TestManager_ExtractStyleFailureStillRecordsReference(t *testing.T) {
	srv := imageServer(t)
	mgr := NewManager(nil)
	ex := NewStyleExtractor(nil, nil)

	attrs := mgr.ExtractStyleFromDiagram(context.Background(), ex, srv.URL+"/missing.png")
	assert.True(t, attrs.IsEmpty())

	s := mgr.State()
	assert.Equal(t, DefaultArtStyle, s.ArtStyle)
	assert.Empty(t, s.PrimaryColors)
	require.NotNil(t, s.ReferenceImageURL)
	assert.Equal(t, srv.URL+"/missing.png", *s.ReferenceImageURL)
}
