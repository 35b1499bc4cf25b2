package consistency

import (
	"context"
	"encoding/base64"
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

// StyleInstructionPrompt is sent to the vision analyzer together with the
// reference image.
const StyleInstructionPrompt = `Analyze this illustration and return ONLY a JSON object with:
{
  "art_style": "describe the artistic style (cartoon, realistic, etc.)",
  "primary_colors": ["list", "main", "colors"],
  "atmosphere": "describe the mood and feeling",
  "subjects": "what is depicted"
}`

// 无视觉分析能力时的固定降级属性
const (
	FallbackArtStyle   = "illustrated, colorful, kid-friendly"
	FallbackAtmosphere = "educational, engaging"
)

// FallbackPrimaryColors is returned when no vision analyzer is configured.
var FallbackPrimaryColors = []string{"vibrant", "saturated"}

const (
	defaultFetchTimeout   = 30 * time.Second
	defaultAnalyzeTimeout = 60 * time.Second
)

// StyleAttributes is a partial update of the visual state. A nil pointer or a
// nil slice means the attribute was not extracted.
type StyleAttributes struct {
	ArtStyle      *string  `json:"art_style,omitempty"`
	PrimaryColors []string `json:"primary_colors,omitempty"`
	Atmosphere    *string  `json:"atmosphere,omitempty"`
	Subjects      *string  `json:"subjects,omitempty"`
}

// IsEmpty reports whether no attribute is present.
func (a StyleAttributes) IsEmpty() bool {
	return a.ArtStyle == nil && a.PrimaryColors == nil && a.Atmosphere == nil && a.Subjects == nil
}

// FallbackStyle returns the deterministic attribute set used without a vision
// analyzer.
func FallbackStyle() StyleAttributes {
	art, atmosphere := FallbackArtStyle, FallbackAtmosphere
	return StyleAttributes{
		ArtStyle:      &art,
		PrimaryColors: append([]string{}, FallbackPrimaryColors...),
		Atmosphere:    &atmosphere,
	}
}

// mergeInto applies present attributes onto the state. Subjects is informational
// and never merged.
func (a StyleAttributes) mergeInto(s *VisualState) {
	if a.ArtStyle != nil {
		s.ArtStyle = *a.ArtStyle
	}
	if a.PrimaryColors != nil {
		s.PrimaryColors = append([]string{}, a.PrimaryColors...)
	}
	if a.Atmosphere != nil {
		s.Atmosphere = *a.Atmosphere
	}
}

// ImageFetcher downloads an image. A non-nil error means a transport failure;
// the status code is inspected by the caller.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (status int, body []byte, err error)
}

// VisionAnalyzer submits an image for analysis and returns the raw JSON text.
type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageBase64 string, prompt string) (string, error)
}

// HTTPFetcher fetches images over HTTP.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher creates a fetcher with the given timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{Client: tlsutil.SecureHTTPClient(timeout)}
}

// Fetch implements ImageFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// StyleExtractor derives style attributes from a reference image.
type StyleExtractor struct {
	fetcher        ImageFetcher
	analyzer       VisionAnalyzer
	recorder       Recorder
	fetchTimeout   time.Duration
	analyzeTimeout time.Duration
	logger         *zap.Logger
}

// ExtractorOption configures a StyleExtractor.
type ExtractorOption func(*StyleExtractor)

// WithVisionAnalyzer enables vision analysis.
func WithVisionAnalyzer(analyzer VisionAnalyzer) ExtractorOption {
	return func(e *StyleExtractor) { e.analyzer = analyzer }
}

// WithExtractorRecorder reports extraction outcomes.
func WithExtractorRecorder(r Recorder) ExtractorOption {
	return func(e *StyleExtractor) { e.recorder = r }
}

// WithTimeouts overrides the fetch and analyze timeouts.
func WithTimeouts(fetch, analyze time.Duration) ExtractorOption {
	return func(e *StyleExtractor) {
		if fetch > 0 {
			e.fetchTimeout = fetch
		}
		if analyze > 0 {
			e.analyzeTimeout = analyze
		}
	}
}

// NewStyleExtractor creates an extractor. A nil fetcher uses HTTPFetcher.
func NewStyleExtractor(fetcher ImageFetcher, logger *zap.Logger, opts ...ExtractorOption) *StyleExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher(defaultFetchTimeout)
	}
	e := &StyleExtractor{
		fetcher:        fetcher,
		recorder:       nopRecorder{},
		fetchTimeout:   defaultFetchTimeout,
		analyzeTimeout: defaultAnalyzeTimeout,
		logger:         logger.With(zap.String("component", "style_extractor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractStyle returns the attributes found in the image at imageURL. Failures
// are logged and yield empty attributes.
func (e *StyleExtractor) ExtractStyle(ctx context.Context, imageURL string) StyleAttributes {
	attrs, err := e.extract(ctx, imageURL)
	if err != nil {
		var failure *ExtractionFailure
		if errors.As(err, &failure) {
			e.recorder.RecordExtraction(string(failure.Stage))
		}
		e.logger.Warn("style extraction failed, using empty attributes",
			zap.String("image_url", imageURL),
			zap.Error(err))
		return StyleAttributes{}
	}

	outcome := "analyzed"
	if e.analyzer == nil {
		outcome = "fallback"
	}
	e.recorder.RecordExtraction(outcome)
	e.logger.Info("extracted style from reference image",
		zap.String("image_url", imageURL),
		zap.String("outcome", outcome))
	return attrs
}

func (e *StyleExtractor) extract(ctx context.Context, imageURL string) (StyleAttributes, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	status, body, err := e.fetcher.Fetch(fetchCtx, imageURL)
	if err != nil {
		return StyleAttributes{}, &ExtractionFailure{Stage: StageFetch, ImageURL: imageURL, Err: err}
	}
	if status < 200 || status > 299 {
		return StyleAttributes{}, &ExtractionFailure{
			Stage:    StageFetch,
			ImageURL: imageURL,
			Err:      fmt.Errorf("unexpected status %d", status),
		}
	}

	if e.analyzer == nil {
		return FallbackStyle(), nil
	}

	analyzeCtx, cancelAnalyze := context.WithTimeout(ctx, e.analyzeTimeout)
	defer cancelAnalyze()

	encoded := base64.StdEncoding.EncodeToString(body)
	raw, err := e.analyzer.AnalyzeImage(analyzeCtx, encoded, StyleInstructionPrompt)
	if err != nil {
		return StyleAttributes{}, &ExtractionFailure{Stage: StageAnalyze, ImageURL: imageURL, Err: err}
	}

	attrs, err := ParseStyleAttributes(raw)
	if err != nil {
		return StyleAttributes{}, &ExtractionFailure{Stage: StageDecode, ImageURL: imageURL, Err: err}
	}
	return attrs, nil
}

// ParseStyleAttributes decodes a vision response. Fields of an unexpected type
// are treated as absent; a response that is not a JSON object is an error.
func ParseStyleAttributes(raw string) (StyleAttributes, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return StyleAttributes{}, fmt.Errorf("decode style response: %w", err)
	}
	if fields == nil {
		return StyleAttributes{}, errors.New("decode style response: null object")
	}

	var attrs StyleAttributes
	attrs.ArtStyle = rawString(fields["art_style"])
	attrs.Atmosphere = rawString(fields["atmosphere"])

	if colors, ok := rawList(fields["primary_colors"]); ok {
		attrs.PrimaryColors = colors
	} else if s := rawString(fields["primary_colors"]); s != nil {
		attrs.PrimaryColors = splitList(*s)
	}

	// subjects is occasionally returned as a list
	if s := rawString(fields["subjects"]); s != nil {
		attrs.Subjects = s
	} else if items, ok := rawList(fields["subjects"]); ok {
		joined := strings.Join(items, ", ")
		attrs.Subjects = &joined
	}
	return attrs, nil
}

// rawString returns nil unless msg holds a JSON string.
func rawString(msg json.RawMessage) *string {
	var v any
	if len(msg) == 0 || json.Unmarshal(msg, &v) != nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// rawList reports ok only when msg is a JSON array of strings.
func rawList(msg json.RawMessage) ([]string, bool) {
	var v any
	if len(msg) == 0 || json.Unmarshal(msg, &v) != nil {
		return nil, false
	}
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
