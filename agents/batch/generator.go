package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/visualflow/consistency"
	"github.com/BaSui01/visualflow/internal/telemetry"
	"github.com/BaSui01/visualflow/internal/tlsutil"
	"github.com/BaSui01/visualflow/llm/image"
	"github.com/BaSui01/visualflow/storage"
)

// =============================================================================
// 🖼️ 批量分镜图像生成
// =============================================================================

const (
	// DefaultModel is used when a request names none.
	DefaultModel = image.ModelFluxSchnell
	// DefaultImagesPerPart is used when a request sets none.
	DefaultImagesPerPart = 2
	// DefaultMaxConcurrency bounds in-flight generations.
	DefaultMaxConcurrency = 8

	metadataTextLimit = 200
)

// 批量生成错误
var (
	// ErrInvalidModel 不支持的模型
	ErrInvalidModel = errors.New("invalid model")

	// ErrIncompleteScript 脚本缺少段落
	ErrIncompleteScript = errors.New("script is missing parts")

	// ErrAllFailed 所有图像均生成失败
	ErrAllFailed = errors.New("all image generations failed")
)

// SupportedModels lists the models accepted for batch generation.
var SupportedModels = []string{image.ModelFluxPro, image.ModelFluxDev, image.ModelFluxSchnell, image.ModelSDXL}

// PromptEnhancer applies the session's visual state. consistency.Applier implements it.
type PromptEnhancer interface {
	EnhancePrompt(base, segment string) string
	Seed() *int64
}

// Recorder receives generation metrics.
type Recorder interface {
	RecordGeneration(provider, model, status string, duration time.Duration, cost float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordGeneration(string, string, string, time.Duration, float64) {}

// Request describes one batch run.
type Request struct {
	SessionID     string
	UserID        string
	Script        Script
	Model         string
	ImagesPerPart int
}

// ImageMetadata describes how an image was produced.
type ImageMetadata struct {
	RequestID      string   `json:"request_id"`
	PartName       string   `json:"part_name"`
	ImageIndex     int      `json:"image_index"`
	Duration       float64  `json:"duration"`
	Model          string   `json:"model"`
	Resolution     string   `json:"resolution"`
	Seed           int64    `json:"seed"`
	KeyConcepts    []string `json:"key_concepts"`
	VisualGuidance string   `json:"visual_guidance"`
	PromptUsed     string   `json:"prompt_used"`
}

// SceneImage is one generated micro scene.
type SceneImage struct {
	Image    string        `json:"image"`
	Metadata ImageMetadata `json:"metadata"`
}

// PartImages holds the images of one script part, ordered by index.
type PartImages struct {
	Images []SceneImage `json:"images"`
}

// Output is the aggregated batch result. Success requires at least one image.
type Output struct {
	Success     bool                   `json:"success"`
	MicroScenes map[string]*PartImages `json:"micro_scenes"`
	Cost        float64                `json:"cost"`
	FailedCount int                    `json:"failed_count"`
	Errors      []string               `json:"errors,omitempty"`
	Duration    time.Duration          `json:"duration"`
	Error       string                 `json:"error,omitempty"`
}

// TotalImages counts generated images across parts.
func (o *Output) TotalImages() int {
	n := 0
	for _, p := range o.MicroScenes {
		n += len(p.Images)
	}
	return n
}

type task struct {
	part   string
	index  int
	source ScriptPart
	prompt string
}

type taskResult struct {
	image SceneImage
	cost  float64
	err   error
}

// Generator fans script parts out to an image provider.
type Generator struct {
	provider       image.Provider
	enhancer       PromptEnhancer
	store          storage.ObjectStore
	recorder       Recorder
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxConcurrency int
	presignTTL     time.Duration
	logger         *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithEnhancer applies visual consistency to every prompt.
func WithEnhancer(e PromptEnhancer) Option { return func(g *Generator) { g.enhancer = e } }

// WithStore copies generated images into the object store and returns
// presigned URLs instead of provider URLs.
func WithStore(s storage.ObjectStore, ttl time.Duration) Option {
	return func(g *Generator) {
		g.store = s
		g.presignTTL = ttl
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(g *Generator) { g.recorder = r } }

// WithMaxConcurrency bounds in-flight generations.
func WithMaxConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxConcurrency = n
		}
	}
}

// WithRateInterval spaces out provider calls. Zero disables the limiter.
func WithRateInterval(interval time.Duration) Option {
	return func(g *Generator) {
		if interval > 0 {
			g.limiter = rate.NewLimiter(rate.Every(interval), 2)
		} else {
			g.limiter = nil
		}
	}
}

// WithHTTPClient sets the client used to download provider URLs.
func WithHTTPClient(c *http.Client) Option { return func(g *Generator) { g.httpClient = c } }

// NewGenerator creates a generator.
func NewGenerator(provider image.Provider, logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		provider:       provider,
		recorder:       nopRecorder{},
		httpClient:     tlsutil.SecureHTTPClient(60 * time.Second),
		maxConcurrency: DefaultMaxConcurrency,
		presignTTL:     storage.DefaultPresignTTL,
		logger:         logger.With(zap.String("component", "batch_generator")),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ValidateModel returns ErrInvalidModel for models outside SupportedModels.
func ValidateModel(name string) error {
	for _, m := range SupportedModels {
		if m == name {
			return nil
		}
	}
	return fmt.Errorf("%w %q, choose from: %s", ErrInvalidModel, name, strings.Join(SupportedModels, ", "))
}

// Process generates ImagesPerPart images for every script part. Individual
// failures are collected without cancelling the remaining generations.
func (g *Generator) Process(ctx context.Context, req Request) *Output {
	start := time.Now()
	out := &Output{MicroScenes: make(map[string]*PartImages, len(consistency.Segments))}
	for _, seg := range consistency.Segments {
		out.MicroScenes[string(seg)] = &PartImages{Images: []SceneImage{}}
	}

	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.ImagesPerPart <= 0 {
		req.ImagesPerPart = DefaultImagesPerPart
	}
	logger := g.logger.With(zap.String("session_id", req.SessionID), zap.String("model", req.Model))

	ctx, span := telemetry.StartSpan(ctx, "agents/batch", "batch.process",
		attribute.String("session_id", req.SessionID),
		attribute.String("model", req.Model),
		attribute.Int("images_per_part", req.ImagesPerPart),
	)

	fail := func(err error) *Output {
		out.Error = err.Error()
		out.Duration = time.Since(start)
		telemetry.EndSpan(span, err)
		logger.Error("batch image generation failed", zap.Error(err))
		return out
	}

	if err := ValidateModel(req.Model); err != nil {
		return fail(err)
	}
	if err := req.Script.Validate(); err != nil {
		return fail(err)
	}
	model, err := image.LookupModel(req.Model)
	if err != nil {
		return fail(err)
	}

	seed := int64(image.DefaultSeed)
	if g.enhancer != nil {
		if s := g.enhancer.Seed(); s != nil {
			seed = *s
		}
	}

	tasks := g.plan(req)
	logger.Info("generating micro scenes",
		zap.Int("images_per_part", req.ImagesPerPart),
		zap.Int("tasks", len(tasks)))

	results := make([]taskResult, len(tasks))
	var eg errgroup.Group
	eg.SetLimit(g.maxConcurrency)
	for i, t := range tasks {
		i, t := i, t
		eg.Go(func() error {
			results[i] = g.generate(ctx, req, model, seed, t)
			return nil
		})
	}
	_ = eg.Wait()

	for i, r := range results {
		t := tasks[i]
		if r.err != nil {
			msg := fmt.Sprintf("%s image %d failed: %v", t.part, t.index, r.err)
			logger.Error("micro scene failed", zap.String("part", t.part), zap.Int("index", t.index), zap.Error(r.err))
			out.Errors = append(out.Errors, msg)
			continue
		}
		out.MicroScenes[t.part].Images = append(out.MicroScenes[t.part].Images, r.image)
		out.Cost += r.cost
	}
	for _, p := range out.MicroScenes {
		sort.SliceStable(p.Images, func(a, b int) bool {
			return p.Images[a].Metadata.ImageIndex < p.Images[b].Metadata.ImageIndex
		})
	}

	out.FailedCount = len(out.Errors)
	out.Duration = time.Since(start)
	total := out.TotalImages()
	out.Success = total > 0
	if !out.Success {
		return fail(ErrAllFailed)
	}

	telemetry.EndSpan(span, nil)
	logger.Info("micro scenes generated",
		zap.Int("images", total),
		zap.Int("failed", out.FailedCount),
		zap.Float64("cost", out.Cost),
		zap.Duration("elapsed", out.Duration))
	return out
}

// plan builds every task prompt up front, in segment order. Enhancement is
// stateful, so it must not run concurrently.
func (g *Generator) plan(req Request) []task {
	tasks := make([]task, 0, len(consistency.Segments)*req.ImagesPerPart)
	for _, seg := range consistency.Segments {
		part := req.Script[string(seg)]
		for i := 0; i < req.ImagesPerPart; i++ {
			prompt := BuildPrompt(part, i)
			if g.enhancer != nil {
				prompt = g.enhancer.EnhancePrompt(prompt, string(seg))
			}
			tasks = append(tasks, task{part: string(seg), index: i, source: part, prompt: prompt})
		}
	}
	return tasks
}

func (g *Generator) generate(ctx context.Context, req Request, model image.ReplicateModel, seed int64, t task) taskResult {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return taskResult{err: err}
		}
	}

	requestID := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, "agents/batch", "batch.generate_image",
		attribute.String("part", t.part),
		attribute.Int("image_index", t.index),
		attribute.String("request_id", requestID),
	)

	started := time.Now()
	seedCopy := seed
	resp, err := g.provider.Generate(ctx, &image.GenerateRequest{
		Prompt:   t.prompt,
		Model:    model.Name,
		Seed:     &seedCopy,
		Metadata: map[string]string{"request_id": requestID, "part": t.part},
	})
	if err != nil {
		g.recorder.RecordGeneration(g.provider.Name(), model.Name, "error", time.Since(started), 0)
		telemetry.EndSpan(span, err)
		return taskResult{err: err}
	}
	g.recorder.RecordGeneration(g.provider.Name(), model.Name, "success", time.Since(started), resp.Usage.Cost)

	img, err := resp.First()
	if err == nil {
		img.URL, err = g.persist(ctx, req, t, img)
	}
	telemetry.EndSpan(span, err)
	if err != nil {
		return taskResult{err: err}
	}

	cost := resp.Usage.Cost
	if cost == 0 {
		cost = model.CostPerImage
	}
	return taskResult{
		cost: cost,
		image: SceneImage{
			Image: img.URL,
			Metadata: ImageMetadata{
				RequestID:      requestID,
				PartName:       t.part,
				ImageIndex:     t.index,
				Duration:       time.Since(started).Seconds(),
				Model:          model.Name,
				Resolution:     resolution(model),
				Seed:           seed,
				KeyConcepts:    t.source.KeyConcepts,
				VisualGuidance: truncate(t.source.VisualGuidance, metadataTextLimit),
				PromptUsed:     truncate(t.prompt, metadataTextLimit),
			},
		},
	}
}

// persist returns the URL to publish for img. Without a store the provider
// URL is used as is; inline images require a store.
func (g *Generator) persist(ctx context.Context, req Request, t task, img image.ImageData) (string, error) {
	if g.store == nil {
		if img.URL == "" {
			return "", errors.New("provider returned inline image data and no object store is configured")
		}
		return img.URL, nil
	}

	data, mimeType, err := image.Bytes(ctx, g.httpClient, img)
	if err != nil {
		return "", err
	}
	key := storage.SessionKey(req.UserID, req.SessionID, "micro_scenes",
		fmt.Sprintf("%s_%d.%s", t.part, t.index, image.ExtensionForMIME(mimeType)))
	if err := g.store.PutObject(ctx, key, data, mimeType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return g.store.PresignURL(ctx, key, g.presignTTL)
}

func resolution(m image.ReplicateModel) string {
	if m.Family == image.FamilySDXL {
		return "1920x1080"
	}
	return "1024x1024"
}

var _ PromptEnhancer = (*consistency.Applier)(nil)
