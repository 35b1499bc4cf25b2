package diagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/visualflow/consistency"
	"github.com/BaSui01/visualflow/internal/telemetry"
	"github.com/BaSui01/visualflow/internal/tlsutil"
	"github.com/BaSui01/visualflow/llm/image"
	"github.com/BaSui01/visualflow/session"
	"github.com/BaSui01/visualflow/status"
	"github.com/BaSui01/visualflow/storage"
)

// =============================================================================
// 🎨 Agent 3: 图示生成
// =============================================================================

const (
	// AgentNumber is the pipeline position the orchestrator knows this agent by.
	AgentNumber = 3
	// DataFileName holds the diagram URL and session metadata for later agents.
	DataFileName = "agent_3_data.json"

	diagramSize    = 1024
	diagramQuality = 90
)

// 图示智能体错误
var (
	// ErrNoProvider 未配置任何图像生成服务
	ErrNoProvider = errors.New("no image provider configured: set a Replicate token or a Gemini key")

	// ErrNoSession 未提供会话且未配置会话仓库
	ErrNoSession = errors.New("session not provided and no session repository configured")
)

// Stage names the step of Process that failed.
type Stage string

const (
	StageSession  Stage = "session"
	StageGenerate Stage = "generate"
	StageDownload Stage = "download"
	StageUpload   Stage = "upload"
)

// StageError wraps a failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// SessionFinder loads session rows. session.Repository implements it.
type SessionFinder interface {
	Find(ctx context.Context, sessionID, userID string) (*session.VideoSession, error)
}

// StateSaver persists the visual state. consistency.StateStore implements it.
type StateSaver interface {
	Save(ctx context.Context, userID, sessionID string, state *consistency.VisualState) error
}

// Recorder receives generation and run metrics.
type Recorder interface {
	RecordGeneration(provider, model, status string, duration time.Duration, cost float64)
	RecordAgentRun(agent, status string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordGeneration(string, string, string, time.Duration, float64) {}
func (nopRecorder) RecordAgentRun(string, string, time.Duration)                    {}

// Input identifies the session to illustrate. Session may be preloaded.
type Input struct {
	UserID    string
	SessionID string
	Session   *session.VideoSession
}

// Result describes the uploaded diagram.
type Result struct {
	RequestID  string                      `json:"request_id"`
	DiagramKey string                      `json:"diagram_key"`
	DiagramURL string                      `json:"diagram_url"`
	Provider   string                      `json:"provider"`
	Model      string                      `json:"model"`
	Prompt     string                      `json:"prompt"`
	Cost       float64                     `json:"cost"`
	Style      consistency.StyleAttributes `json:"style"`
}

// Data is the content of agent_3_data.json.
type Data struct {
	DiagramURL        string `json:"diagram_url"`
	Topic             string `json:"topic"`
	LearningObjective string `json:"learning_objective"`
	ChildAge          string `json:"child_age"`
	ChildInterest     string `json:"child_interest"`
}

// Agent generates the lesson diagram and seeds the session's visual state from it.
type Agent struct {
	store      storage.ObjectStore
	replicate  image.Provider
	gemini     image.Provider
	sessions   SessionFinder
	extractor  *consistency.StyleExtractor
	states     StateSaver
	reporter   *status.Reporter
	recorder   Recorder
	httpClient *http.Client
	presignTTL time.Duration
	logger     *zap.Logger
}

// Option configures an Agent.
type Option func(*Agent)

// WithReplicate sets the narrative illustration provider. It takes precedence over Gemini.
func WithReplicate(p image.Provider) Option { return func(a *Agent) { a.replicate = p } }

// WithGemini sets the infographic provider.
func WithGemini(p image.Provider) Option { return func(a *Agent) { a.gemini = p } }

// WithSessions sets the repository used when Input.Session is nil.
func WithSessions(f SessionFinder) Option { return func(a *Agent) { a.sessions = f } }

// WithConsistency enables visual state seeding after upload.
func WithConsistency(extractor *consistency.StyleExtractor, states StateSaver) Option {
	return func(a *Agent) {
		a.extractor = extractor
		a.states = states
	}
}

// WithReporter sets the status reporter.
func WithReporter(r *status.Reporter) Option { return func(a *Agent) { a.reporter = r } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(a *Agent) { a.recorder = r } }

// WithHTTPClient sets the client used to download provider URLs.
func WithHTTPClient(c *http.Client) Option { return func(a *Agent) { a.httpClient = c } }

// WithPresignTTL overrides the diagram URL lifetime.
func WithPresignTTL(ttl time.Duration) Option { return func(a *Agent) { a.presignTTL = ttl } }

// New creates the diagram agent.
func New(store storage.ObjectStore, logger *zap.Logger, opts ...Option) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{
		store:      store,
		recorder:   nopRecorder{},
		httpClient: tlsutil.SecureHTTPClient(60 * time.Second),
		presignTTL: storage.DefaultPresignTTL,
		logger:     logger.With(zap.String("component", "agent3")),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.reporter == nil {
		a.reporter = status.NewReporter(logger)
	}
	if a.extractor == nil && a.states != nil {
		a.extractor = consistency.NewStyleExtractor(nil, logger)
	}
	return a
}

// Process generates, uploads and registers the diagram for a session. Every
// outcome is reported to the orchestrator; failures are also returned.
func (a *Agent) Process(ctx context.Context, in Input) (result *Result, err error) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := a.logger.With(
		zap.String("request_id", requestID),
		zap.String("user_id", in.UserID),
		zap.String("session_id", in.SessionID),
	)

	ctx, span := telemetry.StartSpan(ctx, "agents/diagram", "diagram.process",
		attribute.String("session_id", in.SessionID),
		attribute.String("request_id", requestID),
	)
	defer func() {
		runStatus := string(status.StatusFinished)
		if err != nil {
			runStatus = string(status.StatusError)
			a.report(ctx, in, status.StatusError, map[string]any{
				"error":  err.Error(),
				"reason": "Agent3 failed: " + failureKind(err),
			})
			logger.Error("diagram generation failed", zap.Error(err))
		}
		a.recorder.RecordAgentRun("agent3", runStatus, time.Since(start))
		telemetry.EndSpan(span, err)
	}()

	a.report(ctx, in, status.StatusStarting, nil)

	sess, err := a.loadSession(ctx, in)
	if err != nil {
		return nil, &StageError{Stage: StageSession, Err: err}
	}

	a.report(ctx, in, status.StatusProcessing, nil)

	result, data, mimeType, err := a.generate(ctx, sess)
	if err != nil {
		return nil, err
	}
	result.RequestID = requestID

	result.DiagramKey = storage.AgentKey(in.UserID, in.SessionID, AgentNumber, "diagram."+image.ExtensionForMIME(mimeType))
	if err := a.store.PutObject(ctx, result.DiagramKey, data, mimeType); err != nil {
		return nil, &StageError{Stage: StageUpload, Err: err}
	}
	result.DiagramURL, err = a.store.PresignURL(ctx, result.DiagramKey, a.presignTTL)
	if err != nil {
		return nil, &StageError{Stage: StageUpload, Err: err}
	}
	logger.Info("diagram uploaded",
		zap.String("key", result.DiagramKey),
		zap.Int("bytes", len(data)))

	a.writeData(ctx, in, sess, result.DiagramURL, logger)
	result.Style = a.seedVisualState(ctx, in, sess, result.DiagramURL, logger)

	a.report(ctx, in, status.StatusFinished, map[string]any{"diagram_url": result.DiagramURL})
	logger.Info("diagram agent finished",
		zap.String("provider", result.Provider),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

func (a *Agent) loadSession(ctx context.Context, in Input) (*session.VideoSession, error) {
	if in.Session != nil {
		return in.Session, nil
	}
	if a.sessions == nil {
		return nil, ErrNoSession
	}
	return a.sessions.Find(ctx, in.SessionID, in.UserID)
}

// generate picks Replicate with the narrative prompt when configured, else
// Gemini with the infographic prompt.
func (a *Agent) generate(ctx context.Context, sess *session.VideoSession) (*Result, []byte, string, error) {
	var (
		provider image.Provider
		req      *image.GenerateRequest
	)
	switch {
	case a.replicate != nil:
		provider = a.replicate
		req = &image.GenerateRequest{
			Prompt:       BuildNarrativePrompt(sess),
			Width:        diagramSize,
			Height:       diagramSize,
			OutputFormat: "png",
			Quality:      diagramQuality,
		}
	case a.gemini != nil:
		provider = a.gemini
		req = &image.GenerateRequest{Prompt: BuildInfographicPrompt(sess)}
	default:
		return nil, nil, "", &StageError{Stage: StageGenerate, Err: ErrNoProvider}
	}

	ctx, span := telemetry.StartSpan(ctx, "agents/diagram", "diagram.generate",
		attribute.String("provider", provider.Name()),
		attribute.Int("prompt_length", len(req.Prompt)),
	)
	started := time.Now()
	resp, err := provider.Generate(ctx, req)
	telemetry.EndSpan(span, err)

	model := req.Model
	if resp != nil && resp.Model != "" {
		model = resp.Model
	}
	if err != nil {
		a.recorder.RecordGeneration(provider.Name(), model, "error", time.Since(started), 0)
		return nil, nil, "", &StageError{Stage: StageGenerate, Err: err}
	}
	a.recorder.RecordGeneration(provider.Name(), model, "success", time.Since(started), resp.Usage.Cost)

	img, err := resp.First()
	if err != nil {
		return nil, nil, "", &StageError{Stage: StageGenerate, Err: err}
	}
	data, mimeType, err := image.Bytes(ctx, a.httpClient, img)
	if err != nil {
		return nil, nil, "", &StageError{Stage: StageDownload, Err: err}
	}

	return &Result{
		Provider: provider.Name(),
		Model:    model,
		Prompt:   req.Prompt,
		Cost:     resp.Usage.Cost,
	}, data, mimeType, nil
}

// writeData uploads agent_3_data.json. Failures are logged only.
func (a *Agent) writeData(ctx context.Context, in Input, sess *session.VideoSession, diagramURL string, logger *zap.Logger) {
	payload, err := json.MarshalIndent(Data{
		DiagramURL:        diagramURL,
		Topic:             sess.Topic,
		LearningObjective: sess.LearningObjective,
		ChildAge:          sess.ChildAge,
		ChildInterest:     sess.ChildInterest,
	}, "", "  ")
	if err == nil {
		err = a.store.PutObject(ctx, storage.AgentKey(in.UserID, in.SessionID, AgentNumber, DataFileName), payload, "application/json")
	}
	if err != nil {
		logger.Warn("failed to upload agent data", zap.Error(err))
	}
}

// seedVisualState builds the session's visual state from the diagram and
// persists it. Failures are logged only; the diagram is already delivered.
func (a *Agent) seedVisualState(ctx context.Context, in Input, sess *session.VideoSession, diagramURL string, logger *zap.Logger) consistency.StyleAttributes {
	if a.states == nil {
		return consistency.StyleAttributes{}
	}

	ctx, span := telemetry.StartSpan(ctx, "agents/diagram", "diagram.seed_visual_state")
	mgr := consistency.NewManager(a.logger)
	mgr.InitializeFromSession(sess.Topic, sess.ChildAge, sess.ChildInterest)
	attrs := mgr.ExtractStyleFromDiagram(ctx, a.extractor, diagramURL)

	state := mgr.State()
	err := a.states.Save(ctx, in.UserID, in.SessionID, &state)
	telemetry.EndSpan(span, err)
	if err != nil {
		logger.Warn("failed to persist visual state", zap.Error(err))
	} else {
		logger.Info("visual state seeded from diagram", zap.String("art_style", state.ArtStyle))
	}
	return attrs
}

func (a *Agent) report(ctx context.Context, in Input, s status.Status, extra map[string]any) {
	a.reporter.Report(ctx, status.Event{
		AgentNumber: AgentNumber,
		UserID:      in.UserID,
		SessionID:   in.SessionID,
		Status:      s,
		Extra:       extra,
	})
}

var stageKinds = map[Stage]string{
	StageSession:  "SessionError",
	StageGenerate: "GenerationError",
	StageDownload: "DownloadError",
	StageUpload:   "UploadError",
}

// failureKind names the error for the orchestrator's reason field.
func failureKind(err error) string {
	var stageErr *StageError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, ErrNoProvider), errors.Is(err, ErrNoSession):
		return "ConfigurationError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	case errors.As(err, &stageErr):
		if kind, ok := stageKinds[stageErr.Stage]; ok {
			return kind
		}
		return "Error"
	default:
		return "Error"
	}
}
