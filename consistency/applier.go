package consistency

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// StateLoader loads a persisted session state.
type StateLoader interface {
	Load(ctx context.Context, userID, sessionID string) (*VisualState, error)
}

// SegmentPrompt pairs a prompt with the segment it belongs to.
type SegmentPrompt struct {
	Segment string `json:"segment"`
	Prompt  string `json:"prompt"`
}

// Applier applies a session's persisted visual state to per-segment prompts.
type Applier struct {
	loader    StateLoader
	userID    string
	sessionID string
	recorder  Recorder
	logger    *zap.Logger

	mu            sync.Mutex
	manager       *Manager
	previousScene *string
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithApplierRecorder reports load and enhancement outcomes.
func WithApplierRecorder(r Recorder) ApplierOption {
	return func(a *Applier) { a.recorder = r }
}

// NewApplier creates an uninitialized applier for one session.
func NewApplier(loader StateLoader, userID, sessionID string, logger *zap.Logger, opts ...ApplierOption) *Applier {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Applier{
		loader:    loader,
		userID:    userID,
		sessionID: sessionID,
		recorder:  nopRecorder{},
		logger: logger.With(
			zap.String("component", "consistency_applier"),
			zap.String("session_id", sessionID),
		),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Initialize loads the persisted state. It reports whether the state was
// loaded; on any failure the applier continues with a default state.
func (a *Applier) Initialize(ctx context.Context) bool {
	var (
		state *VisualState
		err   error
	)
	if a.loader == nil {
		err = &StateLoadFailure{Key: StateKey(a.userID, a.sessionID), Err: fmt.Errorf("no state store configured")}
	} else {
		state, err = a.loader.Load(ctx, a.userID, a.sessionID)
	}
	a.recorder.RecordStateLoad(loadOutcome(err))

	manager := NewManager(a.logger)
	loaded := err == nil
	if loaded {
		manager.LoadState(state)
		a.logger.Info("loaded visual consistency state")
	} else {
		a.logger.Warn("could not load visual consistency state, using defaults", zap.Error(err))
	}

	a.mu.Lock()
	a.manager = manager
	a.previousScene = nil
	a.mu.Unlock()
	return loaded
}

// Initialized reports whether Initialize has run.
func (a *Applier) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.manager != nil
}

// EnhancePrompt returns base with the visual state applied, or base unchanged
// when the applier is not initialized or the segment is unknown.
func (a *Applier) EnhancePrompt(base, segment string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.manager == nil {
		a.recorder.RecordEnhancement(segment, false)
		return base
	}

	seg, err := ParseSegment(segment)
	if err != nil {
		a.logger.Warn("prompt enhancement skipped", zap.Error(err))
		a.recorder.RecordEnhancement(segment, false)
		return base
	}

	enhanced := a.manager.GenerateConsistentPrompt(base, seg, true, a.previousScene)
	// TODO: carry the rendered prompt of the previous call once video agents consume it.
	placeholder := fmt.Sprintf("Previous %s segment", seg)
	a.previousScene = &placeholder

	a.recorder.RecordEnhancement(segment, true)
	a.logger.Debug("enhanced prompt",
		zap.String("segment", segment),
		zap.Int("base_len", len(base)),
		zap.Int("enhanced_len", len(enhanced)))
	return enhanced
}

// EnhanceAll initializes the applier and enhances every prompt in order.
func (a *Applier) EnhanceAll(ctx context.Context, prompts []SegmentPrompt) []SegmentPrompt {
	a.Initialize(ctx)

	out := make([]SegmentPrompt, 0, len(prompts))
	for _, p := range prompts {
		out = append(out, SegmentPrompt{
			Segment: p.Segment,
			Prompt:  a.EnhancePrompt(p.Prompt, p.Segment),
		})
	}
	return out
}

// Seed returns the session seed, or nil when uninitialized or unset.
func (a *Applier) Seed() *int64 {
	a.mu.Lock()
	m := a.manager
	a.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.Seed()
}

// ReferenceImageURL returns the reference image, or nil when uninitialized or unset.
func (a *Applier) ReferenceImageURL() *string {
	a.mu.Lock()
	m := a.manager
	a.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.ReferenceImageURL()
}

// ReferenceImageParams returns the reference bundle, or nil.
func (a *Applier) ReferenceImageParams() *ReferenceImageParams {
	a.mu.Lock()
	m := a.manager
	a.mu.Unlock()
	if m == nil {
		return nil
	}
	return m.ReferenceImageParams()
}
