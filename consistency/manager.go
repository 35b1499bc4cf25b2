package consistency

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// 按年龄段选择的画风
const (
	ArtStyleYoung  = "simple, bold shapes, primary colors"
	ArtStyleMiddle = "colorful cartoon illustration, friendly characters"
	ArtStyleOlder  = "detailed illustration, realistic elements"
)

// Reference image parameters attached to generation requests.
const (
	ReferenceStyleWeight = 0.6
	ReferenceTypeStyle   = "style"
)

const maxPaletteColors = 3

// ReferenceImageParams tells a provider how to use the reference image.
type ReferenceImageParams struct {
	ReferenceImageURL string  `json:"reference_image_url"`
	StyleWeight       float64 `json:"style_weight"`
	ReferenceType     string  `json:"reference_type"`
}

// Manager owns a VisualState and synthesizes consistent prompts from it.
// All methods are safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	state  *VisualState
	logger *zap.Logger
}

// NewManager creates a manager holding a default state.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		state:  NewVisualState(),
		logger: logger.With(zap.String("component", "consistency_manager")),
	}
}

// InitializeFromSession derives the setting, art style and atmosphere from
// session metadata.
func (m *Manager) InitializeFromSession(topic, childAge, childInterest string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Setting = fmt.Sprintf("Scene related to %s", topic)

	if style, ok := artStyleForAge(childAge); ok {
		m.state.ArtStyle = style
	} else if childAge != "" {
		m.logger.Debug("ignoring unparseable child age", zap.String("child_age", childAge))
	}

	if childInterest != "" {
		m.state.Atmosphere = fmt.Sprintf("engaging, %s themed", childInterest)
	}

	m.logger.Info("initialized visual state", zap.String("topic", topic))
}

func artStyleForAge(childAge string) (string, bool) {
	age, err := strconv.Atoi(strings.TrimSpace(childAge))
	if err != nil {
		return "", false
	}
	switch {
	case age < 6:
		return ArtStyleYoung, true
	case age < 10:
		return ArtStyleMiddle, true
	default:
		return ArtStyleOlder, true
	}
}

// DefineCharacter adds a character or updates the description of an existing one.
func (m *Manager) DefineCharacter(name, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.upsertCharacter(name, description) {
		m.logger.Info("defined character", zap.String("name", name))
	} else {
		m.logger.Debug("updated character", zap.String("name", name))
	}
}

// UpdateSceneContext replaces the previous scene summary.
func (m *Manager) UpdateSceneContext(summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.PreviousSceneSummary = summary
	m.logger.Debug("updated scene context", zap.String("summary", summary))
}

// SetSeed fixes the generation seed.
func (m *Manager) SetSeed(seed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Seed = &seed
	m.logger.Info("set consistency seed", zap.Int64("seed", seed))
}

// Seed returns the generation seed, or nil when unset.
func (m *Manager) Seed() *int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Seed == nil {
		return nil
	}
	v := *m.state.Seed
	return &v
}

// ReferenceImageURL returns the reference image, or nil when unset.
func (m *Manager) ReferenceImageURL() *string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.ReferenceImageURL == nil {
		return nil
	}
	v := *m.state.ReferenceImageURL
	return &v
}

// GenerateConsistentPrompt builds a prompt carrying the shared visual state and
// records segment as the current segment. An unknown segment is logged and
// leaves the current segment unchanged.
func (m *Manager) GenerateConsistentPrompt(base string, segment Segment, isVideo bool, previousFrame *string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	prompt := buildPrompt(m.state, base, segment, isVideo, previousFrame)

	if segment.Valid() {
		m.state.CurrentSegment = segment
	} else {
		m.logger.Warn("prompt generated for unknown segment", zap.String("segment", string(segment)))
	}
	return prompt
}

func buildPrompt(s *VisualState, base string, segment Segment, isVideo bool, previousFrame *string) string {
	parts := make([]string, 0, 10+len(s.MainCharacters))

	if s.PreviousSceneSummary != "" && segment != SegmentHook {
		parts = append(parts, fmt.Sprintf("Continuing from previous scene: %s.", s.PreviousSceneSummary))
	}

	parts = append(parts,
		base,
		fmt.Sprintf("Art style: %s.", s.ArtStyle),
		fmt.Sprintf("%s, %s.", s.Lighting, s.Atmosphere),
	)

	for _, c := range s.MainCharacters {
		parts = append(parts, fmt.Sprintf("%s: %s.", c.Name, c.Description))
	}

	if s.Setting != "" {
		parts = append(parts, fmt.Sprintf("Setting: %s.", s.Setting))
	}

	if isVideo {
		parts = append(parts, "Smooth motion, cinematic camera movement.")
		if previousFrame != nil && *previousFrame != "" {
			parts = append(parts, fmt.Sprintf("Matching previous frame: %s.", *previousFrame))
		}
	}

	if len(s.PrimaryColors) > 0 {
		colors := s.PrimaryColors
		if len(colors) > maxPaletteColors {
			colors = colors[:maxPaletteColors]
		}
		parts = append(parts, fmt.Sprintf("Color palette: %s.", strings.Join(colors, ", ")))
	}

	parts = append(parts, fmt.Sprintf("%s, %s.", s.CameraStyle, s.Composition))

	return strings.Join(parts, " ")
}

// ReferenceImageParams returns the reference image bundle, or nil when no
// reference image is set.
func (m *Manager) ReferenceImageParams() *ReferenceImageParams {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.ReferenceImageURL == nil || *m.state.ReferenceImageURL == "" {
		return nil
	}
	return &ReferenceImageParams{
		ReferenceImageURL: *m.state.ReferenceImageURL,
		StyleWeight:       ReferenceStyleWeight,
		ReferenceType:     ReferenceTypeStyle,
	}
}

// ApplyStyle records imageURL as the reference image and merges the present
// attributes into the state.
func (m *Manager) ApplyStyle(imageURL string, attrs StyleAttributes) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := imageURL
	m.state.ReferenceImageURL = &u
	attrs.mergeInto(m.state)
}

// ExtractStyleFromDiagram runs the extractor against a diagram and applies the
// result. The reference image is recorded even when extraction yields nothing.
func (m *Manager) ExtractStyleFromDiagram(ctx context.Context, extractor *StyleExtractor, diagramURL string) StyleAttributes {
	attrs := extractor.ExtractStyle(ctx, diagramURL)
	m.ApplyStyle(diagramURL, attrs)
	return attrs
}

// Snapshot returns the flat form of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state.ToSnapshot()
}

// LoadSnapshot validates and replaces the current state. On error the state
// is left untouched.
func (m *Manager) LoadSnapshot(snap Snapshot) error {
	state, err := FromSnapshot(snap)
	if err != nil {
		return err
	}
	m.LoadState(state)
	return nil
}

// LoadState replaces the current state with a copy of state.
func (m *Manager) LoadState(state *VisualState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = state.Clone()
	m.logger.Info("loaded visual state", zap.String("segment", string(state.CurrentSegment)))
}

// State returns a copy of the current state.
func (m *Manager) State() VisualState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return *m.state.Clone()
}
