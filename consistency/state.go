package consistency

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// Segment is one of the four narrative phases of a generated video.
type Segment string

const (
	SegmentHook       Segment = "hook"
	SegmentConcept    Segment = "concept"
	SegmentProcess    Segment = "process"
	SegmentConclusion Segment = "conclusion"
)

// Segments lists all segments in narrative order.
var Segments = []Segment{SegmentHook, SegmentConcept, SegmentProcess, SegmentConclusion}

// Valid reports whether s is a known segment.
func (s Segment) Valid() bool {
	switch s {
	case SegmentHook, SegmentConcept, SegmentProcess, SegmentConclusion:
		return true
	}
	return false
}

// ParseSegment converts a segment name into a Segment.
func ParseSegment(name string) (Segment, error) {
	seg := Segment(name)
	if !seg.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSegment, name)
	}
	return seg, nil
}

// 默认视觉属性
const (
	DefaultArtStyle    = "hand-drawn cartoon illustration"
	DefaultLighting    = "bright, warm lighting"
	DefaultAtmosphere  = "cheerful, educational"
	DefaultCameraStyle = "medium shot, eye level"
	DefaultComposition = "centered, balanced"
)

// Character is a named visual description injected into every prompt.
type Character struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// VisualState is the shared, mutable visual context of one video session.
type VisualState struct {
	ReferenceImageURL    *string
	PrimaryColors        []string
	ArtStyle             string
	MainCharacters       []Character
	Setting              string
	Lighting             string
	Atmosphere           string
	CameraStyle          string
	Composition          string
	CurrentSegment       Segment
	PreviousSceneSummary string
	Seed                 *int64
}

// NewVisualState returns a state with every default applied.
func NewVisualState() *VisualState {
	return &VisualState{
		PrimaryColors:  []string{},
		ArtStyle:       DefaultArtStyle,
		MainCharacters: []Character{},
		Lighting:       DefaultLighting,
		Atmosphere:     DefaultAtmosphere,
		CameraStyle:    DefaultCameraStyle,
		Composition:    DefaultComposition,
		CurrentSegment: SegmentHook,
	}
}

// Clone returns a deep copy of the state.
func (s *VisualState) Clone() *VisualState {
	c := *s
	c.PrimaryColors = append([]string{}, s.PrimaryColors...)
	c.MainCharacters = append([]Character{}, s.MainCharacters...)
	if s.ReferenceImageURL != nil {
		u := *s.ReferenceImageURL
		c.ReferenceImageURL = &u
	}
	if s.Seed != nil {
		v := *s.Seed
		c.Seed = &v
	}
	return &c
}

// upsertCharacter updates a character in place or appends it.
func (s *VisualState) upsertCharacter(name, description string) bool {
	for i := range s.MainCharacters {
		if s.MainCharacters[i].Name == name {
			s.MainCharacters[i].Description = description
			return false
		}
	}
	s.MainCharacters = append(s.MainCharacters, Character{Name: name, Description: description})
	return true
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot keys.
const (
	keyReferenceImageURL    = "reference_image_url"
	keyPrimaryColors        = "primary_colors"
	keyArtStyle             = "art_style"
	keyMainCharacters       = "main_characters"
	keySetting              = "setting"
	keyLighting             = "lighting"
	keyAtmosphere           = "atmosphere"
	keyCameraStyle          = "camera_style"
	keyComposition          = "composition"
	keyCurrentSegment       = "current_segment"
	keyPreviousSceneSummary = "previous_scene_summary"
	keySeed                 = "seed"
)

// Snapshot is the flat key/value form of a VisualState used for persistence
// and transfer.
type Snapshot map[string]any

// ToSnapshot flattens the state. Absent optionals are stored as nil.
func (s *VisualState) ToSnapshot() Snapshot {
	chars := make([]map[string]string, 0, len(s.MainCharacters))
	for _, c := range s.MainCharacters {
		chars = append(chars, map[string]string{"name": c.Name, "description": c.Description})
	}

	snap := Snapshot{
		keyReferenceImageURL:    nil,
		keyPrimaryColors:        append([]string{}, s.PrimaryColors...),
		keyArtStyle:             s.ArtStyle,
		keyMainCharacters:       chars,
		keySetting:              s.Setting,
		keyLighting:             s.Lighting,
		keyAtmosphere:           s.Atmosphere,
		keyCameraStyle:          s.CameraStyle,
		keyComposition:          s.Composition,
		keyCurrentSegment:       string(s.CurrentSegment),
		keyPreviousSceneSummary: s.PreviousSceneSummary,
		keySeed:                 nil,
	}
	if s.ReferenceImageURL != nil {
		snap[keyReferenceImageURL] = *s.ReferenceImageURL
	}
	if s.Seed != nil {
		snap[keySeed] = *s.Seed
	}
	return snap
}

// FromSnapshot rebuilds a state from a snapshot. It accepts both native Go
// values and values produced by encoding/json. Unknown keys are ignored.
func FromSnapshot(snap Snapshot) (*VisualState, error) {
	if snap == nil {
		return nil, &MalformedStateError{Reason: "snapshot is nil"}
	}

	s := &VisualState{}
	var err error

	strFields := []struct {
		key string
		dst *string
	}{
		{keyArtStyle, &s.ArtStyle},
		{keySetting, &s.Setting},
		{keyLighting, &s.Lighting},
		{keyAtmosphere, &s.Atmosphere},
		{keyCameraStyle, &s.CameraStyle},
		{keyComposition, &s.Composition},
		{keyPreviousSceneSummary, &s.PreviousSceneSummary},
	}
	for _, f := range strFields {
		if *f.dst, err = requireString(snap, f.key); err != nil {
			return nil, err
		}
	}

	segName, err := requireString(snap, keyCurrentSegment)
	if err != nil {
		return nil, err
	}
	if s.CurrentSegment, err = ParseSegment(segName); err != nil {
		return nil, malformed(keyCurrentSegment, "unknown segment %q", segName)
	}

	if s.PrimaryColors, err = decodeColors(snap); err != nil {
		return nil, err
	}
	if s.MainCharacters, err = decodeCharacters(snap); err != nil {
		return nil, err
	}

	if raw, ok := snap[keyReferenceImageURL]; ok && raw != nil {
		u, ok := raw.(string)
		if !ok {
			return nil, malformed(keyReferenceImageURL, "expected string, got %T", raw)
		}
		s.ReferenceImageURL = &u
	}

	if raw, ok := snap[keySeed]; ok && raw != nil {
		seed, err := toInt64(raw)
		if err != nil {
			return nil, malformed(keySeed, "%v", err)
		}
		s.Seed = &seed
	}

	return s, nil
}

func requireString(snap Snapshot, key string) (string, error) {
	raw, ok := snap[key]
	if !ok {
		return "", malformed(key, "missing")
	}
	v, ok := raw.(string)
	if !ok {
		return "", malformed(key, "expected string, got %T", raw)
	}
	return v, nil
}

func decodeColors(snap Snapshot) ([]string, error) {
	raw, ok := snap[keyPrimaryColors]
	if !ok {
		return nil, malformed(keyPrimaryColors, "missing")
	}
	switch v := raw.(type) {
	case []string:
		return append([]string{}, v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			c, ok := item.(string)
			if !ok {
				return nil, malformed(keyPrimaryColors, "element %d: expected string, got %T", i, item)
			}
			out = append(out, c)
		}
		return out, nil
	default:
		return nil, malformed(keyPrimaryColors, "expected list, got %T", raw)
	}
}

func decodeCharacters(snap Snapshot) ([]Character, error) {
	raw, ok := snap[keyMainCharacters]
	if !ok {
		return nil, malformed(keyMainCharacters, "missing")
	}

	var items []any
	switch v := raw.(type) {
	case []Character:
		for _, c := range v {
			items = append(items, map[string]string{"name": c.Name, "description": c.Description})
		}
	case []map[string]string:
		for _, m := range v {
			items = append(items, m)
		}
	case []map[string]any:
		for _, m := range v {
			items = append(items, m)
		}
	case []any:
		items = v
	default:
		return nil, malformed(keyMainCharacters, "expected list, got %T", raw)
	}

	out := make([]Character, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		c, err := decodeCharacter(item)
		if err != nil {
			return nil, malformed(keyMainCharacters, "element %d: %v", i, err)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, malformed(keyMainCharacters, "duplicate character name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func decodeCharacter(item any) (Character, error) {
	switch m := item.(type) {
	case map[string]string:
		name, okN := m["name"]
		desc, okD := m["description"]
		if !okN || !okD {
			return Character{}, fmt.Errorf("name and description are required")
		}
		return Character{Name: name, Description: desc}, nil
	case map[string]any:
		name, okN := m["name"].(string)
		desc, okD := m["description"].(string)
		if !okN || !okD {
			return Character{}, fmt.Errorf("name and description must be strings")
		}
		return Character{Name: name, Description: desc}, nil
	default:
		return Character{}, fmt.Errorf("expected object, got %T", item)
	}
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		// float64(math.MaxInt64) rounds up to 2^63
		if v >= float64(math.MaxInt64) || v < float64(math.MinInt64) {
			return 0, fmt.Errorf("integer %v out of range", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	default:
		return 0, fmt.Errorf("expected integer, got %T", raw)
	}
}

// MarshalJSON encodes the state using the snapshot layout.
func (s *VisualState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.ToSnapshot())
}

// UnmarshalJSON decodes and validates a snapshot layout.
func (s *VisualState) UnmarshalJSON(data []byte) error {
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	decoded, err := FromSnapshot(snap)
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}

// DecodeSnapshot parses JSON into a Snapshot. Numbers are kept as json.Number
// so large seeds survive the trip.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return nil, &MalformedStateError{Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	if snap == nil {
		return nil, &MalformedStateError{Reason: "snapshot is null"}
	}
	return snap, nil
}
