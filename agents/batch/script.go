package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/BaSui01/visualflow/consistency"
)

// ScriptPart is one narrative part of a generated video script.
type ScriptPart struct {
	Text           string   `json:"text"`
	Duration       float64  `json:"duration"`
	KeyConcepts    []string `json:"key_concepts"`
	VisualGuidance string   `json:"visual_guidance"`
}

// Script holds the four parts keyed by segment name.
type Script map[string]ScriptPart

// Validate reports the first segment missing from the script.
func (s Script) Validate() error {
	var missing []string
	for _, seg := range consistency.Segments {
		if _, ok := s[string(seg)]; !ok {
			missing = append(missing, string(seg))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncompleteScript, strings.Join(missing, ", "))
	}
	return nil
}

// ParseScript decodes a script document. The script may be the top-level
// object or nested under "script", as in the session's generated_script column.
func ParseScript(data []byte) (Script, error) {
	var wrapped struct {
		Script Script `json:"script"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Script) > 0 {
		return wrapped.Script, nil
	}

	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode script: %w", err)
	}
	return s, nil
}

// LoadScript reads and parses a script file.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return ParseScript(data)
}

var promptVariations = []string{
	", cinematic lighting, high quality",
	", professional photography, detailed",
	", studio lighting, sharp focus",
}

// BuildPrompt joins visual guidance and key concepts, then appends a lighting
// variation for the first three images of a part.
func BuildPrompt(part ScriptPart, imageIndex int) string {
	prompt := part.VisualGuidance
	if len(part.KeyConcepts) > 0 {
		prompt += ", featuring: " + strings.Join(part.KeyConcepts, ", ")
	}
	if imageIndex >= 0 && imageIndex < len(promptVariations) {
		prompt += promptVariations[imageIndex]
	}
	return prompt
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
