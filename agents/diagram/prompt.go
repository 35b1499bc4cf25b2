package diagram

import (
	"fmt"
	"strings"

	"github.com/BaSui01/visualflow/session"
)

const (
	maxNarrativeFacts    = 4
	maxNarrativeElements = 3
)

var narrativeStyle = []string{
	"Wordless picture book illustration",
	"children's storybook art style",
	"vibrant colors",
	"clean visual narrative",
	"cartoon illustration",
	"hand-drawn picture style",
}

const noOverlayPhrase = "Pure visual scene, silent narrative, illustration frame without overlay."

// BuildNarrativePrompt describes the topic as a wordless scene. Image models
// tend to render text when prompted with teaching vocabulary, so the prompt
// only speaks of scenes and illustration style.
func BuildNarrativePrompt(s *session.VideoSession) string {
	parts := []string{"Illustrated scene showing"}
	if s.Topic != "" {
		parts = append(parts, s.Topic+" in action.")
	}

	facts := s.ConfirmedFacts
	if len(facts) > maxNarrativeFacts {
		facts = facts[:maxNarrativeFacts]
	}
	var elements []string
	for _, f := range facts {
		switch {
		case f.Concept == "":
		case f.Details != "":
			elements = append(elements, f.Concept+" with "+f.Details)
		default:
			elements = append(elements, f.Concept)
		}
	}
	if len(elements) > maxNarrativeElements {
		elements = elements[:maxNarrativeElements]
	}
	if len(elements) > 0 {
		parts = append(parts, "Visual scene depicting "+strings.Join(elements, ", ")+".")
	}

	style := append([]string{}, narrativeStyle...)
	if s.ChildAge != "" {
		style = append(style, "kid-friendly for age "+s.ChildAge)
	}
	if s.ChildInterest != "" {
		style = append(style, s.ChildInterest+" themed visual elements")
	}
	parts = append(parts, "Style: "+strings.Join(style, ", ")+".", noOverlayPhrase)

	return strings.Join(parts, " ")
}

// BuildInfographicPrompt asks for a labelled infographic covering every fact.
func BuildInfographicPrompt(s *session.VideoSession) string {
	lines := []string{"Create a clear, educational diagram that explains the following topic to children."}
	if s.Topic != "" {
		lines = append(lines, "\nTopic: "+s.Topic)
	}
	if s.LearningObjective != "" {
		lines = append(lines, "\nLearning Objective: "+s.LearningObjective)
	}
	if s.ChildAge != "" {
		lines = append(lines, fmt.Sprintf("\nTarget Age Group: %s years old", s.ChildAge))
	}
	if s.ChildInterest != "" {
		lines = append(lines, "\nChild's Interests: "+s.ChildInterest)
	}

	if len(s.ConfirmedFacts) > 0 {
		lines = append(lines, "\nKey Facts to Include:")
		for i, f := range s.ConfirmedFacts {
			if f.Concept == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, f.Concept))
			if f.Details != "" {
				lines = append(lines, "   - "+f.Details)
			}
		}
	}

	lines = append(lines,
		"\nStyle Requirements:",
		"- Use vibrant, kid-friendly colors",
		"- Include clear labels and text",
		"- Make it visually engaging and easy to understand",
		"- Use icons, arrows, and diagrams to illustrate concepts",
		"- Ensure text is large and readable",
		"- Create an infographic-style layout",
		"\nThe diagram should be educational, accurate, and appropriate for the target age group.",
	)
	return strings.Join(lines, "\n")
}
