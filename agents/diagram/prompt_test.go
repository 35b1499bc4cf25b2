package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/visualflow/session"
)

func TestBuildNarrativePrompt(t *testing.T) {
	tests := []struct {
		name string
		sess *session.VideoSession
		want string
	}{
		{
			name: "full session",
			sess: &session.VideoSession{
				Topic:         "Photosynthesis",
				ChildAge:      "7",
				ChildInterest: "dinosaurs",
				ConfirmedFacts: session.Facts{
					{Concept: "Sunlight", Details: "golden rays"},
					{Concept: ""},
					{Concept: "Leaves"},
					{Concept: "Water", Details: "from roots"},
					{Concept: "Oxygen"},
				},
			},
			want: "Illustrated scene showing Photosynthesis in action. " +
				"Visual scene depicting Sunlight with golden rays, Leaves, Water with from roots. " +
				"Style: Wordless picture book illustration, children's storybook art style, vibrant colors, " +
				"clean visual narrative, cartoon illustration, hand-drawn picture style, kid-friendly for age 7, " +
				"dinosaurs themed visual elements. " +
				"Pure visual scene, silent narrative, illustration frame without overlay.",
		},
		{
			name: "empty session",
			sess: &session.VideoSession{},
			want: "Illustrated scene showing " +
				"Style: Wordless picture book illustration, children's storybook art style, vibrant colors, " +
				"clean visual narrative, cartoon illustration, hand-drawn picture style. " +
				"Pure visual scene, silent narrative, illustration frame without overlay.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildNarrativePrompt(tt.sess))
		})
	}
}

func TestBuildNarrativePrompt_OnlyFirstFourFactsConsidered(t *testing.T) {
	sess := &session.VideoSession{ConfirmedFacts: session.Facts{
		{Concept: ""}, {Concept: ""}, {Concept: ""}, {Concept: "A"}, {Concept: "B"},
	}}
	prompt := BuildNarrativePrompt(sess)
	assert.Contains(t, prompt, "Visual scene depicting A.")
	assert.NotContains(t, prompt, "B")
}

func TestBuildInfographicPrompt(t *testing.T) {
	sess := &session.VideoSession{
		Topic:             "The water cycle",
		LearningObjective: "Explain evaporation",
		ChildAge:          "8",
		ChildInterest:     "space",
		ConfirmedFacts: session.Facts{
			{Concept: "Evaporation", Details: "water turns to vapor"},
			{Concept: ""},
			{Concept: "Rain"},
		},
	}

	lines := strings.Split(BuildInfographicPrompt(sess), "\n")
	assert.Equal(t, "Create a clear, educational diagram that explains the following topic to children.", lines[0])

	prompt := BuildInfographicPrompt(sess)
	assert.Contains(t, prompt, "\n\nTopic: The water cycle")
	assert.Contains(t, prompt, "\n\nLearning Objective: Explain evaporation")
	assert.Contains(t, prompt, "\n\nTarget Age Group: 8 years old")
	assert.Contains(t, prompt, "\n\nChild's Interests: space")
	assert.Contains(t, prompt, "\n\nKey Facts to Include:\n1. Evaporation\n   - water turns to vapor\n3. Rain\n")
	assert.Contains(t, prompt, "- Create an infographic-style layout")
	assert.True(t, strings.HasSuffix(prompt, "appropriate for the target age group."))
}

func TestBuildInfographicPrompt_OmitsEmptyFields(t *testing.T) {
	prompt := BuildInfographicPrompt(&session.VideoSession{Topic: "Magnets"})
	assert.NotContains(t, prompt, "Learning Objective")
	assert.NotContains(t, prompt, "Target Age Group")
	assert.NotContains(t, prompt, "Key Facts")
}
