package persona

import (
	"testing"

	"github.com/normanking/cortexcompanion/internal/moderation"
	"github.com/normanking/cortexcompanion/internal/mood"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_HasBuiltIns(t *testing.T) {
	m := NewManager()

	assert.Equal(t, []string{"aria", "debug", "ember"}, m.List())
	assert.Equal(t, "debug", m.Active().ID)
}

func TestBuiltIns_Valid(t *testing.T) {
	for _, p := range builtIn() {
		t.Run(p.ID, func(t *testing.T) {
			assert.NoError(t, p.Validate())
			assert.NotEmpty(t, p.PeriodicPassive)
			assert.NotEmpty(t, p.PeriodicFinal)
			assert.NotEmpty(t, p.GreetingPrompt)

			// Every moderation category needs an in-character reply.
			for _, c := range moderation.AllCategories() {
				assert.Contains(t, p.ModerationReplies, c)
			}
		})
	}
}

func TestRenderDescription(t *testing.T) {
	p := Debug()
	rendered := p.RenderDescription("Ronald")

	assert.Contains(t, rendered, "Ronald")
	assert.NotContains(t, rendered, "{user_name}")
}

func TestMoodSentence(t *testing.T) {
	p := Aria()

	assert.Equal(t, "You will emulate feeling frustrated.", p.MoodSentence(mood.LabelNegative))
	// Unknown labels fall back to the raw label text.
	assert.Equal(t, "You will emulate feeling bored.", p.MoodSentence(mood.Label("bored")))
}

func TestSelect(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Select("Aria"))
	assert.Equal(t, "aria", m.Active().ID)

	assert.Error(t, m.Select("nobody"))
	assert.Equal(t, "aria", m.Active().ID, "failed select must not change the active persona")
}

func TestRegister_Validation(t *testing.T) {
	m := NewManager()

	err := m.Register(&Persona{ID: "incomplete", Description: "x"})
	assert.Error(t, err, "persona without mood words must be rejected")

	custom := Debug()
	custom.ID = "custom"
	require.NoError(t, m.Register(custom))

	got, err := m.Get("CUSTOM")
	require.NoError(t, err)
	assert.Equal(t, "custom", got.ID)
}
