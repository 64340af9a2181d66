package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVoiceGateSmoothing(t *testing.T) {
	gate := newVoiceGate(0.1, 3)

	loud := []float32{0.5, -0.5, 0.5, -0.5}
	quiet := []float32{0.001, -0.001, 0.001, -0.001}

	assert.False(t, gate.weigh(quiet))
	assert.False(t, gate.weigh(quiet))
	assert.True(t, gate.weigh(loud), "0.5 RMS dominates a 3-frame window")

	gate.reset()
	assert.False(t, gate.weigh(quiet))
}

func TestVoiceGateSustainedSpeech(t *testing.T) {
	gate := newVoiceGate(0.1, 3)
	loud := []float32{0.5, -0.5, 0.5, -0.5}

	for i := 0; i < 5; i++ {
		gate.weigh(loud)
	}
	assert.True(t, gate.weigh(loud))
}
