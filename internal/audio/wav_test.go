package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAV(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	out := EncodeWAV(samples, 16000)

	require.Len(t, out, 44+len(samples)*2)
	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, "fmt ", string(out[12:16]))
	assert.Equal(t, "data", string(out[36:40]))

	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(out[24:28]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(out[34:36]))
	assert.Equal(t, uint32(len(samples)*2), binary.LittleEndian.Uint32(out[40:44]))

	first := int16(binary.LittleEndian.Uint16(out[44:46]))
	assert.Equal(t, int16(0), first)
	peak := int16(binary.LittleEndian.Uint16(out[50:52]))
	assert.Equal(t, int16(32767), peak)
}

func TestFrameRMS(t *testing.T) {
	assert.Zero(t, frameRMS([]float32{0, 0, 0}))
	assert.InDelta(t, 0.5, frameRMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-6)
}
