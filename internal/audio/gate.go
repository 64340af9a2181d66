package audio

import "math"

// voiceGate decides per frame whether speech is present. Raw RMS is
// jittery, so decisions run on a short moving average; a single loud or
// quiet frame does not flip the gate.
type voiceGate struct {
	threshold float64
	history   []float64
	index     int
	filled    bool
}

func newVoiceGate(threshold float64, smoothingFrames int) *voiceGate {
	if smoothingFrames <= 0 {
		smoothingFrames = 5
	}
	return &voiceGate{
		threshold: threshold,
		history:   make([]float64, smoothingFrames),
	}
}

// weigh folds one frame in and reports whether the smoothed energy is
// above the threshold.
func (g *voiceGate) weigh(frame []float32) bool {
	g.history[g.index] = frameRMS(frame)
	g.index++
	if g.index == len(g.history) {
		g.index = 0
		g.filled = true
	}

	n := len(g.history)
	if !g.filled {
		n = g.index
	}

	var sum float64
	for i := 0; i < n; i++ {
		sum += g.history[i]
	}
	return sum/float64(n) > g.threshold
}

func (g *voiceGate) reset() {
	for i := range g.history {
		g.history[i] = 0
	}
	g.index = 0
	g.filled = false
}

func frameRMS(frame []float32) float64 {
	var sum float64
	for _, s := range frame {
		sum += float64(s * s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
