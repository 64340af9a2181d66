// Package mood converts per-turn sentiment into a bounded accumulator and
// a discrete mood label.
package mood

import (
	"context"
	"sync"

	"github.com/normanking/cortexcompanion/internal/metrics"
)

// Sentiment classifies the polarity of one user utterance.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Label is the discrete mood bucket derived from the accumulator.
type Label string

const (
	LabelVeryPositive Label = "very_positive"
	LabelPositive     Label = "positive"
	LabelNeutral      Label = "neutral"
	LabelNegative     Label = "negative"
	LabelVeryNegative Label = "very_negative"
)

// Classification is one sentiment reading with its intensity weight.
// Intensity is 1..5 from the model-based classifier or a non-negative
// continuous weight from the lexical scorer.
type Classification struct {
	Sentiment Sentiment
	Intensity float64
}

// Classifier scores the sentiment of free text. Implementations: the
// lexical scorer in this package and the hosted-model classifier in
// internal/ai.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// Config tunes the tracker. The score table and bounds mirror the
// accumulator contract: adjusted = score[sentiment] * intensity, then
// clamp to [MinLevel, MaxLevel].
type Config struct {
	Scores   map[Sentiment]float64
	MinLevel float64
	MaxLevel float64
}

// DefaultConfig returns the standard scoring table and bounds.
func DefaultConfig() Config {
	return Config{
		Scores: map[Sentiment]float64{
			SentimentPositive: 3,
			SentimentNeutral:  0,
			SentimentNegative: -3,
		},
		MinLevel: -10,
		MaxLevel: 10,
	}
}

// Tracker holds the accumulator for one conversation session. Apply is
// total over valid input; there are no error conditions.
type Tracker struct {
	mu          sync.Mutex
	config      Config
	accumulated float64
}

// NewTracker creates a Tracker starting at neutral.
func NewTracker(config Config) *Tracker {
	if config.Scores == nil {
		config = DefaultConfig()
	}
	if config.MaxLevel <= config.MinLevel {
		config.MinLevel, config.MaxLevel = -10, 10
	}
	return &Tracker{config: config}
}

// Apply folds one classification into the accumulator and returns the
// resulting label and accumulator value.
func (t *Tracker) Apply(c Classification) (Label, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	adjusted := t.config.Scores[c.Sentiment] * c.Intensity
	t.accumulated = clamp(t.accumulated+adjusted, t.config.MinLevel, t.config.MaxLevel)

	metrics.MoodAccumulator.Set(t.accumulated)
	return labelFor(t.accumulated), t.accumulated
}

// Current returns the label and accumulator without applying anything.
func (t *Tracker) Current() (Label, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return labelFor(t.accumulated), t.accumulated
}

// Reset returns the accumulator to neutral.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accumulated = 0
	metrics.MoodAccumulator.Set(0)
}

// Reconfigure swaps the scoring table and bounds, re-clamping the
// accumulator into the new range. Used by config hot reload.
func (t *Tracker) Reconfigure(config Config) {
	if config.Scores == nil || config.MaxLevel <= config.MinLevel {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.config = config
	t.accumulated = clamp(t.accumulated, config.MinLevel, config.MaxLevel)
	metrics.MoodAccumulator.Set(t.accumulated)
}

// Restore sets the accumulator directly, clamped to the configured
// range. Used when warming state from the transcript store.
func (t *Tracker) Restore(accumulated float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accumulated = clamp(accumulated, t.config.MinLevel, t.config.MaxLevel)
	metrics.MoodAccumulator.Set(t.accumulated)
}

// labelFor maps the accumulator to a bucket. Comparisons are strict, so
// boundary values (exactly 8, 2, -2, -8) fall into the less extreme
// bucket.
func labelFor(accumulated float64) Label {
	switch {
	case accumulated > 8:
		return LabelVeryPositive
	case accumulated > 2:
		return LabelPositive
	case accumulated < -8:
		return LabelVeryNegative
	case accumulated < -2:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
