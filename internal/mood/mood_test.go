package mood

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker_Apply_Accumulates(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	label, acc := tr.Apply(Classification{Sentiment: SentimentPositive, Intensity: 1})
	assert.Equal(t, LabelPositive, label)
	assert.Equal(t, 3.0, acc)

	label, acc = tr.Apply(Classification{Sentiment: SentimentNegative, Intensity: 1})
	assert.Equal(t, LabelNeutral, label)
	assert.Equal(t, 0.0, acc)
}

func TestTracker_Apply_ClampsAtMax(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	// Drive accumulator to 9, then apply positive intensity 5 (+15).
	tr.Apply(Classification{Sentiment: SentimentPositive, Intensity: 3})
	label, acc := tr.Apply(Classification{Sentiment: SentimentPositive, Intensity: 5})

	assert.Equal(t, 10.0, acc, "accumulator must clamp at MaxLevel")
	assert.Equal(t, LabelVeryPositive, label)
}

func TestTracker_Apply_ClampsAtMin(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	tr.Apply(Classification{Sentiment: SentimentNegative, Intensity: 5})
	label, acc := tr.Apply(Classification{Sentiment: SentimentNegative, Intensity: 5})

	assert.Equal(t, -10.0, acc)
	assert.Equal(t, LabelVeryNegative, label)
}

func TestLabelFor_BoundariesMapToLessExtremeBucket(t *testing.T) {
	tests := []struct {
		name        string
		accumulated float64
		want        Label
	}{
		{"above very positive", 8.5, LabelVeryPositive},
		{"exactly 8 stays positive", 8, LabelPositive},
		{"above positive", 2.5, LabelPositive},
		{"exactly 2 stays neutral", 2, LabelNeutral},
		{"zero", 0, LabelNeutral},
		{"exactly -2 stays neutral", -2, LabelNeutral},
		{"below negative", -2.5, LabelNegative},
		{"exactly -8 stays negative", -8, LabelNegative},
		{"below very negative", -8.5, LabelVeryNegative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, labelFor(tt.accumulated))
		})
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.Apply(Classification{Sentiment: SentimentPositive, Intensity: 4})

	tr.Reset()

	label, acc := tr.Current()
	assert.Equal(t, LabelNeutral, label)
	assert.Equal(t, 0.0, acc)
}

func TestTracker_ReconfigureReclamps(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	tr.Apply(Classification{Sentiment: SentimentPositive, Intensity: 3})

	cfg := DefaultConfig()
	cfg.MinLevel, cfg.MaxLevel = -5, 5
	tr.Reconfigure(cfg)

	label, acc := tr.Current()
	assert.Equal(t, 5.0, acc, "accumulator re-clamped into the new range")
	assert.Equal(t, LabelPositive, label)

	// An invalid range is ignored.
	tr.Reconfigure(Config{Scores: cfg.Scores, MinLevel: 3, MaxLevel: -3})
	_, acc = tr.Current()
	assert.Equal(t, 5.0, acc)
}

func TestTracker_NeutralIsNoOp(t *testing.T) {
	tr := NewTracker(DefaultConfig())

	label, acc := tr.Apply(Classification{Sentiment: SentimentNeutral, Intensity: 5})
	assert.Equal(t, LabelNeutral, label)
	assert.Equal(t, 0.0, acc)
}

func TestLexicalClassifier_Polarity(t *testing.T) {
	c := NewLexicalClassifier()

	pos, err := c.Classify(context.Background(), "I love this, it is absolutely wonderful!")
	assert.NoError(t, err)
	assert.Equal(t, SentimentPositive, pos.Sentiment)
	assert.Greater(t, pos.Intensity, 0.0)

	neg, err := c.Classify(context.Background(), "This is terrible and I hate it.")
	assert.NoError(t, err)
	assert.Equal(t, SentimentNegative, neg.Sentiment)
	assert.Greater(t, neg.Intensity, 0.0)

	neu, err := c.Classify(context.Background(), "The meeting is at noon.")
	assert.NoError(t, err)
	assert.Equal(t, SentimentNeutral, neu.Sentiment)
	assert.Equal(t, 0.0, neu.Intensity)
}
