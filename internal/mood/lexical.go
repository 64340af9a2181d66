package mood

import (
	"context"
	"math"

	"github.com/jonreiter/govader"
)

// Compound-score cutoffs recommended by the VADER authors.
const (
	lexicalPositiveCutoff = 0.05
	lexicalNegativeCutoff = -0.05
)

// LexicalClassifier scores sentiment locally with a VADER lexicon. It
// never fails and needs no network, which makes it the default strategy.
type LexicalClassifier struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewLexicalClassifier builds the analyzer once; it is safe for
// concurrent use.
func NewLexicalClassifier() *LexicalClassifier {
	return &LexicalClassifier{
		analyzer: govader.NewSentimentIntensityAnalyzer(),
	}
}

// Classify maps the VADER compound score to a polarity and derives the
// intensity from its magnitude, scaled onto the same 1..5 range the
// model-based classifier reports so the accumulator behaves identically
// under either strategy.
func (c *LexicalClassifier) Classify(_ context.Context, text string) (Classification, error) {
	scores := c.analyzer.PolarityScores(text)

	sentiment := SentimentNeutral
	switch {
	case scores.Compound >= lexicalPositiveCutoff:
		sentiment = SentimentPositive
	case scores.Compound <= lexicalNegativeCutoff:
		sentiment = SentimentNegative
	}

	intensity := math.Abs(scores.Compound) * 5
	if sentiment == SentimentNeutral {
		intensity = 0
	}

	return Classification{Sentiment: sentiment, Intensity: intensity}, nil
}
