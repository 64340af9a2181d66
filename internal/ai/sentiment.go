package ai

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"github.com/normanking/cortexcompanion/internal/mood"
)

// The classifier prompt is deliberately rigid: free-form answers break
// the parser, so the model is told exactly what to emit.
const sentimentPrompt = `You are a sentiment classifier.
Reply with exactly one word and one integer separated by a comma, nothing else.
First: the sentiment of the user text, using ONLY one of: positive, negative, neutral.
Second: the intensity of that sentiment on a scale from 1 to 5.
Example reply: positive, 3`

// ModelClassifier implements mood.Classifier with a hosted chat model.
// It is the "llm" intensity strategy; the lexical strategy lives in
// internal/mood.
type ModelClassifier struct {
	client *OpenAIClient
}

// NewModelClassifier wraps an OpenAIClient.
func NewModelClassifier(client *OpenAIClient) *ModelClassifier {
	return &ModelClassifier{client: client}
}

// Classify asks the model for "label, intensity" and parses it.
func (m *ModelClassifier) Classify(ctx context.Context, text string) (mood.Classification, error) {
	resp, err := m.client.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(sentimentPrompt),
			openai.UserMessage(text),
		},
		Model:               m.client.config.SentimentModel,
		Temperature:         openai.Float(0.1),
		MaxCompletionTokens: openai.Int(10),
	})
	if err != nil {
		return mood.Classification{}, classifyErr(err)
	}
	if len(resp.Choices) == 0 {
		return mood.Classification{}, ErrEmptyResponse
	}

	return parseClassification(resp.Choices[0].Message.Content)
}

// parseClassification handles the "label, intensity" wire format. The
// model occasionally wanders off-script, so everything is normalized
// hard before use.
func parseClassification(raw string) (mood.Classification, error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return mood.Classification{}, fmt.Errorf("%w: malformed sentiment %q", ErrRequest, raw)
	}

	label := strings.ToLower(strings.TrimSpace(parts[0]))
	var sentiment mood.Sentiment
	switch label {
	case "positive":
		sentiment = mood.SentimentPositive
	case "negative":
		sentiment = mood.SentimentNegative
	case "neutral":
		sentiment = mood.SentimentNeutral
	default:
		return mood.Classification{}, fmt.Errorf("%w: unknown sentiment label %q", ErrRequest, label)
	}

	intensityText := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(parts[1]), "."))
	intensity, err := strconv.Atoi(intensityText)
	if err != nil {
		return mood.Classification{}, fmt.Errorf("%w: bad intensity %q", ErrRequest, parts[1])
	}
	if intensity < 1 {
		intensity = 1
	}
	if intensity > 5 {
		intensity = 5
	}

	return mood.Classification{Sentiment: sentiment, Intensity: float64(intensity)}, nil
}
