package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/normanking/cortexcompanion/internal/history"
	"github.com/normanking/cortexcompanion/internal/metrics"
	"github.com/normanking/cortexcompanion/internal/moderation"
)

// OpenAIConfig selects the hosted models.
type OpenAIConfig struct {
	ChatModel       string `mapstructure:"chat_model"`
	SentimentModel  string `mapstructure:"sentiment_model"`
	WhisperModel    string `mapstructure:"whisper_model"`
	SpeechModel     string `mapstructure:"speech_model"`
	Voice           string `mapstructure:"voice"`
	EmbeddingModel  string `mapstructure:"embedding_model"`
	ModerationModel string `mapstructure:"moderation_model"`
}

// DefaultOpenAIConfig returns sensible defaults.
func DefaultOpenAIConfig() *OpenAIConfig {
	return &OpenAIConfig{
		ChatModel:       openai.ChatModelGPT4oMini,
		SentimentModel:  openai.ChatModelGPT4oMini,
		WhisperModel:    openai.AudioModelWhisper1,
		SpeechModel:     openai.SpeechModelTTS1,
		Voice:           "nova",
		EmbeddingModel:  openai.EmbeddingModelTextEmbedding3Small,
		ModerationModel: openai.ModerationModelOmniModerationLatest,
	}
}

// OpenAIClient implements Completer, Moderator, and Transcriber against
// the OpenAI API.
type OpenAIClient struct {
	client openai.Client
	config *OpenAIConfig
	logger zerolog.Logger
}

// NewOpenAIClient builds a client. baseURL is optional and exists for
// tests and proxies.
func NewOpenAIClient(apiKey, baseURL string, config *OpenAIConfig, logger zerolog.Logger) *OpenAIClient {
	if config == nil {
		config = DefaultOpenAIConfig()
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		config: config,
		logger: logger.With().Str("component", "openai").Logger(),
	}
}

// Complete sends the assembled messages to the chat completion API.
func (c *OpenAIClient) Complete(ctx context.Context, messages []history.Turn, temperature float64, maxTokens int) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:            toMessageParams(messages),
		Model:               c.config.ChatModel,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("completion").Inc()
		return "", classifyErr(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		metrics.UpstreamFailures.WithLabelValues("completion").Inc()
		return "", ErrEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

// Moderate checks text against the usage policy and converts the
// provider's category flags into the tagged enum.
func (c *OpenAIClient) Moderate(ctx context.Context, text string) (moderation.Result, error) {
	resp, err := c.client.Moderations.New(ctx, openai.ModerationNewParams{
		Input: openai.ModerationNewParamsInputUnion{OfString: openai.String(text)},
		Model: c.config.ModerationModel,
	})
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("moderation").Inc()
		return moderation.Result{}, classifyErr(err)
	}
	if len(resp.Results) == 0 {
		return moderation.Result{}, ErrEmptyResponse
	}

	out := resp.Results[0]
	result := moderation.Result{Flagged: out.Flagged}

	cats := out.Categories
	for _, entry := range []struct {
		hit bool
		cat moderation.Category
	}{
		{cats.Sexual, moderation.CategorySexual},
		{cats.Hate, moderation.CategoryHate},
		{cats.Harassment, moderation.CategoryHarassment},
		{cats.SelfHarm, moderation.CategorySelfHarm},
		{cats.SexualMinors, moderation.CategorySexualMinors},
		{cats.HateThreatening, moderation.CategoryHateThreatening},
		{cats.ViolenceGraphic, moderation.CategoryViolenceGraphic},
		{cats.SelfHarmIntent, moderation.CategorySelfHarmIntent},
		{cats.SelfHarmInstructions, moderation.CategorySelfHarmInstructions},
		{cats.HarassmentThreatening, moderation.CategoryHarassmentThreatening},
		{cats.Violence, moderation.CategoryViolence},
	} {
		if entry.hit {
			result.Categories = append(result.Categories, entry.cat)
		}
	}

	return result, nil
}

// Transcribe sends WAV audio to the transcription API.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), "speech.wav", "audio/wav"),
		Model: c.config.WhisperModel,
	})
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("transcription").Inc()
		return "", fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	return resp.Text, nil
}

// synthesize fetches raw MP3 audio for text. Playback lives in Speaker.
func (c *OpenAIClient) synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          c.config.SpeechModel,
		Voice:          openai.AudioSpeechNewParamsVoice(c.config.Voice),
		Input:          text,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("speech").Inc()
		return nil, classifyErr(err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("%w: reading speech audio: %v", ErrRequest, err)
	}
	return buf.Bytes(), nil
}

// Embed returns the embedding vector for a query string.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: c.config.EmbeddingModel,
	})
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("embedding").Inc()
		return nil, classifyErr(err)
	}
	if len(resp.Data) == 0 {
		return nil, ErrEmptyResponse
	}

	return resp.Data[0].Embedding, nil
}

func toMessageParams(messages []history.Turn) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case history.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case history.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// classifyErr sorts an SDK error into the package taxonomy. 429 covers
// both rate limiting and exhausted token budgets.
func classifyErr(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("%w: %v", ErrRequest, err)
}
