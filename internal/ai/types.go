// Package ai defines the narrow interfaces to the hosted AI services the
// core delegates to, plus their OpenAI- and HuggingFace-backed
// implementations. The core never talks to a vendor SDK directly.
package ai

import (
	"context"
	"errors"

	"github.com/normanking/cortexcompanion/internal/history"
	"github.com/normanking/cortexcompanion/internal/moderation"
)

// Common errors. ErrQuotaExceeded covers rate and token-budget
// exhaustion; callers treat it as the signal to wipe history.
var (
	ErrQuotaExceeded      = errors.New("quota exceeded")
	ErrRequest            = errors.New("upstream request failed")
	ErrTranscription      = errors.New("transcription failed")
	ErrEmptyResponse      = errors.New("upstream returned no content")
	ErrCaptionUnavailable = errors.New("image captioning unavailable")
)

// Completer generates the assistant reply for an assembled message list.
type Completer interface {
	Complete(ctx context.Context, messages []history.Turn, temperature float64, maxTokens int) (string, error)
}

// Moderator checks text against the usage policy.
type Moderator interface {
	Moderate(ctx context.Context, text string) (moderation.Result, error)
}

// Transcriber converts captured audio (WAV bytes) to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Speaker synthesizes text and plays it on the local output device.
// Failures must not propagate into the turn result.
type Speaker interface {
	SynthesizeAndPlay(ctx context.Context, text string) error
}

// ContextMatch is one hit from the semantic context index.
type ContextMatch struct {
	Score    float64           `json:"score"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata"`
}

// ContextSearcher retrieves background knowledge for question-shaped
// input.
type ContextSearcher interface {
	Search(ctx context.Context, query string) ([]ContextMatch, error)
}

// Captioner describes an uploaded image in one sentence.
type Captioner interface {
	Caption(ctx context.Context, image []byte) (string, error)
}
