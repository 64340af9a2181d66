package ai

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/rs/zerolog"
)

// Player abstracts audio output so tests can run without a sound device.
type Player interface {
	Play(audio []byte) error
}

// BeepPlayer plays MP3 audio on the default output device.
type BeepPlayer struct{}

// Play decodes and plays one MP3 clip, blocking until it finishes.
func (BeepPlayer) Play(audio []byte) error {
	streamer, format, err := mp3.Decode(nopCloser{bytes.NewReader(audio)})
	if err != nil {
		return fmt.Errorf("decode mp3: %w", err)
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

// VoiceSpeaker implements Speaker: it synthesizes the whole reply in one
// request and degrades to sentence-chunked synthesis when that fails.
type VoiceSpeaker struct {
	client       *OpenAIClient
	player       Player
	logger       zerolog.Logger
	maxChunkSize int
}

// NewVoiceSpeaker builds a speaker. A nil player selects the default
// audio device.
func NewVoiceSpeaker(client *OpenAIClient, player Player, logger zerolog.Logger) *VoiceSpeaker {
	if player == nil {
		player = BeepPlayer{}
	}
	return &VoiceSpeaker{
		client:       client,
		player:       player,
		logger:       logger.With().Str("component", "speaker").Logger(),
		maxChunkSize: 120,
	}
}

// SynthesizeAndPlay voices the text. The fallback path synthesizes
// sentence by sentence so a single oversized or failing request does not
// silence the whole reply.
func (s *VoiceSpeaker) SynthesizeAndPlay(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	audio, err := s.client.synthesize(ctx, text)
	if err == nil {
		if err := s.player.Play(audio); err == nil {
			return nil
		} else {
			s.logger.Warn().Err(err).Msg("Playback failed, retrying sentence by sentence")
		}
	} else {
		s.logger.Warn().Err(err).Msg("Single-shot synthesis failed, falling back to sentence chunks")
	}

	var lastErr error
	for _, chunk := range SplitSentences(text, s.maxChunkSize) {
		audio, err := s.client.synthesize(ctx, chunk)
		if err != nil {
			lastErr = err
			continue
		}
		if err := s.player.Play(audio); err != nil {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("fallback synthesis: %w", lastErr)
	}
	return nil
}

// SplitSentences chunks text at the first sentence-ending punctuation at
// or after maxLength, keeping the punctuation with its chunk.
func SplitSentences(text string, maxLength int) []string {
	if maxLength <= 0 {
		maxLength = 120
	}

	var sentences []string
	text = strings.TrimSpace(text)

	for text != "" {
		if len(text) <= maxLength {
			sentences = append(sentences, text)
			break
		}

		splitAt := maxLength
		for splitAt < len(text) && !isSentenceEnd(text[splitAt]) {
			splitAt++
		}
		if splitAt < len(text) {
			splitAt++
		}

		sentences = append(sentences, strings.TrimSpace(text[:splitAt]))
		text = strings.TrimSpace(text[splitAt:])
	}

	return sentences
}

func isSentenceEnd(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
