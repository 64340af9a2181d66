// Package audio captures microphone input via PortAudio and encodes it
// for the transcription backend. Capture is voice gated: recording
// starts on the first frame above the RMS threshold and stops after a
// stretch of trailing silence.
package audio

import (
	"context"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

// Capturer is what the listen loop needs from a microphone. Capture
// returns one utterance as WAV bytes, or nil when nothing was heard
// before the context ended.
type Capturer interface {
	Init() error
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// Config tunes the voice gate.
type Config struct {
	SampleRate   int
	FrameSize    int
	SilenceRMS   float64
	TrailingGap  time.Duration
	MaxUtterance time.Duration
	DeviceIndex  int
}

// DefaultConfig works for most built-in microphones.
func DefaultConfig() Config {
	return Config{
		SampleRate:   16000,
		FrameSize:    320, // 20ms at 16kHz
		SilenceRMS:   0.015,
		TrailingGap:  600 * time.Millisecond,
		MaxUtterance: 15 * time.Second,
		DeviceIndex:  -1,
	}
}

// Recorder is the PortAudio-backed Capturer. It is driven by a single
// capture goroutine; the gate carries no lock.
type Recorder struct {
	config      Config
	gate        *voiceGate
	logger      zerolog.Logger
	initialized bool
}

// NewRecorder builds a recorder. Init must be called before Capture.
func NewRecorder(config Config, logger zerolog.Logger) *Recorder {
	if config.SampleRate <= 0 {
		config = DefaultConfig()
	}
	return &Recorder{
		config: config,
		gate:   newVoiceGate(config.SilenceRMS, 5),
		logger: logger.With().Str("component", "audio").Logger(),
	}
}

// Init brings up PortAudio. A failure here means no usable microphone.
func (r *Recorder) Init() error {
	if r.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize audio subsystem: %w", err)
	}
	r.initialized = true
	return nil
}

// Close tears down PortAudio.
func (r *Recorder) Close() error {
	if !r.initialized {
		return nil
	}
	r.initialized = false
	return portaudio.Terminate()
}

// Capture records one voice-gated utterance and returns it as a mono
// 16-bit WAV. It returns nil bytes when the context is cancelled before
// any speech crosses the gate.
func (r *Recorder) Capture(ctx context.Context) ([]byte, error) {
	cfg := r.config
	buf := make([]float32, cfg.FrameSize)
	out := make([]float32, 0, cfg.SampleRate*3)

	stream, err := r.openStream(buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	defer stream.Stop()

	frameDur := time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate)
	maxFrames := int(cfg.MaxUtterance / frameDur)
	gapFrames := int(cfg.TrailingGap / frameDur)

	// Energy from the previous utterance must not bleed into this one.
	r.gate.reset()

	var (
		speaking      bool
		silenceFrames int
	)

	for i := 0; i < maxFrames; i++ {
		select {
		case <-ctx.Done():
			if !speaking {
				return nil, nil
			}
			return r.encode(out), nil
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("read input frame: %w", err)
		}

		if r.gate.weigh(buf) {
			speaking = true
			silenceFrames = 0
			out = append(out, buf...)
			continue
		}

		if speaking {
			silenceFrames++
			if silenceFrames >= gapFrames {
				break
			}
			out = append(out, buf...)
		}
	}

	if !speaking {
		return nil, nil
	}
	return r.encode(out), nil
}

func (r *Recorder) openStream(buf []float32) (*portaudio.Stream, error) {
	if r.config.DeviceIndex < 0 {
		return portaudio.OpenDefaultStream(1, 0, float64(r.config.SampleRate), len(buf), buf)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if r.config.DeviceIndex >= len(devices) {
		return nil, fmt.Errorf("no input device at index %d", r.config.DeviceIndex)
	}

	params := portaudio.LowLatencyParameters(devices[r.config.DeviceIndex], nil)
	params.Input.Channels = 1
	params.SampleRate = float64(r.config.SampleRate)
	params.FramesPerBuffer = len(buf)
	return portaudio.OpenStream(params, buf)
}

func (r *Recorder) encode(samples []float32) []byte {
	if len(samples) == 0 {
		return nil
	}
	return EncodeWAV(samples, r.config.SampleRate)
}
